// Package roster tracks which users are online anywhere in the cluster. The
// relay consults it to decide whether a directed message can be delivered
// live or must be queued.
package roster

import "context"

// Roster is the cluster-wide online set.
type Roster interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	Online(ctx context.Context) ([]string, error)
}
