package history

import (
	"fmt"
	"testing"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

func TestLogWrapsOldestFirst(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Append(protocol.Message{ID: fmt.Sprintf("m%d", i)})
	}

	snap := l.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(snap))
	}
	want := []string{"m2", "m3", "m4"}
	for i, m := range snap {
		if m.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], m.ID)
		}
	}
}

func TestLogPartialFill(t *testing.T) {
	l := NewLog(10)
	l.Append(protocol.Message{ID: "a"})
	l.Append(protocol.Message{ID: "b"})

	if l.Len() != 2 {
		t.Fatalf("expected 2, got %d", l.Len())
	}
	snap := l.Snapshot()
	if snap[0].ID != "a" || snap[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", snap)
	}
}
