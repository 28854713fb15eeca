// Package sentiment is the boundary client for the external
// sentiment-analysis service. The relay never blocks on it: callers run
// Analyze from their own goroutine and it always produces a usable string.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

// Unavailable is the fixed degraded result returned on any failure.
const Unavailable = "analysis unavailable"

const defaultTimeout = 20 * time.Second

// Client calls the sentiment-analysis service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
}

type analyzeRequest struct {
	Transcript string `json:"transcript"`
}

type analyzeResponse struct {
	Summary string `json:"summary"`
}

// Transcript renders messages as the "ROLE: content" lines the service
// expects, oldest first.
func Transcript(msgs []protocol.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		role := string(m.Role)
		if role == "" {
			role = "system"
		}
		b.WriteString(strings.ToUpper(role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

// Analyze submits the ordered messages and returns the service's free-text
// summary. On any failure it returns Unavailable; no error reaches the
// relay path.
func (c *Client) Analyze(ctx context.Context, msgs []protocol.Message) string {
	summary, err := c.analyze(ctx, msgs)
	if err != nil {
		c.logger.Warn().Err(err).Msg("sentiment analysis failed")
		return Unavailable
	}
	return summary
}

func (c *Client) analyze(ctx context.Context, msgs []protocol.Message) (string, error) {
	body, err := json.Marshal(analyzeRequest{Transcript: Transcript(msgs)})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sentiment service returned %d", resp.StatusCode)
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Summary == "" {
		return "", fmt.Errorf("sentiment service returned empty summary")
	}
	return out.Summary, nil
}
