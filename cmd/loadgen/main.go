// loadgen is a smoke-test client of the relay's wire protocol: it opens N
// websocket connections and emits synthetic chat traffic, reporting delivery
// counts on exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/manas360online-source/Real-time-Session-Sync-WebSocket/internal/protocol"
)

func main() {
	var (
		addr     = flag.String("addr", "ws://localhost:8080/ws", "relay websocket URL")
		conns    = flag.Int("conns", 10, "number of concurrent connections")
		rate     = flag.Duration("rate", time.Second, "send interval per connection")
		duration = flag.Duration("duration", 30*time.Second, "how long to run")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	var sent, received, failures atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < *conns; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := runClient(ctx, *addr, n, *rate, &sent, &received); err != nil {
				failures.Add(1)
				fmt.Fprintf(os.Stderr, "client %d: %v\n", n, err)
			}
		}(i)
	}

	wg.Wait()
	fmt.Printf("connections=%d sent=%d received=%d failed=%d\n",
		*conns, sent.Load(), received.Load(), failures.Load())
}

func runClient(ctx context.Context, addr string, n int, rate time.Duration, sent, received *atomic.Int64) error {
	userID := fmt.Sprintf("loadgen-%d-%s", n, ulid.Make().String())
	role := protocol.RoleResponder
	if n%2 == 0 {
		role = protocol.RoleInitiator
	}

	url := fmt.Sprintf("%s?user_id=%s&role=%s", addr, userID, role)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	// Reader: counts deliveries and keeps pings answered.
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if env, err := protocol.Decode(data); err == nil && env.Type == protocol.KindMessage {
				received.Add(1)
			}
		}
	}()

	ticker := time.NewTicker(rate + time.Duration(rand.N(int64(rate/4))))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case <-ticker.C:
			data, err := protocol.Encode(protocol.KindMessage, "", protocol.Message{
				ID:        ulid.Make().String(),
				SenderID:  userID,
				Role:      role,
				Content:   fmt.Sprintf("synthetic message from %s", userID),
				Kind:      protocol.MessageText,
				Timestamp: time.Now().UnixMilli(),
			})
			if err != nil {
				return err
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			sent.Add(1)
		}
	}
}
