package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mlauria/lexflow/internal/jobs"
)

const (
	streamReadDeadline = 120 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamJobStatus subscribes to the job's websocket channel and delivers
// ticks until the server closes the stream. A normal server close returns
// nil; anything else is a transport error the caller may choose to ignore,
// since the job keeps running server-side.
func (c *HTTPClient) StreamJobStatus(ctx context.Context, jobID string, onTick func(jobs.StatusUpdate)) error {
	endpoint := c.wsURL + "/v1/jobs/" + url.PathEscape(jobID) + "/stream"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial job stream: %w", err)
	}
	defer conn.Close()

	// Drop the connection promptly when the subscription is closed.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(streamPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(streamReadDeadline))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(streamReadDeadline))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read job stream: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(streamReadDeadline))

		var update jobs.StatusUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			// Malformed ticks are skipped; the pull endpoint remains
			// the backstop.
			continue
		}
		if update.JobID == "" {
			update.JobID = jobID
		}
		onTick(update)
	}
}
