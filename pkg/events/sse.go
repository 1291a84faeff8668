package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// readSSE consumes the legacy text/event-stream endpoint until it ends.
func (c *Client) readSSE(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sse connect %s: %w", c.cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sse connect %s: status %d", c.cfg.URL, resp.StatusCode)
	}

	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
	c.state.Store(int32(StateReady))
	c.logger.Info("event stream connected", "url", c.cfg.URL)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		name string
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 || name != "" {
				c.Dispatch(sseEvent(name, strings.Join(data, "\n")))
			}
			name, data = "", nil
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sse read: %w", err)
	}
	return fmt.Errorf("sse stream ended")
}

// sseEvent builds an Event from one SSE frame. Unnamed frames are parsed
// like WebSocket payloads; named frames keep their name as the type.
func sseEvent(name, data string) Event {
	if name == "" || name == DefaultType {
		return Parse([]byte(data))
	}

	ev := Event{Type: name, At: time.Now()}
	trimmed := strings.TrimSpace(data)
	switch {
	case trimmed == "":
		ev.Data = json.RawMessage("null")
	case json.Valid([]byte(trimmed)):
		ev.Data = json.RawMessage(trimmed)
	default:
		raw, _ := json.Marshal(data)
		ev.Data = raw
	}
	return ev
}
