package peer

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

// StreamReconnectConfig governs auto-resubscribe behavior for a
// long-lived peer event stream, grounded on
// runtime/a2a/retry/retry.go's StreamReconnectConfig.
type StreamReconnectConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultStreamReconnectConfig matches the teacher's defaults for a
// long-lived consumer that should keep trying for a while before giving
// up and surfacing the disconnect to the caller.
func DefaultStreamReconnectConfig() StreamReconnectConfig {
	return StreamReconnectConfig{MaxAttempts: 10, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// StreamEvents subscribes to a peer task's event stream at streamURL
// and delivers decoded a2atypes.Event values
// on the returned channel, transparently reconnecting with
// Last-Event-ID-based resume on disconnect, up to cfg's attempt budget.
// The channel is closed when ctx is canceled, the stream reaches a final
// event, or reconnection is exhausted (in which case the last error is
// sent as a synthetic ItemError-shaped event by the caller's consumer,
// not by this function, which only closes the channel).
func (c *Client) StreamEvents(ctx context.Context, streamURL string, cfg StreamReconnectConfig) <-chan a2atypes.Event {
	out := make(chan a2atypes.Event)
	go c.streamLoop(ctx, streamURL, cfg, out)
	return out
}

func (c *Client) streamLoop(ctx context.Context, streamURL string, cfg StreamReconnectConfig, out chan<- a2atypes.Event) {
	defer close(out)

	var lastEventID uint64
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		final, err := c.consumeOnce(ctx, streamURL, lastEventID, out, &lastEventID)
		if final {
			return
		}
		if err == nil {
			// clean EOF with no final event: reconnect immediately, but
			// still count it against the attempt budget
			attempt++
			if attempt > cfg.MaxAttempts {
				return
			}
			continue
		}
		attempt++
		if attempt > cfg.MaxAttempts {
			return
		}
		delay := calculateBackoff(RetryConfig{BaseDelay: cfg.BaseDelay, MaxDelay: cfg.MaxDelay, Jitter: 0.2}, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// consumeOnce opens one SSE connection and reads frames until EOF, error,
// or a final status-update event. lastEventID is updated in place as
// frames arrive so a subsequent reconnect resumes from where this attempt
// left off.
func (c *Client) consumeOnce(ctx context.Context, streamURL string, lastEventID uint64, out chan<- a2atypes.Event, lastEventIDOut *uint64) (final bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return false, newTransportError(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(lastEventID, 10))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, newHTTPError(resp.StatusCode, "")
	}

	reader := bufio.NewReader(resp.Body)
	var eventName string
	var dataLines []string

	flush := func() (a2atypes.Event, bool) {
		if len(dataLines) == 0 {
			return a2atypes.Event{}, false
		}
		defer func() { eventName = ""; dataLines = nil }()
		var ev a2atypes.Event
		if err := json.Unmarshal([]byte(strings.Join(dataLines, "\n")), &ev); err != nil {
			return a2atypes.Event{}, false
		}
		return ev, true
	}

	for {
		line, rerr := reader.ReadString('\n')
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "" && len(dataLines) > 0:
			if ev, ok := flush(); ok {
				*lastEventIDOut = ev.Seq
				select {
				case out <- ev:
				case <-ctx.Done():
					return false, ctx.Err()
				}
				if ev.Kind == a2atypes.EventStatusUpdate && ev.Final {
					return true, nil
				}
			}
		case strings.HasPrefix(line, ":"):
			// comment/heartbeat, ignore
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, "id:"):
			// id is carried inside the JSON payload as Seq too; the raw
			// SSE id: line is informational only here.
		}
		_ = eventName

		if rerr != nil {
			return false, nil // EOF or read error: caller decides whether to reconnect
		}
	}
}
