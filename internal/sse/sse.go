// Package sse implements C8: canonical Server-Sent Events framing for task
// event streams, with periodic heartbeat comments and Last-Event-ID-based
// resubscribe, the raw http.Flusher style used by the standalone SSE
// reference server in the examples pack rather than a net/http wrapper
// library (no example repo in the corpus depends on one for the server
// side — only client-side SSE consumption libraries appear, wired in
// internal/peer instead).
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/a2arun/agentnode/internal/a2atypes"
	"github.com/a2arun/agentnode/internal/eventqueue"
)

// HeartbeatInterval is how often a ":keepalive" comment line is written to
// an idle stream, matching spec.md §4.8.
const HeartbeatInterval = 15 * time.Second

// LastEventIDHeader is the standard SSE resubscribe header.
const LastEventIDHeader = "Last-Event-ID"

// Writer streams a2atypes.Event values as SSE frames onto an
// http.ResponseWriter, handling heartbeats and flush.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w's headers for an SSE response and returns a Writer.
// It returns an error if w does not support flushing, since SSE cannot
// work without it.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent writes one canonical "id:"/"event:"/"data:" frame.
func (sw *Writer) WriteEvent(ev a2atypes.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(sw.w, "id: %d\n", ev.Seq); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\n", ev.Kind); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// WriteHeartbeat writes a ":keepalive" comment line, which SSE clients
// ignore as content but which resets any intermediary idle-connection
// timeout.
func (sw *Writer) WriteHeartbeat() error {
	if _, err := fmt.Fprint(sw.w, ":keepalive\n\n"); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Stream subscribes to taskID's event queue starting after lastEventID
// (zero for "from the beginning of the retained window") and writes every
// event to w until the request context is canceled, the queue closes on a
// final status-update, or the subscriber is dropped for lagging.
//
// If lastEventID references a sequence number older than the retained
// window, ok is false and nothing is written; internal/server then sends a
// catch_up=false task-snapshot event and ends the stream without following
// live events.
func Stream(ctx context.Context, w *Writer, queue *eventqueue.Queue, lastEventID uint64) (ok bool, err error) {
	sub, subscribed := queue.Subscribe(lastEventID)
	if !subscribed {
		return false, nil
	}
	defer sub.Close()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-sub.Events:
			if !open {
				return true, nil
			}
			if err := w.WriteEvent(ev); err != nil {
				return true, err
			}
		case <-sub.Lagged:
			return true, fmt.Errorf("sse: subscriber fell too far behind and was disconnected")
		case <-ticker.C:
			if err := w.WriteHeartbeat(); err != nil {
				return true, err
			}
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// ParseLastEventID reads the Last-Event-ID header, returning 0 if absent
// or malformed (treated as "replay the full retained window").
func ParseLastEventID(h http.Header) uint64 {
	raw := h.Get(LastEventIDHeader)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
