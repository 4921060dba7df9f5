// Package stream moves orchestrator events over Server-Sent Events:
// Writer encodes events onto an http.ResponseWriter, Decode parses them
// back on the client side. Event names on the wire are the
// chat.EventType values; the data field carries the JSON payload for
// that event type.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koopa0/lakitu/internal/chat"
)

// Writer wraps an http.ResponseWriter for SSE streaming.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter creates a new SSE writer and sets appropriate headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flusher interface")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent encodes one orchestrator event and flushes it immediately.
func (w *Writer) WriteEvent(ctx context.Context, ev chat.Event) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context canceled: %w", ctx.Err())
	default:
	}

	data, err := json.Marshal(eventPayload(ev))
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	return w.writeSSEData(string(ev.Type), string(data))
}

// WriteError sends a terminal error event directly, bypassing the
// orchestrator. Used for failures before a round starts.
func (w *Writer) WriteError(message string) error {
	data, err := json.Marshal(chat.RoundError{Message: message})
	if err != nil {
		return fmt.Errorf("marshal error payload: %w", err)
	}
	return w.writeSSEData(string(chat.EventError), string(data))
}

// eventPayload selects the payload struct for the event's type. The
// envelope itself is not sent; the SSE event name carries the type.
func eventPayload(ev chat.Event) any {
	switch ev.Type {
	case chat.EventTextDelta:
		return ev.Delta
	case chat.EventToolCallRequested:
		return ev.Call
	case chat.EventToolResultAvailable:
		return ev.Result
	case chat.EventTurnFinished:
		return ev.Finish
	case chat.EventError:
		return ev.Err
	default:
		return struct{}{}
	}
}

// writeSSEData writes data in SSE format, handling multi-line content.
// SSE spec requires each line of data to be prefixed with "data: ".
func (w *Writer) writeSSEData(event, content string) error {
	if _, err := fmt.Fprintf(w.w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}

	for _, line := range strings.Split(content, "\n") {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
	}

	// Empty line terminates the event
	if _, err := w.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}

	w.flusher.Flush()
	return nil
}
