package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/koopa0/lakitu/internal/chat"
)

// ErrUnknownEvent indicates an SSE event name outside the protocol.
var ErrUnknownEvent = errors.New("unknown event")

// Decode parses an SSE stream and invokes fn for each decoded event.
// It returns when the stream ends, ctx is canceled, or fn returns an
// error. Callers deciding the round is over (a terminal event arrived)
// should return an error from fn or cancel ctx to stop reading.
func Decode(ctx context.Context, r io.Reader, fn func(chat.Event) error) error {
	return consume(ctx, r, func(event, data string) error {
		ev, err := decodeEvent(event, data)
		if err != nil {
			return err
		}
		return fn(ev)
	})
}

// decodeEvent reconstructs a chat.Event from an SSE event name and its
// JSON data payload.
func decodeEvent(event, data string) (chat.Event, error) {
	ev := chat.Event{Type: chat.EventType(event)}

	var payload any
	switch ev.Type {
	case chat.EventTextDelta:
		ev.Delta = &chat.TextDelta{}
		payload = ev.Delta
	case chat.EventToolCallRequested:
		ev.Call = &chat.ToolCall{}
		payload = ev.Call
	case chat.EventToolResultAvailable:
		ev.Result = &chat.ToolOutcome{}
		payload = ev.Result
	case chat.EventTurnFinished:
		ev.Finish = &chat.Finish{}
		payload = ev.Finish
	case chat.EventError:
		ev.Err = &chat.RoundError{}
		payload = ev.Err
	default:
		return chat.Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}

	if err := json.Unmarshal([]byte(data), payload); err != nil {
		return chat.Event{}, fmt.Errorf("decode %s payload: %w", event, err)
	}
	return ev, nil
}

// consume parses a Server-Sent Events stream, invoking fn for each event.
func consume(ctx context.Context, r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var eventName string
	var dataBuf strings.Builder
	flush := func() error {
		if dataBuf.Len() == 0 {
			eventName = ""
			return nil
		}
		payload := dataBuf.String()
		dataBuf.Reset()
		return fn(eventName, payload)
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Text()
		if line == "" {
			if err := flush(); err != nil {
				return err
			}
			eventName = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") {
			eventName = strings.TrimSpace(line[6:])
			continue
		}
		if strings.HasPrefix(line, "data:") {
			if dataBuf.Len() > 0 {
				dataBuf.WriteByte('\n')
			}
			dataBuf.WriteString(strings.TrimSpace(line[5:]))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}
