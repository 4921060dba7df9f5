// Package conversation tracks client-side chat state across rounds: an
// append-only turn log, the partial text of the round in flight, and
// the pending/settled status of every tool invocation. It is the state
// half of the client; the transport half lives in internal/client.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/koopa0/lakitu/internal/chat"
	"github.com/koopa0/lakitu/internal/tools"
)

// InvocationStatus tracks a tool invocation through its lifecycle.
// Every invocation starts pending and settles exactly once.
type InvocationStatus string

const (
	// StatusPending means the call was announced but has no result yet.
	StatusPending InvocationStatus = "pending"
	// StatusExecuted means the call settled with a success result.
	StatusExecuted InvocationStatus = "executed"
	// StatusFailed means the call settled with an error-status result.
	StatusFailed InvocationStatus = "failed"
)

// Sentinel errors for state transitions.
var (
	// ErrRoundActive indicates a submit while a round is in flight.
	ErrRoundActive = errors.New("round already active")

	// ErrNoActiveRound indicates an event arrived with no round open.
	ErrNoActiveRound = errors.New("no active round")

	// ErrEmptyInput indicates a blank submission.
	ErrEmptyInput = errors.New("empty input")

	// ErrUnknownCall indicates a tool result for a call that was never
	// announced.
	ErrUnknownCall = errors.New("unknown tool call")

	// ErrCallSettled indicates a second result for an already settled
	// invocation.
	ErrCallSettled = errors.New("tool call already settled")
)

// ToolInvocation is one tool call within an assistant turn.
type ToolInvocation struct {
	CallID    string           `json:"callId"`
	Name      string           `json:"name"`
	Arguments map[string]any   `json:"arguments,omitempty"`
	Status    InvocationStatus `json:"status"`
	Result    *tools.Result    `json:"result,omitempty"`
}

// Turn is one committed entry of the conversation log.
type Turn struct {
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	Invocations []ToolInvocation `json:"invocations,omitempty"`
}

// Conversation holds the turn log and the state of the active round.
// All methods are safe for concurrent use.
type Conversation struct {
	mu sync.Mutex

	turns   []Turn
	active  bool
	draft   strings.Builder
	pending []ToolInvocation
	lastErr *chat.RoundError
}

// New creates an empty conversation.
func New() *Conversation {
	return &Conversation{}
}

// CanSubmit reports whether a new round may start. Only one round is
// in flight at a time.
func (c *Conversation) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.active
}

// Submit commits the user's message and opens a round. The caller then
// feeds the round's events through Apply until a terminal event closes
// it.
func (c *Conversation) Submit(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrRoundActive
	}

	c.turns = append(c.turns, Turn{Role: chat.RoleUser, Content: text})
	c.active = true
	c.draft.Reset()
	c.pending = nil
	c.lastErr = nil
	return nil
}

// Apply folds one orchestrator event into the conversation. Terminal
// events close the round: turn-finished commits an assistant turn,
// error discards the draft and records the failure.
func (c *Conversation) Apply(ev chat.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		return fmt.Errorf("%w: %s event dropped", ErrNoActiveRound, ev.Type)
	}

	switch ev.Type {
	case chat.EventTextDelta:
		if ev.Delta != nil {
			c.draft.WriteString(ev.Delta.Text)
		}
		return nil

	case chat.EventToolCallRequested:
		if ev.Call == nil {
			return errors.New("tool-call-requested without payload")
		}
		c.pending = append(c.pending, ToolInvocation{
			CallID:    ev.Call.CallID,
			Name:      ev.Call.Name,
			Arguments: ev.Call.Arguments,
			Status:    StatusPending,
		})
		return nil

	case chat.EventToolResultAvailable:
		if ev.Result == nil {
			return errors.New("tool-result-available without payload")
		}
		return c.settle(ev.Result)

	case chat.EventTurnFinished:
		text := c.draft.String()
		if ev.Finish != nil {
			text = ev.Finish.Text
		}
		c.turns = append(c.turns, Turn{
			Role:        chat.RoleAssistant,
			Content:     text,
			Invocations: c.pending,
		})
		c.closeRound()
		return nil

	case chat.EventError:
		// The draft never becomes a turn: a failed round leaves only
		// the user's message, ready to resubmit.
		c.lastErr = ev.Err
		if c.lastErr == nil {
			c.lastErr = &chat.RoundError{Message: "round failed"}
		}
		c.closeRound()
		return nil

	default:
		return fmt.Errorf("unexpected event type %q", ev.Type)
	}
}

// settle records a tool result against its pending invocation.
func (c *Conversation) settle(outcome *chat.ToolOutcome) error {
	for i := range c.pending {
		inv := &c.pending[i]
		if inv.CallID != outcome.CallID {
			continue
		}
		if inv.Status != StatusPending {
			return fmt.Errorf("%w: %s", ErrCallSettled, outcome.CallID)
		}
		result := outcome.Result
		inv.Result = &result
		if result.OK() {
			inv.Status = StatusExecuted
		} else {
			inv.Status = StatusFailed
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCall, outcome.CallID)
}

func (c *Conversation) closeRound() {
	c.active = false
	c.draft.Reset()
	c.pending = nil
}

// Active reports whether a round is in flight.
func (c *Conversation) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Draft returns the text accumulated so far in the active round.
func (c *Conversation) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.String()
}

// LastError returns the failure that ended the most recent round, or
// nil if it finished cleanly.
func (c *Conversation) LastError() *chat.RoundError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Pending returns a snapshot of the active round's tool invocations.
func (c *Conversation) Pending() []ToolInvocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolInvocation, len(c.pending))
	copy(out, c.pending)
	return out
}

// Turns returns a snapshot of the committed turn log.
func (c *Conversation) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Messages renders the turn log as the wire history for the next round.
func (c *Conversation) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Message, 0, len(c.turns))
	for _, turn := range c.turns {
		out = append(out, chat.Message{Role: turn.Role, Content: turn.Content})
	}
	return out
}
