package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/koopa0/lakitu/internal/tools"
)

// errorEmitTimeout bounds the terminal error send when the round
// context is already dead and the consumer may be gone.
const errorEmitTimeout = time.Second

// Run executes one conversational round and returns the event channel.
//
// The history is validated up front; malformed input fails fast with a
// nil channel. Otherwise the round runs in a background goroutine that
// delivers events in order and closes the channel after exactly one
// terminal event. Canceling ctx stops the round; the whole round is
// additionally bounded by the configured round timeout.
func (a *Agent) Run(ctx context.Context, msgs []Message) (<-chan Event, error) {
	history, err := toModelMessages(msgs)
	if err != nil {
		return nil, err
	}
	events := make(chan Event, eventBuffer)
	go a.run(ctx, history, events)
	return events, nil
}

// run drives the bounded tool loop. Each iteration is one model call;
// tool requests are executed and folded back into the history until the
// model answers with text or the step bound forces a text-only call.
func (a *Agent) run(ctx context.Context, history []*ai.Message, events chan<- Event) {
	defer close(events)

	ctx, cancel := context.WithTimeout(ctx, a.roundTimeout)
	defer cancel()

	start := time.Now()
	toolCalls := 0

	for step := 1; ; step++ {
		// On the last permitted step tools are withheld so the model
		// must close the round with text.
		finalStep := step >= a.maxSteps || len(a.toolRefs) == 0

		resp, err := a.generateStep(ctx, history, finalStep, events)
		if err != nil {
			a.fail(events, err)
			return
		}

		requests := resp.ToolRequests()
		if finalStep || len(requests) == 0 {
			text := strings.TrimSpace(resp.Text())
			if text == "" {
				a.logger.Warn("model returned empty response", "step", step)
				text = fallbackResponseMessage
				if !a.emit(ctx, events, Event{Type: EventTextDelta, Delta: &TextDelta{Text: text}}) {
					a.fail(events, fmt.Errorf("delivering fallback: %w", ctx.Err()))
					return
				}
			}
			a.logger.Info("round finished",
				"steps", step,
				"toolCalls", toolCalls,
				"elapsed", time.Since(start),
			)
			a.emitTerminal(events, Event{Type: EventTurnFinished, Finish: &Finish{
				Text:      text,
				Steps:     step,
				ToolCalls: toolCalls,
			}})
			return
		}

		history = append(history, resp.Message)

		parts, ok := a.executeRequests(ctx, requests, events)
		if !ok {
			a.fail(events, fmt.Errorf("round interrupted: %w", ctx.Err()))
			return
		}
		history = append(history, ai.NewMessage(ai.RoleTool, nil, parts...))
		toolCalls += len(requests)
	}
}

// generateStep performs one model call with streaming text deltas.
// When finalStep is false the model may answer with tool requests,
// which are returned to the loop instead of being auto-executed.
func (a *Agent) generateStep(ctx context.Context, history []*ai.Message, finalStep bool, events chan<- Event) (*ai.ModelResponse, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(a.modelName),
		ai.WithSystem(a.systemPrompt),
		ai.WithMessages(history...),
		ai.WithStreaming(func(cbCtx context.Context, chunk *ai.ModelResponseChunk) error {
			if chunk == nil {
				return nil
			}
			for _, part := range chunk.Content {
				if part.Text == "" {
					continue
				}
				if !a.emit(cbCtx, events, Event{Type: EventTextDelta, Delta: &TextDelta{Text: part.Text}}) {
					return cbCtx.Err()
				}
			}
			return nil
		}),
	}

	genCfg := map[string]any{}
	if a.temperature > 0 {
		genCfg["temperature"] = a.temperature
	}
	if a.maxTokens > 0 {
		genCfg["maxOutputTokens"] = a.maxTokens
	}
	if len(genCfg) > 0 {
		opts = append(opts, ai.WithConfig(genCfg))
	}

	if !finalStep && len(a.toolRefs) > 0 {
		opts = append(opts,
			ai.WithTools(a.toolRefs...),
			ai.WithReturnToolRequests(true),
		)
	}

	a.logger.Debug("calling model",
		"finalStep", finalStep,
		"messages", len(history),
		"tools", a.toolNames,
	)

	// Check circuit breaker before attempting request
	if err := a.circuitBreaker.Allow(); err != nil {
		a.logger.Warn("circuit breaker is open, rejecting request",
			"state", a.circuitBreaker.State().String())
		return nil, fmt.Errorf("service unavailable: %w", err)
	}

	resp, err := a.generateWithRetry(ctx, opts)
	if err != nil {
		a.circuitBreaker.Failure()
		return nil, err
	}

	a.circuitBreaker.Success()
	return resp, nil
}

// executeRequests announces, executes, and reports the step's tool
// requests. Execution is concurrent; events and response parts keep the
// model's request order. Returns false when the round context died
// before all events could be delivered.
func (a *Agent) executeRequests(ctx context.Context, requests []*ai.ToolRequest, events chan<- Event) ([]*ai.Part, bool) {
	calls := make([]ToolCall, len(requests))
	for i, req := range requests {
		id := req.Ref
		if id == "" {
			id = uuid.NewString()
		}
		calls[i] = ToolCall{CallID: id, Name: req.Name, Arguments: toArgs(req.Input)}
		if !a.emit(ctx, events, Event{Type: EventToolCallRequested, Call: &calls[i]}) {
			return nil, false
		}
	}

	// Registry.Execute never returns a Go error: failures come back as
	// error-status results the model can read on the next step.
	results := make([]tools.Result, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req *ai.ToolRequest) {
			defer wg.Done()
			results[i] = a.registry.Execute(ctx, req.Name, calls[i].Arguments)
		}(i, req)
	}
	wg.Wait()

	parts := make([]*ai.Part, len(requests))
	for i, req := range requests {
		outcome := ToolOutcome{CallID: calls[i].CallID, Name: req.Name, Result: results[i]}
		if !a.emit(ctx, events, Event{Type: EventToolResultAvailable, Result: &outcome}) {
			return nil, false
		}
		parts[i] = ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: results[i],
		})
	}
	return parts, true
}

// emit delivers ev, giving up when ctx dies first.
func (a *Agent) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitTerminal delivers the terminal event without a context guard: the
// round context may already be canceled, but the consumer is still
// draining the channel. A stuck consumer is bounded by the timeout.
func (a *Agent) emitTerminal(events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-time.After(errorEmitTimeout):
		a.logger.Warn("terminal event dropped, consumer gone", "type", ev.Type)
	}
}

// fail reports a transport-level failure as the round's terminal event.
func (a *Agent) fail(events chan<- Event, err error) {
	canceled := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	a.logger.Warn("round failed", "error", err, "canceled", canceled)
	a.emitTerminal(events, Event{Type: EventError, Err: &RoundError{
		Message:  err.Error(),
		Canceled: canceled,
	}})
}

// toArgs normalizes a tool request input into the registry's argument
// map. Non-map inputs go through a JSON round trip.
func toArgs(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
