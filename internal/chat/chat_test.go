package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/lakitu/internal/log"
	"github.com/koopa0/lakitu/internal/tools"
)

type echoInput struct {
	Text string `json:"text" jsonschema_description:"Text to echo back."`
}

// script replays a fixed sequence of model responses, one per call.
type script struct {
	mu    sync.Mutex
	steps []func(context.Context) (*ai.ModelResponse, error)
	calls int
}

func (s *script) generate(ctx context.Context, _ ...ai.GenerateOption) (*ai.ModelResponse, error) {
	s.mu.Lock()
	step := s.steps[s.calls%len(s.steps)]
	s.calls++
	s.mu.Unlock()
	return step(ctx)
}

func (s *script) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func respond(resp *ai.ModelResponse) func(context.Context) (*ai.ModelResponse, error) {
	return func(context.Context) (*ai.ModelResponse, error) { return resp, nil }
}

func failWith(err error) func(context.Context) (*ai.ModelResponse, error) {
	return func(context.Context) (*ai.ModelResponse, error) { return nil, err }
}

func textResponse(text string) *ai.ModelResponse {
	return &ai.ModelResponse{Message: ai.NewModelMessage(ai.NewTextPart(text))}
}

func toolRequestResponse(reqs ...*ai.ToolRequest) *ai.ModelResponse {
	parts := make([]*ai.Part, len(reqs))
	for i, r := range reqs {
		parts[i] = ai.NewToolRequestPart(r)
	}
	return &ai.ModelResponse{Message: &ai.Message{Role: ai.RoleModel, Content: parts}}
}

// newTestAgent builds an Agent over a real registry ("echo" succeeds,
// "boom" always fails) with the model call replaced by gen.
func newTestAgent(t *testing.T, maxSteps int, gen generateFunc) *Agent {
	t.Helper()

	g := genkit.Init(context.Background())
	registry := tools.NewRegistry(log.NewNop())

	echo, err := tools.NewTool("echo", "Echoes text back.", false,
		func(_ context.Context, in echoInput) tools.Result {
			return tools.Success("echoed", map[string]any{"text": in.Text})
		})
	if err != nil {
		t.Fatalf("NewTool(echo) error: %v", err)
	}
	boom, err := tools.NewTool("boom", "Always fails.", false,
		func(context.Context, echoInput) tools.Result {
			return tools.Failure(tools.ErrCodeBackend, "backend exploded")
		})
	if err != nil {
		t.Fatalf("NewTool(boom) error: %v", err)
	}
	for _, tool := range []*tools.ExecutableTool{echo, boom} {
		if err := registry.Add(tool); err != nil {
			t.Fatalf("Add(%s) error: %v", tool.Name(), err)
		}
	}

	agent, err := New(Config{
		Genkit:       g,
		Registry:     registry,
		Logger:       log.NewNop(),
		Tools:        registry.DefineAll(g),
		ModelName:    "googleai/gemini-2.5-flash",
		MaxSteps:     maxSteps,
		RoundTimeout: 5 * time.Second,
		RetryConfig: RetryConfig{
			MaxRetries:      2,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	agent.generate = gen
	return agent
}

func userMessages(text string) []Message {
	return []Message{{Role: RoleUser, Content: text}}
}

// collect drains the event channel until it closes.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(out))
		}
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	g := genkit.Init(context.Background())
	registry := tools.NewRegistry(log.NewNop())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing genkit", Config{Registry: registry, Logger: log.NewNop(), ModelName: "m"}},
		{"missing registry", Config{Genkit: g, Logger: log.NewNop(), ModelName: "m"}},
		{"missing logger", Config{Genkit: g, Registry: registry, ModelName: "m"}},
		{"missing model", Config{Genkit: g, Registry: registry, Logger: log.NewNop()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestNewClampsMaxSteps(t *testing.T) {
	t.Parallel()

	agent := newTestAgent(t, 99, (&script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(textResponse("ok")),
	}}).generate)
	if got := agent.MaxSteps(); got != 16 {
		t.Errorf("MaxSteps() = %d, want 16", got)
	}
}

func TestToModelMessages(t *testing.T) {
	t.Parallel()

	t.Run("valid history", func(t *testing.T) {
		msgs, err := toModelMessages([]Message{
			{Role: RoleSystem, Content: "be terse"},
			{Role: RoleUser, Content: "weather in Taipei?"},
			{Role: RoleAssistant, Content: "checking"},
			{Role: RoleTool, Content: `{"status":"success","message":"22C, clear"}`},
			{Role: RoleAssistant, Content: "It is 22C and clear."},
			{Role: RoleUser, Content: "and tomorrow?"},
		})
		if err != nil {
			t.Fatalf("toModelMessages() error: %v", err)
		}
		if len(msgs) != 6 {
			t.Fatalf("got %d messages, want 6", len(msgs))
		}
		wantRoles := []ai.Role{ai.RoleSystem, ai.RoleUser, ai.RoleModel, ai.RoleTool, ai.RoleModel, ai.RoleUser}
		for i, want := range wantRoles {
			if msgs[i].Role != want {
				t.Errorf("message %d role = %q, want %q", i, msgs[i].Role, want)
			}
		}
	})

	tests := []struct {
		name string
		msgs []Message
		want error
	}{
		{"empty history", nil, ErrNoMessages},
		{"unknown role", []Message{{Role: "moderator", Content: "x"}}, ErrInvalidRole},
		{"blank content", []Message{{Role: RoleUser, Content: "  "}}, ErrEmptyContent},
		{"ends with assistant", []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		}, ErrLastNotUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := toModelMessages(tt.msgs); !errors.Is(err, tt.want) {
				t.Errorf("toModelMessages() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunRejectsBadHistory(t *testing.T) {
	t.Parallel()

	agent := newTestAgent(t, 4, (&script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(textResponse("unused")),
	}}).generate)

	events, err := agent.Run(context.Background(), nil)
	if !errors.Is(err, ErrNoMessages) {
		t.Errorf("Run() error = %v, want %v", err, ErrNoMessages)
	}
	if events != nil {
		t.Error("Run() should not return a channel on validation failure")
	}
}

func TestRunTextOnlyRound(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(textResponse("Go is a programming language.")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("what is Go?"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(got), got)
	}
	fin := got[0]
	if fin.Type != EventTurnFinished || fin.Finish == nil {
		t.Fatalf("event = %+v, want turn-finished", fin)
	}
	if fin.Finish.Text != "Go is a programming language." {
		t.Errorf("Finish.Text = %q", fin.Finish.Text)
	}
	if fin.Finish.Steps != 1 || fin.Finish.ToolCalls != 0 {
		t.Errorf("Finish = %+v, want Steps=1 ToolCalls=0", fin.Finish)
	}
	if s.callCount() != 1 {
		t.Errorf("model calls = %d, want 1", s.callCount())
	}
}

func TestRunToolLoop(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(toolRequestResponse(&ai.ToolRequest{
			Name:  "echo",
			Ref:   "call-1",
			Input: map[string]any{"text": "hello"},
		})),
		respond(textResponse("done")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("echo hello"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	call := got[0]
	if call.Type != EventToolCallRequested || call.Call == nil {
		t.Fatalf("event 0 = %+v, want tool-call-requested", call)
	}
	if call.Call.CallID != "call-1" || call.Call.Name != "echo" {
		t.Errorf("Call = %+v", call.Call)
	}
	result := got[1]
	if result.Type != EventToolResultAvailable || result.Result == nil {
		t.Fatalf("event 1 = %+v, want tool-result-available", result)
	}
	if result.Result.CallID != "call-1" {
		t.Errorf("Result.CallID = %q, want call-1", result.Result.CallID)
	}
	if !result.Result.Result.OK() {
		t.Errorf("tool result should succeed: %+v", result.Result.Result)
	}
	if text, _ := result.Result.Result.Data["text"].(string); text != "hello" {
		t.Errorf("result data text = %q, want hello", text)
	}
	fin := got[2]
	if fin.Type != EventTurnFinished || fin.Finish == nil {
		t.Fatalf("event 2 = %+v, want turn-finished", fin)
	}
	if fin.Finish.Steps != 2 || fin.Finish.ToolCalls != 1 {
		t.Errorf("Finish = %+v, want Steps=2 ToolCalls=1", fin.Finish)
	}
}

func TestRunGeneratesCallIDWhenRefMissing(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(toolRequestResponse(&ai.ToolRequest{
			Name:  "echo",
			Input: map[string]any{"text": "hi"},
		})),
		respond(textResponse("done")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("echo"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].Call.CallID == "" {
		t.Error("call ID should be generated when the provider omits a ref")
	}
	if got[1].Result.CallID != got[0].Call.CallID {
		t.Errorf("result call ID %q does not match request %q",
			got[1].Result.CallID, got[0].Call.CallID)
	}
}

func TestRunToolFailureContinuesRound(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(toolRequestResponse(&ai.ToolRequest{
			Name:  "boom",
			Ref:   "call-1",
			Input: map[string]any{"text": "x"},
		})),
		respond(textResponse("the backend is unavailable right now")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("try boom"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	if len(got) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(got), got)
	}
	result := got[1]
	if result.Type != EventToolResultAvailable {
		t.Fatalf("event 1 = %+v, want tool-result-available", result)
	}
	if result.Result.Result.Status != tools.StatusError {
		t.Errorf("tool failure should surface as error-status result, got %+v", result.Result.Result)
	}
	if result.Result.Result.Error == nil || result.Result.Result.Error.Code != tools.ErrCodeBackend {
		t.Errorf("Result.Error = %+v, want %s", result.Result.Result.Error, tools.ErrCodeBackend)
	}
	if got[2].Type != EventTurnFinished {
		t.Errorf("tool failure must not end the round: final event = %+v", got[2])
	}
}

func TestRunUnknownToolFoldsFailure(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(toolRequestResponse(&ai.ToolRequest{
			Name:  "transcribeAudio",
			Ref:   "call-1",
			Input: map[string]any{},
		})),
		respond(textResponse("I can't do that")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("transcribe this"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	res := got[1].Result.Result
	if res.Status != tools.StatusError || res.Error == nil || res.Error.Code != tools.ErrCodeUnknownTool {
		t.Errorf("unknown tool result = %+v, want %s failure", res, tools.ErrCodeUnknownTool)
	}
	if got[2].Type != EventTurnFinished {
		t.Errorf("unknown tool must not end the round: %+v", got[2])
	}
}

func TestRunParallelToolCallsKeepOrder(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(toolRequestResponse(
			&ai.ToolRequest{Name: "echo", Ref: "call-1", Input: map[string]any{"text": "first"}},
			&ai.ToolRequest{Name: "boom", Ref: "call-2", Input: map[string]any{"text": "second"}},
			&ai.ToolRequest{Name: "echo", Ref: "call-3", Input: map[string]any{"text": "third"}},
		)),
		respond(textResponse("done")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("fan out"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	// 3 calls + 3 results + finish
	if len(got) != 7 {
		t.Fatalf("got %d events, want 7: %+v", len(got), got)
	}
	wantIDs := []string{"call-1", "call-2", "call-3"}
	for i, id := range wantIDs {
		if got[i].Type != EventToolCallRequested || got[i].Call.CallID != id {
			t.Errorf("event %d = %+v, want call %s", i, got[i], id)
		}
	}
	for i, id := range wantIDs {
		ev := got[3+i]
		if ev.Type != EventToolResultAvailable || ev.Result.CallID != id {
			t.Errorf("event %d = %+v, want result %s", 3+i, ev, id)
		}
	}
	if got[4].Result.Result.Status != tools.StatusError {
		t.Errorf("call-2 should fail, got %+v", got[4].Result.Result)
	}
	if fin := got[6].Finish; fin.ToolCalls != 3 {
		t.Errorf("Finish.ToolCalls = %d, want 3", fin.ToolCalls)
	}
}

func TestRunStepBoundForcesCompletion(t *testing.T) {
	t.Parallel()

	// The model keeps asking for tools; the bound must cut it off.
	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(toolRequestResponse(&ai.ToolRequest{
			Name:  "echo",
			Ref:   "call-1",
			Input: map[string]any{"text": "again"},
		})),
	}}
	agent := newTestAgent(t, 2, s.generate)

	events, err := agent.Run(context.Background(), userMessages("loop forever"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	if s.callCount() != 2 {
		t.Errorf("model calls = %d, want exactly maxSteps=2", s.callCount())
	}
	last := got[len(got)-1]
	if last.Type != EventTurnFinished {
		t.Fatalf("final event = %+v, want turn-finished", last)
	}
	if last.Finish.Steps != 2 {
		t.Errorf("Finish.Steps = %d, want 2", last.Finish.Steps)
	}
	toolEvents := 0
	for _, ev := range got {
		if ev.Type == EventToolCallRequested {
			toolEvents++
		}
	}
	if toolEvents != 1 {
		t.Errorf("tool calls executed = %d, want 1 (final step is text-only)", toolEvents)
	}
}

func TestRunEmptyResponseFallback(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		respond(textResponse("   ")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("hi"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	if len(got) != 2 {
		t.Fatalf("got %d events, want delta + finish: %+v", len(got), got)
	}
	if got[0].Type != EventTextDelta || got[0].Delta.Text != fallbackResponseMessage {
		t.Errorf("event 0 = %+v, want fallback delta", got[0])
	}
	if got[1].Finish == nil || got[1].Finish.Text != fallbackResponseMessage {
		t.Errorf("Finish = %+v, want fallback text", got[1].Finish)
	}
}

func TestRunTransportErrorIsTerminal(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		failWith(errors.New("API key not valid")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("hi"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1 error: %+v", len(got), got)
	}
	if got[0].Type != EventError || got[0].Err == nil {
		t.Fatalf("event = %+v, want error", got[0])
	}
	if !strings.Contains(got[0].Err.Message, "API key not valid") {
		t.Errorf("Err.Message = %q", got[0].Err.Message)
	}
	if got[0].Err.Canceled {
		t.Error("transport error should not be marked canceled")
	}
	if s.callCount() != 1 {
		t.Errorf("non-retryable error should not retry, calls = %d", s.callCount())
	}
}

func TestRunRetriesTransientError(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		failWith(errors.New("503 Service Unavailable")),
		respond(textResponse("recovered")),
	}}
	agent := newTestAgent(t, 4, s.generate)

	events, err := agent.Run(context.Background(), userMessages("hi"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := collect(t, events)

	last := got[len(got)-1]
	if last.Type != EventTurnFinished || last.Finish.Text != "recovered" {
		t.Fatalf("final event = %+v, want recovered finish", last)
	}
	if s.callCount() != 2 {
		t.Errorf("model calls = %d, want 2 (one retry)", s.callCount())
	}
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	s := &script{steps: []func(context.Context) (*ai.ModelResponse, error){
		func(ctx context.Context) (*ai.ModelResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}
	agent := newTestAgent(t, 4, s.generate)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := agent.Run(ctx, userMessages("hi"))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	cancel()
	got := collect(t, events)

	if len(got) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(got), got)
	}
	if got[0].Type != EventError || got[0].Err == nil || !got[0].Err.Canceled {
		t.Errorf("event = %+v, want canceled error", got[0])
	}
}

func TestEventTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  EventType
		want bool
	}{
		{EventTextDelta, false},
		{EventToolCallRequested, false},
		{EventToolResultAvailable, false},
		{EventTurnFinished, true},
		{EventError, true},
	}
	for _, tt := range tests {
		if got := (Event{Type: tt.typ}).Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
