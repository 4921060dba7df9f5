package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/lakitu/internal/log"
)

// Registry manages tool lookup and execution.
//
// Execution is never-throw: Execute always returns a Result. Unknown tool
// names, invalid arguments, and handler panics all become error Results that
// the orchestrator folds back into the conversation instead of aborting the
// round.
//
// Thread Safety: Safe for concurrent use. Registration happens during app
// setup; Execute may be called from concurrent tool workers.
type Registry struct {
	logger log.Logger

	mu    sync.RWMutex
	tools map[string]*ExecutableTool
	order []string
}

// NewRegistry creates a new tool registry.
//
// Example:
//
//	registry := tools.NewRegistry(logger.With("component", "tools"))
//	registry.Add(weatherTool)
//	result := registry.Execute(ctx, "getWeather", args)
func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		logger: logger,
		tools:  make(map[string]*ExecutableTool),
	}
}

// Add registers a tool. Names must be unique.
func (r *Registry) Add(t *ExecutableTool) error {
	if t == nil {
		return fmt.Errorf("tool is required (cannot be nil)")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("duplicate tool name: %s", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Get returns a tool by name, or nil if not registered.
func (r *Registry) Get(name string) *ExecutableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// DefineAll registers every tool with Genkit so the model sees their
// descriptors, and returns the framework handles in registration order.
func (r *Registry) DefineAll(g *genkit.Genkit) []ai.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defined := make([]ai.Tool, 0, len(r.order))
	for _, name := range r.order {
		defined = append(defined, r.tools[name].Define(g))
	}
	return defined
}

// Refs returns Genkit tool references for all registered tools.
// Performs fresh lookup on each call to ensure tools are current.
func (r *Registry) Refs(g *genkit.Genkit) []ai.ToolRef {
	names := r.Names()
	refs := make([]ai.ToolRef, 0, len(names))

	for _, name := range names {
		if tool := genkit.LookupTool(g, name); tool != nil {
			refs = append(refs, tool)
		}
	}
	return refs
}

// Execute runs a tool by name with the given arguments.
//
// The returned Result is always usable by the caller: unknown tools produce
// an UnknownTool error Result, argument validation failures produce
// InvalidArguments, and a panicking handler is recovered into InternalError.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result) {
	tool := r.Get(name)
	if tool == nil {
		r.logger.Warn("unknown tool requested", "tool", name)
		return Failuref(ErrCodeUnknownTool, "unknown tool: %s", name)
	}

	// A panicking tool must not take the round down with it.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				"tool", name,
				"panic", rec,
				"stack", string(debug.Stack()))
			result = Failuref(ErrCodeInternal, "tool %s failed unexpectedly", name)
		}
	}()

	result = tool.Execute(ctx, args)

	if result.OK() {
		r.logger.Debug("tool executed", "tool", name)
	} else {
		code := ""
		if result.Error != nil {
			code = result.Error.Code
		}
		r.logger.Warn("tool execution failed", "tool", name, "code", code, "message", result.Message)
	}
	return result
}
