package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"
)

// Toolset defines the interface for a collection of related tools.
// A toolset groups related tools together behind a shared backend client.
//
// Design principles:
// - Pure query method: Tools() has no side effects and is idempotent.
// - Framework agnostic: Does not accept framework-specific parameters like *genkit.Genkit.
// - Separation of concerns: Business logic (Toolset) is independent from framework integration.
type Toolset interface {
	// Name returns the unique identifier of the toolset.
	Name() string

	// Tools returns all tools provided by this toolset.
	// It is a pure query method with no side effects and can be called multiple times.
	Tools() ([]*ExecutableTool, error)
}

// ExecutableTool is a fully described, executable tool.
// It encapsulates metadata, a generated JSON Schema for its arguments, and
// execution logic with type erasure to allow heterogeneous tool storage
// while maintaining compile-time type safety at the definition site.
type ExecutableTool struct {
	name        string
	description string
	longRunning bool

	// schema describes the tool's input arguments; resolved is the
	// compiled form used for validation before every execution.
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved

	// handler is the type-erased execution function. Arguments arrive as
	// the decoded JSON object the model produced.
	handler func(context.Context, map[string]any) Result

	// define registers the tool with Genkit so the model sees its
	// descriptor. Captured as a closure because the input type parameter
	// is erased after construction.
	define func(*genkit.Genkit) ai.Tool
}

// Name returns the tool's unique identifier.
func (t *ExecutableTool) Name() string {
	return t.name
}

// Description returns the tool's functionality description.
func (t *ExecutableTool) Description() string {
	return t.description
}

// IsLongRunning returns whether the tool performs long-running operations.
func (t *ExecutableTool) IsLongRunning() bool {
	return t.longRunning
}

// InputSchema returns the generated JSON Schema for the tool's arguments.
func (t *ExecutableTool) InputSchema() *jsonschema.Schema {
	return t.schema
}

// Define registers the tool with Genkit and returns the framework handle.
func (t *ExecutableTool) Define(g *genkit.Genkit) ai.Tool {
	return t.define(g)
}

// Execute validates args against the tool's schema and runs the handler.
// It never returns a Go error: validation failures become error Results.
// Panic recovery lives in Registry.Execute, which owns the execution path.
func (t *ExecutableTool) Execute(ctx context.Context, args map[string]any) Result {
	if err := t.resolved.Validate(args); err != nil {
		return Failuref(ErrCodeValidation,
			"invalid arguments for %s: %v", t.name, err)
	}
	return t.handler(ctx, args)
}

// NewTool creates a new tool with a type-safe handler and a JSON Schema
// generated from the input struct's fields and tags.
//
// Type safety is guaranteed at compile time via the In type parameter.
// Type erasure is performed internally to allow heterogeneous tool storage.
//
// Example:
//
//	weatherTool, err := NewTool(
//	    "getWeather",
//	    "Get the current weather for a city.",
//	    true, // long running (network call)
//	    func(ctx context.Context, input WeatherInput) Result {
//	        return ws.CurrentWeather(ctx, input)
//	    },
//	)
func NewTool[In any](
	name string,
	description string,
	longRunning bool,
	handler func(context.Context, In) Result,
) (*ExecutableTool, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("generating schema for %s: %w", name, err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %s: %w", name, err)
	}

	// Type adapter: converts the decoded JSON object into the typed input.
	// The schema has already validated shape and types at this point.
	erasedHandler := func(ctx context.Context, args map[string]any) Result {
		jsonBytes, err := json.Marshal(args)
		if err != nil {
			return Failuref(ErrCodeValidation, "encoding arguments for %s: %v", name, err)
		}

		var typedInput In
		if err := json.Unmarshal(jsonBytes, &typedInput); err != nil {
			return Failuref(ErrCodeValidation,
				"invalid arguments for %s: expected %T: %v", name, typedInput, err)
		}
		return handler(ctx, typedInput)
	}

	// Genkit adapter: descriptors only. The orchestrator requests tool
	// calls back instead of letting the framework execute them, so this
	// handler runs only if a caller bypasses the orchestrator.
	define := func(g *genkit.Genkit) ai.Tool {
		return genkit.DefineTool(g, name, description,
			func(tc *ai.ToolContext, input In) (Result, error) {
				return handler(tc.Context, input), nil
			})
	}

	return &ExecutableTool{
		name:        name,
		description: description,
		longRunning: longRunning,
		schema:      schema,
		resolved:    resolved,
		handler:     erasedHandler,
		define:      define,
	}, nil
}
