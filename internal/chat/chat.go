package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/koopa0/lakitu/internal/config"
	"github.com/koopa0/lakitu/internal/log"
	"github.com/koopa0/lakitu/internal/tools"
)

// Wire roles accepted in inbound message histories. Tool turns carry
// the textual form of an earlier tool result so clients can replay a
// full round verbatim.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

const (
	// defaultRoundTimeout bounds a whole round (all model calls and
	// tool executions) when Config.RoundTimeout is zero.
	defaultRoundTimeout = 120 * time.Second

	// eventBuffer decouples the orchestrator from slow consumers for
	// short bursts. The producer still blocks (and honors ctx) when
	// the buffer is full.
	eventBuffer = 16

	// fallbackResponseMessage is emitted when the model finishes a
	// round with neither text nor tool requests.
	fallbackResponseMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."
)

// defaultSystemPrompt is used when Config.SystemPrompt is empty.
const defaultSystemPrompt = `You are Lakitu, a helpful assistant with access to tools for weather
lookups, image search, image generation, web search, and page fetching.
Use a tool when the user's request needs live or external information;
answer directly otherwise. When a tool fails, tell the user what went
wrong instead of pretending it succeeded. Keep answers concise.`

// Sentinel errors for round setup and execution.
var (
	// ErrNoMessages indicates an empty inbound message history.
	ErrNoMessages = errors.New("no messages")

	// ErrInvalidRole indicates a message with a role outside
	// user/assistant/tool/system.
	ErrInvalidRole = errors.New("invalid role")

	// ErrEmptyContent indicates a message with blank content.
	ErrEmptyContent = errors.New("empty content")

	// ErrLastNotUser indicates a history whose last message is not
	// from the user.
	ErrLastNotUser = errors.New("last message must be from user")
)

// Message is one entry of the inbound conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config contains all parameters for the Agent.
type Config struct {
	Genkit   *genkit.Genkit
	Registry *tools.Registry
	Logger   log.Logger
	Tools    []ai.Tool // Pre-defined via Registry.DefineAll

	// Generation parameters
	ModelName    string // Provider-qualified model name (e.g., "googleai/gemini-2.5-flash")
	SystemPrompt string // Empty uses the built-in default
	Temperature  float32
	MaxTokens    int

	// Loop bounds
	MaxSteps     int           // Model calls per round; clamped to [MinSteps, MaxAllowedSteps]
	RoundTimeout time.Duration // Whole-round deadline (zero uses default)

	// Resilience (zero values use defaults)
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig
	RateLimiter          *rate.Limiter
}

// validate checks if all required parameters are present.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Registry == nil {
		return errors.New("tool registry is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// generateFunc matches genkit.Generate bound to an instance. Tests swap
// in a fake to drive the loop without a live model.
type generateFunc func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)

// Agent orchestrates one conversational round at a time.
//
// Agent is stateless across rounds: callers own the conversation
// history and pass the full message list to every Run. All
// configuration is captured immutably at construction, so a single
// Agent is safe for concurrent rounds.
type Agent struct {
	// Immutable configuration
	modelName    string
	systemPrompt string
	temperature  float32
	maxTokens    int
	maxSteps     int
	roundTimeout time.Duration

	// Resilience
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter

	// Dependencies (read-only after construction)
	g         *genkit.Genkit
	registry  *tools.Registry
	logger    log.Logger
	toolRefs  []ai.ToolRef // Cached at construction (ai.Tool implements ai.ToolRef)
	toolNames string       // Cached as comma-separated for logging

	generate generateFunc
}

// New creates an Agent from cfg.
//
// Example:
//
//	agent, err := chat.New(chat.Config{
//	    Genkit:    g,
//	    Registry:  registry,
//	    Logger:    logger,
//	    Tools:     registry.DefineAll(g),
//	    ModelName: cfg.FullModelName(),
//	    MaxSteps:  cfg.MaxSteps,
//	})
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	roundTimeout := cfg.RoundTimeout
	if roundTimeout <= 0 {
		roundTimeout = defaultRoundTimeout
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	// Default: 10 requests/sec sustained, burst of 30.
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	// Cache tool refs and names at construction (zero allocation per round)
	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	names := make([]string, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
		names[i] = t.Name()
	}

	a := &Agent{
		modelName:    cfg.ModelName,
		systemPrompt: systemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxSteps:     config.NormalizeMaxSteps(cfg.MaxSteps),
		roundTimeout: roundTimeout,

		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,

		g:         cfg.Genkit,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
		toolRefs:  toolRefs,
		toolNames: strings.Join(names, ", "),
	}
	a.generate = func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
		return genkit.Generate(ctx, a.g, opts...)
	}

	a.logger.Info("chat agent initialized",
		"model", a.modelName,
		"totalTools", len(toolRefs),
		"maxSteps", a.maxSteps,
	)

	return a, nil
}

// MaxSteps returns the per-round model call bound after clamping.
func (a *Agent) MaxSteps() int { return a.maxSteps }

// toModelMessages converts the wire history into model messages,
// rejecting malformed entries before any model call is made.
func toModelMessages(msgs []Message) ([]*ai.Message, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}
	out := make([]*ai.Message, 0, len(msgs))
	for i, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("%w: message %d", ErrEmptyContent, i)
		}
		switch m.Role {
		case RoleUser:
			out = append(out, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case RoleAssistant:
			out = append(out, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		case RoleSystem:
			out = append(out, ai.NewMessage(ai.RoleSystem, nil, ai.NewTextPart(m.Content)))
		case RoleTool:
			out = append(out, ai.NewMessage(ai.RoleTool, nil, ai.NewTextPart(m.Content)))
		default:
			return nil, fmt.Errorf("%w: %q (message %d)", ErrInvalidRole, m.Role, i)
		}
	}
	if msgs[len(msgs)-1].Role != RoleUser {
		return nil, ErrLastNotUser
	}
	return out, nil
}
