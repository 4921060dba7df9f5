package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/koopa0/lakitu/internal/api"
	"github.com/koopa0/lakitu/internal/chat"
	"github.com/koopa0/lakitu/internal/config"
	"github.com/koopa0/lakitu/internal/log"
	"github.com/koopa0/lakitu/internal/observability"
	"github.com/koopa0/lakitu/internal/security"
	"github.com/koopa0/lakitu/internal/tools"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit initialization so its
	// TracerProvider picks up the span processor.
	tracingShutdown, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.tracingShutdown = tracingShutdown

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	registry, err := provideRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	agent, err := chat.New(chat.Config{
		Genkit:       g,
		Registry:     registry,
		Logger:       logger,
		Tools:        registry.DefineAll(g),
		ModelName:    cfg.FullModelName(),
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		MaxSteps:     cfg.MaxSteps,
		RoundTimeout: time.Duration(cfg.RoundTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat agent: %w", err)
	}
	a.Agent = agent

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Agent:       agent,
		Registry:    registry,
		PromptGuard: security.NewPromptValidator(),
		ModelName:   cfg.FullModelName(),
		CORSOrigins: cfg.CORSOrigins,
		IsDev:       cfg.Tracing.Environment == "dev",
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai providers.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideRegistry builds the tool registry from the configured backend
// toolsets: weather, images, web search, and the page fetcher. The fetcher
// gets the SSRF-safe transport so tool calls cannot reach private networks.
func provideRegistry(cfg *config.Config, logger log.Logger) (*tools.Registry, error) {
	weather, err := tools.NewWeather(tools.WeatherConfig{
		GeocodeURL:  cfg.Weather.GeocodeURL,
		ForecastURL: cfg.Weather.ForecastURL,
		Timeout:     time.Duration(cfg.Weather.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating weather toolset: %w", err)
	}

	images, err := tools.NewImages(tools.ImagesConfig{
		SearchURL:      cfg.Images.SearchURL,
		SearchAPIKey:   cfg.Images.SearchAPIKey,
		GenerateURL:    cfg.Images.GenerateURL,
		GenerateAPIKey: cfg.Images.GenerateAPIKey,
		Timeout:        time.Duration(cfg.Images.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating image toolset: %w", err)
	}

	search, err := tools.NewSearch(tools.SearchConfig{
		BaseURL:    cfg.Search.BaseURL,
		APIKey:     cfg.Search.APIKey,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating search toolset: %w", err)
	}

	urlValidator := security.NewURL()
	fetch, err := tools.NewFetch(tools.FetchConfig{
		Timeout:      time.Duration(cfg.Fetcher.TimeoutSeconds) * time.Second,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
		Transport:    urlValidator.SafeTransport(),
	}, urlValidator, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fetch toolset: %w", err)
	}

	registry := tools.NewRegistry(logger)
	if err := tools.Register(registry, weather, images, search, fetch); err != nil {
		return nil, fmt.Errorf("registering toolsets: %w", err)
	}

	logger.Info("tool registry ready", "tools", registry.Count())
	return registry, nil
}
