// Package app provides application initialization and dependency wiring.
//
// App is the container that assembles all components: Genkit with the
// configured AI provider, the tool registry with its backend toolsets, the
// chat agent, and the HTTP API server. Setup builds everything in dependency
// order; Close releases resources in reverse.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/lakitu/internal/api"
	"github.com/koopa0/lakitu/internal/chat"
	"github.com/koopa0/lakitu/internal/config"
	"github.com/koopa0/lakitu/internal/log"
	"github.com/koopa0/lakitu/internal/tools"
)

// App is the core application container.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Genkit   *genkit.Genkit
	Registry *tools.Registry
	Agent    *chat.Agent
	Server   *api.Server

	tracingShutdown func(context.Context) error
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracingShutdown(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}
	return nil
}
