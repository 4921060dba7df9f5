package api

import (
	"net/http"

	"github.com/koopa0/lakitu/internal/log"
	"github.com/koopa0/lakitu/internal/tools"
)

// health is a simple health check endpoint for Docker/Kubernetes probes.
// Returns 200 OK with {"status":"ok"}.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether the service can take chat traffic: the
// model is configured and tools are registered.
func readiness(registry *tools.Registry, modelName string, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"model":  modelName,
			"tools":  registry.Count(),
		}, logger)
	}
}

// toolDescriptor is one entry of the GET /api/tools listing.
type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	LongRunning bool   `json:"longRunning,omitempty"`
}

// listTools returns the registered tool descriptors in registration order.
func listTools(registry *tools.Registry, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := registry.Names()
		out := make([]toolDescriptor, 0, len(names))
		for _, name := range names {
			tool := registry.Get(name)
			if tool == nil {
				continue
			}
			out = append(out, toolDescriptor{
				Name:        tool.Name(),
				Description: tool.Description(),
				LongRunning: tool.IsLongRunning(),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"tools": out}, logger)
	}
}
