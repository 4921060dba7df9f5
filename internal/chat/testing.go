package chat

import (
	"context"

	"github.com/firebase/genkit/go/ai"
)

// SetGenerateForTesting replaces the model call with fn so packages
// above the orchestrator can drive rounds without a live provider.
// WARNING: Only use in tests. Not safe once rounds are running.
func (a *Agent) SetGenerateForTesting(fn func(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)) {
	a.generate = fn
}
