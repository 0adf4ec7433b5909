// -----------------------------------------------------------------------
// AI Providers - narrow completion interface over the LLM SDKs
// -----------------------------------------------------------------------

package ai

import "context"

// Provider names used in the chains document.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// CompletionRequest is a single prompt exchange. Every pipeline task speaks
// this shape; providers translate it to their SDK.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider generates one completion. Implementations are safe for
// concurrent use.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
