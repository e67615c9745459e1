package interfaces

import "context"

// GenerateRequest is one request to a generative model. The response
// is expected to be a single JSON object; enforcement happens in the
// synthesizer, not the provider.
type GenerateRequest struct {
	Instructions    string // System-level instructions
	Input           string // Combined prompt + snapshot excerpt + corpus excerpt
	MaxOutputTokens int    // Requested output size
	ReasoningEffort string // "low", "medium", "high" thinking hint
}

// LLMService abstracts a generative model provider.
type LLMService interface {
	// Generate produces a completion for the request.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Close releases provider resources.
	Close() error
}
