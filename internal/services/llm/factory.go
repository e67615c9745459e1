package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
)

// NewLLMService creates the provider selected by configuration.
func NewLLMService(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMService, error) {
	logger.Info().
		Str("provider", string(cfg.LLM.DefaultProvider)).
		Msg("Initializing LLM service")

	switch cfg.LLM.DefaultProvider {
	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.Claude, logger)
	case common.LLMProviderGemini:
		return NewGeminiService(&cfg.Gemini, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider '%s': must be 'claude' or 'gemini'", cfg.LLM.DefaultProvider)
	}
}
