package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
)

// ClaudeService implements the LLMService interface using the Anthropic
// Claude API.
type ClaudeService struct {
	config  *common.ClaudeConfig
	logger  arbor.ILogger
	client  *anthropic.Client
	timeout time.Duration
}

// NewClaudeService creates a Claude provider instance.
func NewClaudeService(claudeConfig *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeService, error) {
	if claudeConfig.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required for Claude provider (set via ANTHROPIC_API_KEY, SPECULOR_CLAUDE_API_KEY, or claude.api_key in config)")
	}

	if claudeConfig.Model == "" {
		claudeConfig.Model = "claude-sonnet-4-20250514"
	}

	timeout, err := time.ParseDuration(claudeConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", claudeConfig.Timeout, err)
	}

	client := anthropic.NewClient(
		option.WithAPIKey(claudeConfig.APIKey),
	)

	service := &ClaudeService{
		config:  claudeConfig,
		logger:  logger,
		client:  &client,
		timeout: timeout,
	}

	logger.Debug().
		Str("model", claudeConfig.Model).
		Dur("timeout", timeout).
		Msg("Claude provider initialized")

	return service, nil
}

// claudeThinkingBudget maps a reasoning-effort hint to an extended
// thinking token budget. The API requires budget_tokens >= 1024 and
// strictly below max_tokens; a budget of 0 leaves thinking off.
func claudeThinkingBudget(effort string, maxTokens int) int64 {
	var budget int64
	switch strings.ToLower(effort) {
	case "low":
		budget = 1024
	case "medium":
		budget = 4096
	case "high":
		budget = 8192
	default:
		return 0
	}

	if limit := int64(maxTokens) - 1024; budget > limit {
		budget = limit
	}
	if budget < 1024 {
		return 0
	}
	return budget
}

// Generate produces a completion for a single instructions + input pair.
func (s *ClaudeService) Generate(ctx context.Context, req interfaces.GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Input) == "" {
		return "", fmt.Errorf("generate input cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)),
		},
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.Instructions},
		}
	}
	if budget := claudeThinkingBudget(req.ReasoningEffort, maxTokens); budget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	startTime := time.Now()
	s.logger.Debug().
		Int("input_length", len(req.Input)).
		Int("max_tokens", maxTokens).
		Str("effort", req.ReasoningEffort).
		Msg("Starting Claude generation")

	resp, err := s.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	s.logger.Debug().
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Claude generation completed")

	return response.String(), nil
}

// Close releases resources.
func (s *ClaudeService) Close() error {
	s.logger.Debug().Msg("Closing Claude provider")
	s.client = nil
	return nil
}
