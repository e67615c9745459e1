package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
)

// GeminiService implements the LLMService interface using the Google
// Gemini API.
type GeminiService struct {
	config  *common.GeminiConfig
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiService creates a Gemini provider instance.
func NewGeminiService(geminiConfig *common.GeminiConfig, logger arbor.ILogger) (*GeminiService, error) {
	if geminiConfig.APIKey == "" {
		return nil, fmt.Errorf("Google API key is required for Gemini provider (set via GEMINI_API_KEY, SPECULOR_GEMINI_API_KEY, or gemini.api_key in config)")
	}

	if geminiConfig.Model == "" {
		geminiConfig.Model = "gemini-2.5-flash"
	}

	timeout, err := time.ParseDuration(geminiConfig.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", geminiConfig.Timeout, err)
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  geminiConfig.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:  geminiConfig,
		logger:  logger,
		client:  client,
		timeout: timeout,
	}

	logger.Debug().
		Str("model", geminiConfig.Model).
		Dur("timeout", timeout).
		Msg("Gemini provider initialized")

	return service, nil
}

// geminiThinkingLevel converts a reasoning-effort hint to a
// genai.ThinkingLevel. Unknown hints leave thinking at the model
// default.
func geminiThinkingLevel(effort string) genai.ThinkingLevel {
	switch strings.ToUpper(effort) {
	case "MINIMAL":
		return genai.ThinkingLevelMinimal
	case "LOW":
		return genai.ThinkingLevelLow
	case "MEDIUM":
		return genai.ThinkingLevelMedium
	case "HIGH":
		return genai.ThinkingLevelHigh
	default:
		return ""
	}
}

// Generate produces a completion for a single instructions + input pair.
func (s *GeminiService) Generate(ctx context.Context, req interfaces.GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Input) == "" {
		return "", fmt.Errorf("generate input cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	if req.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(req.Instructions, genai.RoleUser)
	}
	if level := geminiThinkingLevel(req.ReasoningEffort); level != "" {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingLevel: level,
		}
	}

	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(req.Input)},
		},
	}

	startTime := time.Now()
	s.logger.Debug().
		Int("input_length", len(req.Input)).
		Int("max_tokens", req.MaxOutputTokens).
		Str("effort", req.ReasoningEffort).
		Msg("Starting Gemini generation")

	resp, err := s.client.Models.GenerateContent(timeoutCtx, s.config.Model, contents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	var response strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}
	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Gemini API")
	}

	s.logger.Debug().
		Int("response_length", response.Len()).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini generation completed")

	return response.String(), nil
}

// Close releases resources.
func (s *GeminiService) Close() error {
	s.logger.Debug().Msg("Closing Gemini provider")
	s.client = nil
	return nil
}
