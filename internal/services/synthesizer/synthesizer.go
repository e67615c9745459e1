package synthesizer

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
	"github.com/ternarybob/speculor/internal/services/llm"
)

// shrinkFactor reduces excerpt ceilings and requested output size after
// a rate-limit error.
const shrinkFactor = 0.75

// defaultRateLimitBackoff applies when the provider error carries no
// suggested wait.
const defaultRateLimitBackoff = 30 * time.Second

// fallbackSummaryLimit bounds the raw text used as narrative in the
// lenient-mode fallback record.
const fallbackSummaryLimit = 2000

// Service drives the model-call state machine: build request, invoke,
// parse/repair/validate, normalize. On exhaustion it either fails the
// task (strict) or produces a safe fallback record (lenient).
type Service struct {
	llmService interfaces.LLMService
	config     common.SynthesizerConfig
	logger     arbor.ILogger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates the synthesizer.
func NewService(llmService interfaces.LLMService, config common.SynthesizerConfig, logger arbor.ILogger) *Service {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &Service{
		llmService: llmService,
		config:     config,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// Synthesize runs up to MaxAttempts model calls and returns a complete,
// validated task result.
func (s *Service) Synthesize(ctx context.Context, task *models.AnalysisTask, corpus []*models.ScrapedDocument, snapshot *models.MarketSnapshot) (*models.TaskResult, error) {
	shrink := 1.0
	corrective := false
	var lastRaw string
	var lastErr error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		req := buildRequest(task, corpus, snapshot,
			s.config.MaxCorpusChars, s.config.MaxSnapshotChars, s.config.MaxOutputTokens,
			s.config.ReasoningEffort, shrink, corrective)

		s.logger.Debug().
			Str("task_id", task.ID).
			Int("attempt", attempt).
			Int("input_length", len(req.Input)).
			Msg("Invoking model")

		raw, err := s.llmService.Generate(ctx, req)
		if err != nil {
			lastErr = err

			if llm.IsRateLimitError(err) {
				shrink *= shrinkFactor
				backoff := llm.ExtractRetryDelay(err)
				if backoff <= 0 {
					backoff = defaultRateLimitBackoff
				}

				s.logger.Warn().
					Str("task_id", task.ID).
					Int("attempt", attempt).
					Str("backoff", backoff.String()).
					Msg("Model rate limited, shrinking request")

				if attempt < s.config.MaxAttempts {
					if err := s.sleep(ctx, backoff); err != nil {
						return nil, err
					}
				}
				continue
			}

			s.logger.Warn().
				Str("task_id", task.ID).
				Int("attempt", attempt).
				Err(err).
				Msg("Model call failed")
			continue
		}

		lastRaw = raw
		report, err := parseReport(raw)
		if err == nil {
			err = validateReport(report)
		}
		if err != nil {
			lastErr = err
			corrective = true
			s.logger.Warn().
				Str("task_id", task.ID).
				Int("attempt", attempt).
				Err(err).
				Msg("Model output rejected, reissuing with correction")
			continue
		}

		result := normalizeReport(report)
		if len(result.Sources) == 0 {
			result.Sources = corpusURLs(corpus)
		}
		return result, nil
	}

	if s.config.StrictValidation {
		return nil, fmt.Errorf("model output invalid after %d attempts: %w", s.config.MaxAttempts, lastErr)
	}

	s.logger.Warn().
		Str("task_id", task.ID).
		Err(lastErr).
		Msg("All attempts failed, producing fallback record")
	return s.fallbackResult(lastRaw, corpus), nil
}

// fallbackResult is the lenient-mode terminal record: truncated raw
// text as narrative, everything else defaulted then backfilled so the
// persisted record is still complete.
func (s *Service) fallbackResult(raw string, corpus []*models.ScrapedDocument) *models.TaskResult {
	summary := truncateToRuneBoundary(CleanResponse(raw), fallbackSummaryLimit)

	result := &models.TaskResult{
		Summary:          summary,
		ExecutiveSummary: deriveExecutiveSummary(nil, summary),
		KeyPoints:        []string{},
		StructuredData:   map[string]interface{}{},
		Sources:          corpusURLs(corpus),
		Confidence:       0,
	}
	result.Insights = backfill(nil, nil, "insights", defaultInsights)
	result.Risks = backfill(nil, nil, "risks", defaultRisks)
	result.Opportunities = backfill(nil, nil, "opportunities", defaultOpportunities)
	return result
}

func corpusURLs(corpus []*models.ScrapedDocument) []string {
	urls := make([]string, 0, len(corpus))
	for _, doc := range corpus {
		urls = append(urls, doc.URL)
	}
	return urls
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
