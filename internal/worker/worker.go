// -----------------------------------------------------------------------
// Worker - polling loop that claims pending tasks and runs the
// collect -> snapshot -> synthesize pipeline one task at a time
// -----------------------------------------------------------------------

package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
	"github.com/ternarybob/speculor/internal/services/collector"
)

// Worker polls the task queue and drives each claimed task through the
// pipeline stages sequentially. It processes a single task at a time
// and never exits on task failure.
type Worker struct {
	queue       interfaces.TaskQueue
	collector   interfaces.CorpusCollector
	aggregator  interfaces.SnapshotAggregator
	synthesizer interfaces.ReportSynthesizer
	mailer      interfaces.NotificationService
	config      common.WorkerConfig
	logger      arbor.ILogger
}

// New creates a worker wired to the pipeline services.
func New(cfg common.WorkerConfig, queue interfaces.TaskQueue, corpus interfaces.CorpusCollector, aggregator interfaces.SnapshotAggregator, synthesizer interfaces.ReportSynthesizer, mailer interfaces.NotificationService, logger arbor.ILogger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.StoreBackoff <= 0 {
		cfg.StoreBackoff = 60 * time.Second
	}
	return &Worker{
		queue:       queue,
		collector:   corpus,
		aggregator:  aggregator,
		synthesizer: synthesizer,
		mailer:      mailer,
		config:      cfg,
		logger:      logger,
	}
}

// Run polls until the context is cancelled. A task failure pauses for
// ErrorBackoff; an unreachable store pauses for the longer StoreBackoff.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().
		Dur("poll_interval", w.config.PollInterval).
		Msg("Worker started")

	for {
		delay := w.pollOnce(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Worker stopped")
			return
		case <-time.After(delay):
		}
	}
}

// pollOnce claims and processes at most one task, returning the pause
// before the next poll.
func (w *Worker) pollOnce(ctx context.Context) time.Duration {
	task, err := w.queue.GetOldestPending(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return w.config.PollInterval
		}
		w.logger.Error().Err(err).Msg("Task store unreachable, backing off")
		return w.config.StoreBackoff
	}

	if task == nil {
		return w.config.PollInterval
	}

	if err := w.processTask(ctx, task); err != nil {
		return w.config.ErrorBackoff
	}

	// Start the next poll immediately when a task just completed; more
	// may be waiting behind it.
	return 0
}

// processTask drives one claimed task through the pipeline and
// finalizes it exactly once.
func (w *Worker) processTask(ctx context.Context, task *models.AnalysisTask) (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().
				Str("task_id", task.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Panic recovered in task processing")
			err = fmt.Errorf("panic: %v", r)
			w.finalize(ctx, task, nil, err.Error(), time.Since(start))
		}
	}()

	if err := w.queue.UpdateStatus(ctx, task.ID, models.TaskStatusProcessing); err != nil {
		w.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("Failed to claim task")
		return err
	}

	w.logger.Info().
		Str("task_id", task.ID).
		Str("type", string(task.Type)).
		Msg("Task claimed")

	corpus, err := w.collector.Collect(ctx)
	if err != nil {
		reason := fmt.Sprintf("corpus collection failed: %v", err)
		if errors.Is(err, collector.ErrNoRecentData) {
			reason = err.Error()
		}
		w.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Msg("Corpus collection failed")
		w.finalize(ctx, task, nil, reason, time.Since(start))
		return err
	}

	snapshot := w.aggregator.BuildSnapshot(ctx)
	w.logger.Debug().
		Str("task_id", task.ID).
		Int("documents", len(corpus)).
		Int("quotes_available", snapshot.AvailableCount()).
		Msg("Pipeline inputs assembled")

	result, err := w.synthesizer.Synthesize(ctx, task, corpus, snapshot)
	if err != nil {
		w.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("Synthesis failed")
		w.finalize(ctx, task, nil, err.Error(), time.Since(start))
		return err
	}

	w.finalize(ctx, task, result, "", time.Since(start))

	w.logger.Info().
		Str("task_id", task.ID).
		Dur("duration", time.Since(start)).
		Float64("confidence", result.Confidence).
		Msg("Task completed")

	w.notify(ctx, task, result)
	return nil
}

// finalize writes the result payload and advances the task to its
// terminal status.
func (w *Worker) finalize(ctx context.Context, task *models.AnalysisTask, result *models.TaskResult, errMsg string, elapsed time.Duration) {
	if err := w.queue.UpdateResult(ctx, task.ID, result, errMsg, elapsed.Seconds()); err != nil {
		w.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("Failed to persist task result")
	}

	status := models.TaskStatusCompleted
	if errMsg != "" {
		status = models.TaskStatusError
	}
	if err := w.queue.UpdateStatus(ctx, task.ID, status); err != nil {
		w.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Str("status", string(status)).
			Msg("Failed to finalize task status")
	}
}

// notify sends the completed report. Delivery failure is logged but
// never affects the already-persisted result.
func (w *Worker) notify(ctx context.Context, task *models.AnalysisTask, result *models.TaskResult) {
	if w.mailer == nil || !w.mailer.IsConfigured() {
		return
	}

	subject := fmt.Sprintf("Speculor %s report ready", task.Type)
	body := renderReport(task, result)

	if err := w.mailer.Send(ctx, subject, body); err != nil {
		w.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Msg("Report notification failed")
	}
}

// renderReport builds the plain-text report email body.
func renderReport(task *models.AnalysisTask, result *models.TaskResult) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Report for %s task %s\n\n", task.Type, task.ID))

	if len(result.ExecutiveSummary) > 0 {
		b.WriteString("Executive summary\n")
		for _, line := range result.ExecutiveSummary {
			b.WriteString(fmt.Sprintf("* %s\n", line))
		}
		b.WriteString("\n")
	}

	b.WriteString(result.Summary)
	b.WriteString("\n")

	section := func(title string, entries []string) {
		if len(entries) == 0 {
			return
		}
		b.WriteString(fmt.Sprintf("\n%s\n", title))
		for _, entry := range entries {
			b.WriteString(fmt.Sprintf("* %s\n", entry))
		}
	}
	section("Insights", result.Insights)
	section("Risks", result.Risks)
	section("Opportunities", result.Opportunities)
	section("Sources", result.Sources)

	return b.String()
}
