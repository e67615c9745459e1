// -----------------------------------------------------------------------
// Scheduler Service - cron-driven periodic routines alongside the
// polling worker: snapshot refresh, daily briefing, monthly report
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
)

const monthlyPrompt = "Produce the monthly market outlook: synthesize the recent coverage " +
	"and the current snapshot into themes, positioning risks and opportunities " +
	"across equities, rates, commodities and crypto."

// snapshotSource is the scheduler's view of the market aggregator.
type snapshotSource interface {
	interfaces.SnapshotAggregator
	WarmCache(ctx context.Context)
}

// routine is one registered periodic job.
type routine struct {
	name     string
	schedule string
	handler  func(ctx context.Context) error
	cronID   cron.EntryID
	lastRun  *time.Time
	lastErr  string
}

// Service runs the periodic routines on their cron schedules. Routines
// never overlap: a shared mutex serializes execution.
type Service struct {
	queue         interfaces.TaskQueue
	snapshots     snapshotSource
	mailer        interfaces.NotificationService
	schedules     common.SchedulesConfig
	briefingLimit int
	cron          *cron.Cron
	logger        arbor.ILogger

	mu       sync.Mutex
	routines map[string]*routine
	globalMu sync.Mutex
	running  bool
}

// NewService creates a scheduler wired to the task queue, the market
// aggregator and the notification sink.
func NewService(cfg *common.Config, queue interfaces.TaskQueue, snapshots snapshotSource, mailer interfaces.NotificationService, logger arbor.ILogger) *Service {
	return &Service{
		queue:         queue,
		snapshots:     snapshots,
		mailer:        mailer,
		schedules:     cfg.Schedules,
		briefingLimit: cfg.Worker.BriefingLimit,
		cron:          cron.New(),
		logger:        logger,
		routines:      make(map[string]*routine),
	}
}

// Start registers the configured routines and starts the cron loop.
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if err := s.register("snapshot_refresh", s.schedules.SnapshotRefresh, s.refreshSnapshot); err != nil {
		return err
	}
	if err := s.register("daily_briefing", s.schedules.DailyBriefing, s.sendDailyBriefing); err != nil {
		return err
	}
	if err := s.register("monthly_report", s.schedules.MonthlyReport, s.enqueueMonthlyReport); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Int("routines", len(s.routines)).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron loop and waits for a running routine to finish.
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is active.
func (s *Service) IsRunning() bool {
	return s.running
}

// register adds one routine to cron. An empty schedule disables the
// routine without failing startup.
func (s *Service) register(name, schedule string, handler func(ctx context.Context) error) error {
	if schedule == "" {
		s.logger.Info().
			Str("routine", name).
			Msg("Routine disabled (no schedule configured)")
		return nil
	}

	entry := &routine{
		name:     name,
		schedule: schedule,
		handler:  handler,
	}

	cronID, err := s.cron.AddFunc(schedule, func() {
		s.execute(name)
	})
	if err != nil {
		return fmt.Errorf("failed to register routine %s: %w", name, err)
	}

	entry.cronID = cronID

	s.mu.Lock()
	s.routines[name] = entry
	s.mu.Unlock()

	s.logger.Info().
		Str("routine", name).
		Str("schedule", schedule).
		Msg("Routine registered")

	return nil
}

// execute wraps a routine run with serialization, panic recovery and
// status tracking.
func (s *Service) execute(name string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("routine", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in scheduled routine")
		}
	}()

	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	s.mu.Lock()
	entry, exists := s.routines[name]
	s.mu.Unlock()
	if !exists {
		return
	}

	start := time.Now()
	err := entry.handler(context.Background())

	s.mu.Lock()
	now := time.Now()
	entry.lastRun = &now
	if err != nil {
		entry.lastErr = err.Error()
	} else {
		entry.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("routine", name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Routine failed")
		return
	}

	s.logger.Info().
		Str("routine", name).
		Dur("duration", time.Since(start)).
		Msg("Routine completed")
}

// TriggerNow runs a registered routine immediately, outside its
// schedule.
func (s *Service) TriggerNow(name string) error {
	s.mu.Lock()
	_, exists := s.routines[name]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("routine %s not found", name)
	}

	s.execute(name)
	return nil
}

// refreshSnapshot drops the quote cache and rebuilds the snapshot so
// the next task starts from fresh data.
func (s *Service) refreshSnapshot(ctx context.Context) error {
	s.snapshots.WarmCache(ctx)
	return nil
}

// sendDailyBriefing renders the current snapshot plus the most recent
// completed reports into one email.
func (s *Service) sendDailyBriefing(ctx context.Context) error {
	if !s.mailer.IsConfigured() {
		s.logger.Debug().Msg("Mailer not configured, skipping daily briefing")
		return nil
	}

	snapshot := s.snapshots.BuildSnapshot(ctx)

	reports, err := s.queue.ListTasks(ctx, &interfaces.TaskListOptions{
		Status: models.TaskStatusCompleted,
		Limit:  s.briefingLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list completed reports: %w", err)
	}

	subject := fmt.Sprintf("Speculor daily briefing - %s", time.Now().UTC().Format("2006-01-02"))
	body := renderBriefing(snapshot, reports)

	if err := s.mailer.Send(ctx, subject, body); err != nil {
		return fmt.Errorf("failed to send daily briefing: %w", err)
	}

	return nil
}

// enqueueMonthlyReport creates a pending monthly task for the worker
// to pick up on its next poll.
func (s *Service) enqueueMonthlyReport(ctx context.Context) error {
	task := models.NewAnalysisTask(models.TaskTypeMonthly, monthlyPrompt)

	if err := s.queue.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue monthly task: %w", err)
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Msg("Monthly report task enqueued")

	return nil
}

// renderBriefing builds the plain-text briefing body.
func renderBriefing(snapshot *models.MarketSnapshot, reports []*models.AnalysisTask) string {
	var b strings.Builder

	b.WriteString(snapshot.Render(0))
	b.WriteString("\n")

	if len(reports) == 0 {
		b.WriteString("\nNo completed reports since the last briefing.\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("\nRecent reports (%d)\n", len(reports)))
	for _, task := range reports {
		b.WriteString(fmt.Sprintf("\n--- %s report", task.Type))
		if task.CompletedAt != nil {
			b.WriteString(fmt.Sprintf(" (%s UTC)", task.CompletedAt.UTC().Format("2006-01-02 15:04")))
		}
		b.WriteString(" ---\n")

		if task.Result == nil {
			continue
		}
		for _, line := range task.Result.ExecutiveSummary {
			b.WriteString(fmt.Sprintf("* %s\n", line))
		}
		if len(task.Result.ExecutiveSummary) == 0 && task.Result.Summary != "" {
			b.WriteString(task.Result.Summary)
			b.WriteString("\n")
		}
	}

	return b.String()
}
