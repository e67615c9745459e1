package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/interfaces"
	"github.com/ternarybob/speculor/internal/models"
	"github.com/ternarybob/speculor/internal/services/collector"
)

type recordedResult struct {
	result      *models.TaskResult
	errMsg      string
	durationSec float64
}

type mockQueue struct {
	pending  []*models.AnalysisTask
	statuses map[string][]models.TaskStatus
	results  map[string]recordedResult
	pollErr  error
}

func newMockQueue(tasks ...*models.AnalysisTask) *mockQueue {
	return &mockQueue{
		pending:  tasks,
		statuses: make(map[string][]models.TaskStatus),
		results:  make(map[string]recordedResult),
	}
}

func (q *mockQueue) SaveTask(ctx context.Context, task *models.AnalysisTask) error {
	q.pending = append(q.pending, task)
	return nil
}

func (q *mockQueue) GetOldestPending(ctx context.Context) (*models.AnalysisTask, error) {
	if q.pollErr != nil {
		return nil, q.pollErr
	}
	if len(q.pending) == 0 {
		return nil, nil
	}
	task := q.pending[0]
	q.pending = q.pending[1:]
	return task, nil
}

func (q *mockQueue) GetTask(ctx context.Context, id string) (*models.AnalysisTask, error) {
	return nil, fmt.Errorf("not found")
}

func (q *mockQueue) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	q.statuses[id] = append(q.statuses[id], status)
	return nil
}

func (q *mockQueue) UpdateResult(ctx context.Context, id string, result *models.TaskResult, errMsg string, durationSec float64) error {
	q.results[id] = recordedResult{result: result, errMsg: errMsg, durationSec: durationSec}
	return nil
}

func (q *mockQueue) ListTasks(ctx context.Context, opts *interfaces.TaskListOptions) ([]*models.AnalysisTask, error) {
	return nil, nil
}

type mockCollector struct {
	docs []*models.ScrapedDocument
	err  error
}

func (c *mockCollector) Collect(ctx context.Context) ([]*models.ScrapedDocument, error) {
	return c.docs, c.err
}

type mockAggregator struct{}

func (a *mockAggregator) BuildSnapshot(ctx context.Context) *models.MarketSnapshot {
	return models.NewMarketSnapshot()
}

type mockSynthesizer struct {
	result *models.TaskResult
	err    error
	panics bool
}

func (s *mockSynthesizer) Synthesize(ctx context.Context, task *models.AnalysisTask, corpus []*models.ScrapedDocument, snapshot *models.MarketSnapshot) (*models.TaskResult, error) {
	if s.panics {
		panic("synthesizer exploded")
	}
	return s.result, s.err
}

type mockMailer struct {
	configured bool
	sendErr    error
	sent       int
}

func (m *mockMailer) Send(ctx context.Context, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent++
	return nil
}

func (m *mockMailer) IsConfigured() bool { return m.configured }

func goodResult() *models.TaskResult {
	return &models.TaskResult{
		ExecutiveSummary: []string{"Markets steady"},
		Summary:          "Markets were steady across the board.",
		Insights:         []string{"a", "b", "c"},
		Risks:            []string{"a", "b", "c"},
		Opportunities:    []string{"a", "b", "c"},
		Sources:          []string{"https://example.com/a"},
		Confidence:       0.7,
	}
}

func testWorker(queue *mockQueue, corpus *mockCollector, synth *mockSynthesizer, mailer *mockMailer) *Worker {
	cfg := common.WorkerConfig{
		PollInterval: 10 * time.Millisecond,
		ErrorBackoff: 10 * time.Millisecond,
		StoreBackoff: 20 * time.Millisecond,
	}
	return New(cfg, queue, corpus, &mockAggregator{}, synth, mailer, arbor.NewLogger())
}

func TestProcessTaskCompletesAndRecordsDuration(t *testing.T) {
	task := models.NewAnalysisTask(models.TaskTypeManual, "analyze markets")
	queue := newMockQueue()
	docs := []*models.ScrapedDocument{{URL: "https://example.com/a", Text: "recent coverage"}}
	w := testWorker(queue, &mockCollector{docs: docs}, &mockSynthesizer{result: goodResult()}, &mockMailer{})

	require.NoError(t, w.processTask(context.Background(), task))

	assert.Equal(t, []models.TaskStatus{models.TaskStatusProcessing, models.TaskStatusCompleted}, queue.statuses[task.ID])

	rec, ok := queue.results[task.ID]
	require.True(t, ok)
	assert.Empty(t, rec.errMsg)
	assert.NotNil(t, rec.result)
	assert.GreaterOrEqual(t, rec.durationSec, 0.0)
}

func TestProcessTaskFailsWhenNothingRecent(t *testing.T) {
	task := models.NewAnalysisTask(models.TaskTypeAutomatic, "analyze markets")
	queue := newMockQueue()
	w := testWorker(queue, &mockCollector{err: collector.ErrNoRecentData}, &mockSynthesizer{result: goodResult()}, &mockMailer{})

	require.Error(t, w.processTask(context.Background(), task))

	assert.Equal(t, []models.TaskStatus{models.TaskStatusProcessing, models.TaskStatusError}, queue.statuses[task.ID])
	assert.Contains(t, queue.results[task.ID].errMsg, "no recent data")
}

func TestProcessTaskFinalizesOnSynthesisError(t *testing.T) {
	task := models.NewAnalysisTask(models.TaskTypeManual, "analyze markets")
	queue := newMockQueue()
	docs := []*models.ScrapedDocument{{URL: "https://example.com/a", Text: "text"}}
	w := testWorker(queue, &mockCollector{docs: docs}, &mockSynthesizer{err: fmt.Errorf("model unavailable")}, &mockMailer{})

	require.Error(t, w.processTask(context.Background(), task))

	assert.Equal(t, []models.TaskStatus{models.TaskStatusProcessing, models.TaskStatusError}, queue.statuses[task.ID])
	assert.Contains(t, queue.results[task.ID].errMsg, "model unavailable")
}

func TestProcessTaskRecoversFromPanic(t *testing.T) {
	task := models.NewAnalysisTask(models.TaskTypeManual, "analyze markets")
	queue := newMockQueue()
	docs := []*models.ScrapedDocument{{URL: "https://example.com/a", Text: "text"}}
	w := testWorker(queue, &mockCollector{docs: docs}, &mockSynthesizer{panics: true}, &mockMailer{})

	require.Error(t, w.processTask(context.Background(), task))

	assert.Equal(t, []models.TaskStatus{models.TaskStatusProcessing, models.TaskStatusError}, queue.statuses[task.ID])
	assert.Contains(t, queue.results[task.ID].errMsg, "panic")
}

func TestNotificationFailureDoesNotFailTask(t *testing.T) {
	task := models.NewAnalysisTask(models.TaskTypeManual, "analyze markets")
	queue := newMockQueue()
	docs := []*models.ScrapedDocument{{URL: "https://example.com/a", Text: "text"}}
	mailer := &mockMailer{configured: true, sendErr: fmt.Errorf("smtp down")}
	w := testWorker(queue, &mockCollector{docs: docs}, &mockSynthesizer{result: goodResult()}, mailer)

	require.NoError(t, w.processTask(context.Background(), task))

	assert.Equal(t, []models.TaskStatus{models.TaskStatusProcessing, models.TaskStatusCompleted}, queue.statuses[task.ID])
}

func TestNotificationSentWhenConfigured(t *testing.T) {
	task := models.NewAnalysisTask(models.TaskTypeManual, "analyze markets")
	queue := newMockQueue()
	docs := []*models.ScrapedDocument{{URL: "https://example.com/a", Text: "text"}}
	mailer := &mockMailer{configured: true}
	w := testWorker(queue, &mockCollector{docs: docs}, &mockSynthesizer{result: goodResult()}, mailer)

	require.NoError(t, w.processTask(context.Background(), task))
	assert.Equal(t, 1, mailer.sent)
}

func TestPollOnceBacksOffWhenStoreUnreachable(t *testing.T) {
	queue := newMockQueue()
	queue.pollErr = fmt.Errorf("store closed")
	w := testWorker(queue, &mockCollector{}, &mockSynthesizer{}, &mockMailer{})

	delay := w.pollOnce(context.Background())
	assert.Equal(t, w.config.StoreBackoff, delay)
}

func TestPollOnceIdleUsesPollInterval(t *testing.T) {
	w := testWorker(newMockQueue(), &mockCollector{}, &mockSynthesizer{}, &mockMailer{})

	delay := w.pollOnce(context.Background())
	assert.Equal(t, w.config.PollInterval, delay)
}

func TestPollOnceProcessesImmediatelyAfterSuccess(t *testing.T) {
	task := models.NewAnalysisTask(models.TaskTypeManual, "analyze markets")
	queue := newMockQueue(task)
	docs := []*models.ScrapedDocument{{URL: "https://example.com/a", Text: "text"}}
	w := testWorker(queue, &mockCollector{docs: docs}, &mockSynthesizer{result: goodResult()}, &mockMailer{})

	delay := w.pollOnce(context.Background())
	assert.Equal(t, time.Duration(0), delay)
	assert.Equal(t, []models.TaskStatus{models.TaskStatusProcessing, models.TaskStatusCompleted}, queue.statuses[task.ID])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	w := testWorker(newMockQueue(), &mockCollector{}, &mockSynthesizer{}, &mockMailer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
