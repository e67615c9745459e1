package interfaces

import (
	"context"

	"github.com/ternarybob/speculor/internal/models"
)

// CorpusCollector assembles the recent-document corpus for one task.
type CorpusCollector interface {
	Collect(ctx context.Context) ([]*models.ScrapedDocument, error)
}

// SnapshotAggregator builds a fresh market snapshot.
type SnapshotAggregator interface {
	BuildSnapshot(ctx context.Context) *models.MarketSnapshot
}

// ReportSynthesizer turns corpus + snapshot + prompt into a validated
// task result.
type ReportSynthesizer interface {
	Synthesize(ctx context.Context, task *models.AnalysisTask, corpus []*models.ScrapedDocument, snapshot *models.MarketSnapshot) (*models.TaskResult, error)
}
