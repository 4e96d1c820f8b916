package pipelineapp

import (
	"context"
	"time"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/infrastructure/telemetry"
)

// Metrics receives reconciliation measurements. Implementations must be
// safe for concurrent use.
type Metrics interface {
	PreviewBuilt(ctx context.Context, summary pipeline.Summary, elapsed time.Duration)
	ApplyFinished(ctx context.Context, result *ApplyResult, elapsed time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) PreviewBuilt(context.Context, pipeline.Summary, time.Duration) {}
func (noopMetrics) ApplyFinished(context.Context, *ApplyResult, time.Duration)    {}

// ApplyLocker serializes applies. Acquire returns shared.ErrApplyInProgress
// when the key is held elsewhere, otherwise a function that releases it.
type ApplyLocker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// TelemetryMetrics adapts telemetry.ReconcileMetrics to Metrics.
type TelemetryMetrics struct {
	M *telemetry.ReconcileMetrics
}

func (t TelemetryMetrics) PreviewBuilt(ctx context.Context, s pipeline.Summary, elapsed time.Duration) {
	t.M.RecordPreview(ctx, telemetry.PreviewCounts{
		New:       s.New,
		Modified:  s.Modified,
		Unchanged: s.Unchanged,
		Removed:   s.Removed,
	}, elapsed)
}

func (t TelemetryMetrics) ApplyFinished(ctx context.Context, r *ApplyResult, elapsed time.Duration) {
	t.M.RecordApply(ctx, telemetry.ApplyCounts{
		Created:         r.Created,
		Updated:         r.Updated,
		Removed:         r.Removed,
		AccountsUpdated: r.AccountsUpdated,
		Skipped:         r.Skipped,
		NotStarted:      r.NotStarted,
		Errors:          r.TotalErrors,
		TimedOut:        r.TimedOut,
		Success:         r.Success,
	}, elapsed)
}
