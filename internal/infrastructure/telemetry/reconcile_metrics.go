package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PreviewCounts are the per-type totals of one preview.
type PreviewCounts struct {
	New, Modified, Unchanged, Removed int
}

// ApplyCounts are the totals of one apply.
type ApplyCounts struct {
	Created, Updated, Removed, AccountsUpdated int
	Skipped, NotStarted, Errors                int
	TimedOut, Success                          bool
}

// ReconcileMetrics records pipeline preview and apply measurements.
type ReconcileMetrics struct {
	previews        *Counter
	previewEntries  *Counter
	previewDuration *Histogram
	applies         *Counter
	appliedChanges  *Counter
	applyErrors     *Counter
	applyDuration   *Histogram
}

// NewReconcileMetrics registers the instruments on meter.
func NewReconcileMetrics(meter metric.Meter) (*ReconcileMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &ReconcileMetrics{}
	var err error
	if m.previews, err = NewCounter(meter, "pipeline_previews_total", "Number of previews built", "{preview}"); err != nil {
		return nil, err
	}
	if m.previewEntries, err = NewCounter(meter, "pipeline_preview_entries_total", "Change entries classified, by change type", "{entry}"); err != nil {
		return nil, err
	}
	if m.previewDuration, err = NewHistogram(meter, "pipeline_preview_duration_seconds", "Time to build a preview", "s",
		0.005, 0.01, 0.05, 0.1, 0.5, 1, 5); err != nil {
		return nil, err
	}
	if m.applies, err = NewCounter(meter, "pipeline_applies_total", "Number of applies, by outcome", "{apply}"); err != nil {
		return nil, err
	}
	if m.appliedChanges, err = NewCounter(meter, "pipeline_applied_changes_total", "Store writes performed by applies, by action", "{change}"); err != nil {
		return nil, err
	}
	if m.applyErrors, err = NewCounter(meter, "pipeline_apply_errors_total", "Per-entry apply errors", "{error}"); err != nil {
		return nil, err
	}
	if m.applyDuration, err = NewHistogram(meter, "pipeline_apply_duration_seconds", "Time to run an apply", "s",
		0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ReconcileMetrics) RecordPreview(ctx context.Context, c PreviewCounts, elapsed time.Duration) {
	m.previews.Inc(ctx)
	m.previewEntries.Add(ctx, int64(c.New), attribute.String("change_type", "new"))
	m.previewEntries.Add(ctx, int64(c.Modified), attribute.String("change_type", "modified"))
	m.previewEntries.Add(ctx, int64(c.Unchanged), attribute.String("change_type", "unchanged"))
	m.previewEntries.Add(ctx, int64(c.Removed), attribute.String("change_type", "removed"))
	m.previewDuration.RecordDuration(ctx, elapsed)
}

func (m *ReconcileMetrics) RecordApply(ctx context.Context, c ApplyCounts, elapsed time.Duration) {
	m.applies.Inc(ctx,
		attribute.Bool("success", c.Success),
		attribute.Bool("timed_out", c.TimedOut),
	)
	m.appliedChanges.Add(ctx, int64(c.Created), attribute.String("action", "created"))
	m.appliedChanges.Add(ctx, int64(c.Updated), attribute.String("action", "updated"))
	m.appliedChanges.Add(ctx, int64(c.Removed), attribute.String("action", "removed"))
	m.appliedChanges.Add(ctx, int64(c.AccountsUpdated), attribute.String("action", "account_updated"))
	m.appliedChanges.Add(ctx, int64(c.Skipped), attribute.String("action", "skipped"))
	m.applyErrors.Add(ctx, int64(c.Errors))
	m.applyDuration.RecordDuration(ctx, elapsed, attribute.Bool("success", c.Success))
}
