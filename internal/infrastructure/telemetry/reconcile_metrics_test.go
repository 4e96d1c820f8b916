package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestReconcileMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	m, err := NewReconcileMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPreview(ctx, PreviewCounts{New: 2, Modified: 1, Unchanged: 5}, 20*time.Millisecond)
	m.RecordApply(ctx, ApplyCounts{Created: 2, Updated: 1, Errors: 1, Success: true}, time.Second)

	got := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, got["pipeline_previews_total"], "", ""))
	assert.Equal(t, int64(2), sumFor(t, got["pipeline_preview_entries_total"], "change_type", "new"))
	assert.Equal(t, int64(5), sumFor(t, got["pipeline_preview_entries_total"], "change_type", "unchanged"))
	assert.Equal(t, int64(0), sumFor(t, got["pipeline_preview_entries_total"], "change_type", "removed"))
	assert.Equal(t, int64(2), sumFor(t, got["pipeline_applied_changes_total"], "action", "created"))
	assert.Equal(t, int64(1), sumFor(t, got["pipeline_apply_errors_total"], "", ""))

	hist, ok := got["pipeline_apply_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestNewReconcileMetricsNilMeter(t *testing.T) {
	_, err := NewReconcileMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}
