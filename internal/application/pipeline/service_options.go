package pipelineapp

import (
	"time"

	"go.uber.org/zap"

	"github.com/scout/backend/internal/domain/pipeline"
)

type options struct {
	logger   *zap.Logger
	metrics  Metrics
	strategy pipeline.IdentityStrategy
	clock    func() time.Time
}

// Option configures the services in this package.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithIdentityStrategy replaces the default name and account matching.
func WithIdentityStrategy(s pipeline.IdentityStrategy) Option {
	return func(o *options) {
		o.strategy = s
	}
}

// WithClock overrides time.Now for preview timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  zap.NewNop(),
		metrics: noopMetrics{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
