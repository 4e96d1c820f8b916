package pipelineapp

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/infrastructure/logger"
	"github.com/scout/backend/internal/infrastructure/telemetry"
)

// PreviewCommand is the input of a preview. An absent or null candidate
// list asks for the current state of the store, with every deal unchanged.
// A present but empty list means the import contains no deals, so every
// stored deal is removed.
type PreviewCommand struct {
	Candidates  pipeline.Optional[[]pipeline.CandidateDeal]
	Assignments []pipeline.OwnerAssignment
}

// ReconciliationService compares candidate batches with the deal store.
// It never writes.
type ReconciliationService struct {
	deals      pipeline.DealRepository
	matcher    *pipeline.Matcher
	classifier *pipeline.Classifier
	logger     *zap.Logger
	metrics    Metrics
	now        func() time.Time
}

// NewReconciliationService creates a ReconciliationService.
func NewReconciliationService(deals pipeline.DealRepository, opts ...Option) *ReconciliationService {
	o := buildOptions(opts)
	return &ReconciliationService{
		deals:      deals,
		matcher:    pipeline.NewMatcher(o.strategy),
		classifier: pipeline.NewClassifier(),
		logger:     o.logger,
		metrics:    o.metrics,
		now:        o.clock,
	}
}

// Preview classifies the candidate batch against every stored deal.
// Invalid batches are rejected before the store is read.
func (s *ReconciliationService) Preview(ctx context.Context, cmd PreviewCommand) (*pipeline.Preview, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "pipeline", "preview")
	defer span.End()
	start := time.Now()

	candidates, compare := cmd.Candidates.Get()
	if compare {
		if err := pipeline.ValidateCandidates(candidates); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	deals, err := s.deals.FindAll(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load deals: %w", err)
	}

	var entries []pipeline.ChangeEntry
	if compare {
		entries = s.classifier.Classify(s.matcher.Match(deals, candidates))
	} else {
		entries = s.classifier.Unchanged(deals)
	}

	preview := &pipeline.Preview{
		ID:          uuid.New(),
		Summary:     pipeline.Summarize(entries),
		Entries:     entries,
		Assignments: slices.Clone(cmd.Assignments),
		GeneratedAt: s.now().UTC(),
	}

	telemetry.SetAttributes(span,
		"pipeline.candidates", len(candidates),
		"pipeline.stored", len(deals),
		"pipeline.new", preview.Summary.New,
		"pipeline.modified", preview.Summary.Modified,
		"pipeline.removed", preview.Summary.Removed,
	)
	s.metrics.PreviewBuilt(ctx, preview.Summary, time.Since(start))
	logger.L(ctx, s.logger).Debug("pipeline preview built",
		zap.String("preview_id", preview.ID.String()),
		zap.Bool("compare", compare),
		zap.Int("new", preview.Summary.New),
		zap.Int("modified", preview.Summary.Modified),
		zap.Int("unchanged", preview.Summary.Unchanged),
		zap.Int("removed", preview.Summary.Removed),
	)
	return preview, nil
}
