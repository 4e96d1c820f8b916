package pipelineapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
	"github.com/scout/backend/internal/infrastructure/logger"
)

// ApplyLockKey is the lock taken for the duration of an apply.
const ApplyLockKey = "pipeline:apply"

// ApplyRequest selects what to apply. Either PreviewID refers to a stored
// preview and SelectedIDs picks entries from it, or Changes carries the
// entries directly; then SelectedIDs may be nil to select all of them.
type ApplyRequest struct {
	PreviewID   *uuid.UUID
	Changes     []pipeline.ChangeEntry
	SelectedIDs []string
	// Assignments overrides the stored preview's assignments when present.
	Assignments pipeline.Optional[[]pipeline.OwnerAssignment]
	Options     ApplyOptions
}

// Workflow drives preview, selection and apply for one operator. It keeps
// previews in a session store so apply can refer to them by id.
type Workflow struct {
	engine     *ReconciliationService
	executor   *ApplyExecutor
	sessions   pipeline.PreviewSessionStore
	locker     ApplyLocker
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewWorkflow wires a Workflow. sessions and locker may be nil: without
// sessions previews cannot be applied by id, without a locker applies are
// not serialized.
func NewWorkflow(
	engine *ReconciliationService,
	executor *ApplyExecutor,
	sessions pipeline.PreviewSessionStore,
	locker ApplyLocker,
	sessionTTL time.Duration,
	opts ...Option,
) *Workflow {
	o := buildOptions(opts)
	if sessionTTL <= 0 {
		sessionTTL = 30 * time.Minute
	}
	return &Workflow{
		engine:     engine,
		executor:   executor,
		sessions:   sessions,
		locker:     locker,
		sessionTTL: sessionTTL,
		logger:     o.logger,
	}
}

// Preview builds a preview and remembers it for a later apply.
func (w *Workflow) Preview(ctx context.Context, cmd PreviewCommand) (*pipeline.Preview, error) {
	preview, err := w.engine.Preview(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if w.sessions != nil {
		if err := w.sessions.Save(ctx, preview, w.sessionTTL); err != nil {
			return nil, fmt.Errorf("save preview session: %w", err)
		}
	}
	return preview, nil
}

// GetPreview returns a stored preview.
func (w *Workflow) GetPreview(ctx context.Context, id uuid.UUID) (*pipeline.Preview, error) {
	if w.sessions == nil {
		return nil, shared.ErrPreviewExpired
	}
	preview, err := w.sessions.Get(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrPreviewExpired
	}
	return preview, err
}

// Apply resolves the request to entries and a selection, then runs the
// executor while holding the apply lock. A stored preview is discarded once
// applied.
func (w *Workflow) Apply(ctx context.Context, req ApplyRequest) (*ApplyResult, error) {
	cmd, err := w.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	if w.locker != nil {
		release, err := w.locker.Acquire(ctx, ApplyLockKey)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.L(ctx, w.logger).Warn("failed to release apply lock", zap.Error(err))
			}
		}()
	}

	result, err := w.executor.Apply(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if req.PreviewID != nil && w.sessions != nil {
		if err := w.sessions.Delete(ctx, *req.PreviewID); err != nil {
			logger.L(ctx, w.logger).Warn("failed to discard applied preview",
				zap.String("preview_id", req.PreviewID.String()),
				zap.Error(err),
			)
		}
	}
	return result, nil
}

func (w *Workflow) resolve(ctx context.Context, req ApplyRequest) (ApplyCommand, error) {
	cmd := ApplyCommand{Options: req.Options}
	if as, ok := req.Assignments.Get(); ok {
		cmd.Assignments = as
	}

	switch {
	case req.PreviewID != nil && len(req.Changes) > 0:
		return cmd, shared.ErrInvalidInput.WithMessage("provide either preview_id or changes, not both")

	case req.PreviewID != nil:
		preview, err := w.GetPreview(ctx, *req.PreviewID)
		if err != nil {
			return cmd, err
		}
		if req.SelectedIDs == nil {
			return cmd, shared.ErrInvalidInput.WithMessage("selected_ids is required when applying a stored preview")
		}
		cmd.Entries = preview.Entries
		if !req.Assignments.IsPresent() {
			cmd.Assignments = preview.Assignments
		}

	default:
		cmd.Entries = req.Changes
	}

	if req.SelectedIDs == nil {
		ids := make([]string, len(cmd.Entries))
		for i, e := range cmd.Entries {
			ids[i] = e.ID
		}
		cmd.Selected = NewSelection(ids...)
		return cmd, nil
	}

	known := make(map[string]bool, len(cmd.Entries))
	for _, e := range cmd.Entries {
		known[e.ID] = true
	}
	var unknown []string
	for _, id := range req.SelectedIDs {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return cmd, shared.ErrInvalidInput.WithMessage("unknown change ids: " + strings.Join(unknown, ", "))
	}
	cmd.Selected = NewSelection(req.SelectedIDs...)
	return cmd, nil
}
