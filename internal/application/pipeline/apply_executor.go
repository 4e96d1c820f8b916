package pipelineapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
	"github.com/scout/backend/internal/infrastructure/logger"
	"github.com/scout/backend/internal/infrastructure/telemetry"
)

// ApplyCommand is the input of an apply. Only entries whose ids are in
// Selected are considered, and unchanged entries are never written.
type ApplyCommand struct {
	Entries     []pipeline.ChangeEntry
	Selected    Selection
	Assignments []pipeline.OwnerAssignment
	Options     ApplyOptions
}

// ApplyExecutor writes approved changes to the store. Each entry succeeds or
// fails on its own; nothing is rolled back.
type ApplyExecutor struct {
	deals    pipeline.DealRepository
	accounts pipeline.AccountRepository
	events   shared.EventPublisher
	cfg      ExecutorConfig
	logger   *zap.Logger
	metrics  Metrics
}

// NewApplyExecutor creates an ApplyExecutor. events may be nil.
func NewApplyExecutor(
	deals pipeline.DealRepository,
	accounts pipeline.AccountRepository,
	events shared.EventPublisher,
	cfg ExecutorConfig,
	opts ...Option,
) *ApplyExecutor {
	o := buildOptions(opts)
	return &ApplyExecutor{
		deals:    deals,
		accounts: accounts,
		events:   events,
		cfg:      cfg.withDefaults(),
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

type indexedEntry struct {
	index int
	entry pipeline.ChangeEntry
}

// Apply performs the selected changes, then the owner assignments.
//
// Malformed input is rejected with an error before anything is written.
// Everything after that is reported inside the result. When the configured
// timeout expires no further change is started; changes already running
// are allowed to finish.
func (e *ApplyExecutor) Apply(ctx context.Context, cmd ApplyCommand) (*ApplyResult, error) {
	if err := validateApplyCommand(cmd); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "pipeline", "apply")
	defer span.End()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	selected := e.selectEntries(cmd)
	acc := &accumulator{}
	e.runEntries(ctx, selected, acc)
	e.runAssignments(ctx, cmd.Assignments, acc)

	result := acc.result(e.cfg.MaxErrorDetails)
	elapsed := time.Since(start)

	telemetry.SetAttributes(span,
		"pipeline.selected", len(selected),
		"pipeline.created", result.Created,
		"pipeline.updated", result.Updated,
		"pipeline.removed", result.Removed,
		"pipeline.errors", result.TotalErrors,
		"pipeline.timed_out", result.TimedOut,
	)
	e.metrics.ApplyFinished(ctx, result, elapsed)

	l := logger.L(ctx, e.logger)
	log := l.Info
	if !result.Success {
		log = l.Warn
	}
	log("pipeline apply finished",
		zap.Int("selected", len(selected)),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("removed", result.Removed),
		zap.Int("skipped", result.Skipped),
		zap.Int("accounts_updated", result.AccountsUpdated),
		zap.Int("errors", result.TotalErrors),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func validateApplyCommand(cmd ApplyCommand) error {
	seen := make(map[string]bool, len(cmd.Entries))
	for _, entry := range cmd.Entries {
		if err := entry.Validate(); err != nil {
			return shared.ErrInvalidInput.WithMessage(err.Error())
		}
		if seen[entry.ID] {
			return shared.ErrInvalidInput.WithMessage("duplicate change id " + entry.ID)
		}
		seen[entry.ID] = true
	}
	for i, as := range cmd.Assignments {
		if strings.TrimSpace(as.AccountName) == "" {
			return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("account assignment %d has no account name", i+1))
		}
	}
	return nil
}

func (e *ApplyExecutor) selectEntries(cmd ApplyCommand) []indexedEntry {
	var out []indexedEntry
	for i, entry := range cmd.Entries {
		if !cmd.Selected.Has(entry.ID) || entry.ChangeType == pipeline.ChangeUnchanged {
			continue
		}
		if cmd.Options.SkipNew && entry.ChangeType == pipeline.ChangeNew {
			continue
		}
		if cmd.Options.SkipRemoved && entry.ChangeType == pipeline.ChangeRemoved {
			continue
		}
		out = append(out, indexedEntry{index: i, entry: entry})
	}
	return out
}

// runEntries applies entries on a bounded worker group. A started entry runs
// on a context without the deadline so its write and its outcome stay
// together.
func (e *ApplyExecutor) runEntries(ctx context.Context, entries []indexedEntry, acc *accumulator) {
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)

	for i, item := range entries {
		if ctx.Err() != nil {
			acc.recordNotStarted(len(entries) - i)
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				acc.recordNotStarted(1)
				return nil
			}
			acc.recordEntry(item.index, e.applyEntry(context.WithoutCancel(ctx), item.entry))
			return nil
		})
	}
	_ = g.Wait()
}

func (e *ApplyExecutor) applyEntry(ctx context.Context, entry pipeline.ChangeEntry) EntryOutcome {
	var (
		status EntryStatus
		err    error
	)
	switch entry.ChangeType {
	case pipeline.ChangeNew:
		status, err = e.create(ctx, entry)
	case pipeline.ChangeModified:
		status, err = e.update(ctx, entry)
	case pipeline.ChangeRemoved:
		status, err = e.remove(ctx, entry)
	}

	outcome := EntryOutcome{ID: entry.ID, DealName: entry.DealName, Status: status}
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()
		logger.L(ctx, e.logger).Warn("pipeline change failed",
			zap.String("change_id", entry.ID),
			zap.String("change_type", string(entry.ChangeType)),
			zap.Error(err),
		)
	}
	return outcome
}

func (e *ApplyExecutor) create(ctx context.Context, entry pipeline.ChangeEntry) (EntryStatus, error) {
	proposed := pipeline.WithCreationDefaults(*entry.Proposed)

	if status, found, err := e.checkExisting(ctx, entry, proposed); found || err != nil {
		return status, err
	}

	account, err := e.findOrCreateAccount(ctx, proposed.AccountName, proposed.Vertical)
	if err != nil {
		return "", entryErr(ErrKindCreate, entry, err)
	}
	deal, err := pipeline.NewDeal(account.ID, proposed)
	if err != nil {
		return "", entryErr(ErrKindCreate, entry, err)
	}
	if err := e.deals.Create(ctx, deal); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			if status, found, err := e.checkExisting(ctx, entry, proposed); found || err != nil {
				return status, err
			}
		}
		return "", entryErr(ErrKindCreate, entry, err)
	}
	e.publish(ctx, deal)
	return StatusCreated, nil
}

// checkExisting looks for a deal that already has the entry's match key. An
// identical deal means the entry was applied before; a different one means
// the store moved since the preview.
func (e *ApplyExecutor) checkExisting(ctx context.Context, entry pipeline.ChangeEntry, proposed pipeline.DealSnapshot) (EntryStatus, bool, error) {
	existing, err := e.deals.FindByMatchKey(ctx, proposed.MatchKey())
	if errors.Is(err, shared.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, entryErr(ErrKindCreate, entry, err)
	}
	if existing.SameTrackedFields(proposed) {
		return StatusSkipped, true, nil
	}
	return "", true, staleErr(entry, "a deal with this name already exists ("+
		strings.Join(pipeline.DiffSnapshots(proposed, existing.Snapshot()), "; ")+")")
}

func (e *ApplyExecutor) update(ctx context.Context, entry pipeline.ChangeEntry) (EntryStatus, error) {
	live, err := e.loadLive(ctx, entry)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", staleErr(entry, "deal no longer exists")
		}
		return "", entryErr(ErrKindUpdate, entry, err)
	}
	if live.SameTrackedFields(*entry.Proposed) {
		return StatusSkipped, nil
	}
	if err := checkCurrent(live, entry); err != nil {
		return "", err
	}

	if err := live.ApplyChanges(*entry.Proposed); err != nil {
		return "", entryErr(ErrKindUpdate, entry, err)
	}
	if err := e.deals.SaveWithLock(ctx, live); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return "", staleErr(entry, "deal was modified while applying")
		}
		return "", entryErr(ErrKindUpdate, entry, err)
	}
	e.publish(ctx, live)
	return StatusUpdated, nil
}

func (e *ApplyExecutor) remove(ctx context.Context, entry pipeline.ChangeEntry) (EntryStatus, error) {
	live, err := e.loadLive(ctx, entry)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return StatusSkipped, nil
		}
		return "", entryErr(ErrKindRemove, entry, err)
	}

	if e.cfg.RemovalMode == RemovalCloseLost {
		if live.Stage == pipeline.StageClosedLost {
			return StatusSkipped, nil
		}
		if err := checkCurrent(live, entry); err != nil {
			return "", err
		}
		live.CloseLost()
		if err := e.deals.SaveWithLock(ctx, live); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				return "", staleErr(entry, "deal was modified while applying")
			}
			return "", entryErr(ErrKindRemove, entry, err)
		}
		e.publish(ctx, live)
		return StatusRemoved, nil
	}

	if err := checkCurrent(live, entry); err != nil {
		return "", err
	}
	live.MarkRemoved()
	if err := e.deals.Delete(ctx, live.ID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return StatusSkipped, nil
		}
		return "", entryErr(ErrKindRemove, entry, err)
	}
	e.publish(ctx, live)
	return StatusRemoved, nil
}

func (e *ApplyExecutor) loadLive(ctx context.Context, entry pipeline.ChangeEntry) (*pipeline.Deal, error) {
	id, err := uuid.Parse(entry.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid deal id %q", entry.ID)
	}
	return e.deals.FindByID(ctx, id)
}

// checkCurrent verifies that the stored deal still looks like the preview's
// current snapshot.
func checkCurrent(live *pipeline.Deal, entry pipeline.ChangeEntry) error {
	if live.MatchKey() != entry.Current.MatchKey() {
		return staleErr(entry, "deal was renamed")
	}
	if live.SameTrackedFields(*entry.Current) {
		return nil
	}
	diffs := pipeline.DiffSnapshots(*entry.Current, live.Snapshot())
	return staleErr(entry, "changed since preview ("+strings.Join(diffs, "; ")+")")
}

func (e *ApplyExecutor) findOrCreateAccount(ctx context.Context, name string, vertical *string) (*pipeline.Account, error) {
	account, err := e.accounts.FindByName(ctx, name)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("find account %q: %w", name, err)
	}

	account, err = pipeline.NewProspectAccount(name, vertical)
	if err != nil {
		return nil, err
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// created by a concurrent entry for the same account
			return e.accounts.FindByName(ctx, name)
		}
		return nil, fmt.Errorf("create account %q: %w", name, err)
	}
	logger.L(ctx, e.logger).Info("created prospect account", zap.String("account", account.Name))
	return account, nil
}

// runAssignments applies owner assignments. Assignments for the same account
// run in order on one worker; different accounts run concurrently.
func (e *ApplyExecutor) runAssignments(ctx context.Context, assignments []pipeline.OwnerAssignment, acc *accumulator) {
	type group struct {
		indexes []int
	}
	var groups []*group
	byKey := make(map[string]*group)
	for i, as := range assignments {
		key := pipeline.NormalizeName(as.AccountName)
		g, ok := byKey[key]
		if !ok {
			g = &group{}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.indexes = append(g.indexes, i)
	}

	eg := new(errgroup.Group)
	eg.SetLimit(e.cfg.Concurrency)
	for gi, grp := range groups {
		if ctx.Err() != nil {
			remaining := 0
			for _, rest := range groups[gi:] {
				remaining += len(rest.indexes)
			}
			acc.recordNotStarted(remaining)
			break
		}
		eg.Go(func() error {
			for n, i := range grp.indexes {
				if ctx.Err() != nil {
					acc.recordNotStarted(len(grp.indexes) - n)
					return nil
				}
				changed, err := e.assign(context.WithoutCancel(ctx), assignments[i])
				acc.recordAssignment(i, changed, err)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (e *ApplyExecutor) assign(ctx context.Context, as pipeline.OwnerAssignment) (bool, error) {
	account, err := e.accounts.FindByName(ctx, as.AccountName)
	if errors.Is(err, shared.ErrNotFound) {
		return false, fmt.Errorf("%s: %s: account not found", ErrKindAccount, as.AccountName)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %s: %w", ErrKindAccount, as.AccountName, err)
	}
	if !account.AssignOwners(as) {
		return false, nil
	}
	if err := e.accounts.SaveWithLock(ctx, account); err != nil {
		return false, fmt.Errorf("%s: %s: %w", ErrKindAccount, as.AccountName, err)
	}
	e.publish(ctx, account)
	return true, nil
}

// publish sends pending events. Failures are logged; the write already happened.
func (e *ApplyExecutor) publish(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	if e.events == nil || len(events) == 0 {
		return
	}
	if err := e.events.Publish(ctx, events...); err != nil {
		logger.L(ctx, e.logger).Warn("failed to publish pipeline events",
			zap.String("aggregate_id", agg.GetID().String()),
			zap.Error(err),
		)
	}
}

// ChangeError is a per-entry failure.
type ChangeError struct {
	Kind    string
	EntryID string
	Deal    string
	Account string
	Err     error
}

func (e *ChangeError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", e.Kind, e.Deal, e.Account, e.Err)
}

func (e *ChangeError) Unwrap() error {
	return e.Err
}

func entryErr(kind string, entry pipeline.ChangeEntry, err error) error {
	return &ChangeError{
		Kind:    kind,
		EntryID: entry.ID,
		Deal:    entry.DealName,
		Account: entry.AccountName,
		Err:     err,
	}
}

func staleErr(entry pipeline.ChangeEntry, reason string) error {
	return entryErr(ErrKindStale, entry, errors.New(reason))
}
