package pipelineapp

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scout/backend/internal/domain/pipeline"
	"github.com/scout/backend/internal/domain/shared"
)

func newWorkflow(store *memStore, sessions pipeline.PreviewSessionStore, locker ApplyLocker) *Workflow {
	engine := NewReconciliationService(memDeals{store})
	executor := NewApplyExecutor(memDeals{store}, memAccounts{store}, nil, ExecutorConfig{})
	return NewWorkflow(engine, executor, sessions, locker, 0)
}

func TestWorkflow_ApplyStoredPreview(t *testing.T) {
	store := newMemStore()
	seedDeal(t, store, "Acme Expansion", "Acme", pipeline.StageDiscovery, 50000)
	sessions := newMemSessions()
	locker := &countingLocker{}
	wf := newWorkflow(store, sessions, locker)

	p, err := wf.Preview(context.Background(), PreviewCommand{
		Candidates: pipeline.Some([]pipeline.CandidateDeal{
			cand("Acme Expansion", "Acme", pipeline.StageNegotiation, 50000),
			cand("Beta Pilot", "Beta", pipeline.StageDiscovery, 20000),
		}),
		Assignments: []pipeline.OwnerAssignment{{AccountName: "Acme", SalesManager: pipeline.Some("Kim")}},
	})
	require.NoError(t, err)

	stored, err := wf.GetPreview(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)

	beta := entryByName(t, p, "Beta Pilot")
	res, err := wf.Apply(context.Background(), ApplyRequest{PreviewID: &p.ID, SelectedIDs: []string{beta.ID}})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Created)
	assert.Zero(t, res.Updated)
	assert.Equal(t, 1, res.AccountsUpdated, "stored assignments are applied")
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)

	_, err = wf.GetPreview(context.Background(), p.ID)
	assert.True(t, errors.Is(err, shared.ErrPreviewExpired), "applied previews are discarded")
}

func TestWorkflow_ApplyChangesDirectly(t *testing.T) {
	store := newMemStore()
	wf := newWorkflow(store, nil, nil)

	p, err := wf.Preview(context.Background(), PreviewCommand{
		Candidates: pipeline.Some([]pipeline.CandidateDeal{cand("Beta Pilot", "Beta", pipeline.StageDiscovery, 20000)}),
	})
	require.NoError(t, err)

	res, err := wf.Apply(context.Background(), ApplyRequest{Changes: p.Entries})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
}

func TestWorkflow_ApplyRejectsBadRequests(t *testing.T) {
	store := newMemStore()
	sessions := newMemSessions()
	wf := newWorkflow(store, sessions, nil)
	p, err := wf.Preview(context.Background(), PreviewCommand{
		Candidates: pipeline.Some([]pipeline.CandidateDeal{cand("Beta Pilot", "Beta", pipeline.StageDiscovery, 1)}),
	})
	require.NoError(t, err)
	missing := uuid.New()

	tests := []struct {
		name string
		req  ApplyRequest
		want error
	}{
		{"unknown preview", ApplyRequest{PreviewID: &missing, SelectedIDs: []string{}}, shared.ErrPreviewExpired},
		{"selection required", ApplyRequest{PreviewID: &p.ID}, shared.ErrInvalidInput},
		{"unknown ids", ApplyRequest{PreviewID: &p.ID, SelectedIDs: []string{"nope"}}, shared.ErrInvalidInput},
		{"both sources", ApplyRequest{PreviewID: &p.ID, Changes: p.Entries}, shared.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := wf.Apply(context.Background(), tt.req)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assert.Zero(t, store.count())
}

func TestWorkflow_ApplyWhileLocked(t *testing.T) {
	store := newMemStore()
	wf := newWorkflow(store, nil, busyLocker{})

	p, err := wf.Preview(context.Background(), PreviewCommand{
		Candidates: pipeline.Some([]pipeline.CandidateDeal{cand("Beta Pilot", "Beta", pipeline.StageDiscovery, 1)}),
	})
	require.NoError(t, err)

	_, err = wf.Apply(context.Background(), ApplyRequest{Changes: p.Entries})
	assert.True(t, errors.Is(err, shared.ErrApplyInProgress))
	assert.Zero(t, store.count())
}

func TestWorkflow_GetPreviewUnknownID(t *testing.T) {
	store := newMemStore()

	_, err := newWorkflow(store, newMemSessions(), nil).GetPreview(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, shared.ErrPreviewExpired))

	_, err = newWorkflow(store, nil, nil).GetPreview(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, shared.ErrPreviewExpired), "without a session store nothing can be looked up")
}

func TestWorkflow_FractionalAmountsAreUnchangedAfterApply(t *testing.T) {
	store := newMemStore()
	store.roundAmounts = true
	wf := newWorkflow(store, nil, nil)

	noisy := pipeline.CandidateDeal{
		DealName:      "Acme: Expansion",
		AccountName:   "Acme",
		Stage:         pipeline.Some(pipeline.StageDiscovery),
		Value:         pipeline.Some(decimal.RequireFromString("10000.125")),
		WeightedValue: pipeline.Some(decimal.RequireFromString("3300.0000000000005")),
	}
	preview := func() *pipeline.Preview {
		p, err := wf.Preview(context.Background(), PreviewCommand{
			Candidates: pipeline.Some([]pipeline.CandidateDeal{noisy}),
		})
		require.NoError(t, err)
		require.Len(t, p.Entries, 1)
		return p
	}

	first := preview()
	assert.Equal(t, pipeline.ChangeNew, first.Entries[0].ChangeType)
	res, err := wf.Apply(context.Background(), ApplyRequest{Changes: first.Entries})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	stored := store.byName("Acme: Expansion")
	require.NotNil(t, stored)
	assert.Equal(t, "10000.13", stored.Value.String())
	assert.Equal(t, "3300", stored.WeightedValue.String())

	second := preview()
	entry := second.Entries[0]
	assert.Equal(t, pipeline.ChangeUnchanged, entry.ChangeType, "diffs: %v", entry.FieldDiffs)
	assert.Empty(t, entry.FieldDiffs)

	res, err = wf.Apply(context.Background(), ApplyRequest{Changes: second.Entries})
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Zero(t, res.Updated)
}
