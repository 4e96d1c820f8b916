package cache

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scout/backend/internal/domain/pipeline"
)

func samplePreview() *pipeline.Preview {
	value := decimal.RequireFromString("2500.75")
	closeDate := pipeline.NewDate(2026, 4, 1)
	proposed := pipeline.DealSnapshot{
		DealName:    "Acme: Expansion",
		AccountName: "Acme",
		Stage:       pipeline.StageClosedWon,
		Value:       &value,
		CloseDate:   &closeDate,
	}
	entries := []pipeline.ChangeEntry{{
		ID:          "new-1",
		DealName:    proposed.DealName,
		AccountName: proposed.AccountName,
		ChangeType:  pipeline.ChangeNew,
		Proposed:    &proposed,
	}}
	return &pipeline.Preview{
		ID:      uuid.New(),
		Summary: pipeline.Summarize(entries),
		Entries: entries,
		Assignments: []pipeline.OwnerAssignment{{
			AccountName:    "Acme",
			SalesManager:   pipeline.Some("Riley"),
			AccountManager: pipeline.Null[string](),
		}},
		GeneratedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}
