package pipeline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func money(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func str(s string) *string { return &s }

func newTestDeal(t *testing.T, name, account string, stage Stage, value *decimal.Decimal) *Deal {
	t.Helper()
	d, err := NewDeal(uuid.New(), DealSnapshot{
		DealName:    name,
		AccountName: account,
		Stage:       stage,
		Value:       value,
	})
	require.NoError(t, err)
	d.ClearDomainEvents()
	return d
}

func candidate(name, account string, stage Stage, value int64) CandidateDeal {
	return CandidateDeal{
		DealName:    name,
		AccountName: account,
		Stage:       Some(stage),
		Value:       Some(decimal.NewFromInt(value)),
	}
}
