package pipeline

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/scout/backend/internal/domain/shared"
)

// AggregateTypeDeal is the aggregate type name used in deal events.
const AggregateTypeDeal = "Deal"

// DealSnapshot is the comparable state of a deal: its identity pair plus
// every tracked attribute. Nil pointers are null values.
type DealSnapshot struct {
	DealName      string           `json:"deal_name"`
	AccountName   string           `json:"account_name"`
	Stage         Stage            `json:"stage"`
	Value         *decimal.Decimal `json:"value"`
	Owner         *string          `json:"owner"`
	Quarter       *string          `json:"quarter"`
	DealType      *DealType        `json:"deal_type"`
	CloseDate     *Date            `json:"close_date"`
	Vertical      *string          `json:"vertical"`
	Probability   *int             `json:"probability"`
	WeightedValue *decimal.Decimal `json:"weighted_value"`
}

// MatchKey is the normalized identity pair of the snapshot.
func (s DealSnapshot) MatchKey() string {
	return MatchKey(s.DealName, s.AccountName)
}

// Clone returns a deep copy so callers never share pointer fields.
func (s DealSnapshot) Clone() DealSnapshot {
	out := s
	out.Value = clonePtr(s.Value)
	out.Owner = clonePtr(s.Owner)
	out.Quarter = clonePtr(s.Quarter)
	out.DealType = clonePtr(s.DealType)
	out.CloseDate = clonePtr(s.CloseDate)
	out.Vertical = clonePtr(s.Vertical)
	out.Probability = clonePtr(s.Probability)
	out.WeightedValue = clonePtr(s.WeightedValue)
	return out
}

// SameTrackedFields reports whether every tracked attribute is equal.
// Names are not compared.
func (s DealSnapshot) SameTrackedFields(other DealSnapshot) bool {
	for _, f := range trackedFields {
		if !f.equal(&s, &other) {
			return false
		}
	}
	return true
}

// Deal is a sales opportunity on an account.
type Deal struct {
	shared.BaseAggregateRoot
	DealSnapshot
	AccountID      uuid.UUID
	ConfirmedValue *decimal.Decimal
}

// NewDeal creates a deal from a proposed snapshot. A missing stage starts the
// deal in Discovery and a missing type makes it new business.
func NewDeal(accountID uuid.UUID, s DealSnapshot) (*Deal, error) {
	s = WithCreationDefaults(s)
	if err := validateSnapshot(s); err != nil {
		return nil, err
	}
	if accountID == uuid.Nil {
		return nil, shared.ErrInvalidInput.WithMessage("deal requires an account")
	}

	d := &Deal{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		DealSnapshot:      s,
		AccountID:         accountID,
	}
	d.confirmIfWon()
	d.AddDomainEvent(NewDealCreatedEvent(d))
	return d, nil
}

// WithCreationDefaults returns s as NewDeal would store it: names trimmed,
// stage Discovery and type new_business when unset.
func WithCreationDefaults(s DealSnapshot) DealSnapshot {
	s = s.Clone()
	s.DealName = strings.TrimSpace(s.DealName)
	s.AccountName = strings.TrimSpace(s.AccountName)
	if s.Stage == "" {
		s.Stage = StageDiscovery
	}
	if s.DealType == nil {
		t := DealTypeNewBusiness
		s.DealType = &t
	}
	return s
}

// Snapshot returns a copy of the deal's comparable state.
func (d *Deal) Snapshot() DealSnapshot {
	return d.DealSnapshot.Clone()
}

// ApplyChanges replaces the tracked attributes with those of proposed and
// bumps the version. The identity pair is kept.
func (d *Deal) ApplyChanges(proposed DealSnapshot) error {
	next := proposed.Clone()
	next.DealName = d.DealName
	next.AccountName = d.AccountName
	if err := validateSnapshot(next); err != nil {
		return err
	}
	diffs := DiffSnapshots(d.DealSnapshot, next)
	if len(diffs) == 0 {
		return nil
	}

	d.DealSnapshot = next
	d.confirmIfWon()
	d.Touch()
	d.IncrementVersion()
	d.AddDomainEvent(NewDealUpdatedEvent(d, diffs))
	return nil
}

// CloseLost marks the deal lost instead of deleting it.
func (d *Deal) CloseLost() {
	if d.Stage == StageClosedLost {
		return
	}
	from := d.Stage
	d.Stage = StageClosedLost
	d.Touch()
	d.IncrementVersion()
	d.AddDomainEvent(NewDealUpdatedEvent(d, []string{FormatDiff("stage", from.String(), d.Stage.String())}))
}

// MarkRemoved records the removal event. The repository performs the delete.
func (d *Deal) MarkRemoved() {
	d.AddDomainEvent(NewDealRemovedEvent(d))
}

func (d *Deal) confirmIfWon() {
	if d.Stage == StageClosedWon && d.Value != nil {
		v := *d.Value
		d.ConfirmedValue = &v
	}
}

func validateSnapshot(s DealSnapshot) error {
	if s.DealName == "" {
		return shared.ErrInvalidInput.WithMessage("deal name is required")
	}
	if s.AccountName == "" {
		return shared.ErrInvalidInput.WithMessage("account name is required")
	}
	if !s.Stage.IsValid() {
		return shared.ErrInvalidInput.WithMessage("invalid stage: " + string(s.Stage))
	}
	if s.DealType != nil && !s.DealType.IsValid() {
		return shared.ErrInvalidInput.WithMessage("invalid deal type: " + string(*s.DealType))
	}
	if s.Probability != nil && (*s.Probability < 0 || *s.Probability > 100) {
		return shared.ErrInvalidInput.WithMessage("probability must be between 0 and 100")
	}
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
