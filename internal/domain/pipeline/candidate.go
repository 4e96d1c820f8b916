package pipeline

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/scout/backend/internal/domain/shared"
)

// ErrCodeDuplicateCandidate is reported when two candidates share a match key.
const ErrCodeDuplicateCandidate = "ERR_IMPORT_DUPLICATE_IN_FILE"

// CandidateDeal is one deal as proposed by an import. Every attribute is
// optional: an absent field leaves the stored value alone.
type CandidateDeal struct {
	DealName      string                    `json:"deal_name"`
	AccountName   string                    `json:"account_name"`
	Stage         Optional[Stage]           `json:"stage,omitzero"`
	Value         Optional[decimal.Decimal] `json:"value,omitzero"`
	Owner         Optional[string]          `json:"owner,omitzero"`
	Quarter       Optional[string]          `json:"quarter,omitzero"`
	DealType      Optional[DealType]        `json:"deal_type,omitzero"`
	CloseDate     Optional[Date]            `json:"close_date,omitzero"`
	Vertical      Optional[string]          `json:"vertical,omitzero"`
	Probability   Optional[int]             `json:"probability,omitzero"`
	WeightedValue Optional[decimal.Decimal] `json:"weighted_value,omitzero"`
	// SourceRow is the spreadsheet row the candidate came from, if any.
	SourceRow int `json:"source_row,omitempty"`
}

// MatchKey is the normalized identity pair of the candidate.
func (c CandidateDeal) MatchKey() string {
	return MatchKey(c.DealName, c.AccountName)
}

// Overlay returns base with every field the candidate has an opinion on
// replaced by the candidate's value.
func (c CandidateDeal) Overlay(base DealSnapshot) DealSnapshot {
	out := base.Clone()
	for _, f := range trackedFields {
		if f.present(&c) {
			f.merge(&out, &c)
		}
	}
	return out
}

// Proposal is the snapshot a new deal would be created from.
func (c CandidateDeal) Proposal() DealSnapshot {
	s := c.Overlay(DealSnapshot{
		DealName:    strings.TrimSpace(c.DealName),
		AccountName: strings.TrimSpace(c.AccountName),
	})
	if s.Stage == "" {
		s.Stage = StageDiscovery
	}
	return s
}

func (c CandidateDeal) validate() error {
	if strings.TrimSpace(c.DealName) == "" {
		return fmt.Errorf("deal name is required")
	}
	if strings.TrimSpace(c.AccountName) == "" {
		return fmt.Errorf("account name is required")
	}
	if c.Stage.IsNull() {
		return fmt.Errorf("stage cannot be cleared")
	}
	if v, ok := c.Stage.Get(); ok && !v.IsValid() {
		return fmt.Errorf("invalid stage %q", v)
	}
	if v, ok := c.DealType.Get(); ok && !v.IsValid() {
		return fmt.Errorf("invalid deal type %q", v)
	}
	if v, ok := c.Probability.Get(); ok && (v < 0 || v > 100) {
		return fmt.Errorf("probability %d out of range", v)
	}
	return nil
}

// ValidateCandidates checks a batch before any comparison work. Every problem
// is reported, including every later occurrence of a duplicated match key.
func ValidateCandidates(candidates []CandidateDeal) error {
	var problems []string
	seen := make(map[string]int, len(candidates))
	code := shared.ErrInvalidInput.Code

	for i, c := range candidates {
		label := candidateLabel(i, c)
		if err := c.validate(); err != nil {
			problems = append(problems, label+": "+err.Error())
			continue
		}
		key := c.MatchKey()
		if first, dup := seen[key]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate of %s", label, candidateLabel(first, candidates[first])))
			code = ErrCodeDuplicateCandidate
			continue
		}
		seen[key] = i
	}

	if len(problems) == 0 {
		return nil
	}
	return shared.NewDomainError(code, "invalid candidate batch: "+strings.Join(problems, "; "))
}

func candidateLabel(i int, c CandidateDeal) string {
	if c.SourceRow > 0 {
		return fmt.Sprintf("row %d (%q)", c.SourceRow, c.DealName)
	}
	return fmt.Sprintf("deal %d (%q)", i+1, c.DealName)
}
