package pipeline

import (
	"fmt"
	"strings"
)

// Stage is a position in the sales pipeline. Stages are ordered from first
// contact to a closed outcome.
type Stage string

const (
	StageDiscovery     Stage = "Discovery"
	StageQualification Stage = "Qualification"
	StageProposal      Stage = "Proposal"
	StageNegotiation   Stage = "Negotiation"
	StageClosedWon     Stage = "Closed_Won"
	StageClosedLost    Stage = "Closed_Lost"
)

var stageOrder = map[Stage]int{
	StageDiscovery:     1,
	StageQualification: 2,
	StageProposal:      3,
	StageNegotiation:   4,
	StageClosedWon:     5,
	StageClosedLost:    5,
}

// AllStages returns the stages in pipeline order.
func AllStages() []Stage {
	return []Stage{
		StageDiscovery,
		StageQualification,
		StageProposal,
		StageNegotiation,
		StageClosedWon,
		StageClosedLost,
	}
}

func (s Stage) IsValid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Order returns the 1-based position of the stage, 0 for unknown stages.
// Both closed stages share the last position.
func (s Stage) Order() int {
	return stageOrder[s]
}

func (s Stage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

func (s Stage) String() string {
	return string(s)
}

// ParseStage accepts a canonical stage name, case-insensitively.
func ParseStage(value string) (Stage, error) {
	v := strings.TrimSpace(value)
	for _, s := range AllStages() {
		if strings.EqualFold(string(s), v) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", value)
}

// DealType categorizes how a deal relates to the account's existing business.
type DealType string

const (
	DealTypeNewBusiness DealType = "new_business"
	DealTypeRenewal     DealType = "renewal"
	DealTypeUpsell      DealType = "upsell"
	DealTypeRecurring   DealType = "recurring"
)

func (t DealType) IsValid() bool {
	switch t {
	case DealTypeNewBusiness, DealTypeRenewal, DealTypeUpsell, DealTypeRecurring:
		return true
	}
	return false
}

func (t DealType) String() string {
	return string(t)
}
