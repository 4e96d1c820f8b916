package pipeline

import "sort"

// IdentityStrategy decides whether a candidate and a stored deal are the
// same logical deal.
type IdentityStrategy interface {
	Match(candidate CandidateDeal, existing DealSnapshot) bool
}

// KeyedStrategy is an IdentityStrategy that can be answered by comparing
// keys. The matcher indexes by key instead of scanning when it is available.
type KeyedStrategy interface {
	IdentityStrategy
	CandidateKey(candidate CandidateDeal) string
	ExistingKey(existing DealSnapshot) string
}

// NameAccountStrategy matches on the normalized (deal name, account name)
// pair: case-insensitive, whitespace collapsed, otherwise exact.
type NameAccountStrategy struct{}

func (NameAccountStrategy) Match(candidate CandidateDeal, existing DealSnapshot) bool {
	return candidate.MatchKey() == existing.MatchKey()
}

func (NameAccountStrategy) CandidateKey(candidate CandidateDeal) string {
	return candidate.MatchKey()
}

func (NameAccountStrategy) ExistingKey(existing DealSnapshot) string {
	return existing.MatchKey()
}

// Pair is one matching outcome. Candidate is nil for stored deals that no
// candidate claimed; Existing is nil for candidates without a stored deal.
type Pair struct {
	Candidate *CandidateDeal
	Existing  *Deal
}

// Matcher pairs candidates with stored deals.
type Matcher struct {
	strategy IdentityStrategy
}

// NewMatcher returns a matcher using strategy, or NameAccountStrategy when nil.
func NewMatcher(strategy IdentityStrategy) *Matcher {
	if strategy == nil {
		strategy = NameAccountStrategy{}
	}
	return &Matcher{strategy: strategy}
}

// Match pairs every candidate with at most one stored deal and every stored
// deal with at most one candidate. Pairs come back in candidate order,
// followed by unclaimed stored deals ordered by match key then id, so the
// result does not depend on the order the store returned rows in.
func (m *Matcher) Match(existing []*Deal, candidates []CandidateDeal) []Pair {
	ordered := sortedDeals(existing)
	claimed := make([]bool, len(ordered))
	pairs := make([]Pair, 0, len(candidates)+len(ordered))

	find := m.scanner(ordered)
	if keyed, ok := m.strategy.(KeyedStrategy); ok {
		find = indexer(keyed, ordered)
	}

	for i := range candidates {
		c := &candidates[i]
		idx := find(c, claimed)
		if idx < 0 {
			pairs = append(pairs, Pair{Candidate: c})
			continue
		}
		claimed[idx] = true
		pairs = append(pairs, Pair{Candidate: c, Existing: ordered[idx]})
	}

	for i, d := range ordered {
		if !claimed[i] {
			pairs = append(pairs, Pair{Existing: d})
		}
	}
	return pairs
}

type finder func(c *CandidateDeal, claimed []bool) int

func (m *Matcher) scanner(ordered []*Deal) finder {
	return func(c *CandidateDeal, claimed []bool) int {
		for i, d := range ordered {
			if !claimed[i] && m.strategy.Match(*c, d.DealSnapshot) {
				return i
			}
		}
		return -1
	}
}

func indexer(s KeyedStrategy, ordered []*Deal) finder {
	index := make(map[string][]int, len(ordered))
	for i, d := range ordered {
		k := s.ExistingKey(d.DealSnapshot)
		index[k] = append(index[k], i)
	}
	return func(c *CandidateDeal, claimed []bool) int {
		for _, i := range index[s.CandidateKey(*c)] {
			if !claimed[i] {
				return i
			}
		}
		return -1
	}
}

func sortedDeals(deals []*Deal) []*Deal {
	out := make([]*Deal, len(deals))
	copy(out, deals)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := out[i].MatchKey(), out[j].MatchKey()
		if ki != kj {
			return ki < kj
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}
