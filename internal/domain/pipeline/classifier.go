package pipeline

// Classifier turns matching pairs into change entries.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify emits one entry per pair, sorted for display.
//
// A matched deal is modified when any field the candidate has an opinion on
// differs from the stored value. Fields the candidate leaves absent are
// carried over from the stored deal and never diffed.
func (c *Classifier) Classify(pairs []Pair) []ChangeEntry {
	entries := make([]ChangeEntry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, c.classifyPair(p))
	}
	SortEntries(entries)
	return entries
}

// Unchanged reports every stored deal as unchanged. It is the view of the
// store when no candidate batch was supplied.
func (c *Classifier) Unchanged(existing []*Deal) []ChangeEntry {
	ordered := sortedDeals(existing)
	entries := make([]ChangeEntry, 0, len(ordered))
	for _, d := range ordered {
		current := d.Snapshot()
		proposed := d.Snapshot()
		entries = append(entries, entryFor(d.ID.String(), ChangeUnchanged, &current, &proposed, nil))
	}
	return entries
}

func (c *Classifier) classifyPair(p Pair) ChangeEntry {
	switch {
	case p.Existing == nil:
		proposed := p.Candidate.Proposal()
		return entryFor(NewEntryID(p.Candidate.MatchKey()), ChangeNew, nil, &proposed, nil)

	case p.Candidate == nil:
		current := p.Existing.Snapshot()
		return entryFor(p.Existing.ID.String(), ChangeRemoved, &current, nil, nil)

	default:
		current := p.Existing.Snapshot()
		proposed := p.Candidate.Overlay(current)
		diffs := DiffSnapshots(current, proposed)
		kind := ChangeUnchanged
		if len(diffs) > 0 {
			kind = ChangeModified
		}
		return entryFor(p.Existing.ID.String(), kind, &current, &proposed, diffs)
	}
}

func entryFor(id string, kind ChangeType, current, proposed *DealSnapshot, diffs []string) ChangeEntry {
	named := proposed
	if named == nil {
		named = current
	}
	return ChangeEntry{
		ID:          id,
		DealName:    named.DealName,
		AccountName: named.AccountName,
		ChangeType:  kind,
		Current:     current,
		Proposed:    proposed,
		FieldDiffs:  diffs,
	}
}
