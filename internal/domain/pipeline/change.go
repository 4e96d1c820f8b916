package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies one compared deal.
type ChangeType string

const (
	ChangeNew       ChangeType = "new"
	ChangeModified  ChangeType = "modified"
	ChangeUnchanged ChangeType = "unchanged"
	ChangeRemoved   ChangeType = "removed"
)

// display order of a preview
var changeRank = map[ChangeType]int{
	ChangeNew:       0,
	ChangeModified:  1,
	ChangeRemoved:   2,
	ChangeUnchanged: 3,
}

func (t ChangeType) IsValid() bool {
	_, ok := changeRank[t]
	return ok
}

// newEntryNamespace seeds the ids of entries for deals that do not exist yet,
// so the same candidate gets the same id in every preview.
var newEntryNamespace = uuid.MustParse("6f1c2f0e-8a53-4b8e-9d7c-2f4f0a6b1c11")

// NewEntryID returns the change id for a deal that does not exist yet.
func NewEntryID(matchKey string) string {
	return "new-" + uuid.NewSHA1(newEntryNamespace, []byte(matchKey)).String()
}

// ChangeEntry is the classified comparison of one logical deal.
type ChangeEntry struct {
	ID          string        `json:"id"`
	DealName    string        `json:"deal_name"`
	AccountName string        `json:"account_name"`
	ChangeType  ChangeType    `json:"change_type"`
	Current     *DealSnapshot `json:"current,omitempty"`
	Proposed    *DealSnapshot `json:"proposed,omitempty"`
	FieldDiffs  []string      `json:"field_diffs,omitempty"`
}

// Validate checks that the entry has the snapshots its type requires.
func (e ChangeEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("change entry has no id")
	}
	hasCurrent, hasProposed := e.Current != nil, e.Proposed != nil
	var ok bool
	switch e.ChangeType {
	case ChangeNew:
		ok = !hasCurrent && hasProposed
	case ChangeRemoved:
		ok = hasCurrent && !hasProposed
	case ChangeModified, ChangeUnchanged:
		ok = hasCurrent && hasProposed
	default:
		return fmt.Errorf("change %s: unknown change type %q", e.ID, e.ChangeType)
	}
	if !ok {
		return fmt.Errorf("change %s: snapshots do not match change type %s", e.ID, e.ChangeType)
	}
	if e.ChangeType == ChangeUnchanged && len(e.FieldDiffs) > 0 {
		return fmt.Errorf("change %s: unchanged entry carries field diffs", e.ID)
	}
	return nil
}

// SortEntries orders entries new, modified, removed, unchanged, keeping the
// relative order inside each group.
func SortEntries(entries []ChangeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return changeRank[entries[i].ChangeType] < changeRank[entries[j].ChangeType]
	})
}

// Summary counts entries per change type.
type Summary struct {
	New       int `json:"new"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Total     int `json:"total"`
}

// Summarize counts the entries.
func Summarize(entries []ChangeEntry) Summary {
	var s Summary
	for _, e := range entries {
		switch e.ChangeType {
		case ChangeNew:
			s.New++
		case ChangeModified:
			s.Modified++
		case ChangeUnchanged:
			s.Unchanged++
		case ChangeRemoved:
			s.Removed++
		}
	}
	s.Total = len(entries)
	return s
}

// Preview is the classified comparison of a candidate batch against the
// store at GeneratedAt. Assignments are carried through untouched.
type Preview struct {
	ID          uuid.UUID         `json:"preview_id"`
	Summary     Summary           `json:"summary"`
	Entries     []ChangeEntry     `json:"changes"`
	Assignments []OwnerAssignment `json:"account_assignments,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Entry looks an entry up by id.
func (p *Preview) Entry(id string) (ChangeEntry, bool) {
	for _, e := range p.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return ChangeEntry{}, false
}
