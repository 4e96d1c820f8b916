package pipelineapp

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Error kinds prefixed to per-entry error strings.
const (
	ErrKindStale    = "stale_entry"
	ErrKindCreate   = "create_failed"
	ErrKindUpdate   = "update_failed"
	ErrKindRemove   = "remove_failed"
	ErrKindAccount  = "account_failed"
	ErrKindTimedOut = "timed_out"
)

// EntryStatus is the outcome of one selected change.
type EntryStatus string

const (
	StatusCreated EntryStatus = "created"
	StatusUpdated EntryStatus = "updated"
	StatusRemoved EntryStatus = "removed"
	StatusSkipped EntryStatus = "skipped"
	StatusFailed  EntryStatus = "failed"
)

// EntryOutcome reports what happened to one change entry.
type EntryOutcome struct {
	ID       string      `json:"id"`
	DealName string      `json:"deal_name"`
	Status   EntryStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// ApplyResult summarises an apply. Counts only include completed work;
// entries that never started because of the timeout are only counted in
// NotStarted.
type ApplyResult struct {
	Created          int            `json:"created"`
	Updated          int            `json:"updated"`
	Removed          int            `json:"removed"`
	AccountsUpdated  int            `json:"accounts_updated"`
	Skipped          int            `json:"skipped"`
	NotStarted       int            `json:"not_started,omitempty"`
	Errors           []string       `json:"errors"`
	AssignmentErrors []string       `json:"assignment_errors"`
	TotalErrors      int            `json:"total_errors"`
	TimedOut         bool           `json:"timed_out,omitempty"`
	Success          bool           `json:"success"`
	Message          string         `json:"message"`
	Outcomes         []EntryOutcome `json:"outcomes,omitempty"`
}

// Mutations is the number of successful store writes.
func (r *ApplyResult) Mutations() int {
	return r.Created + r.Updated + r.Removed + r.AccountsUpdated
}

type indexedError struct {
	index int
	msg   string
}

type indexedOutcome struct {
	index   int
	outcome EntryOutcome
}

// accumulator collects results from concurrent workers. Every method locks,
// so one entry's counts and outcome are recorded together.
type accumulator struct {
	mu sync.Mutex

	created, updated, removed, skipped int
	accountsUpdated                    int
	notStarted                         int
	timedOut                           bool

	dealErrors       []indexedError
	assignmentErrors []indexedError
	outcomes         []indexedOutcome
}

func (a *accumulator) recordEntry(index int, outcome EntryOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch outcome.Status {
	case StatusCreated:
		a.created++
	case StatusUpdated:
		a.updated++
	case StatusRemoved:
		a.removed++
	case StatusSkipped:
		a.skipped++
	case StatusFailed:
		a.dealErrors = append(a.dealErrors, indexedError{index: index, msg: outcome.Error})
	}
	a.outcomes = append(a.outcomes, indexedOutcome{index: index, outcome: outcome})
}

func (a *accumulator) recordAssignment(index int, changed bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.assignmentErrors = append(a.assignmentErrors, indexedError{index: index, msg: err.Error()})
		return
	}
	if changed {
		a.accountsUpdated++
	}
}

func (a *accumulator) recordNotStarted(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timedOut = true
	a.notStarted += n
}

func (a *accumulator) result(maxDetails int) *ApplyResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &ApplyResult{
		Created:         a.created,
		Updated:         a.updated,
		Removed:         a.removed,
		AccountsUpdated: a.accountsUpdated,
		Skipped:         a.skipped,
		NotStarted:      a.notStarted,
		TimedOut:        a.timedOut,
	}

	dealErrs := sortedMessages(a.dealErrors)
	if a.timedOut {
		dealErrs = append(dealErrs, fmt.Sprintf("%s: %d change(s) not started before the deadline", ErrKindTimedOut, a.notStarted))
	}
	assignErrs := sortedMessages(a.assignmentErrors)

	r.TotalErrors = len(dealErrs) + len(assignErrs)
	r.Errors = capMessages(dealErrs, maxDetails)
	r.AssignmentErrors = capMessages(assignErrs, maxDetails)
	r.Success = r.Mutations() > 0 || r.TotalErrors == 0
	r.Message = summaryMessage(r)

	sort.Slice(a.outcomes, func(i, j int) bool { return a.outcomes[i].index < a.outcomes[j].index })
	r.Outcomes = make([]EntryOutcome, len(a.outcomes))
	for i, o := range a.outcomes {
		r.Outcomes[i] = o.outcome
	}
	return r
}

func sortedMessages(errs []indexedError) []string {
	sorted := make([]indexedError, len(errs))
	copy(sorted, errs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].index < sorted[j].index })
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = e.msg
	}
	return out
}

// capMessages keeps the first max messages and replaces the rest with a
// single "+K more" line. max <= 0 keeps everything.
func capMessages(msgs []string, max int) []string {
	if msgs == nil {
		return []string{}
	}
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	out := make([]string, 0, max+1)
	out = append(out, msgs[:max]...)
	return append(out, fmt.Sprintf("+%d more", len(msgs)-max))
}

func summaryMessage(r *ApplyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Created %d, updated %d, removed %d deals.", r.Created, r.Updated, r.Removed)
	if r.AccountsUpdated > 0 {
		fmt.Fprintf(&b, " Updated %d account assignments.", r.AccountsUpdated)
	}
	if r.TotalErrors > 0 {
		fmt.Fprintf(&b, " (%d errors)", r.TotalErrors)
	}
	return b.String()
}
