package pipelineapp

import (
	"fmt"
	"time"
)

// RemovalMode decides what applying a removed entry does to the stored deal.
type RemovalMode string

const (
	// RemovalDelete deletes the deal.
	RemovalDelete RemovalMode = "delete"
	// RemovalCloseLost keeps the deal and moves it to Closed_Lost.
	RemovalCloseLost RemovalMode = "close_lost"
)

// ParseRemovalMode validates a configured removal mode.
func ParseRemovalMode(s string) (RemovalMode, error) {
	switch RemovalMode(s) {
	case RemovalDelete, RemovalCloseLost:
		return RemovalMode(s), nil
	case "":
		return RemovalDelete, nil
	}
	return "", fmt.Errorf("unknown removal mode %q", s)
}

// ExecutorConfig tunes the apply executor.
type ExecutorConfig struct {
	Timeout         time.Duration
	Concurrency     int
	MaxErrorDetails int
	RemovalMode     RemovalMode
}

// DefaultExecutorConfig returns the defaults used when a field is unset.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Timeout:         2 * time.Minute,
		Concurrency:     4,
		MaxErrorDetails: 10,
		RemovalMode:     RemovalDelete,
	}
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	d := DefaultExecutorConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxErrorDetails <= 0 {
		c.MaxErrorDetails = d.MaxErrorDetails
	}
	if c.RemovalMode == "" {
		c.RemovalMode = d.RemovalMode
	}
	return c
}

// ApplyOptions narrows what an apply may do regardless of the selection.
type ApplyOptions struct {
	SkipNew     bool `json:"skip_new"`
	SkipRemoved bool `json:"skip_removed"`
}

// Selection is the set of change ids the operator approved.
type Selection map[string]struct{}

// NewSelection builds a selection from ids.
func NewSelection(ids ...string) Selection {
	s := make(Selection, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Selection) Has(id string) bool {
	_, ok := s[id]
	return ok
}
