package ingest

import (
	"github.com/alejandroruanova/rowloader/internal/core/domain"
)

// Aggregator accumulates run-level outcomes. Row errors are buffered until
// Flush moves them to the run error list.
type Aggregator struct {
	rowErrors []string
	errors    []string
	affected  []string
	seen      map[string]bool
	deltas    []domain.Delta
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		errors:   []string{},
		affected: []string{},
		seen:     make(map[string]bool),
		deltas:   []domain.Delta{},
	}
}

// AddError buffers a row error; identical messages within one buffer are kept once
func (a *Aggregator) AddError(message string) {
	for _, existing := range a.rowErrors {
		if existing == message {
			return
		}
	}
	a.rowErrors = append(a.rowErrors, message)
}

// HasRowErrors reports whether the current row buffered any error
func (a *Aggregator) HasRowErrors() bool {
	return len(a.rowErrors) > 0
}

// Flush moves buffered row errors to the run error list. Flushing an empty
// buffer is a no-op.
func (a *Aggregator) Flush() {
	if len(a.rowErrors) == 0 {
		return
	}
	a.errors = append(a.errors, a.rowErrors...)
	a.rowErrors = nil
}

// AddAffected records a touched unique identifier once, in first-seen order
func (a *Aggregator) AddAffected(uniqueID string) {
	if a.seen[uniqueID] {
		return
	}
	a.seen[uniqueID] = true
	a.affected = append(a.affected, uniqueID)
}

// AddDelta records a field change. Every change is kept, so a value that is
// changed, reverted and changed again yields three records.
func (a *Aggregator) AddDelta(delta domain.Delta) {
	a.deltas = append(a.deltas, delta)
}

// Errors returns the run error list, flushing the row buffer first
func (a *Aggregator) Errors() []string {
	a.Flush()
	return a.errors
}

// Affected returns the affected identifiers
func (a *Aggregator) Affected() []string {
	return a.affected
}

// Deltas returns the recorded field changes
func (a *Aggregator) Deltas() []domain.Delta {
	return a.deltas
}

// Changed reports whether the run produced any error, affected id or delta
func (a *Aggregator) Changed() bool {
	a.Flush()
	return len(a.errors) > 0 || len(a.affected) > 0 || len(a.deltas) > 0
}
