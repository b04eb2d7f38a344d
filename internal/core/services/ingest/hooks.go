package ingest

import (
	"context"
	"sort"
	"strings"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
)

// Stage tells whether a hook runs before or after the mutation
type Stage int

const (
	StageBefore Stage = iota
	StageAfter
)

// Event is delivered to hooks for every row that reaches the hook stages
type Event struct {
	Stage    Stage
	Action   Action
	Sheet    string
	Line     int
	UniqueID string
	// Data is the mapped row keyed by target path
	Data map[string]string
	// Entity is the working entity (before) or the re-read entity (after)
	Entity domain.Document
}

// Hooks lets callers intervene around create, update and delete
type Hooks interface {
	// Before returns the entity to persist, usually Event.Entity filled from Event.Data
	Before(ctx context.Context, event Event) (domain.Document, error)
	After(ctx context.Context, event Event) error
}

// RowErrors rejects a row from a hook with one or more messages
type RowErrors []string

func (e RowErrors) Error() string {
	return strings.Join(e, "; ")
}

// Derivation computes a field that is not in the sheet from one that is
type Derivation struct {
	// From is the mapped field that triggers the derivation
	From string
	// To is the derived field path
	To      string
	Compute func(data map[string]string) string
}

// DefaultHooks fills the entity from the mapped row. Dot paths create
// nested objects and indexed collection elements.
type DefaultHooks struct {
	Derived []Derivation
}

// Before fills the entity
func (h DefaultHooks) Before(ctx context.Context, event Event) (domain.Document, error) {
	entity := event.Entity
	if entity == nil {
		entity = domain.Document{}
	}

	keys := make([]string, 0, len(event.Data))
	for key := range event.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, d := range h.Derived {
			if d.From == key && d.Compute != nil {
				entity.Set(d.To, d.Compute(event.Data))
			}
		}
		entity.Set(key, event.Data[key])
	}

	return entity, nil
}

// After does nothing
func (h DefaultHooks) After(ctx context.Context, event Event) error {
	return nil
}

// BeforeFunc handles one before kind
type BeforeFunc func(ctx context.Context, event Event) (domain.Document, error)

// AfterFunc handles one after kind
type AfterFunc func(ctx context.Context, event Event) error

// HookFuncs adapts plain functions to Hooks, one per notification kind.
// Kinds without a function are handled by Fallback, or DefaultHooks when
// Fallback is nil.
type HookFuncs struct {
	BeforeCreate BeforeFunc
	BeforeUpdate BeforeFunc
	BeforeDelete BeforeFunc
	AfterCreate  AfterFunc
	AfterUpdate  AfterFunc
	AfterDelete  AfterFunc

	Fallback Hooks
}

func (h HookFuncs) fallback() Hooks {
	if h.Fallback != nil {
		return h.Fallback
	}
	return DefaultHooks{}
}

// Before dispatches to the before function of the event's action
func (h HookFuncs) Before(ctx context.Context, event Event) (domain.Document, error) {
	var fn BeforeFunc
	switch event.Action {
	case ActionCreate:
		fn = h.BeforeCreate
	case ActionUpdate:
		fn = h.BeforeUpdate
	case ActionDelete:
		fn = h.BeforeDelete
	}
	if fn == nil {
		return h.fallback().Before(ctx, event)
	}
	return fn(ctx, event)
}

// After dispatches to the after function of the event's action
func (h HookFuncs) After(ctx context.Context, event Event) error {
	var fn AfterFunc
	switch event.Action {
	case ActionCreate:
		fn = h.AfterCreate
	case ActionUpdate:
		fn = h.AfterUpdate
	case ActionDelete:
		fn = h.AfterDelete
	}
	if fn == nil {
		return h.fallback().After(ctx, event)
	}
	return fn(ctx, event)
}
