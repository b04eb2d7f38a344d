package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
	"github.com/alejandroruanova/rowloader/internal/core/services/fieldmap"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/parsers"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
	"github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

// SheetLevelTag replaces the unique identifier in messages of rows whose
// identifier is unknown
const SheetLevelTag = "Sheet Level Error"

// State is a step of the row state machine
type State int

const (
	StateMatchHeader State = iota
	StateValidate
	StateBeforeHook
	StateMutate
	StateAfterHook
	StateDone
	StateError
)

var stateNames = []string{"match_header", "validate", "before_hook", "mutate", "after_hook", "done", "error"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RowContext carries one row through the state machine. It is created per
// row and passed to every transition; nothing about the current row lives
// on the processor.
type RowContext struct {
	Line  int
	Cells []string
	// Data is the row keyed by header column
	Data map[string]string
	// Mapped is Data after field mapping
	Mapped fieldmap.Mapped
	// Snapshot is the persisted entity as read before any hook ran (nil on create
	// when nothing exists yet)
	Snapshot domain.Document
	// Entity is the working entity handed to the store
	Entity   domain.Document
	UniqueID string
	Deltas   []domain.Delta
	State    State
}

type transition func(ctx context.Context, rc *RowContext) State

type counts struct {
	processed int
	created   int
	updated   int
	deleted   int
}

// rowProcessor drives rows of one run through the state machine
type rowProcessor struct {
	sheet     *Sheet
	action    Action
	header    []string
	store     EntityStore
	hooks     Hooks
	validator Validator
	agg       *Aggregator
	counts    counts
	logger    *slog.Logger

	transitions map[State]transition
}

func newRowProcessor(sheet *Sheet, action Action, header []string, store EntityStore, hooks Hooks, validator Validator, agg *Aggregator, log *slog.Logger) *rowProcessor {
	if hooks == nil {
		hooks = DefaultHooks{}
	}
	if log == nil {
		log = slog.Default()
	}

	p := &rowProcessor{
		sheet:     sheet,
		action:    action,
		header:    header,
		store:     store,
		hooks:     hooks,
		validator: validator,
		agg:       agg,
		logger:    log,
	}
	p.transitions = map[State]transition{
		StateMatchHeader: p.matchHeader,
		StateValidate:    p.validate,
		StateBeforeHook:  p.beforeHook,
		StateMutate:      p.mutate,
		StateAfterHook:   p.afterHook,
	}
	return p
}

// Process runs one row to Done or Error and flushes its errors
func (p *rowProcessor) Process(ctx context.Context, row parsers.Row) *RowContext {
	rc := &RowContext{
		Line:  row.Line,
		Cells: row.Cells,
		State: StateMatchHeader,
	}

	for rc.State != StateDone && rc.State != StateError {
		rc.State = p.transitions[rc.State](ctx, rc)
	}

	if rc.State == StateDone {
		p.counts.processed++
	} else {
		p.logger.Debug("row rejected",
			slog.Int("line", rc.Line),
			slog.String("unique_id", rc.UniqueID))
	}

	p.agg.Flush()
	return rc
}

// addError tags a message with the row's unique identifier
func (p *rowProcessor) addError(rc *RowContext, message string) {
	tag := rc.UniqueID
	if tag == "" {
		tag = SheetLevelTag
	}
	p.agg.AddError(fmt.Sprintf("{%s} -> %s", tag, message))
}

func (p *rowProcessor) addErr(rc *RowContext, err error) {
	var rowErrs RowErrors
	if errors.As(err, &rowErrs) {
		for _, message := range rowErrs {
			p.addError(rc, message)
		}
		return
	}
	if appErr, ok := apperrors.GetAppError(err); ok {
		p.addError(rc, appErr.Message)
		return
	}
	p.addError(rc, err.Error())
}

func (p *rowProcessor) matchHeader(ctx context.Context, rc *RowContext) State {
	if len(rc.Cells) != len(p.header) {
		p.agg.AddError(fmt.Sprintf("There is error on line Number %d", rc.Line))
		return StateError
	}

	rc.Data = make(map[string]string, len(p.header))
	for i, column := range p.header {
		rc.Data[column] = rc.Cells[i]
	}
	rc.UniqueID = rc.Data[p.sheet.UniqueID]

	return StateValidate
}

func (p *rowProcessor) validate(ctx context.Context, rc *RowContext) State {
	method := p.action.ValidationMethod()
	if rules := p.sheet.Validation[method]; p.validator != nil && len(rules) > 0 {
		messages, err := p.validator.Validate(ctx, method, rc.Data, rules)
		if err != nil {
			p.addErr(rc, err)
		}
		for _, message := range messages {
			p.addError(rc, message)
		}
	}

	if rc.UniqueID != "" {
		existing, err := p.store.FindByUnique(ctx, p.sheet.UniqueField, rc.UniqueID)
		if err != nil {
			p.logger.Error("failed to look up entity",
				slog.String("unique_id", rc.UniqueID),
				logger.Err(err))
			p.addErr(rc, err)
			return StateError
		}
		rc.Snapshot = existing
	}

	var lookup fieldmap.Lookup
	if rc.Snapshot != nil {
		lookup = rc.Snapshot
	}
	mapped, err := p.sheet.Fields.Apply(rc.Data, lookup)
	if err != nil {
		p.addErr(rc, err)
		return StateError
	}
	rc.Mapped = mapped

	if p.agg.HasRowErrors() {
		return StateError
	}
	return StateBeforeHook
}

func (p *rowProcessor) beforeHook(ctx context.Context, rc *RowContext) State {
	var entity domain.Document
	switch p.action {
	case ActionCreate:
		created, err := p.store.New(ctx)
		if err != nil {
			p.addErr(rc, err)
			return StateError
		}
		entity = created
	default:
		if rc.Snapshot == nil {
			p.addError(rc, fmt.Sprintf("No record found with %s %s", p.sheet.UniqueID, rc.UniqueID))
			return StateError
		}
		entity = rc.Snapshot.Clone()
	}

	hooked, err := p.hooks.Before(ctx, p.event(StageBefore, rc, entity))
	if err != nil {
		p.addErr(rc, err)
	}
	if p.agg.HasRowErrors() {
		return StateError
	}
	if hooked == nil {
		hooked = entity
	}
	rc.Entity = hooked

	return StateMutate
}

func (p *rowProcessor) mutate(ctx context.Context, rc *RowContext) State {
	if p.action == ActionUpdate {
		rc.Deltas = p.computeDeltas(rc)
	}

	method := p.sheet.Methods[p.action]
	if err := p.store.Apply(ctx, method, p.sheet.UniqueField, rc.UniqueID, rc.Entity); err != nil {
		p.logger.Warn("persistence failed",
			slog.String("method", method.String()),
			slog.String("unique_id", rc.UniqueID),
			logger.Err(err))
		p.addErr(rc, err)
		return StateError
	}

	return StateAfterHook
}

func (p *rowProcessor) afterHook(ctx context.Context, rc *RowContext) State {
	switch p.action {
	case ActionCreate:
		p.counts.created++
		p.agg.AddAffected(rc.UniqueID)
	case ActionDelete:
		p.counts.deleted++
		p.agg.AddAffected(rc.UniqueID)
	case ActionUpdate:
		p.counts.updated++
		for _, delta := range rc.Deltas {
			p.agg.AddDelta(delta)
		}
		if len(rc.Deltas) > 0 {
			p.agg.AddAffected(rc.UniqueID)
		}
	}

	fresh, err := p.store.Fresh(ctx, p.sheet.UniqueField, rc.UniqueID)
	if err != nil {
		p.addErr(rc, err)
		return StateDone
	}
	if err := p.hooks.After(ctx, p.event(StageAfter, rc, fresh)); err != nil {
		p.addErr(rc, err)
	}

	return StateDone
}

// computeDeltas compares every mapped value with the value stored under the
// same path before the row was applied
func (p *rowProcessor) computeDeltas(rc *RowContext) []domain.Delta {
	keys := make([]string, 0, len(rc.Mapped.Data))
	for key := range rc.Mapped.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var deltas []domain.Delta
	for _, key := range keys {
		to := rc.Mapped.Data[key]
		var from string
		if rc.Snapshot != nil {
			if value, ok := rc.Snapshot.Get(key); ok {
				from = fieldmap.Stringify(value)
			}
		}
		if looselyEqual(from, to) {
			continue
		}
		deltas = append(deltas, domain.Delta{
			FieldName: key,
			From:      from,
			To:        to,
			UniqueID:  rc.UniqueID,
		})
	}
	return deltas
}

func (p *rowProcessor) event(stage Stage, rc *RowContext, entity domain.Document) Event {
	return Event{
		Stage:    stage,
		Action:   p.action,
		Sheet:    p.sheet.Name,
		Line:     rc.Line,
		UniqueID: rc.UniqueID,
		Data:     rc.Mapped.Data,
		Entity:   entity,
	}
}

// looselyEqual compares numerically when both sides are numbers
func looselyEqual(a, b string) bool {
	if a == b {
		return true
	}
	x, errA := strconv.ParseFloat(a, 64)
	y, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && x == y
}
