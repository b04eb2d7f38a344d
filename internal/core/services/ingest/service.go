package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
	"github.com/alejandroruanova/rowloader/internal/infrastructure/parsers"
	"github.com/alejandroruanova/rowloader/internal/pkg/config"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
	"github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

const (
	// LockKeyPrefix prefixes the per-sheet run lock key
	LockKeyPrefix = "rowloader:lock:"

	defaultLockTTL = time.Hour

	missingUniqueIDMessage = "Loaded file does not contain unique Identifier field"
	emptyHeaderMessage     = "One of the header's elements is empty"
)

// Dependencies are the collaborators a Service runs with. Only Stores is
// required; Normalizers defaults to a factory with default settings.
type Dependencies struct {
	Files       FileReader
	Stores      StoreProvider
	Validator   Validator
	Recorders   RecorderFactory
	Lock        RunLock
	Normalizers *parsers.NormalizerFactory
	Logger      *slog.Logger
	LockTTL     time.Duration
}

// Service runs ingest requests against compiled sheets
type Service struct {
	sheets map[string]*Sheet
	deps   Dependencies
	logger *slog.Logger

	mu    sync.RWMutex
	hooks map[string]Hooks
}

// NewService compiles every sheet definition. Any configuration fault is
// returned and no service is built.
func NewService(sheets map[string]config.SheetConfig, deps Dependencies) (*Service, error) {
	if deps.Stores == nil {
		return nil, apperrors.ConfigInvalid("an entity store provider is required")
	}
	if deps.Normalizers == nil {
		deps.Normalizers = parsers.NewNormalizerFactory(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = defaultLockTTL
	}

	var checker RuleChecker
	if c, ok := deps.Validator.(RuleChecker); ok {
		checker = c
	}

	compiled := make(map[string]*Sheet, len(sheets))
	for name, cfg := range sheets {
		if cfg.Name == "" {
			cfg.Name = name
		}
		sheet, err := CompileSheet(cfg, checker)
		if err != nil {
			return nil, fmt.Errorf("failed to compile sheet %s: %w", name, err)
		}
		compiled[name] = sheet
	}

	return &Service{
		sheets: compiled,
		deps:   deps,
		logger: deps.Logger.With(slog.String("service", "ingest")),
		hooks:  make(map[string]Hooks),
	}, nil
}

// RegisterHooks installs the hooks used for a sheet
func (s *Service) RegisterHooks(sheet string, hooks Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[sheet] = hooks
}

// Sheet returns a compiled sheet by name
func (s *Service) Sheet(name string) (*Sheet, bool) {
	sheet, ok := s.sheets[name]
	return sheet, ok
}

// Sheets returns the compiled sheet names, sorted
func (s *Service) Sheets() []string {
	names := make([]string, 0, len(s.sheets))
	for name := range s.sheets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) hooksFor(sheet string) Hooks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if hooks, ok := s.hooks[sheet]; ok {
		return hooks
	}
	return DefaultHooks{}
}

// Run fetches the referenced file and processes it
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if _, ok := s.sheets[req.Sheet]; !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("sheet %s is not configured", req.Sheet))
	}
	if _, err := ParseAction(req.Action); err != nil {
		return nil, err
	}
	if s.deps.Files == nil {
		return nil, apperrors.Internal("no file storage configured")
	}

	if s.deps.Lock != nil {
		key := LockKeyPrefix + req.Sheet
		acquired, err := s.deps.Lock.Acquire(ctx, key, s.deps.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		if !acquired {
			return nil, apperrors.RunLocked(req.Sheet)
		}
		defer func() {
			if err := s.deps.Lock.Release(context.WithoutCancel(ctx), key); err != nil {
				s.logger.Warn("failed to release run lock",
					slog.String("sheet", req.Sheet),
					logger.Err(err))
			}
		}()
	}

	raw, err := s.deps.Files.ReadFile(ctx, req.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.File, err)
	}

	return s.RunBytes(ctx, req, raw)
}

// RunBytes processes raw file content. Configuration and header resolution
// faults are returned as errors; every row problem ends up in Result.Errors.
// A cancelled context stops the run between rows and returns the partial
// result together with the context error.
func (s *Service) RunBytes(ctx context.Context, req Request, raw []byte) (*Result, error) {
	sheet, ok := s.sheets[req.Sheet]
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("sheet %s is not configured", req.Sheet))
	}
	action, err := ParseAction(req.Action)
	if err != nil {
		return nil, err
	}

	log := s.logger.With(
		slog.String("sheet", sheet.Name),
		slog.String("action", action.String()))

	result := &Result{
		RunID:     uuid.New(),
		Sheet:     sheet.Name,
		Action:    action.String(),
		File:      req.File,
		Format:    sheet.Format,
		Errors:    []string{},
		Affected:  []string{},
		Deltas:    []domain.Delta{},
		StartedAt: time.Now().UTC(),
	}

	normalizer, err := s.deps.Normalizers.ForSheet(sheet.Format, sheet.Delimiter)
	if err != nil {
		return nil, err
	}
	content, err := normalizer.Normalize(ctx, raw)
	if err != nil {
		return nil, err
	}
	result.Format = content.Format
	result.TotalRows = len(content.Rows)

	agg := NewAggregator()
	sheetError := func(message string) {
		agg.AddError(fmt.Sprintf("{%s} -> %s", SheetLevelTag, message))
	}

	if !content.Supported() {
		for _, message := range content.Errors {
			sheetError(message)
		}
		log.Warn("unsupported file structure", slog.Any("errors", content.Errors))
		return s.finish(result, agg, domain.RunStatusRejected, log), nil
	}

	if indexOf(content.Header, sheet.UniqueID) < 0 {
		sheetError(missingUniqueIDMessage)
	}
	for _, column := range content.Header {
		if column == "" {
			sheetError(emptyHeaderMessage)
			break
		}
	}
	if agg.HasRowErrors() {
		log.Warn("header rejected", slog.Any("header", content.Header))
		return s.finish(result, agg, domain.RunStatusRejected, log), nil
	}

	resolution := sheet.Rules.Resolve(content.Header, action.String())
	if !resolution.OK {
		sheetError(resolution.Err)
		log.Warn("header resolution failed", slog.String("reason", resolution.Err))
		return s.finish(result, agg, domain.RunStatusRejected, log), apperrors.HeaderResolution(resolution.Err)
	}

	processor := newRowProcessor(sheet, action, content.Header, s.deps.Stores(sheet.Name),
		s.hooksFor(sheet.Name), s.deps.Validator, agg, log)

	for _, row := range content.Rows {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled",
				slog.Int("processed", processor.counts.processed),
				logger.Err(err))
			s.applyCounts(result, processor)
			return s.finish(result, agg, domain.RunStatusCancelled, log), err
		}
		processor.Process(ctx, row)
	}

	s.applyCounts(result, processor)
	status := domain.RunStatusCompleted
	if len(agg.Errors()) > 0 {
		status = domain.RunStatusCompletedWithErrors
	}
	return s.finish(result, agg, status, log), nil
}

func (s *Service) applyCounts(result *Result, p *rowProcessor) {
	result.Processed = p.counts.processed
	result.Created = p.counts.created
	result.Updated = p.counts.updated
	result.Deleted = p.counts.deleted
}

func (s *Service) finish(result *Result, agg *Aggregator, status string, log *slog.Logger) *Result {
	result.Errors = agg.Errors()
	result.Affected = agg.Affected()
	result.Deltas = agg.Deltas()
	result.Changed = agg.Changed()
	result.Status = status
	result.CompletedAt = time.Now().UTC()

	log.Info("run finished",
		slog.String("run_id", result.RunID.String()),
		slog.String("status", status),
		slog.Int("total_rows", result.TotalRows),
		slog.Int("processed", result.Processed),
		slog.Int("errors", len(result.Errors)),
		slog.Int("affected", len(result.Affected)),
		slog.Int("deltas", len(result.Deltas)),
		slog.Duration("duration", result.CompletedAt.Sub(result.StartedAt)))

	return result
}

// Flush persists the audit trail of a finished run through the sheet's
// recorders. Nothing is written for a run that changed nothing.
func (s *Service) Flush(ctx context.Context, result *Result) error {
	if result == nil || !result.Changed {
		return nil
	}
	sheet, ok := s.sheets[result.Sheet]
	if !ok {
		return apperrors.NotFound(fmt.Sprintf("sheet %s is not configured", result.Sheet))
	}
	if s.deps.Recorders == nil {
		return apperrors.Internal("no audit recorders configured")
	}

	recorders, err := s.deps.Recorders(sheet.Recorders)
	if err != nil {
		return fmt.Errorf("failed to build recorders for sheet %s: %w", sheet.Name, err)
	}

	finished := result.CompletedAt
	run := &domain.LoadRun{
		ID:            result.RunID,
		Sheet:         result.Sheet,
		Action:        result.Action,
		FileRef:       result.File,
		Format:        result.Format,
		Status:        result.Status,
		TotalRows:     result.TotalRows,
		ProcessedRows: result.Processed,
		ErrorCount:    len(result.Errors),
		AffectedCount: len(result.Affected),
		DeltaCount:    len(result.Deltas),
		StartedAt:     result.StartedAt,
		FinishedAt:    &finished,
	}
	if err := recorders.Run.RecordRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	if len(result.Errors) > 0 {
		if err := recorders.Error.RecordErrors(ctx, run.ID, result.Errors); err != nil {
			return fmt.Errorf("failed to record run errors: %w", err)
		}
	}
	if len(result.Affected) > 0 {
		if err := recorders.Affected.RecordAffected(ctx, run.ID, result.Affected); err != nil {
			return fmt.Errorf("failed to record affected identifiers: %w", err)
		}
	}
	if len(result.Deltas) > 0 {
		if err := recorders.Delta.RecordDeltas(ctx, run.ID, result.Deltas); err != nil {
			return fmt.Errorf("failed to record deltas: %w", err)
		}
	}

	s.logger.Info("audit trail recorded",
		slog.String("run_id", run.ID.String()),
		slog.String("sheet", run.Sheet))
	return nil
}

func indexOf(header []string, column string) int {
	for i, h := range header {
		if h == column {
			return i
		}
	}
	return -1
}
