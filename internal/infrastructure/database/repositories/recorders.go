package repositories

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
	"github.com/alejandroruanova/rowloader/internal/core/services/ingest"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
	"github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

const insertBatchSize = 1000

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// RunRecorder writes run metadata rows
type RunRecorder struct {
	db     *gorm.DB
	table  string
	logger *slog.Logger
}

// ErrorRecorder writes run error messages
type ErrorRecorder struct {
	db     *gorm.DB
	table  string
	logger *slog.Logger
}

// AffectedRecorder writes affected unique identifiers
type AffectedRecorder struct {
	db     *gorm.DB
	table  string
	logger *slog.Logger
}

// DeltaRecorder writes field changes
type DeltaRecorder struct {
	db     *gorm.DB
	table  string
	logger *slog.Logger
}

// NewRecorderFactory builds the four recorders from a sheet's configured
// table names. The tables share the layout of the load_run* models.
func NewRecorderFactory(db *gorm.DB, log *slog.Logger) ingest.RecorderFactory {
	if log == nil {
		log = slog.Default()
	}

	return func(names map[string]string) (ingest.Recorders, error) {
		for _, key := range []string{"run", "error", "affected", "delta"} {
			if !tableName.MatchString(names[key]) {
				return ingest.Recorders{}, apperrors.ConfigInvalid(fmt.Sprintf("invalid %s recorder table %q", key, names[key]))
			}
		}

		return ingest.Recorders{
			Run:      &RunRecorder{db: db, table: names["run"], logger: log},
			Error:    &ErrorRecorder{db: db, table: names["error"], logger: log},
			Affected: &AffectedRecorder{db: db, table: names["affected"], logger: log},
			Delta:    &DeltaRecorder{db: db, table: names["delta"], logger: log},
		}, nil
	}
}

// RecordRun inserts the run row
func (r *RunRecorder) RecordRun(ctx context.Context, run *domain.LoadRun) error {
	if err := r.db.WithContext(ctx).Table(r.table).Create(run).Error; err != nil {
		r.logger.Error("failed to record run",
			slog.String("table", r.table),
			slog.String("run_id", run.ID.String()),
			logger.Err(err))
		return apperrors.DatabaseError(err)
	}
	return nil
}

// RecordErrors inserts one row per message
func (r *ErrorRecorder) RecordErrors(ctx context.Context, runID uuid.UUID, messages []string) error {
	if len(messages) == 0 {
		return nil
	}

	rows := make([]domain.LoadRunError, 0, len(messages))
	for _, message := range messages {
		rows = append(rows, domain.LoadRunError{RunID: runID, Message: message})
	}

	if err := r.db.WithContext(ctx).Table(r.table).CreateInBatches(rows, insertBatchSize).Error; err != nil {
		r.logger.Error("failed to record run errors",
			slog.String("table", r.table),
			slog.String("run_id", runID.String()),
			slog.Int("count", len(rows)),
			logger.Err(err))
		return apperrors.DatabaseError(err)
	}
	return nil
}

// RecordAffected inserts one row per identifier
func (r *AffectedRecorder) RecordAffected(ctx context.Context, runID uuid.UUID, uniqueIDs []string) error {
	if len(uniqueIDs) == 0 {
		return nil
	}

	rows := make([]domain.LoadRunAffected, 0, len(uniqueIDs))
	for _, id := range uniqueIDs {
		rows = append(rows, domain.LoadRunAffected{RunID: runID, UniqueID: id})
	}

	if err := r.db.WithContext(ctx).Table(r.table).CreateInBatches(rows, insertBatchSize).Error; err != nil {
		r.logger.Error("failed to record affected identifiers",
			slog.String("table", r.table),
			slog.String("run_id", runID.String()),
			logger.Err(err))
		return apperrors.DatabaseError(err)
	}
	return nil
}

// RecordDeltas inserts one row per delta
func (r *DeltaRecorder) RecordDeltas(ctx context.Context, runID uuid.UUID, deltas []domain.Delta) error {
	if len(deltas) == 0 {
		return nil
	}

	rows := make([]domain.LoadRunDelta, 0, len(deltas))
	for _, d := range deltas {
		rows = append(rows, domain.LoadRunDelta{
			RunID:     runID,
			FieldName: d.FieldName,
			FromValue: d.From,
			ToValue:   d.To,
			UniqueID:  d.UniqueID,
		})
	}

	if err := r.db.WithContext(ctx).Table(r.table).CreateInBatches(rows, insertBatchSize).Error; err != nil {
		r.logger.Error("failed to record deltas",
			slog.String("table", r.table),
			slog.String("run_id", runID.String()),
			logger.Err(err))
		return apperrors.DatabaseError(err)
	}
	return nil
}
