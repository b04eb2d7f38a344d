package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
	"github.com/alejandroruanova/rowloader/internal/core/services/ingest"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
	"github.com/alejandroruanova/rowloader/internal/pkg/logger"
)

// DocumentStore implements ingest.EntityStore on the documents table. Each
// sheet owns the rows carrying its name; the unique identifier value is the
// row key and the entity is the JSONB body.
type DocumentStore struct {
	db     *gorm.DB
	sheet  string
	logger *slog.Logger
}

// NewDocumentStore creates a store scoped to one sheet
func NewDocumentStore(db *gorm.DB, sheet string, log *slog.Logger) *DocumentStore {
	if log == nil {
		log = slog.Default()
	}

	return &DocumentStore{
		db:     db,
		sheet:  sheet,
		logger: log.With(slog.String("sheet", sheet)),
	}
}

// NewDocumentProvider returns a StoreProvider backed by the documents table
func NewDocumentProvider(db *gorm.DB, log *slog.Logger) ingest.StoreProvider {
	return func(sheet string) ingest.EntityStore {
		return NewDocumentStore(db, sheet, log)
	}
}

// New returns an empty entity
func (s *DocumentStore) New(ctx context.Context) (domain.Document, error) {
	return domain.Document{}, nil
}

// FindByUnique returns the live entity keyed by value, or nil
func (s *DocumentStore) FindByUnique(ctx context.Context, field, value string) (domain.Document, error) {
	doc, err := s.find(s.db.WithContext(ctx), value)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.Body.Clone(), nil
}

// Fresh re-reads the entity, including a soft-deleted one
func (s *DocumentStore) Fresh(ctx context.Context, field, value string) (domain.Document, error) {
	doc, err := s.find(s.db.WithContext(ctx).Unscoped(), value)
	if err != nil || doc == nil {
		return nil, err
	}

	body := doc.Body.Clone()
	if body == nil {
		body = domain.Document{}
	}
	if doc.DeletedAt.Valid {
		body["deleted_at"] = doc.DeletedAt.Time.UTC().Format(time.RFC3339)
	}
	return body, nil
}

// Apply persists the entity with the given method
func (s *DocumentStore) Apply(ctx context.Context, method ingest.Method, field, value string, entity domain.Document) error {
	db := s.db.WithContext(ctx)

	var err error
	switch method {
	case ingest.MethodSave, ingest.MethodUpsert:
		err = s.upsert(db, value, entity)
	case ingest.MethodInsert:
		err = s.insert(db, value, entity)
	case ingest.MethodUpdate:
		err = s.update(db, value, entity)
	case ingest.MethodDelete:
		err = s.delete(db.Unscoped(), value)
	case ingest.MethodSoftDelete:
		err = s.softDelete(db, value, entity)
	default:
		return apperrors.Internal(fmt.Sprintf("unsupported persistence method %s", method))
	}

	if err != nil {
		if !apperrors.IsAppError(err) {
			s.logger.Error("failed to apply entity",
				slog.String("method", method.String()),
				slog.String("unique_key", value),
				logger.Err(err))
			return apperrors.DatabaseError(err)
		}
		return err
	}
	return nil
}

func (s *DocumentStore) find(db *gorm.DB, value string) (*domain.StoredDocument, error) {
	var doc domain.StoredDocument
	err := db.Where("sheet = ? AND unique_key = ?", s.sheet, value).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to load document",
			slog.String("unique_key", value),
			logger.Err(err))
		return nil, apperrors.DatabaseError(err)
	}
	return &doc, nil
}

// upsert writes the body and revives a soft-deleted row
func (s *DocumentStore) upsert(db *gorm.DB, value string, entity domain.Document) error {
	doc := domain.StoredDocument{
		Sheet:     s.sheet,
		UniqueKey: value,
		Body:      entity,
	}

	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sheet"}, {Name: "unique_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"body":       entity,
			"updated_at": time.Now().UTC(),
			"deleted_at": nil,
		}),
	}).Create(&doc).Error
}

func (s *DocumentStore) insert(db *gorm.DB, value string, entity domain.Document) error {
	existing, err := s.find(db, value)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.Conflict(fmt.Sprintf("record %s already exists", value))
	}
	return s.upsert(db, value, entity)
}

func (s *DocumentStore) update(db *gorm.DB, value string, entity domain.Document) error {
	result := db.Model(&domain.StoredDocument{}).
		Where("sheet = ? AND unique_key = ?", s.sheet, value).
		Updates(map[string]interface{}{
			"body":       entity,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.RecordNotFound(fmt.Sprintf("record %s", value))
	}
	return nil
}

func (s *DocumentStore) delete(db *gorm.DB, value string) error {
	result := db.Where("sheet = ? AND unique_key = ?", s.sheet, value).Delete(&domain.StoredDocument{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.RecordNotFound(fmt.Sprintf("record %s", value))
	}
	return nil
}

func (s *DocumentStore) softDelete(db *gorm.DB, value string, entity domain.Document) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := s.update(tx, value, entity); err != nil {
			return err
		}
		return tx.Where("sheet = ? AND unique_key = ?", s.sheet, value).Delete(&domain.StoredDocument{}).Error
	})
}
