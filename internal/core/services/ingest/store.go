package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

const softDeleteField = "deleted_at"

// MemoryStore is an in-process EntityStore keyed by unique value. It is used
// by the CLI dry-run mode and by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]domain.Document
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]domain.Document),
	}
}

// NewMemoryProvider returns a StoreProvider handing out one MemoryStore per sheet
func NewMemoryProvider() StoreProvider {
	var mu sync.Mutex
	stores := make(map[string]*MemoryStore)

	return func(sheet string) EntityStore {
		mu.Lock()
		defer mu.Unlock()
		if store, ok := stores[sheet]; ok {
			return store
		}
		store := NewMemoryStore()
		stores[sheet] = store
		return store
	}
}

// New returns an empty entity
func (s *MemoryStore) New(ctx context.Context) (domain.Document, error) {
	return domain.Document{}, nil
}

// FindByUnique returns a copy of the live entity, or nil
func (s *MemoryStore) FindByUnique(ctx context.Context, field, value string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[value]
	if !ok || isSoftDeleted(doc) {
		return nil, nil
	}
	return doc.Clone(), nil
}

// Fresh re-reads the entity, including soft-deleted ones
func (s *MemoryStore) Fresh(ctx context.Context, field, value string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[value]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

// Apply persists the entity
func (s *MemoryStore) Apply(ctx context.Context, method Method, field, value string, entity domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.docs[value]
	live := exists && !isSoftDeleted(existing)

	switch method {
	case MethodSave, MethodUpsert:
		s.docs[value] = entity.Clone()
	case MethodInsert:
		if live {
			return apperrors.Conflict(fmt.Sprintf("record %s already exists", value))
		}
		s.docs[value] = entity.Clone()
	case MethodUpdate:
		if !live {
			return apperrors.RecordNotFound(fmt.Sprintf("record %s", value))
		}
		s.docs[value] = entity.Clone()
	case MethodDelete:
		if !exists {
			return apperrors.RecordNotFound(fmt.Sprintf("record %s", value))
		}
		delete(s.docs, value)
	case MethodSoftDelete:
		if !live {
			return apperrors.RecordNotFound(fmt.Sprintf("record %s", value))
		}
		doc := entity.Clone()
		doc[softDeleteField] = time.Now().UTC().Format(time.RFC3339)
		s.docs[value] = doc
	default:
		return apperrors.Internal(fmt.Sprintf("unsupported persistence method %s", method))
	}

	return nil
}

// Put seeds an entity
func (s *MemoryStore) Put(value string, entity domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[value] = entity.Clone()
}

// Len returns the number of stored entities, soft-deleted included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func isSoftDeleted(doc domain.Document) bool {
	_, ok := doc[softDeleteField]
	return ok
}
