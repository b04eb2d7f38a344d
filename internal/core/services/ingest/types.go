package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// Action is the operation a run performs on every row
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
)

var actionNames = map[Action]string{
	ActionCreate: "create",
	ActionUpdate: "update",
	ActionDelete: "delete",
}

// ParseAction resolves an action name
func ParseAction(name string) (Action, error) {
	for action, actionName := range actionNames {
		if strings.EqualFold(strings.TrimSpace(name), actionName) {
			return action, nil
		}
	}
	return 0, apperrors.BadRequest(fmt.Sprintf("unknown action %q", name))
}

// String returns the action name
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ValidationMethod returns the method name validation rules are keyed by
func (a Action) ValidationMethod() string {
	switch a {
	case ActionUpdate:
		return "PUT"
	case ActionDelete:
		return "DELETE"
	default:
		return "POST"
	}
}

// Method is the persistence operation used to apply an action
type Method int

const (
	MethodSave Method = iota
	MethodInsert
	MethodUpsert
	MethodUpdate
	MethodDelete
	MethodSoftDelete
)

var methodNames = map[string]Method{
	"save":        MethodSave,
	"insert":      MethodInsert,
	"upsert":      MethodUpsert,
	"update":      MethodUpdate,
	"delete":      MethodDelete,
	"soft_delete": MethodSoftDelete,
}

// DefaultMethods are used when a sheet does not override them
var DefaultMethods = map[Action]Method{
	ActionCreate: MethodSave,
	ActionUpdate: MethodUpdate,
	ActionDelete: MethodDelete,
}

// ParseMethod resolves a persistence method name
func ParseMethod(name string) (Method, error) {
	method, ok := methodNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, apperrors.ConfigInvalid(fmt.Sprintf("unknown persistence method %q", name))
	}
	return method, nil
}

// String returns the method name
func (m Method) String() string {
	for name, method := range methodNames {
		if method == m {
			return name
		}
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// EntityStore is the persistence collaborator of one sheet
type EntityStore interface {
	// New returns an empty entity for create
	New(ctx context.Context) (domain.Document, error)
	// FindByUnique returns the entity whose unique field has value, or nil
	FindByUnique(ctx context.Context, field, value string) (domain.Document, error)
	// Fresh re-reads the entity after mutation; nil when it no longer exists
	Fresh(ctx context.Context, field, value string) (domain.Document, error)
	// Apply persists the entity with the given method
	Apply(ctx context.Context, method Method, field, value string, entity domain.Document) error
}

// StoreProvider returns the entity store of a sheet
type StoreProvider func(sheet string) EntityStore

// Validator is the field-level validation collaborator
type Validator interface {
	Validate(ctx context.Context, method string, data map[string]string, rules map[string]string) ([]string, error)
}

// RuleChecker is implemented by validators that can reject rule strings up front
type RuleChecker interface {
	Check(rules map[string]string) error
}

// FileReader supplies raw file bytes for a stored file reference
type FileReader interface {
	ReadFile(ctx context.Context, ref string) ([]byte, error)
}

// RunLock keeps two runs from writing the same sheet at once
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RunRecorder persists run metadata
type RunRecorder interface {
	RecordRun(ctx context.Context, run *domain.LoadRun) error
}

// ErrorRecorder persists run error messages
type ErrorRecorder interface {
	RecordErrors(ctx context.Context, runID uuid.UUID, messages []string) error
}

// AffectedRecorder persists affected unique identifiers
type AffectedRecorder interface {
	RecordAffected(ctx context.Context, runID uuid.UUID, uniqueIDs []string) error
}

// DeltaRecorder persists field changes
type DeltaRecorder interface {
	RecordDeltas(ctx context.Context, runID uuid.UUID, deltas []domain.Delta) error
}

// Recorders are the four audit collaborators of a sheet
type Recorders struct {
	Run      RunRecorder
	Error    ErrorRecorder
	Affected AffectedRecorder
	Delta    DeltaRecorder
}

// RecorderFactory builds recorders from a sheet's configured recorder names
// (run, error, affected, delta).
type RecorderFactory func(names map[string]string) (Recorders, error)

// Request describes one run
type Request struct {
	Sheet  string `json:"sheet"`
	Action string `json:"action"`
	File   string `json:"file"`
}

// Result is the outcome of a run
type Result struct {
	RunID       uuid.UUID      `json:"run_id"`
	Sheet       string         `json:"sheet"`
	Action      string         `json:"action"`
	File        string         `json:"file"`
	Format      string         `json:"format"`
	Status      string         `json:"status"`
	TotalRows   int            `json:"total_rows"`
	Processed   int            `json:"processed_rows"`
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	Deleted     int            `json:"deleted"`
	Errors      []string       `json:"errors"`
	Affected    []string       `json:"affected"`
	Deltas      []domain.Delta `json:"deltas"`
	Changed     bool           `json:"changed"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
}
