package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Run statuses
const (
	RunStatusCompleted           = "completed"
	RunStatusCompletedWithErrors = "completed_with_errors"
	RunStatusRejected            = "rejected"
	RunStatusCancelled           = "cancelled"
)

// LoadRun is the audit row written once per run that changed anything
type LoadRun struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Sheet         string     `gorm:"type:varchar(255);not null;index:idx_load_runs_sheet" json:"sheet"`
	Action        string     `gorm:"type:varchar(50);not null" json:"action"`
	FileRef       string     `gorm:"type:text" json:"file_ref"`
	Format        string     `gorm:"type:varchar(50)" json:"format"`
	Status        string     `gorm:"type:varchar(50);not null;default:'completed'" json:"status"`
	TotalRows     int        `gorm:"default:0" json:"total_rows"`
	ProcessedRows int        `gorm:"default:0" json:"processed_rows"`
	ErrorCount    int        `gorm:"default:0" json:"error_count"`
	AffectedCount int        `gorm:"default:0" json:"affected_count"`
	DeltaCount    int        `gorm:"default:0" json:"delta_count"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (LoadRun) TableName() string {
	return "load_runs"
}

// BeforeCreate GORM hook - called before creating a record
func (r *LoadRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ValidRunStatuses returns list of valid run statuses
func ValidRunStatuses() []string {
	return []string{
		RunStatusCompleted,
		RunStatusCompletedWithErrors,
		RunStatusRejected,
		RunStatusCancelled,
	}
}

// IsValidRunStatus checks if a status is valid
func IsValidRunStatus(status string) bool {
	for _, s := range ValidRunStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// LoadRunError is one row-level or sheet-level error message of a run
type LoadRunError struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index:idx_load_run_errors_run" json:"run_id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (LoadRunError) TableName() string {
	return "load_run_errors"
}

// BeforeCreate GORM hook
func (e *LoadRunError) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// LoadRunAffected records one unique identifier touched by a run
type LoadRunAffected struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index:idx_load_run_affected_run" json:"run_id"`
	UniqueID  string    `gorm:"type:varchar(255);not null" json:"unique_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (LoadRunAffected) TableName() string {
	return "load_run_affected"
}

// BeforeCreate GORM hook
func (a *LoadRunAffected) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// LoadRunDelta is one persisted field change
type LoadRunDelta struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RunID     uuid.UUID `gorm:"type:uuid;not null;index:idx_load_run_deltas_run" json:"run_id"`
	FieldName string    `gorm:"type:varchar(255);not null" json:"field_name"`
	FromValue string    `gorm:"type:text" json:"from_"`
	ToValue   string    `gorm:"type:text" json:"to_"`
	UniqueID  string    `gorm:"type:varchar(255);not null;index:idx_load_run_deltas_unique" json:"unique_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (LoadRunDelta) TableName() string {
	return "load_run_deltas"
}

// BeforeCreate GORM hook
func (d *LoadRunDelta) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Delta is a before/after value change of one field on one identified record
type Delta struct {
	FieldName string `json:"fieldName"`
	From      string `json:"from_"`
	To        string `json:"to_"`
	UniqueID  string `json:"uniqueID"`
}

// StoredDocument is a sheet's target entity persisted as a JSONB body
type StoredDocument struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Sheet     string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_documents_sheet_key" json:"sheet"`
	UniqueKey string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_documents_sheet_key" json:"unique_key"`
	Body      Document       `gorm:"type:jsonb" json:"body"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName specifies the table name for GORM
func (StoredDocument) TableName() string {
	return "documents"
}

// BeforeCreate GORM hook
func (s *StoredDocument) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
