package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportStatus is the lifecycle state of an import run.
type ImportStatus string

const (
	ImportStatusRunning   ImportStatus = "running"
	ImportStatusSucceeded ImportStatus = "succeeded"
	ImportStatusFailed    ImportStatus = "failed"
)

// RecordIssue describes one source record that was skipped during an import.
type RecordIssue struct {
	Ref     string `json:"ref"`
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportRun is the audit record of a single import invocation.
type ImportRun struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey"`
	Category     string       `gorm:"size:50;not null;index"`
	Source       string       `gorm:"size:600;not null"`
	Status       ImportStatus `gorm:"size:20;not null"`
	Total        int          `gorm:"not null;default:0"`
	Created      int          `gorm:"not null;default:0"`
	Updated      int          `gorm:"not null;default:0"`
	Unchanged    int          `gorm:"not null;default:0"`
	Skipped      int          `gorm:"not null;default:0"`
	ErrorDetails Issues       `gorm:"type:text"`
	Error        string       `gorm:"type:text"`
	StartedAt    time.Time    `gorm:"not null"`
	CompletedAt  *time.Time
}

func (r *ImportRun) TableName() string {
	return "import_runs"
}
