package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit event bus models
type AuditEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`  // event class, e.g. pipeline.report
	Stage     string                 `json:"stage"` // assembly, conflicts, cohort, covariate, outcome, run
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// Pipeline run models
type PipelineRun struct {
	ID           uuid.UUID              `json:"id"`
	Study        string                 `json:"study"`
	Status       string                 `json:"status"`
	CohortSize   int                    `json:"cohort_size"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	RequestedBy  string                 `json:"requested_by,omitempty"`
	Report       map[string]interface{} `json:"report,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}
