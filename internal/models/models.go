// internal/models/models.go
package models

import (
	"time"
)

// Case lifecycle states. Transitions are strictly forward:
// pending -> processed -> validated.
const (
	CaseStatePending   = "pending"
	CaseStateProcessed = "processed"
	CaseStateValidated = "validated"
)

type User struct {
	UserID    string    `gorm:"primaryKey" json:"user_id"`
	Email     string    `gorm:"unique;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Case is a prediagnostic record: one submitted X-ray plus its inference
// result and lifecycle state. The result columns are non-nil iff the state
// is processed or validated.
type Case struct {
	CaseID            string     `gorm:"primaryKey" json:"case_id"`
	OwnerID           string     `gorm:"index;not null" json:"owner_id"`
	ImageReference    string     `gorm:"not null" json:"image_reference"`
	ResultProbability *float64   `json:"-"`
	ResultLabel       *string    `json:"-"`
	State             string     `gorm:"index;not null;default:'pending'" json:"state"`
	CreatedAt         time.Time  `json:"created_at"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`
}

// ModelResult is the structured inference result attached to a processed case.
type ModelResult struct {
	Probability float64 `json:"probability"`
	Label       string  `json:"label"`
}

// Result returns the model result, or nil while the case is still pending.
func (c *Case) Result() *ModelResult {
	if c.ResultProbability == nil || c.ResultLabel == nil {
		return nil
	}
	return &ModelResult{Probability: *c.ResultProbability, Label: *c.ResultLabel}
}

// DiagnosticReview is a clinician's verdict on a processed case. Created
// once, never mutated.
type DiagnosticReview struct {
	ReviewID   string    `gorm:"primaryKey" json:"review_id"`
	CaseID     string    `gorm:"index;not null" json:"case_id"`
	Approved   bool      `json:"approved"`
	Comment    string    `gorm:"not null" json:"comment"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// CaseSummary is the projection used by the doctor queue list view.
type CaseSummary struct {
	CaseID    string    `json:"case_id"`
	OwnerID   string    `json:"owner_id"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

// OwnerCaseSummary is the per-patient list projection, annotated with the
// AI result when inference has completed.
type OwnerCaseSummary struct {
	CaseSummary
	Label       *string  `json:"label,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
}
