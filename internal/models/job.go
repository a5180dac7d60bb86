package models

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

type JobKind string

const (
	JobKindParse JobKind = "parse"
	JobKindAudit JobKind = "audit"
)

// Error codes surfaced on failed jobs. Classification decides retryability:
// invalid_request means the input itself is defective and is never retried.
const (
	ErrorCodeQuotaExceeded  = "quota_exceeded"
	ErrorCodeInvalidRequest = "invalid_request"
	ErrorCodeTimeout        = "timeout"
	ErrorCodeNetworkReset   = "network_reset"
	ErrorCodeUnknown        = "unknown"
)

// Job is one attempt at one unit of asynchronous work. Rows are append-only
// events: a retry creates a new row for the same version with AttemptCount
// incremented, never mutates the failed one.
type Job struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	Kind            JobKind    `json:"kind" gorm:"not null;index:idx_jobs_kind_version"`
	ReportVersionID uint       `json:"reportVersionId" gorm:"not null;index:idx_jobs_kind_version"`
	Status          JobStatus  `json:"status" gorm:"not null;default:'pending';index"`
	AttemptCount    int        `json:"attemptCount" gorm:"not null;default:1"`
	MaxAttempts     int        `json:"maxAttempts" gorm:"not null;default:3"`
	ErrorCode       string     `json:"errorCode"`
	ErrorMessage    string     `json:"errorMessage" gorm:"type:text"`
	NextRunAt       time.Time  `json:"nextRunAt"`
	StartedAt       *time.Time `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	ReportVersion *ReportVersion `json:"reportVersion,omitempty" gorm:"foreignKey:ReportVersionID;references:ID"`
}

// InFlight reports whether the job still occupies its (kind, version) slot.
func (j *Job) InFlight() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// Exhausted reports whether a failed job has spent its attempt budget.
func (j *Job) Exhausted() bool {
	return j.Status == JobStatusFailed && j.AttemptCount >= j.MaxAttempts
}

func (Job) TableName() string {
	return "jobs"
}
