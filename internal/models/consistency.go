package models

import (
	"time"
)

type AutoStatus string

const (
	AutoStatusPass AutoStatus = "PASS"
	AutoStatusFail AutoStatus = "FAIL"
	AutoStatusWarn AutoStatus = "WARN"
	AutoStatusSkip AutoStatus = "SKIP"
)

type HumanStatus string

const (
	HumanStatusConfirmedFail HumanStatus = "CONFIRMED_FAIL"
	HumanStatusOverridePass  HumanStatus = "OVERRIDE_PASS"
	HumanStatusIgnored       HumanStatus = "IGNORED"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
)

// ConsistencyRun is one audit pass over one report version. Re-running a
// version creates a new run and removes the prior one's items; items are
// never merged across runs.
type ConsistencyRun struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	ReportVersionID uint       `json:"reportVersionId" gorm:"not null;index"`
	Status          RunStatus  `json:"status" gorm:"not null;default:'running'"`
	Summary         JSONB      `json:"summary" gorm:"type:jsonb"`
	CreatedAt       time.Time  `json:"createdAt"`
	FinishedAt      *time.Time `json:"finishedAt"`

	Items []ConsistencyItem `json:"items,omitempty" gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// ConsistencyItem is one rule's outcome. AutoStatus is recomputed on every
// run; HumanStatus is only ever written by a reviewer and survives re-runs.
type ConsistencyItem struct {
	ID              uint         `json:"id" gorm:"primaryKey"`
	RunID           uint         `json:"runId" gorm:"not null;index"`
	ReportVersionID uint         `json:"reportVersionId" gorm:"not null;index"`
	CheckKey        string       `json:"checkKey" gorm:"not null;index"`
	GroupKey        string       `json:"groupKey" gorm:"not null"`
	Fingerprint     string       `json:"fingerprint" gorm:"not null"`
	Title           string       `json:"title" gorm:"not null"`
	Expr            string       `json:"expr"`
	LeftValue       *float64     `json:"leftValue"`
	RightValue      *float64     `json:"rightValue"`
	Delta           *float64     `json:"delta"`
	Tolerance       float64      `json:"tolerance"`
	AutoStatus      AutoStatus   `json:"autoStatus" gorm:"not null"`
	HumanStatus     *HumanStatus `json:"humanStatus"`
	EvidenceJSON    JSONB        `json:"evidenceJson" gorm:"type:jsonb"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// ValidHumanStatus reports whether s is one of the reviewer-settable values.
func ValidHumanStatus(s HumanStatus) bool {
	switch s {
	case HumanStatusConfirmedFail, HumanStatusOverridePass, HumanStatusIgnored:
		return true
	}
	return false
}

func (ConsistencyRun) TableName() string {
	return "consistency_runs"
}

func (ConsistencyItem) TableName() string {
	return "consistency_items"
}
