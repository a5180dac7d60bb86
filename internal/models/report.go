package models

import (
	"time"

	"gorm.io/gorm"
)

type VersionStatus string

const (
	VersionStatusPending   VersionStatus = "pending"
	VersionStatusSucceeded VersionStatus = "succeeded"
	VersionStatusFailed    VersionStatus = "failed"
)

// Report identifies one disclosure report: one row per (region, year).
type Report struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	RegionCode string         `json:"regionCode" gorm:"not null;uniqueIndex:idx_reports_region_year"`
	UnitName   string         `json:"unitName" gorm:"not null"`
	Year       int            `json:"year" gorm:"not null;uniqueIndex:idx_reports_region_year"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	Versions []ReportVersion `json:"versions,omitempty" gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
}

// ReportVersion is one uploaded rendition of a report. At most one version
// per report carries IsActive=true; promotion and demotion happen in the
// same transaction. A version is immutable once succeeded; a failed version
// is kept for diagnostics and a fresh row is created for the next attempt.
type ReportVersion struct {
	ID          uint          `json:"id" gorm:"primaryKey"`
	ReportID    uint          `json:"reportId" gorm:"not null;index"`
	Status      VersionStatus `json:"status" gorm:"not null;default:'pending'"`
	IsActive    bool          `json:"isActive" gorm:"not null;default:false;index"`
	ParsedJSON  RawJSON       `json:"parsedJson,omitempty" gorm:"type:jsonb"`
	Provider    string        `json:"provider"`
	Model       string        `json:"model"`
	FileName    string        `json:"fileName"`
	StoragePath string        `json:"storagePath"`
	FileHash    string        `json:"fileHash" gorm:"index"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	Report *Report `json:"report,omitempty" gorm:"foreignKey:ReportID;references:ID"`
	Jobs   []Job   `json:"jobs,omitempty" gorm:"foreignKey:ReportVersionID;constraint:OnDelete:CASCADE"`
}

func (Report) TableName() string {
	return "reports"
}

func (ReportVersion) TableName() string {
	return "report_versions"
}
