package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/discloseaudit/backend/internal/logger"
	"github.com/discloseaudit/backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ReportService handles report identity, file intake, and version creation.
// Parsing itself is asynchronous: Upload only persists the file, creates a
// pending version, and hands a parse job to the job service.
type ReportService struct {
	db         *gorm.DB
	jobs       *JobService
	uploadsDir string
}

func NewReportService(db *gorm.DB, jobs *JobService) *ReportService {
	uploadsDir := os.Getenv("UPLOADS_DIR")
	if uploadsDir == "" {
		uploadsDir = "uploads"
	}
	return &ReportService{db: db, jobs: jobs, uploadsDir: uploadsDir}
}

// Upload stores the file under a random name, finds or creates the
// (region, year) report, creates a pending version, and enqueues its parse
// job. Returns the new version with the report preloaded.
func (rs *ReportService) Upload(regionCode, unitName string, year int, file *multipart.FileHeader) (*models.ReportVersion, error) {
	storagePath, fileHash, err := rs.saveUpload(file)
	if err != nil {
		return nil, err
	}

	report, err := rs.findOrCreateReport(regionCode, unitName, year)
	if err != nil {
		os.Remove(storagePath)
		return nil, err
	}

	version := &models.ReportVersion{
		ReportID:    report.ID,
		Status:      models.VersionStatusPending,
		FileName:    file.Filename,
		StoragePath: storagePath,
		FileHash:    fileHash,
	}
	if err := rs.db.Create(version).Error; err != nil {
		os.Remove(storagePath)
		return nil, fmt.Errorf("failed to create report version: %w", err)
	}

	if _, err := rs.jobs.Enqueue(models.JobKindParse, version.ID); err != nil {
		return nil, fmt.Errorf("failed to enqueue parse job: %w", err)
	}

	logger.WithVersion(version.ID).WithField("region_code", regionCode).
		WithField("year", year).WithField("file_hash", fileHash).
		Info("Report version uploaded")

	version.Report = report
	return version, nil
}

// findOrCreateReport resolves the (region, year) identity. A concurrent
// creator losing the unique-index race is fine: on a duplicate-key error we
// re-read the winner's row.
func (rs *ReportService) findOrCreateReport(regionCode, unitName string, year int) (*models.Report, error) {
	var report models.Report
	err := rs.db.Where("region_code = ? AND year = ?", regionCode, year).First(&report).Error
	if err == nil {
		if unitName != "" && unitName != report.UnitName {
			if err := rs.db.Model(&report).Update("unit_name", unitName).Error; err != nil {
				return nil, fmt.Errorf("failed to update unit name: %w", err)
			}
		}
		return &report, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up report: %w", err)
	}

	report = models.Report{RegionCode: regionCode, UnitName: unitName, Year: year}
	if err := rs.db.Create(&report).Error; err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if err := rs.db.Where("region_code = ? AND year = ?", regionCode, year).
				First(&report).Error; err != nil {
				return nil, fmt.Errorf("failed to reload report after conflict: %w", err)
			}
			return &report, nil
		}
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	return &report, nil
}

// saveUpload streams the file to disk under a random name and hashes it on
// the way through.
func (rs *ReportService) saveUpload(file *multipart.FileHeader) (string, string, error) {
	if err := os.MkdirAll(rs.uploadsDir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create uploads directory: %w", err)
	}

	src, err := file.Open()
	if err != nil {
		return "", "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(file.Filename))
	storagePath := filepath.Join(rs.uploadsDir, uuid.New().String()+ext)

	dst, err := os.Create(storagePath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create stored file: %w", err)
	}
	defer dst.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, hasher), src); err != nil {
		os.Remove(storagePath)
		return "", "", fmt.Errorf("failed to store upload: %w", err)
	}

	return storagePath, hex.EncodeToString(hasher.Sum(nil)), nil
}

// ListReports returns all reports ordered newest year first, with their
// versions attached.
func (rs *ReportService) ListReports() ([]models.Report, error) {
	var reports []models.Report
	err := rs.db.Preload("Versions", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at DESC")
	}).Order("year DESC, region_code ASC").Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// GetReport loads one report with versions, newest first.
func (rs *ReportService) GetReport(id uint) (*models.Report, error) {
	var report models.Report
	err := rs.db.Preload("Versions", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at DESC")
	}).First(&report, id).Error
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetVersion loads one version, including its jobs ordered oldest first so
// the attempt chain reads top to bottom.
func (rs *ReportService) GetVersion(id uint) (*models.ReportVersion, error) {
	var version models.ReportVersion
	err := rs.db.Preload("Jobs", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).First(&version, id).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// ActiveVersion returns the report's active version, if any.
func (rs *ReportService) ActiveVersion(reportID uint) (*models.ReportVersion, error) {
	var version models.ReportVersion
	err := rs.db.Where("report_id = ? AND is_active = ?", reportID, true).First(&version).Error
	if err != nil {
		return nil, err
	}
	return &version, nil
}
