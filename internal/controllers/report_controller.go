package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/discloseaudit/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ReportController struct {
	reports *services.ReportService
}

func NewReportController(reports *services.ReportService) *ReportController {
	return &ReportController{reports: reports}
}

// UploadReport accepts a multipart disclosure report file plus its identity
// fields. Uploading to an existing (region, year) adds a new version; the
// previous active version stays active until the new parse succeeds.
func (rc *ReportController) UploadReport(c *gin.Context) {
	regionCode := c.PostForm("regionCode")
	unitName := c.PostForm("unitName")
	yearRaw := c.PostForm("year")
	if regionCode == "" || yearRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "regionCode and year are required"})
		return
	}

	year, err := strconv.Atoi(yearRaw)
	if err != nil || year < 2000 || year > 2100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year must be a four-digit year"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	version, err := rc.reports.Upload(regionCode, unitName, year, file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store report"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Report uploaded, parsing queued",
		"version": version,
	})
}

func (rc *ReportController) GetReports(c *gin.Context) {
	reports, err := rc.reports.ListReports()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (rc *ReportController) GetReport(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid report ID"})
		return
	}

	report, err := rc.reports.GetReport(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load report"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (rc *ReportController) GetVersion(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid version ID"})
		return
	}

	version, err := rc.reports.GetVersion(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load version"})
		return
	}
	c.JSON(http.StatusOK, version)
}
