package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/discloseaudit/backend/internal/models"
	"github.com/discloseaudit/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type JobController struct {
	db   *gorm.DB
	jobs *services.JobService
}

func NewJobController(db *gorm.DB, jobs *services.JobService) *JobController {
	return &JobController{db: db, jobs: jobs}
}

type EnqueueJobRequest struct {
	Kind models.JobKind `json:"kind" binding:"required"`
}

// GetVersionJobs lists the version's jobs oldest first, so retries read as
// an attempt chain with their error codes and messages.
func (jc *JobController) GetVersionJobs(c *gin.Context) {
	versionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid version ID"})
		return
	}

	var jobs []models.Job
	if err := jc.db.Where("report_version_id = ?", uint(versionID)).
		Order("created_at ASC").Find(&jobs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// EnqueueJob manually queues a parse or audit job for a version. A version
// that already has one in flight gets 409.
func (jc *JobController) EnqueueJob(c *gin.Context) {
	versionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid version ID"})
		return
	}

	var req EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Kind != models.JobKindParse && req.Kind != models.JobKindAudit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be parse or audit"})
		return
	}

	job, err := jc.jobs.Enqueue(req.Kind, uint(versionID))
	if err != nil {
		if errors.Is(err, services.ErrJobConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "A job of this kind is already in flight for this version"})
			return
		}
		if errors.Is(err, services.ErrVersionFinalized) {
			c.JSON(http.StatusConflict, gin.H{"error": "This version already has a final parse result; upload a new version instead"})
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Version not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue job"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "job": job})
}
