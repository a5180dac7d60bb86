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

type ConsistencyController struct {
	db          *gorm.DB
	consistency *services.ConsistencyService
}

func NewConsistencyController(db *gorm.DB, consistency *services.ConsistencyService) *ConsistencyController {
	return &ConsistencyController{db: db, consistency: consistency}
}

type HumanStatusRequest struct {
	HumanStatus models.HumanStatus `json:"humanStatus" binding:"required"`
}

// GetVersionConsistency returns the version's current run with its items
// ordered the way the rule catalog emits them.
func (cc *ConsistencyController) GetVersionConsistency(c *gin.Context) {
	versionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid version ID"})
		return
	}

	var run models.ConsistencyRun
	err = cc.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("report_version_id = ?", uint(versionID)).
		Order("created_at DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No consistency run for this version"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load consistency run"})
		return
	}

	c.JSON(http.StatusOK, run)
}

// SetHumanStatus records a reviewer verdict on one item. The automatic
// status is untouched and no recomputation is triggered.
func (cc *ConsistencyController) SetHumanStatus(c *gin.Context) {
	itemID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item ID"})
		return
	}

	var req HumanStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !models.ValidHumanStatus(req.HumanStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "humanStatus must be CONFIRMED_FAIL, OVERRIDE_PASS, or IGNORED"})
		return
	}

	item, err := cc.consistency.SetHumanStatus(uint(itemID), req.HumanStatus)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update item"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "item": item})
}
