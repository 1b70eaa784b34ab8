package activities

import (
	"errors"
	"time"

	"go_certhub/internal/httpx"
	"go_certhub/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListRequest represents list activities request
type ListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"pageSize"`
	Name      string `form:"name"`
	CompanyID *int   `form:"companyId"`
}

// CreateRequest represents create activity request
type CreateRequest struct {
	CompanyID   int        `json:"companyId" binding:"required"`
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"startsAt"`
	EndsAt      *time.Time `json:"endsAt"`
}

// UpdateRequest represents update activity request
type UpdateRequest struct {
	ID          int        `json:"id" binding:"required"`
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	StartsAt    *time.Time `json:"startsAt"`
	EndsAt      *time.Time `json:"endsAt"`
}

// DeleteRequest represents delete activities request
type DeleteRequest struct {
	IDs []int `json:"ids" binding:"required,min=1"`
}

// Handler handles activities API
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new activities handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// List handles GET /api/v1/activities
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	// Set defaults
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 15
	}

	query := h.db.Model(&model.Activity{})
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.CompanyID != nil {
		query = query.Where("company_id = ?", *req.CompanyID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count activities", err))
		return
	}

	var activities []model.Activity
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Company").Order("id DESC").Offset(offset).Limit(req.PageSize).Find(&activities).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query activities", err))
		return
	}

	httpx.OKItems(c, activities, total, req.Page, req.PageSize)
}

// Create handles POST /api/v1/activities
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var company model.Company
	if err := h.db.First(&company, req.CompanyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("company not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query company", err))
		return
	}

	if req.StartsAt != nil && req.EndsAt != nil && req.EndsAt.Before(*req.StartsAt) {
		httpx.FailErr(c, httpx.ErrParamIllegal("endsAt is before startsAt"))
		return
	}

	activity := model.Activity{
		CompanyID:   req.CompanyID,
		Name:        req.Name,
		Description: req.Description,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}
	if err := h.db.Create(&activity).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create activity", err))
		return
	}
	httpx.OK(c, activity)
}

// Update handles PUT /api/v1/activities
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var activity model.Activity
	if err := h.db.First(&activity, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("activity not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query activity", err))
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.StartsAt != nil {
		updates["starts_at"] = *req.StartsAt
	}
	if req.EndsAt != nil {
		updates["ends_at"] = *req.EndsAt
	}

	if len(updates) > 0 {
		if err := h.db.Model(&activity).Updates(updates).Error; err != nil {
			httpx.FailErr(c, httpx.ErrDatabaseError("failed to update activity", err))
			return
		}
	}
	httpx.OK(c, activity)
}

// Delete handles DELETE /api/v1/activities
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var inUse int64
	if err := h.db.Model(&model.Certificate{}).Where("activity_id IN ?", req.IDs).Count(&inUse).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to check certificates", err))
		return
	}
	if inUse > 0 {
		httpx.FailErr(c, httpx.ErrStateConflict("activity has certificates and cannot be deleted"))
		return
	}

	if err := h.db.Delete(&model.Activity{}, req.IDs).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete activities", err))
		return
	}
	httpx.OK(c, gin.H{"deleted": len(req.IDs)})
}
