package companies

import (
	"errors"

	"go_certhub/internal/httpx"
	"go_certhub/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListRequest represents list companies request
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Name     string `form:"name"`
}

// CreateRequest represents create company request
type CreateRequest struct {
	Name         string `json:"name" binding:"required"`
	LegalID      string `json:"legalId"`
	ContactEmail string `json:"contactEmail"`
}

// UpdateRequest represents update company request
type UpdateRequest struct {
	ID           int     `json:"id" binding:"required"`
	Name         *string `json:"name"`
	LegalID      *string `json:"legalId"`
	ContactEmail *string `json:"contactEmail"`
}

// DeleteRequest represents delete companies request
type DeleteRequest struct {
	IDs []int `json:"ids" binding:"required,min=1"`
}

// Handler handles companies API
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new companies handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// List handles GET /api/v1/companies
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

	query := h.db.Model(&model.Company{})
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count companies", err))
		return
	}

	var companies []model.Company
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("id DESC").Offset(offset).Limit(req.PageSize).Find(&companies).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query companies", err))
		return
	}

	httpx.OKItems(c, companies, total, req.Page, req.PageSize)
}

// Create handles POST /api/v1/companies
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	company := model.Company{
		Name:         req.Name,
		LegalID:      req.LegalID,
		ContactEmail: req.ContactEmail,
	}
	if err := h.db.Create(&company).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create company", err))
		return
	}
	httpx.OK(c, company)
}

// Update handles PUT /api/v1/companies
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var company model.Company
	if err := h.db.First(&company, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("company not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query company", err))
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.LegalID != nil {
		updates["legal_id"] = *req.LegalID
	}
	if req.ContactEmail != nil {
		updates["contact_email"] = *req.ContactEmail
	}

	if len(updates) > 0 {
		if err := h.db.Model(&company).Updates(updates).Error; err != nil {
			httpx.FailErr(c, httpx.ErrDatabaseError("failed to update company", err))
			return
		}
	}
	httpx.OK(c, company)
}

// Delete handles DELETE /api/v1/companies
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var inUse int64
	if err := h.db.Model(&model.Activity{}).Where("company_id IN ?", req.IDs).Count(&inUse).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to check activities", err))
		return
	}
	if inUse > 0 {
		httpx.FailErr(c, httpx.ErrStateConflict("company has activities and cannot be deleted"))
		return
	}

	if err := h.db.Delete(&model.Company{}, req.IDs).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete companies", err))
		return
	}
	httpx.OK(c, gin.H{"deleted": len(req.IDs)})
}
