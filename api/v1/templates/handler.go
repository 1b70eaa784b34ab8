package templates

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go_certhub/internal/httpx"
	"go_certhub/internal/model"
	"go_certhub/internal/storage"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// maxBackgroundBytes caps uploaded background images at 10MB
const maxBackgroundBytes = 10 << 20

// ListRequest represents list templates request
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Name     string `form:"name"`
}

// CreateRequest represents create template request
type CreateRequest struct {
	Name           string         `json:"name" binding:"required"`
	RemoteDesignID string         `json:"remoteDesignId"`
	NamePosition   *PositionInput `json:"namePosition"`
	DatePosition   *PositionInput `json:"datePosition"`
	QRPosition     *PositionInput `json:"qrPosition"`
	TemplateStyles *StylesInput   `json:"templateStyles"`
}

// UpdateRequest represents update template request
type UpdateRequest struct {
	ID             int            `json:"id" binding:"required"`
	Name           *string        `json:"name"`
	RemoteDesignID *string        `json:"remoteDesignId"`
	NamePosition   *PositionInput `json:"namePosition"`
	DatePosition   *PositionInput `json:"datePosition"`
	QRPosition     *PositionInput `json:"qrPosition"`
	TemplateStyles *StylesInput   `json:"templateStyles"`
}

// DeleteRequest represents delete templates request
type DeleteRequest struct {
	IDs []int `json:"ids" binding:"required,min=1"`
}

// Handler handles certificate templates API
type Handler struct {
	db    *gorm.DB
	store storage.Store
}

// NewHandler creates a new templates handler
func NewHandler(db *gorm.DB, store storage.Store) *Handler {
	return &Handler{db: db, store: store}
}

// List handles GET /api/v1/templates
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

	query := h.db.Model(&model.CertificateTemplate{})
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count templates", err))
		return
	}

	var templates []model.CertificateTemplate
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("id DESC").Offset(offset).Limit(req.PageSize).Find(&templates).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query templates", err))
		return
	}

	httpx.OKItems(c, templates, total, req.Page, req.PageSize)
}

// Get handles GET /api/v1/templates/:id
func (h *Handler) Get(c *gin.Context) {
	var tpl model.CertificateTemplate
	if err := h.db.First(&tpl, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("template not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query template", err))
		return
	}
	httpx.OK(c, tpl)
}

// Create handles POST /api/v1/templates
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	tpl := model.CertificateTemplate{
		Name:           req.Name,
		RemoteDesignID: req.RemoteDesignID,
	}
	if err := h.applyPositions(&tpl, req.NamePosition, req.DatePosition, req.QRPosition, req.TemplateStyles); err != nil {
		httpx.FailErr(c, httpx.ErrValidation(err.Error(), nil))
		return
	}

	if err := h.db.Create(&tpl).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create template", err))
		return
	}
	httpx.OK(c, tpl)
}

// Update handles PUT /api/v1/templates
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var tpl model.CertificateTemplate
	if err := h.db.First(&tpl, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("template not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query template", err))
		return
	}

	if req.Name != nil {
		tpl.Name = *req.Name
	}
	if req.RemoteDesignID != nil {
		tpl.RemoteDesignID = *req.RemoteDesignID
	}
	if err := h.applyPositions(&tpl, req.NamePosition, req.DatePosition, req.QRPosition, req.TemplateStyles); err != nil {
		httpx.FailErr(c, httpx.ErrValidation(err.Error(), nil))
		return
	}

	if err := h.db.Save(&tpl).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to update template", err))
		return
	}
	httpx.OK(c, tpl)
}

// applyPositions canonicalizes and stores the position blocks that are
// present in the request, leaving absent ones untouched.
func (h *Handler) applyPositions(tpl *model.CertificateTemplate, name, date, qr *PositionInput, styles *StylesInput) error {
	if styles != nil {
		encoded, err := encodeStyles(styles)
		if err != nil {
			return err
		}
		tpl.TemplateStyles = encoded
	}

	// Canonicalization for center-origin input falls back to previously
	// stored canvas dimensions when the request carries none
	effective := styles
	if effective == nil {
		stored, err := tpl.Styles()
		if err == nil && stored.EditorCanvasWidth > 0 {
			effective = &StylesInput{
				EditorCanvasWidth:  stored.EditorCanvasWidth,
				EditorCanvasHeight: stored.EditorCanvasHeight,
			}
		}
	}

	set := func(input *PositionInput, target *[]byte, label string) error {
		if input == nil {
			return nil
		}
		pos, err := input.canonicalize(effective)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		encoded, err := encodePosition(pos)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		*target = encoded
		return nil
	}

	if err := set(name, (*[]byte)(&tpl.NamePosition), "namePosition"); err != nil {
		return err
	}
	if err := set(date, (*[]byte)(&tpl.DatePosition), "datePosition"); err != nil {
		return err
	}
	return set(qr, (*[]byte)(&tpl.QRPosition), "qrPosition")
}

// UploadBackground handles POST /api/v1/templates/:id/background
func (h *Handler) UploadBackground(c *gin.Context) {
	var tpl model.CertificateTemplate
	if err := h.db.First(&tpl, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("template not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query template", err))
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("background file missing"))
		return
	}
	if file.Size > maxBackgroundBytes {
		httpx.FailErr(c, httpx.ErrParamIllegal("background file too large"))
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg":
	default:
		httpx.FailErr(c, httpx.ErrParamIllegal("background must be a PNG or JPEG image"))
		return
	}

	src, err := file.Open()
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to open upload", err))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxBackgroundBytes+1))
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to read upload", err))
		return
	}
	if len(data) > maxBackgroundBytes {
		httpx.FailErr(c, httpx.ErrParamIllegal("background file too large"))
		return
	}

	rel := fmt.Sprintf("templates/%d_%d%s", tpl.ID, time.Now().UnixNano(), ext)
	if err := h.store.Put(storage.Private, rel, data); err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to store background", err))
		return
	}

	previous := tpl.FilePath
	if err := h.db.Model(&tpl).Update("file_path", rel).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to update template", err))
		return
	}
	if previous != "" && previous != rel {
		// Old background is replaced, not kept around
		_ = h.store.Delete(storage.Private, previous)
	}

	tpl.FilePath = rel
	httpx.OK(c, tpl)
}

// Delete handles DELETE /api/v1/templates
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var inUse int64
	if err := h.db.Model(&model.Certificate{}).Where("template_id IN ?", req.IDs).Count(&inUse).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to check certificates", err))
		return
	}
	if inUse > 0 {
		httpx.FailErr(c, httpx.ErrStateConflict("template has certificates and cannot be deleted"))
		return
	}

	var templates []model.CertificateTemplate
	if err := h.db.Find(&templates, req.IDs).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query templates", err))
		return
	}

	if err := h.db.Delete(&model.CertificateTemplate{}, req.IDs).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete templates", err))
		return
	}

	for _, tpl := range templates {
		if tpl.FilePath != "" {
			_ = h.store.Delete(storage.Private, tpl.FilePath)
		}
	}
	httpx.OK(c, gin.H{"deleted": len(req.IDs)})
}
