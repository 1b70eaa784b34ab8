package certificates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go_certhub/internal/httpx"
	"go_certhub/internal/issue"
	"go_certhub/internal/model"
	"go_certhub/internal/sharelink"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// shareTokenTTL bounds how long an unused share link stays valid
const shareTokenTTL = 24 * time.Hour

// BatchRecipientInput is one recipient row in a batch issue request
type BatchRecipientInput struct {
	UserID      int        `json:"userId" binding:"required"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ExpiryDate  *time.Time `json:"expiryDate"`
}

// BatchRequest represents a batch issue request
type BatchRequest struct {
	ActivityID int                   `json:"activityId" binding:"required"`
	TemplateID int                   `json:"templateId" binding:"required"`
	Recipients []BatchRecipientInput `json:"recipients" binding:"required,min=1"`
	SendEmail  bool                  `json:"sendEmail"`
}

// ListRequest represents list certificates request
type ListRequest struct {
	Page        int    `form:"page"`
	PageSize    int    `form:"pageSize"`
	ActivityID  *int   `form:"activityId"`
	RecipientID *int   `form:"recipientId"`
	Status      string `form:"status"`
	Search      string `form:"search"`
}

// TransitionRequest represents a lifecycle transition request
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// Handler handles certificates API
type Handler struct {
	db        *gorm.DB
	service   *issue.Service
	worker    *issue.Worker
	share     *sharelink.Store
	publicURL string
}

// NewHandler creates a new certificates handler. worker may be nil when the
// render worker runs out of process; share may be nil when redis is not
// available.
func NewHandler(db *gorm.DB, service *issue.Service, worker *issue.Worker, share *sharelink.Store, publicURL string) *Handler {
	return &Handler{db: db, service: service, worker: worker, share: share, publicURL: publicURL}
}

// Batch handles POST /api/v1/certificates/batch
func (h *Handler) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	recipients := make([]issue.BatchRecipient, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		recipients = append(recipients, issue.BatchRecipient{
			UserID:      r.UserID,
			Name:        r.Name,
			Description: r.Description,
			ExpiryDate:  r.ExpiryDate,
		})
	}

	certs, err := h.service.IssueBatch(req.ActivityID, req.TemplateID, recipients, req.SendEmail)
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamIllegal(err.Error()))
		return
	}

	// Rendering is asynchronous; wake the worker so small batches finish fast
	if h.worker != nil {
		h.worker.Kick()
	}

	httpx.OK(c, gin.H{
		"created":      len(certs),
		"certificates": certs,
	})
}

// List handles GET /api/v1/certificates
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

	query := h.db.Model(&model.Certificate{})
	if req.ActivityID != nil {
		query = query.Where("activity_id = ?", *req.ActivityID)
	}
	if req.RecipientID != nil {
		query = query.Where("recipient_id = ?", *req.RecipientID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("participant_name LIKE ? OR unique_code LIKE ? OR verification_code LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count certificates", err))
		return
	}

	var certs []model.Certificate
	offset := (req.Page - 1) * req.PageSize
	err := query.
		Preload("Activity").
		Preload("Recipient").
		Order("id DESC").
		Offset(offset).
		Limit(req.PageSize).
		Find(&certs).Error
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query certificates", err))
		return
	}

	httpx.OKItems(c, certs, total, req.Page, req.PageSize)
}

// Get handles GET /api/v1/certificates/:id
func (h *Handler) Get(c *gin.Context) {
	var cert model.Certificate
	err := h.db.
		Preload("Activity").
		Preload("Activity.Company").
		Preload("Template").
		Preload("Recipient").
		Preload("Signer").
		Preload("Documents").
		Preload("Validations").
		First(&cert, c.Param("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("certificate not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query certificate", err))
		return
	}
	httpx.OK(c, cert)
}

// Transition handles POST /api/v1/certificates/:id/transition
func (h *Handler) Transition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var cert model.Certificate
	if err := h.db.First(&cert, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("certificate not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query certificate", err))
		return
	}

	updated, err := h.service.Transition(c.Request.Context(), cert.ID, req.Status)
	if err != nil {
		httpx.FailErr(c, httpx.ErrStateConflict(err.Error()))
		return
	}
	httpx.OK(c, updated)
}

// Retry handles POST /api/v1/certificates/:id/retry
func (h *Handler) Retry(c *gin.Context) {
	var cert model.Certificate
	if err := h.db.First(&cert, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("certificate not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query certificate", err))
		return
	}

	if err := h.service.RetryFailed(cert.ID); err != nil {
		httpx.FailErr(c, httpx.ErrStateConflict(err.Error()))
		return
	}
	if h.worker != nil {
		h.worker.Kick()
	}
	httpx.OK(c, gin.H{"id": cert.ID, "status": model.CertificateStatusPending})
}

// Share handles POST /api/v1/certificates/:id/share
// Issues a single-use unauthenticated download link for the PDF.
func (h *Handler) Share(c *gin.Context) {
	if h.share == nil {
		httpx.FailErr(c, httpx.ErrInternalError("share links unavailable", nil))
		return
	}

	var cert model.Certificate
	if err := h.db.First(&cert, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("certificate not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query certificate", err))
		return
	}
	if cert.Status != model.CertificateStatusIssued && cert.Status != model.CertificateStatusActive {
		httpx.FailErr(c, httpx.ErrStateConflict("certificate is not issued"))
		return
	}

	token, err := h.share.CreateToken(c.Request.Context(), cert.ID, shareTokenTTL)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to create share link", err))
		return
	}

	httpx.OK(c, gin.H{
		"token":     token,
		"url":       strings.TrimRight(h.publicURL, "/") + "/api/public/descarga/" + token,
		"expiresIn": int(shareTokenTTL.Seconds()),
	})
}

// DownloadPDF handles GET /api/v1/certificates/:id/pdf
func (h *Handler) DownloadPDF(c *gin.Context) {
	var cert model.Certificate
	if err := h.db.First(&cert, c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("certificate not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query certificate", err))
		return
	}

	data, err := h.service.CertificatePDF(c.Request.Context(), &cert)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to produce certificate PDF", err))
		return
	}

	filename := fmt.Sprintf("certificado-%s.pdf", cert.UniqueCode)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(200, "application/pdf", data)
}
