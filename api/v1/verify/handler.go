package verify

import (
	"errors"
	"fmt"
	"net/http"

	"go_certhub/internal/issue"
	"go_certhub/internal/model"
	"go_certhub/internal/sharelink"
	"go_certhub/internal/storage"
	"go_certhub/internal/verification"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler serves the public, unauthenticated verification surface. Its
// response shape is the legacy {success, ...} envelope rather than the
// admin API envelope, because the public site consumes it as-is.
type Handler struct {
	db           *gorm.DB
	verification *verification.Service
	issue        *issue.Service
	store        storage.Store
	share        *sharelink.Store
}

// NewHandler creates a new public verification handler. share may be nil
// when redis is not available.
func NewHandler(db *gorm.DB, verificationSvc *verification.Service, issueSvc *issue.Service, store storage.Store, share *sharelink.Store) *Handler {
	return &Handler{
		db:           db,
		verification: verificationSvc,
		issue:        issueSvc,
		store:        store,
		share:        share,
	}
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"message": "Certificado no encontrado",
	})
}

// Lookup handles GET /api/public/verificar/:code
// Read-only: it does not count as a validation event.
func (h *Handler) Lookup(c *gin.Context) {
	view, err := h.verification.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, verification.ErrNotFound) {
			notFound(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Error interno",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"certificate": view,
	})
}

// Validate handles POST /api/public/verificar/:code
// Records the validation audit row and bumps the verification counter.
func (h *Handler) Validate(c *gin.Context) {
	view, err := h.verification.Validate(c.Request.Context(), c.Param("code"), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, verification.ErrNotFound) {
			notFound(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Error interno",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"certificate": view,
	})
}

// DownloadPDF handles GET /api/public/certificados/:uniqueCode/descargar
// Missing artifacts are regenerated before serving.
func (h *Handler) DownloadPDF(c *gin.Context) {
	cert, err := h.verification.FindByUniqueCode(c.Param("uniqueCode"))
	if err != nil {
		if errors.Is(err, verification.ErrNotFound) {
			notFound(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Error interno",
		})
		return
	}

	data, err := h.issue.CertificatePDF(c.Request.Context(), cert)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "No se pudo generar el certificado",
		})
		return
	}

	filename := fmt.Sprintf("certificado-%s.pdf", cert.UniqueCode)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// SharedDownload handles GET /api/public/descarga/:token
// Consumes a single-use share token; a second request with the same token
// gets a 404.
func (h *Handler) SharedDownload(c *gin.Context) {
	if h.share == nil {
		notFound(c)
		return
	}

	certID, err := h.share.ConsumeToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		notFound(c)
		return
	}

	var cert model.Certificate
	if err := h.db.First(&cert, certID).Error; err != nil {
		notFound(c)
		return
	}

	data, err := h.issue.CertificatePDF(c.Request.Context(), &cert)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "No se pudo generar el certificado",
		})
		return
	}

	filename := fmt.Sprintf("certificado-%s.pdf", cert.UniqueCode)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Image handles GET /api/public/certificados/:uniqueCode/imagen
// Serves the flattened certificate image, recomposing it when missing.
func (h *Handler) Image(c *gin.Context) {
	cert, err := h.verification.FindByUniqueCode(c.Param("uniqueCode"))
	if err != nil {
		if errors.Is(err, verification.ErrNotFound) {
			notFound(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Error interno",
		})
		return
	}

	path, err := h.issue.EnsureFinalImage(cert)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "No se pudo generar la imagen",
		})
		return
	}

	data, err := h.store.Get(storage.Public, path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "No se pudo leer la imagen",
		})
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}
