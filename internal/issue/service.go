package issue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go_certhub/internal/designapi"
	"go_certhub/internal/mail"
	"go_certhub/internal/model"
	"go_certhub/internal/pdf"
	"go_certhub/internal/qr"
	"go_certhub/internal/render"
	"go_certhub/internal/storage"
	"go_certhub/internal/verification"
	"go_certhub/internal/verify"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventPublisher broadcasts certificate lifecycle events to connected
// clients. A nil publisher disables broadcasting.
type EventPublisher func(eventType string, payload interface{}) error

// Service owns the certificate lifecycle: batch creation, the render
// pipeline, repair-on-read regeneration and status transitions.
type Service struct {
	db          *gorm.DB
	store       storage.Store
	encoder     *qr.Encoder
	compositor  *render.Compositor
	mailer      mail.Mailer
	design      *designapi.Client
	rdb         *redis.Client
	publish     EventPublisher
	publicURL   string
	maxAttempts int
	logger      *logrus.Entry
}

// NewService creates the lifecycle service. mailer, design, rdb and publish
// are optional; pass nil to disable the corresponding side effect.
func NewService(
	db *gorm.DB,
	store storage.Store,
	encoder *qr.Encoder,
	compositor *render.Compositor,
	mailer mail.Mailer,
	design *designapi.Client,
	rdb *redis.Client,
	publish EventPublisher,
	publicURL string,
	maxAttempts int,
	logger *logrus.Entry,
) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		db:          db,
		store:       store,
		encoder:     encoder,
		compositor:  compositor,
		mailer:      mailer,
		design:      design,
		rdb:         rdb,
		publish:     publish,
		publicURL:   publicURL,
		maxAttempts: maxAttempts,
		logger:      logger.WithField("component", "issue"),
	}
}

// BatchRecipient describes one certificate to create in a batch
type BatchRecipient struct {
	UserID      int
	Name        string
	Description string
	ExpiryDate  *time.Time
}

// IssueBatch creates pending certificates for each recipient. Rendering
// happens asynchronously in the worker; the returned rows are in status
// pending with their immutable unique codes already assigned.
func (s *Service) IssueBatch(activityID, templateID int, recipients []BatchRecipient, sendEmail bool) ([]model.Certificate, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("batch has no recipients")
	}

	var activity model.Activity
	if err := s.db.First(&activity, activityID).Error; err != nil {
		return nil, fmt.Errorf("activity %d not found: %w", activityID, err)
	}
	var tpl model.CertificateTemplate
	if err := s.db.First(&tpl, templateID).Error; err != nil {
		return nil, fmt.Errorf("template %d not found: %w", templateID, err)
	}

	certs := make([]model.Certificate, 0, len(recipients))
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, r := range recipients {
			name := strings.TrimSpace(r.Name)
			if name == "" {
				var user model.User
				if err := tx.First(&user, r.UserID).Error; err != nil {
					return fmt.Errorf("recipient %d not found: %w", r.UserID, err)
				}
				name = user.FullName
			}

			cert := model.Certificate{
				UniqueCode:             verify.UniqueCode(),
				ActivityID:             activityID,
				TemplateID:             templateID,
				RecipientID:            r.UserID,
				ParticipantName:        name,
				ParticipantDescription: r.Description,
				IssueDate:              time.Now(),
				ExpiryDate:             r.ExpiryDate,
				Status:                 model.CertificateStatusPending,
				SendEmail:              sendEmail,
			}
			if err := tx.Create(&cert).Error; err != nil {
				return fmt.Errorf("failed to create certificate for recipient %d: %w", r.UserID, err)
			}
			certs = append(certs, cert)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"activity_id": activityID,
		"count":       len(certs),
	}).Info("Certificate batch created")
	return certs, nil
}

// GetPendingCertificates returns certificates that still need rendering
func (s *Service) GetPendingCertificates(limit int) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := s.db.
		Where("status = ?", model.CertificateStatusPending).
		Where("render_attempts < ?", s.maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&certs).Error
	return certs, err
}

// ClaimForRender bumps render_attempts under an optimistic lock so exactly
// one worker processes a certificate per tick.
func (s *Service) ClaimForRender(certID int) error {
	result := s.db.
		Model(&model.Certificate{}).
		Where("id = ? AND status = ? AND render_attempts < ?", certID, model.CertificateStatusPending, s.maxAttempts).
		Update("render_attempts", gorm.Expr("render_attempts + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("certificate %d already claimed or no longer pending", certID)
	}
	return nil
}

// Process renders one claimed certificate end to end. Returns the final
// status written to the row.
func (s *Service) Process(ctx context.Context, cert *model.Certificate) error {
	log := s.logger.WithField("certificate_id", cert.ID)

	if err := s.db.
		Preload("Template").
		Preload("Recipient").
		Preload("Activity").
		First(cert, cert.ID).Error; err != nil {
		return s.markFailed(cert, fmt.Sprintf("failed to load certificate: %v", err), true)
	}

	tpl := cert.Template
	if tpl == nil || !tpl.HasDesign() {
		// No design will ever appear by retrying
		return s.markFailed(cert, "template has no design", true)
	}

	if err := s.ensureVerification(cert); err != nil {
		return s.markFailed(cert, fmt.Sprintf("failed to assign verification code: %v", err), false)
	}
	verifyURL := s.VerifyURL(*cert.VerificationCode)

	var pdfData []byte
	var docKind string
	if tpl.RemoteDesignID != "" && s.design != nil && s.design.Enabled() {
		data, err := s.renderRemote(ctx, cert, tpl, verifyURL)
		if err != nil {
			return s.markFailed(cert, fmt.Sprintf("remote render failed: %v", err), false)
		}
		pdfData, docKind = data, model.DocumentKindRemotePDF
	} else {
		data, err := s.renderLocal(cert, tpl, verifyURL)
		if err != nil {
			return s.markFailed(cert, fmt.Sprintf("render failed: %v", err), false)
		}
		pdfData, docKind = data, model.DocumentKindPDF
	}

	if _, err := s.storeDocument(cert, pdfData, docKind); err != nil {
		return s.markFailed(cert, fmt.Sprintf("failed to persist document: %v", err), false)
	}

	if err := s.markIssued(cert); err != nil {
		return err
	}
	log.Info("Certificate issued")

	s.afterIssue(ctx, cert, verifyURL, pdfData)
	return nil
}

// ensureVerification assigns the verification code and token once. A
// duplicate code collision is retried a single time with fresh randomness.
func (s *Service) ensureVerification(cert *model.Certificate) error {
	if cert.VerificationCode != nil && *cert.VerificationCode != "" {
		return nil
	}

	var lastErr error
	for i := 0; i < 2; i++ {
		code, err := verify.Code(cert.ID)
		if err != nil {
			return err
		}
		token, err := verify.Token()
		if err != nil {
			return err
		}

		err = s.db.Model(&model.Certificate{}).
			Where("id = ?", cert.ID).
			Updates(map[string]interface{}{
				"verification_code":  code,
				"verification_token": token,
			}).Error
		if err == nil {
			cert.VerificationCode = &code
			cert.VerificationToken = &token
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (s *Service) renderLocal(cert *model.Certificate, tpl *model.CertificateTemplate, verifyURL string) ([]byte, error) {
	qrPath, err := s.encoder.Generate(cert.ID, verifyURL)
	if err != nil {
		return nil, err
	}

	finalPath, err := s.compositor.Compose(cert, tpl, qrPath)
	if err != nil {
		return nil, err
	}

	imageData, err := s.store.Get(storage.Public, finalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read final image: %w", err)
	}
	pdfData, err := pdf.Wrap(imageData)
	if err != nil {
		return nil, err
	}

	err = s.db.Model(&model.Certificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]interface{}{
			"qr_image_path":    qrPath,
			"final_image_path": finalPath,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to record artifact paths: %w", err)
	}
	cert.QRImagePath = qrPath
	cert.FinalImagePath = finalPath
	return pdfData, nil
}

func (s *Service) renderRemote(ctx context.Context, cert *model.Certificate, tpl *model.CertificateTemplate, verifyURL string) ([]byte, error) {
	docURL, err := s.design.Render(ctx, tpl.RemoteDesignID, map[string]string{
		"participant_name": cert.ParticipantName,
		"issue_date":       cert.IssueDate.Format("02/01/2006"),
		"verification_url": verifyURL,
	})
	if err != nil {
		return nil, err
	}
	return s.design.Download(ctx, docURL)
}

func (s *Service) storeDocument(cert *model.Certificate, pdfData []byte, kind string) (*model.CertificateDocument, error) {
	rel := fmt.Sprintf("certificates/pdf/%d_%d.pdf", cert.ID, time.Now().UnixNano())
	if err := s.store.Put(storage.Private, rel, pdfData); err != nil {
		return nil, err
	}

	doc := &model.CertificateDocument{
		CertificateID: cert.ID,
		Kind:          kind,
		FilePath:      rel,
		SizeBytes:     int64(len(pdfData)),
	}
	if err := s.db.Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) markIssued(cert *model.Certificate) error {
	err := s.db.Model(&model.Certificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]interface{}{
			"status":     model.CertificateStatusIssued,
			"last_error": "",
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark certificate %d issued: %w", cert.ID, err)
	}
	cert.Status = model.CertificateStatusIssued
	return nil
}

// markFailed records the error. Permanent failures and exhausted retries go
// to failed; transient ones stay pending for the next tick.
func (s *Service) markFailed(cert *model.Certificate, lastError string, permanent bool) error {
	var current model.Certificate
	if err := s.db.First(&current, cert.ID).Error; err != nil {
		return err
	}

	status := model.CertificateStatusPending
	if permanent || current.RenderAttempts >= s.maxAttempts {
		status = model.CertificateStatusFailed
	}

	if len(lastError) > 255 {
		lastError = lastError[:255]
	}

	s.logger.WithFields(logrus.Fields{
		"certificate_id": cert.ID,
		"attempts":       current.RenderAttempts,
		"status":         status,
	}).WithField("error", lastError).Warn("Certificate render failed")

	err := s.db.Model(&model.Certificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": lastError,
		}).Error
	if err != nil {
		return err
	}
	cert.Status = status
	return fmt.Errorf("%s", lastError)
}

// afterIssue runs the non-critical side effects of a successful render
func (s *Service) afterIssue(ctx context.Context, cert *model.Certificate, verifyURL string, pdfData []byte) {
	log := s.logger.WithField("certificate_id", cert.ID)

	s.invalidateCache(ctx, cert)

	if s.publish != nil {
		if err := s.publish("issued", cert); err != nil {
			log.WithError(err).Warn("Failed to publish issue event")
		}
	}

	if cert.SendEmail && s.mailer != nil && cert.Recipient != nil && cert.Recipient.Email != "" {
		filename := fmt.Sprintf("certificado-%s.pdf", cert.UniqueCode)
		if err := s.mailer.SendCertificate(cert.Recipient.Email, cert.ParticipantName, verifyURL, pdfData, filename); err != nil {
			log.WithError(err).Warn("Failed to send certificate mail")
		}
	}
}

// CertificatePDF returns the stored PDF for a certificate, regenerating
// missing artifacts on the fly so a wiped storage directory heals itself.
func (s *Service) CertificatePDF(ctx context.Context, cert *model.Certificate) ([]byte, error) {
	var doc model.CertificateDocument
	err := s.db.
		Where("certificate_id = ?", cert.ID).
		Order("id DESC").
		First(&doc).Error
	if err == nil && s.store.Exists(storage.Private, doc.FilePath) {
		return s.store.Get(storage.Private, doc.FilePath)
	}
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, err
	}

	return s.regenerate(ctx, cert)
}

// regenerate rebuilds the artifact chain for an already-issued certificate
func (s *Service) regenerate(ctx context.Context, cert *model.Certificate) ([]byte, error) {
	log := s.logger.WithField("certificate_id", cert.ID)
	log.Info("Regenerating missing certificate artifacts")

	if err := s.db.Preload("Template").First(cert, cert.ID).Error; err != nil {
		return nil, err
	}
	tpl := cert.Template
	if tpl == nil || !tpl.HasDesign() {
		return nil, fmt.Errorf("certificate %d has no renderable template", cert.ID)
	}
	if cert.VerificationCode == nil || *cert.VerificationCode == "" {
		if err := s.ensureVerification(cert); err != nil {
			return nil, err
		}
	}
	verifyURL := s.VerifyURL(*cert.VerificationCode)

	if tpl.RemoteDesignID != "" && s.design != nil && s.design.Enabled() {
		pdfData, err := s.renderRemote(ctx, cert, tpl, verifyURL)
		if err != nil {
			return nil, err
		}
		if _, err := s.storeDocument(cert, pdfData, model.DocumentKindRemotePDF); err != nil {
			return nil, err
		}
		return pdfData, nil
	}

	pdfData, err := s.renderLocal(cert, tpl, verifyURL)
	if err != nil {
		return nil, err
	}
	if _, err := s.storeDocument(cert, pdfData, model.DocumentKindPDF); err != nil {
		return nil, err
	}
	return pdfData, nil
}

// EnsureFinalImage returns the final image path, recomposing it when the
// stored file has gone missing.
func (s *Service) EnsureFinalImage(cert *model.Certificate) (string, error) {
	if cert.FinalImagePath != "" && s.store.Exists(storage.Public, cert.FinalImagePath) {
		return cert.FinalImagePath, nil
	}

	if err := s.db.Preload("Template").First(cert, cert.ID).Error; err != nil {
		return "", err
	}
	tpl := cert.Template
	if tpl == nil || tpl.FilePath == "" {
		return "", fmt.Errorf("certificate %d has no local template background", cert.ID)
	}

	qrPath := cert.QRImagePath
	if qrPath == "" || !s.store.Exists(storage.Public, qrPath) {
		if cert.VerificationCode == nil {
			if err := s.ensureVerification(cert); err != nil {
				return "", err
			}
		}
		regenerated, err := s.encoder.Generate(cert.ID, s.VerifyURL(*cert.VerificationCode))
		if err != nil {
			return "", err
		}
		qrPath = regenerated
	}

	finalPath, err := s.compositor.Compose(cert, tpl, qrPath)
	if err != nil {
		return "", err
	}

	err = s.db.Model(&model.Certificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]interface{}{
			"qr_image_path":    qrPath,
			"final_image_path": finalPath,
		}).Error
	if err != nil {
		return "", err
	}
	cert.QRImagePath = qrPath
	cert.FinalImagePath = finalPath
	return finalPath, nil
}

// Transition moves a certificate between lifecycle states, enforcing the
// state machine.
func (s *Service) Transition(ctx context.Context, certID int, to string) (*model.Certificate, error) {
	var cert model.Certificate
	if err := s.db.First(&cert, certID).Error; err != nil {
		return nil, err
	}

	if !model.CanTransition(cert.Status, to) {
		return nil, fmt.Errorf("cannot transition certificate %d from %s to %s", certID, cert.Status, to)
	}

	if err := s.db.Model(&cert).Update("status", to).Error; err != nil {
		return nil, err
	}
	cert.Status = to

	s.invalidateCache(ctx, &cert)
	if s.publish != nil {
		if err := s.publish(to, &cert); err != nil {
			s.logger.WithError(err).Warn("Failed to publish transition event")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"certificate_id": certID,
		"status":         to,
	}).Info("Certificate transitioned")
	return &cert, nil
}

// RetryFailed resets a failed certificate to pending for another render
// round. Attempt history is preserved but the counter restarts.
func (s *Service) RetryFailed(certID int) error {
	result := s.db.Model(&model.Certificate{}).
		Where("id = ? AND status = ?", certID, model.CertificateStatusFailed).
		Updates(map[string]interface{}{
			"status":          model.CertificateStatusPending,
			"render_attempts": 0,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("certificate %d is not in failed state", certID)
	}
	return nil
}

// VerifyURL builds the public verification link for a code
func (s *Service) VerifyURL(code string) string {
	return strings.TrimRight(s.publicURL, "/") + "/verificar/" + code
}

func (s *Service) invalidateCache(ctx context.Context, cert *model.Certificate) {
	if s.rdb == nil || cert.VerificationCode == nil {
		return
	}
	if err := s.rdb.Del(ctx, verification.CacheKey(*cert.VerificationCode)).Err(); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate verification cache")
	}
}
