package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go_certhub/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no certificate matches a verification code
var ErrNotFound = errors.New("certificate not found")

// cacheTTL bounds how stale a public verification view can be
const cacheTTL = 5 * time.Minute

// CacheKey returns the redis key for a verification code lookup
func CacheKey(code string) string {
	return "verify:code:" + code
}

// Service answers public verification queries and records validation events.
// The redis client is optional; a nil client disables caching.
type Service struct {
	db        *gorm.DB
	rdb       *redis.Client
	publicURL string
	logger    *logrus.Entry
}

func NewService(db *gorm.DB, rdb *redis.Client, publicURL string, logger *logrus.Entry) *Service {
	return &Service{
		db:        db,
		rdb:       rdb,
		publicURL: publicURL,
		logger:    logger.WithField("component", "verification"),
	}
}

// CertificateView is the public shape of a verified certificate. Status is
// mirrored under the legacy "estado" key for older consumers.
type CertificateView struct {
	UniqueCode        string  `json:"uniqueCode"`
	VerificationCode  string  `json:"verificationCode"`
	ParticipantName   string  `json:"participantName"`
	ActivityName      string  `json:"activityName"`
	TemplateName      string  `json:"templateName,omitempty"`
	CompanyName       string  `json:"companyName,omitempty"`
	Description       string  `json:"description,omitempty"`
	IssueDate         string  `json:"issueDate"`
	ExpiryDate        string  `json:"expiryDate,omitempty"`
	Status            string  `json:"status"`
	Estado            string  `json:"estado"`
	SignerName        string  `json:"signerName,omitempty"`
	FinalImageURL     string  `json:"finalImageUrl,omitempty"`
	VerificationCount int     `json:"verificationCount"`
	LastVerifiedAt    *string `json:"lastVerifiedAt,omitempty"`
}

// Lookup resolves a verification code to its public view, serving from the
// redis cache when possible.
func (s *Service) Lookup(ctx context.Context, code string) (*CertificateView, error) {
	if code == "" {
		return nil, ErrNotFound
	}

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, CacheKey(code)).Bytes(); err == nil {
			var view CertificateView
			if err := json.Unmarshal(cached, &view); err == nil {
				return &view, nil
			}
		}
	}

	cert, err := s.findByCode(code)
	if err != nil {
		return nil, err
	}
	view := s.buildView(cert)

	if s.rdb != nil {
		if payload, err := json.Marshal(view); err == nil {
			if err := s.rdb.Set(ctx, CacheKey(code), payload, cacheTTL).Err(); err != nil {
				s.logger.WithError(err).Warn("Failed to cache verification view")
			}
		}
	}
	return view, nil
}

// Validate records a verification event and returns the refreshed view.
// The counter increment is a single atomic UPDATE so concurrent validations
// never lose counts.
func (s *Service) Validate(ctx context.Context, code, requesterIP, userAgent string) (*CertificateView, error) {
	cert, err := s.findByCode(code)
	if err != nil {
		return nil, err
	}

	audit := model.Validation{
		CertificateID:  cert.ID,
		ValidationCode: code,
		RequesterIP:    requesterIP,
		UserAgent:      userAgent,
	}
	if err := s.db.Create(&audit).Error; err != nil {
		return nil, fmt.Errorf("failed to record validation: %w", err)
	}

	now := time.Now()
	err = s.db.Model(&model.Certificate{}).
		Where("id = ?", cert.ID).
		Updates(map[string]interface{}{
			"verification_count": gorm.Expr("verification_count + 1"),
			"last_verified_at":   now,
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update verification counter: %w", err)
	}

	cert.VerificationCount++
	cert.LastVerifiedAt = &now

	// The cached view now undercounts; drop it so the next lookup refreshes
	if s.rdb != nil {
		if err := s.rdb.Del(ctx, CacheKey(code)).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate verification cache")
		}
	}

	return s.buildView(cert), nil
}

// FindByUniqueCode resolves a certificate by its immutable unique code,
// with the relations the public pages need preloaded.
func (s *Service) FindByUniqueCode(uniqueCode string) (*model.Certificate, error) {
	var cert model.Certificate
	err := s.db.
		Preload("Activity").
		Preload("Activity.Company").
		Preload("Template").
		Preload("Recipient").
		Preload("Signer").
		Where("unique_code = ?", uniqueCode).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (s *Service) findByCode(code string) (*model.Certificate, error) {
	var cert model.Certificate
	err := s.db.
		Preload("Activity").
		Preload("Activity.Company").
		Preload("Template").
		Preload("Recipient").
		Preload("Signer").
		Where("verification_code = ?", code).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (s *Service) buildView(cert *model.Certificate) *CertificateView {
	view := &CertificateView{
		UniqueCode:        cert.UniqueCode,
		ParticipantName:   cert.ParticipantName,
		Description:       cert.ParticipantDescription,
		IssueDate:         cert.IssueDate.Format("02/01/2006"),
		Status:            cert.Status,
		Estado:            cert.Status,
		VerificationCount: cert.VerificationCount,
	}
	if cert.VerificationCode != nil {
		view.VerificationCode = *cert.VerificationCode
	}
	if cert.ExpiryDate != nil {
		view.ExpiryDate = cert.ExpiryDate.Format("02/01/2006")
	}
	if cert.LastVerifiedAt != nil {
		ts := cert.LastVerifiedAt.Format("02/01/2006 15:04")
		view.LastVerifiedAt = &ts
	}
	if cert.Activity != nil {
		view.ActivityName = cert.Activity.Name
		if cert.Activity.Company != nil {
			view.CompanyName = cert.Activity.Company.Name
		}
	}
	if cert.Template != nil {
		view.TemplateName = cert.Template.Name
	}
	if cert.Signer != nil {
		view.SignerName = cert.Signer.FullName
	}
	if cert.FinalImagePath != "" {
		view.FinalImageURL = s.publicURL + "/storage/" + cert.FinalImagePath
	}
	return view
}
