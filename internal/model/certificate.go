package model

import (
	"time"

	"gorm.io/datatypes"
)

// Certificate represents one issued credential
type Certificate struct {
	BaseModel
	UniqueCode        string     `gorm:"column:unique_code;type:varchar(64);uniqueIndex;not null" json:"uniqueCode"`
	VerificationCode  *string    `gorm:"column:verification_code;type:varchar(32);uniqueIndex" json:"verificationCode"`
	VerificationToken *string    `gorm:"column:verification_token;type:varchar(64)" json:"-"`
	ActivityID        int        `gorm:"not null;index" json:"activityId"`
	TemplateID        int        `gorm:"not null;index" json:"templateId"`
	RecipientID       int        `gorm:"column:recipient_id;not null;index" json:"recipientId"`
	SignerID          *int       `gorm:"column:signer_id" json:"signerId"`

	// Snapshot of the participant at issue time, independent of the live user record
	ParticipantName        string `gorm:"type:varchar(255);not null" json:"participantName"`
	ParticipantDescription string `gorm:"type:text" json:"participantDescription"`

	IssueDate  time.Time  `gorm:"column:issue_date;not null" json:"issueDate"`
	ExpiryDate *time.Time `gorm:"column:expiry_date" json:"expiryDate"`
	Status     string     `gorm:"type:varchar(20);not null;default:pending;index" json:"status"`

	QRImagePath    string         `gorm:"column:qr_image_path;type:varchar(512)" json:"qrImagePath"`
	FinalImagePath string         `gorm:"column:final_image_path;type:varchar(512)" json:"finalImagePath"`
	ValidationData datatypes.JSON `gorm:"column:validation_data;type:json" json:"validationData"`

	VerificationCount int        `gorm:"column:verification_count;not null;default:0" json:"verificationCount"`
	LastVerifiedAt    *time.Time `gorm:"column:last_verified_at" json:"lastVerifiedAt"`

	// Render bookkeeping for the asynchronous worker
	RenderAttempts int     `gorm:"column:render_attempts;not null;default:0" json:"renderAttempts"`
	LastError      *string `gorm:"column:last_error;type:varchar(255)" json:"lastError"`
	SendEmail      bool    `gorm:"column:send_email;not null;default:false" json:"sendEmail"`

	Activity    *Activity              `gorm:"foreignKey:ActivityID" json:"activity,omitempty"`
	Template    *CertificateTemplate   `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	Recipient   *User                  `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	Signer      *User                  `gorm:"foreignKey:SignerID" json:"signer,omitempty"`
	Validations []Validation           `gorm:"foreignKey:CertificateID" json:"validations,omitempty"`
	Documents   []CertificateDocument  `gorm:"foreignKey:CertificateID" json:"documents,omitempty"`
}

// TableName specifies the table name for Certificate
func (Certificate) TableName() string {
	return "certificates"
}

// Certificate status constants
const (
	CertificateStatusPending   = "pending"
	CertificateStatusIssued    = "issued"
	CertificateStatusFailed    = "failed"
	CertificateStatusActive    = "active" // legacy alias of issued, kept for imported data
	CertificateStatusRevoked   = "revoked"
	CertificateStatusExpired   = "expired"
	CertificateStatusCancelled = "cancelled"
)

// allowedTransitions defines the one-directional certificate state machine.
// pending moves to a terminal render outcome; issued/active certificates can
// only be closed out by explicit admin action.
var allowedTransitions = map[string][]string{
	CertificateStatusPending: {CertificateStatusIssued, CertificateStatusFailed},
	CertificateStatusIssued:  {CertificateStatusRevoked, CertificateStatusExpired, CertificateStatusCancelled},
	CertificateStatusActive:  {CertificateStatusRevoked, CertificateStatusExpired, CertificateStatusCancelled},
}

// CanTransition reports whether a status change is permitted
func CanTransition(from, to string) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
