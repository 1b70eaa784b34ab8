package model

import "time"

// Validation is an append-only audit record of a public verification attempt.
// Rows are never updated or deleted under normal operation.
type Validation struct {
	ID             int       `gorm:"primaryKey;autoIncrement" json:"id"`
	CertificateID  int       `gorm:"not null;index" json:"certificateId"`
	ValidationCode string    `gorm:"column:validation_code;type:varchar(64);not null" json:"validationCode"`
	RequesterIP    string    `gorm:"column:requester_ip;type:varchar(64)" json:"requesterIp"`
	UserAgent      string    `gorm:"column:user_agent;type:varchar(512)" json:"userAgent"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName specifies the table name for Validation
func (Validation) TableName() string {
	return "validations"
}
