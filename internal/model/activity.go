package model

import "time"

// Activity represents an event or course that certificates are issued for
type Activity struct {
	BaseModel
	CompanyID   int        `gorm:"not null;index" json:"companyId"`
	Name        string     `gorm:"type:varchar(255);not null" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	StartsAt    *time.Time `gorm:"column:starts_at" json:"startsAt"`
	EndsAt      *time.Time `gorm:"column:ends_at" json:"endsAt"`

	Company *Company `gorm:"foreignKey:CompanyID" json:"company,omitempty"`
}

// TableName specifies the table name for Activity
func (Activity) TableName() string {
	return "activities"
}
