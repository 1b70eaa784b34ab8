package model

// Company represents an organization that runs certificate-issuing activities
type Company struct {
	BaseModel
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	LegalID      string `gorm:"column:legal_id;type:varchar(64)" json:"legalId"`
	ContactEmail string `gorm:"type:varchar(255)" json:"contactEmail"`

	Activities []Activity `gorm:"foreignKey:CompanyID" json:"activities,omitempty"`
}

// TableName specifies the table name for Company
func (Company) TableName() string {
	return "companies"
}
