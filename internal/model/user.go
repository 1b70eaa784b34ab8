package model

// UserStatus represents user status
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User roles
const (
	RoleAdmin       = "admin"
	RoleOperator    = "operator"
	RoleParticipant = "participant"
)

// User represents a user in the system
type User struct {
	BaseModel
	Username     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	FullName     string     `gorm:"type:varchar(255);not null" json:"fullName"`
	Email        string     `gorm:"type:varchar(255);index;not null" json:"email"`
	Role         string     `gorm:"type:varchar(32);default:'participant'" json:"role"`
	Status       UserStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
}

// TableName specifies the table name for User model
func (User) TableName() string {
	return "users"
}
