package users

import (
	"errors"

	"go_certhub/internal/auth"
	"go_certhub/internal/httpx"
	"go_certhub/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListRequest represents list users request
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Search   string `form:"search"`
	Role     string `form:"role"`
	Status   string `form:"status"`
}

// CreateRequest represents create user request
type CreateRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"fullName" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Role     string `json:"role"`
}

// UpdateRequest represents update user request
type UpdateRequest struct {
	ID       int     `json:"id" binding:"required"`
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
	Password *string `json:"password"`
}

// DeleteRequest represents delete users request
type DeleteRequest struct {
	IDs []int `json:"ids" binding:"required,min=1"`
}

// UserItem is the list/detail shape; the password hash never leaves the server
type UserItem struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// Handler handles users API
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new users handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func toItem(u *model.User) UserItem {
	return UserItem{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     u.Role,
		Status:   string(u.Status),
	}
}

// List handles GET /api/v1/users
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

	query := h.db.Model(&model.User{})
	if req.Search != "" {
		like := "%" + req.Search + "%"
		query = query.Where("username LIKE ? OR full_name LIKE ? OR email LIKE ?", like, like, like)
	}
	if req.Role != "" {
		query = query.Where("role = ?", req.Role)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count users", err))
		return
	}

	var users []model.User
	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("id DESC").Offset(offset).Limit(req.PageSize).Find(&users).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query users", err))
		return
	}

	items := make([]UserItem, 0, len(users))
	for i := range users {
		items = append(items, toItem(&users[i]))
	}
	httpx.OKItems(c, items, total, req.Page, req.PageSize)
}

// Create handles POST /api/v1/users
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	if req.Role == "" {
		req.Role = model.RoleParticipant
	}
	if req.Role != model.RoleAdmin && req.Role != model.RoleOperator && req.Role != model.RoleParticipant {
		httpx.FailErr(c, httpx.ErrParamIllegal("unknown role"))
		return
	}

	var existing model.User
	if err := h.db.Where("username = ?", req.Username).First(&existing).Error; err == nil {
		httpx.FailErr(c, httpx.ErrAlreadyExists("username already taken"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to hash password", err))
		return
	}

	user := model.User{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Email:        req.Email,
		Role:         req.Role,
		Status:       model.UserStatusActive,
	}
	if err := h.db.Create(&user).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create user", err))
		return
	}

	httpx.OK(c, toItem(&user))
}

// Update handles PUT /api/v1/users
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	var user model.User
	if err := h.db.First(&user, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("user not found"))
			return
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query user", err))
		return
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Role != nil {
		if *req.Role != model.RoleAdmin && *req.Role != model.RoleOperator && *req.Role != model.RoleParticipant {
			httpx.FailErr(c, httpx.ErrParamIllegal("unknown role"))
			return
		}
		updates["role"] = *req.Role
	}
	if req.Status != nil {
		if *req.Status != string(model.UserStatusActive) && *req.Status != string(model.UserStatusInactive) {
			httpx.FailErr(c, httpx.ErrParamIllegal("unknown status"))
			return
		}
		updates["status"] = *req.Status
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			httpx.FailErr(c, httpx.ErrParamIllegal("password too short"))
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			httpx.FailErr(c, httpx.ErrInternalError("failed to hash password", err))
			return
		}
		updates["password_hash"] = hash
	}

	if len(updates) == 0 {
		httpx.OK(c, toItem(&user))
		return
	}

	if err := h.db.Model(&user).Updates(updates).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to update user", err))
		return
	}
	httpx.OK(c, toItem(&user))
}

// Delete handles DELETE /api/v1/users
func (h *Handler) Delete(c *gin.Context) {
	var req DeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	// Recipients of issued certificates stay; the snapshot on the
	// certificate keeps history intact, but blocking the delete avoids
	// dangling recipient ids.
	var inUse int64
	if err := h.db.Model(&model.Certificate{}).Where("recipient_id IN ?", req.IDs).Count(&inUse).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to check certificates", err))
		return
	}
	if inUse > 0 {
		httpx.FailErr(c, httpx.ErrStateConflict("user has certificates and cannot be deleted"))
		return
	}

	if err := h.db.Delete(&model.User{}, req.IDs).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to delete users", err))
		return
	}
	httpx.OK(c, gin.H{"deleted": len(req.IDs)})
}
