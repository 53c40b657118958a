package admin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	SystemRole string `json:"system_role"`
	Active     bool   `json:"active"`
	SsoOnly    bool   `json:"sso_only"`
	CreatedAt  string `json:"created_at"`
	GroupCount int64  `json:"group_count"`
	OrgCount   int64  `json:"org_count"`
}

// CreateUserRequest represents the request to create a user. Users without a
// password can only sign in through SSO.
type CreateUserRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Name       string `json:"name" binding:"required,min=1,max=100"`
	Password   string `json:"password" binding:"omitempty,min=8"`
	SystemRole string `json:"system_role" binding:"omitempty,oneof=admin user"`
}

// UpdateUserRequest represents the request to update a user
type UpdateUserRequest struct {
	Name       *string `json:"name"`
	SystemRole *string `json:"system_role"`
	Active     *bool   `json:"active"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers         int64 `json:"total_users"`
	ActiveUsers        int64 `json:"active_users"`
	SsoOnlyUsers       int64 `json:"sso_only_users"`
	AdminUsers         int64 `json:"admin_users"`
	TotalOrganizations int64 `json:"total_organizations"`
	TotalGroups        int64 `json:"total_groups"`
	TotalResources     int64 `json:"total_resources"`
	TotalSecrets       int64 `json:"total_secrets"`
	TotalTags          int64 `json:"total_tags"`
	ActiveSsoSettings  int64 `json:"active_sso_settings"`
	ActiveSsoStates    int64 `json:"active_sso_states"`
	ActiveAuthTokens   int64 `json:"active_auth_tokens"`
}

func (h *Handler) userResponse(user *models.User) UserResponse {
	var groupCount, orgCount int64
	h.db.Model(&models.GroupMembership{}).Where("user_id = ?", user.ID).Count(&groupCount)
	h.db.Model(&models.OrganizationMembership{}).Where("user_id = ?", user.ID).Count(&orgCount)

	return UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		SystemRole: string(user.SystemRole),
		Active:     user.Active,
		SsoOnly:    user.PasswordHash == "",
		CreatedAt:  user.CreatedAt.Format("2006-01-02T15:04:05Z"),
		GroupCount: groupCount,
		OrgCount:   orgCount,
	}
}

// ListUsers returns all users (admin only)
// @Summary List users
// @Description Get all users, with optional search and role filter (admin only)
// @Tags admin
// @Produce json
// @Param q query string false "Search by email or name"
// @Param role query string false "Filter by system role"
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC")
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("system_role = ?", role)
	}

	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i := range users {
		responses[i] = h.userResponse(&users[i])
	}
	c.JSON(http.StatusOK, responses)
}

// GetUser returns a single user by ID (admin only)
// @Summary Get a user
// @Description Get a single user by ID (admin only)
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, h.userResponse(&user))
}

// CreateUser creates a user and adds them to the request organization
// @Summary Create a user
// @Description Create a user; without a password the account is SSO-only (admin only)
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "User details"
// @Success 201 {object} UserResponse
// @Failure 409 {object} map[string]string "Email already registered"
// @Security BearerAuth
// @Router /admin/users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var existing models.User
	if err := h.db.Where("email = ?", email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	role := models.SystemRole(req.SystemRole)
	if role == "" {
		role = models.SystemRoleUser
	}
	user := models.User{
		Email:      email,
		Name:       strings.TrimSpace(req.Name),
		Active:     true,
		SystemRole: role,
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		user.PasswordHash = hash
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		membership := models.OrganizationMembership{
			OrganizationID: orgID,
			UserID:         user.ID,
			Role:           models.OrgRoleMember,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, h.userResponse(&user))
}

// UpdateUser updates a user's profile (admin only)
// @Summary Update a user
// @Description Update a user's name, role or active flag (admin only)
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Updated fields"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID && req.SystemRole != nil && *req.SystemRole != string(models.SystemRoleAdmin) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
		return
	}
	if uint(id) == currentUserID && req.Active != nil && !*req.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot deactivate yourself"})
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.SystemRole != nil {
		if *req.SystemRole != string(models.SystemRoleAdmin) && *req.SystemRole != string(models.SystemRoleUser) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		updates["system_role"] = *req.SystemRole
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	h.db.First(&user, id)
	c.JSON(http.StatusOK, h.userResponse(&user))
}

// DeleteUser soft-deletes a user and their memberships, secrets and tokens
// (admin only)
// @Summary Delete a user
// @Description Delete a user and all their memberships, secrets and tokens (admin only)
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} map[string]string "User deleted"
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot delete yourself"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.Secret{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.AuthenticationToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.SsoState{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", user.ID).Delete(&models.OrganizationMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// GetStats returns system-wide statistics (admin only)
// @Summary Get system statistics
// @Description Get user, resource and SSO protocol counters (admin only)
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.User{}).Where("active = ?", true).Count(&stats.ActiveUsers)
	h.db.Model(&models.User{}).Where("password_hash = ?", "").Count(&stats.SsoOnlyUsers)
	h.db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminUsers)
	h.db.Model(&models.Organization{}).Count(&stats.TotalOrganizations)
	h.db.Model(&models.Group{}).Count(&stats.TotalGroups)
	h.db.Model(&models.Resource{}).Count(&stats.TotalResources)
	h.db.Model(&models.Secret{}).Count(&stats.TotalSecrets)
	h.db.Model(&models.Tag{}).Count(&stats.TotalTags)
	h.db.Model(&models.SsoSetting{}).Where("status = ?", models.SsoSettingStatusActive).Count(&stats.ActiveSsoSettings)
	h.db.Model(&models.SsoState{}).Where("active = ?", true).Count(&stats.ActiveSsoStates)
	h.db.Model(&models.AuthenticationToken{}).Where("active = ?", true).Count(&stats.ActiveAuthTokens)

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.POST("/users", h.CreateUser)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeleteUser)
}
