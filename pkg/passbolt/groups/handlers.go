package groups

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles group-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description" binding:"max=500"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        string `json:"name" binding:"omitempty,min=1,max=100"`
	Description string `json:"description" binding:"max=500"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Role          string `json:"role,omitempty"`
	MemberCount   int    `json:"member_count"`
	ResourceCount int    `json:"resource_count"`
	CreatedAt     string `json:"created_at"`
}

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	ID        uint   `json:"id"`
	UserID    uint   `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// AddMemberRequest represents the request to add a group member
type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=admin member"`
}

// UpdateMemberRequest represents the request to change a member's role
type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required,oneof=admin member"`
}

func (h *Handler) groupResponse(group *models.Group, role models.GroupRole) GroupResponse {
	var memberCount, resourceCount int64
	h.db.Model(&models.GroupMembership{}).Where("group_id = ?", group.ID).Count(&memberCount)
	h.db.Model(&models.Resource{}).Where("group_id = ?", group.ID).Count(&resourceCount)

	return GroupResponse{
		ID:            group.ID,
		Name:          group.Name,
		Description:   group.Description,
		Role:          string(role),
		MemberCount:   int(memberCount),
		ResourceCount: int(resourceCount),
		CreatedAt:     group.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// membership loads the caller's membership in a group scoped to the request org
func (h *Handler) membership(c *gin.Context, groupID uint) (*models.GroupMembership, bool) {
	userID, _ := auth.GetUserID(c)
	orgID, _ := auth.GetOrgID(c)

	var m models.GroupMembership
	err := h.db.Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND group_memberships.group_id = ? AND groups.organization_id = ?",
			userID, groupID, orgID).
		First(&m).Error
	if err != nil {
		return nil, false
	}
	return &m, true
}

// List returns all groups the current user belongs to in this organization
// @Summary List groups
// @Description Get all groups the current user is a member of
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	orgID, _ := auth.GetOrgID(c)

	var memberships []models.GroupMembership
	err := h.db.Preload("Group").
		Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND groups.organization_id = ?", userID, orgID).
		Find(&memberships).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	responses := make([]GroupResponse, len(memberships))
	for i, m := range memberships {
		responses[i] = h.groupResponse(&m.Group, m.Role)
	}
	c.JSON(http.StatusOK, responses)
}

// Create creates a new group with the creator as group admin
// @Summary Create a group
// @Description Create a new group with the current user as admin
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	orgID, _ := auth.GetOrgID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var group models.Group
	err := h.db.Transaction(func(tx *gorm.DB) error {
		group = models.Group{
			OrganizationID: orgID,
			Name:           strings.TrimSpace(req.Name),
			Description:    strings.TrimSpace(req.Description),
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		membership := models.GroupMembership{
			GroupID: group.ID,
			UserID:  userID,
			Role:    models.GroupRoleAdmin,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	c.JSON(http.StatusCreated, h.groupResponse(&group, models.GroupRoleAdmin))
}

// Get returns a single group
// @Summary Get a group
// @Description Get details of a group the current user belongs to
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	m, ok := h.membership(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var group models.Group
	if err := h.db.First(&group, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	c.JSON(http.StatusOK, h.groupResponse(&group, m.Role))
}

// Update updates a group (group admin only)
// @Summary Update a group
// @Description Update a group's name or description (requires group admin)
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body UpdateGroupRequest true "Updated details"
// @Success 200 {object} GroupResponse
// @Failure 403 {object} map[string]string "Group admin required"
// @Security BearerAuth
// @Router /groups/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	m, ok := h.membership(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if m.Role != models.GroupRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Group admin access required"})
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var group models.Group
	if err := h.db.First(&group, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if req.Name != "" {
		group.Name = strings.TrimSpace(req.Name)
	}
	if req.Description != "" {
		group.Description = strings.TrimSpace(req.Description)
	}
	if err := h.db.Save(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}
	c.JSON(http.StatusOK, h.groupResponse(&group, m.Role))
}

// Delete deletes a group with its resources and secrets (group admin only)
// @Summary Delete a group
// @Description Delete a group and everything it owns (requires group admin)
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} map[string]string "Group deleted"
// @Failure 403 {object} map[string]string "Group admin required"
// @Security BearerAuth
// @Router /groups/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	m, ok := h.membership(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if m.Role != models.GroupRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Group admin access required"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var resourceIDs []uint
		if err := tx.Model(&models.Resource{}).Where("group_id = ?", id).Pluck("id", &resourceIDs).Error; err != nil {
			return err
		}
		if len(resourceIDs) > 0 {
			if err := tx.Where("resource_id IN ?", resourceIDs).Delete(&models.Secret{}).Error; err != nil {
				return err
			}
			if err := tx.Where("group_id = ?", id).Delete(&models.Resource{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("group_id = ?", id).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, id).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// ListMembers returns all members of a group
// @Summary List group members
// @Description Get all members of a group the current user belongs to
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {array} MemberResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/members [get]
func (h *Handler) ListMembers(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	if _, ok := h.membership(c, uint(id)); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var memberships []models.GroupMembership
	if err := h.db.Preload("User").Where("group_id = ?", id).Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	members := make([]MemberResponse, len(memberships))
	for i, m := range memberships {
		members[i] = MemberResponse{
			ID:        m.ID,
			UserID:    m.UserID,
			Email:     m.User.Email,
			Name:      m.User.Name,
			Role:      string(m.Role),
			CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	c.JSON(http.StatusOK, members)
}

// AddMember adds an organization member to a group (group admin only)
// @Summary Add a group member
// @Description Add a user to a group by email (requires group admin)
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body AddMemberRequest true "Member details"
// @Success 201 {object} MemberResponse
// @Failure 403 {object} map[string]string "Group admin required"
// @Security BearerAuth
// @Router /groups/{id}/members [post]
func (h *Handler) AddMember(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	m, ok := h.membership(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if m.Role != models.GroupRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Group admin access required"})
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Group members must belong to the organization that owns the group
	var orgMembership models.OrganizationMembership
	if err := h.db.Where("organization_id = ? AND user_id = ?", orgID, user.ID).First(&orgMembership).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User is not a member of this organization"})
		return
	}

	var existing models.GroupMembership
	if err := h.db.Where("group_id = ? AND user_id = ?", id, user.ID).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}

	membership := models.GroupMembership{
		GroupID: uint(id),
		UserID:  user.ID,
		Role:    models.GroupRole(req.Role),
	}
	if err := h.db.Create(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	c.JSON(http.StatusCreated, MemberResponse{
		ID:        membership.ID,
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(membership.Role),
		CreatedAt: membership.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// UpdateMember changes a member's role (group admin only)
// @Summary Update a group member
// @Description Change a member's role in a group (requires group admin)
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param userId path int true "User ID"
// @Param request body UpdateMemberRequest true "Updated role"
// @Success 200 {object} MemberResponse
// @Failure 403 {object} map[string]string "Group admin required"
// @Security BearerAuth
// @Router /groups/{id}/members/{userId} [put]
func (h *Handler) UpdateMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}
	targetUserID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	m, ok := h.membership(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if m.Role != models.GroupRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Group admin access required"})
		return
	}

	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var membership models.GroupMembership
	if err := h.db.Preload("User").Where("group_id = ? AND user_id = ?", id, targetUserID).First(&membership).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	if userID == uint(targetUserID) && req.Role == "member" {
		var adminCount int64
		h.db.Model(&models.GroupMembership{}).Where("group_id = ? AND role = ?", id, models.GroupRoleAdmin).Count(&adminCount)
		if adminCount <= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote the only admin"})
			return
		}
	}

	membership.Role = models.GroupRole(req.Role)
	if err := h.db.Save(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update member"})
		return
	}

	c.JSON(http.StatusOK, MemberResponse{
		ID:        membership.ID,
		UserID:    membership.UserID,
		Email:     membership.User.Email,
		Name:      membership.User.Name,
		Role:      string(membership.Role),
		CreatedAt: membership.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// RemoveMember removes a member from a group, deleting their secrets for the
// group's resources so departed members hold no live ciphertext rows.
// @Summary Remove a group member
// @Description Remove a member from a group and delete their per-resource secrets (requires group admin, or self-removal)
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Param userId path int true "User ID"
// @Success 200 {object} map[string]string "Member removed"
// @Failure 403 {object} map[string]string "Group admin required"
// @Security BearerAuth
// @Router /groups/{id}/members/{userId} [delete]
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}
	targetUserID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	m, ok := h.membership(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if userID != uint(targetUserID) && m.Role != models.GroupRoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Group admin access required"})
		return
	}

	var membership models.GroupMembership
	if err := h.db.Where("group_id = ? AND user_id = ?", id, targetUserID).First(&membership).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	if membership.Role == models.GroupRoleAdmin {
		var adminCount int64
		h.db.Model(&models.GroupMembership{}).Where("group_id = ? AND role = ?", id, models.GroupRoleAdmin).Count(&adminCount)
		if adminCount <= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove the only admin"})
			return
		}
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var resourceIDs []uint
		if err := tx.Model(&models.Resource{}).Where("group_id = ?", id).Pluck("id", &resourceIDs).Error; err != nil {
			return err
		}
		if len(resourceIDs) > 0 {
			if err := tx.Where("resource_id IN ? AND user_id = ?", resourceIDs, targetUserID).Delete(&models.Secret{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&membership).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// RegisterRoutes registers group routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.GET("/:id/members", h.ListMembers)
	rg.POST("/:id/members", h.AddMember)
	rg.PUT("/:id/members/:userId", h.UpdateMember)
	rg.DELETE("/:id/members/:userId", h.RemoveMember)
}
