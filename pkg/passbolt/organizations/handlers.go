package organizations

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)

// Slugs that collide with top-level routes or the seeded default tenant.
var reservedSlugs = map[string]struct{}{
	"api":     {},
	"health":  {},
	"admin":   {},
	"login":   {},
	"logout":  {},
	"auth":    {},
	"sso":     {},
	"swagger": {},
	"default": {},
}

// Handler handles organization-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new organizations handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateOrgRequest represents the request to create an organization.
// Domain optionally maps a primary domain to the new tenant right away.
type CreateOrgRequest struct {
	Name   string `json:"name" binding:"required,min=1,max=100"`
	Slug   string `json:"slug" binding:"required,min=1,max=50"`
	Domain string `json:"domain" binding:"omitempty,min=3,max=255"`
}

// UpdateOrgRequest represents the request to update an organization
type UpdateOrgRequest struct {
	Name *string `json:"name" binding:"omitempty,min=1,max=100"`
}

// OrgResponse represents an organization in API responses
type OrgResponse struct {
	ID            uint     `json:"id"`
	Name          string   `json:"name"`
	Slug          string   `json:"slug"`
	IsGlobal      bool     `json:"is_global"`
	Role          string   `json:"role,omitempty"` // Caller's role in this org
	MemberCount   int      `json:"member_count"`
	GroupCount    int      `json:"group_count"`
	PrimaryDomain string   `json:"primary_domain,omitempty"`
	SsoProviders  []string `json:"sso_providers"` // Providers with an active setting
	CreatedAt     string   `json:"created_at"`
}

// MemberResponse represents an organization member in API responses
type MemberResponse struct {
	UserID   uint   `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	JoinedAt string `json:"joined_at"`
}

// AddMemberRequest represents the request to add a member
type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required,oneof=admin member"`
}

// UpdateMemberRequest represents the request to update a member's role
type UpdateMemberRequest struct {
	Role string `json:"role" binding:"required,oneof=admin member"`
}

func validateSlug(db *gorm.DB, slug string, excludeID uint) error {
	if !slugRegex.MatchString(slug) {
		return errors.New("Slug must contain only lowercase letters, numbers, and hyphens (no leading/trailing hyphens)")
	}
	if _, ok := reservedSlugs[slug]; ok {
		return errors.New("This slug is reserved")
	}

	query := db.Model(&models.Organization{}).Where("slug = ?", slug)
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errors.New("This slug is already taken")
	}
	return nil
}

// orgID parses the :id path parameter, writing a 400 response on failure.
func orgID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid organization ID"})
		return 0, false
	}
	return uint(id), true
}

// membershipFor returns the caller's membership in the addressed org, or nil.
func (h *Handler) membershipFor(c *gin.Context, id uint) *models.OrganizationMembership {
	userID, _ := auth.GetUserID(c)
	var m models.OrganizationMembership
	if err := h.db.Where("user_id = ? AND organization_id = ?", userID, id).First(&m).Error; err != nil {
		return nil
	}
	return &m
}

// orgResponse assembles the full tenant view: membership and group counts,
// the primary domain if one is mapped, and which SSO providers are live.
func (h *Handler) orgResponse(org *models.Organization, role models.OrgRole) OrgResponse {
	var memberCount, groupCount int64
	h.db.Model(&models.OrganizationMembership{}).Where("organization_id = ?", org.ID).Count(&memberCount)
	h.db.Model(&models.Group{}).Where("organization_id = ?", org.ID).Count(&groupCount)

	var primary models.OrganizationDomain
	primaryDomain := ""
	if err := h.db.Where("organization_id = ? AND is_primary = ?", org.ID, true).First(&primary).Error; err == nil {
		primaryDomain = primary.Domain
	}

	providers := []string{}
	h.db.Model(&models.SsoSetting{}).
		Where("organization_id = ? AND status = ?", org.ID, models.SsoSettingStatusActive).
		Order("provider").
		Pluck("provider", &providers)

	return OrgResponse{
		ID:            org.ID,
		Name:          org.Name,
		Slug:          org.Slug,
		IsGlobal:      org.IsGlobal,
		Role:          string(role),
		MemberCount:   int(memberCount),
		GroupCount:    int(groupCount),
		PrimaryDomain: primaryDomain,
		SsoProviders:  providers,
		CreatedAt:     org.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func memberResponse(m *models.OrganizationMembership) MemberResponse {
	return MemberResponse{
		UserID:   m.UserID,
		Email:    m.User.Email,
		Name:     m.User.Name,
		Role:     string(m.Role),
		JoinedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// List returns all organizations the current user is a member of
// @Summary List organizations
// @Description Get all organizations the current user is a member of
// @Tags organizations
// @Produce json
// @Success 200 {array} OrgResponse
// @Security BearerAuth
// @Router /organizations [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var memberships []models.OrganizationMembership
	if err := h.db.Preload("Organization").Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch organizations"})
		return
	}

	orgs := make([]OrgResponse, len(memberships))
	for i, m := range memberships {
		orgs[i] = h.orgResponse(&m.Organization, m.Role)
	}
	c.JSON(http.StatusOK, orgs)
}

// Create creates a new organization with the caller as its admin. A starter
// "General" group is seeded so the tenant can hold passwords immediately, and
// an optional primary domain can be mapped in the same request.
// @Summary Create an organization
// @Description Create a new organization with the current user as admin
// @Tags organizations
// @Accept json
// @Produce json
// @Param request body CreateOrgRequest true "Organization details"
// @Success 201 {object} OrgResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Domain already mapped"
// @Security BearerAuth
// @Router /organizations [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if err := validateSlug(h.db, slug, 0); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	domainName := strings.ToLower(strings.TrimSpace(req.Domain))
	if domainName != "" {
		if !domainRegex.MatchString(domainName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain name"})
			return
		}
		var count int64
		h.db.Model(&models.OrganizationDomain{}).Where("domain = ?", domainName).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Domain is already mapped"})
			return
		}
	}

	org := models.Organization{
		Name: strings.TrimSpace(req.Name),
		Slug: slug,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.OrganizationMembership{
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           models.OrgRoleAdmin,
		}).Error; err != nil {
			return err
		}

		group := models.Group{
			OrganizationID: org.ID,
			Name:           "General",
			Description:    "Shared passwords for " + org.Name,
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.GroupMembership{
			GroupID: group.ID,
			UserID:  userID,
			Role:    models.GroupRoleAdmin,
		}).Error; err != nil {
			return err
		}

		if domainName != "" {
			return tx.Create(&models.OrganizationDomain{
				OrganizationID: org.ID,
				Domain:         domainName,
				IsPrimary:      true,
			}).Error
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create organization"})
		return
	}

	c.JSON(http.StatusCreated, h.orgResponse(&org, models.OrgRoleAdmin))
}

// Get returns a specific organization
// @Summary Get an organization
// @Description Get details of a specific organization
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {object} OrgResponse
// @Failure 404 {object} map[string]string "Organization not found"
// @Security BearerAuth
// @Router /organizations/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := orgID(c)
	if !ok {
		return
	}

	m := h.membershipFor(c, id)
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	var org models.Organization
	if err := h.db.First(&org, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}
	c.JSON(http.StatusOK, h.orgResponse(&org, m.Role))
}

// Update updates an organization (org admin only)
// @Summary Update an organization
// @Description Update an organization (requires admin role in org)
// @Tags organizations
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body UpdateOrgRequest true "Updated organization details"
// @Success 200 {object} OrgResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /organizations/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id, ok := orgID(c)
	if !ok {
		return
	}
	if !h.requireOrgAdmin(c, id) {
		return
	}

	var req UpdateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var org models.Organization
	if err := h.db.First(&org, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}
	if org.IsGlobal {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot modify the global organization"})
		return
	}

	if req.Name != nil {
		org.Name = strings.TrimSpace(*req.Name)
	}
	if err := h.db.Save(&org).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update organization"})
		return
	}
	c.JSON(http.StatusOK, h.orgResponse(&org, models.OrgRoleAdmin))
}

// Delete removes an organization and everything scoped to it: groups with
// their resources and secrets, domain mappings, and SSO settings and states.
// @Summary Delete an organization
// @Description Delete an organization and all data scoped to it (requires admin role)
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {object} map[string]string "Organization deleted"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /organizations/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, ok := orgID(c)
	if !ok {
		return
	}
	if !h.requireOrgAdmin(c, id) {
		return
	}

	var org models.Organization
	if err := h.db.First(&org, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}
	if org.IsGlobal {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot delete the global organization"})
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		var groupIDs []uint
		if err := tx.Model(&models.Group{}).Where("organization_id = ?", id).Pluck("id", &groupIDs).Error; err != nil {
			return err
		}
		if len(groupIDs) > 0 {
			var resourceIDs []uint
			if err := tx.Model(&models.Resource{}).Where("group_id IN ?", groupIDs).Pluck("id", &resourceIDs).Error; err != nil {
				return err
			}
			if len(resourceIDs) > 0 {
				if err := tx.Where("resource_id IN ?", resourceIDs).Delete(&models.Secret{}).Error; err != nil {
					return err
				}
				if err := tx.Where("group_id IN ?", groupIDs).Delete(&models.Resource{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("group_id IN ?", groupIDs).Delete(&models.GroupMembership{}).Error; err != nil {
				return err
			}
			if err := tx.Where("organization_id = ?", id).Delete(&models.Group{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.SsoState{}).Error; err != nil {
			return err
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.SsoSetting{}).Error; err != nil {
			return err
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.OrganizationDomain{}).Error; err != nil {
			return err
		}
		if err := tx.Where("organization_id = ?", id).Delete(&models.OrganizationMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&org).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete organization"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Organization deleted"})
}

// ListMembers returns all members of an organization
// @Summary List organization members
// @Description Get all members of an organization
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {array} MemberResponse
// @Failure 404 {object} map[string]string "Organization not found"
// @Security BearerAuth
// @Router /organizations/{id}/members [get]
func (h *Handler) ListMembers(c *gin.Context) {
	id, ok := orgID(c)
	if !ok {
		return
	}
	if h.membershipFor(c, id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	var memberships []models.OrganizationMembership
	if err := h.db.Preload("User").Where("organization_id = ?", id).Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	members := make([]MemberResponse, len(memberships))
	for i := range memberships {
		members[i] = memberResponse(&memberships[i])
	}
	c.JSON(http.StatusOK, members)
}

// AddMember adds a user to an organization by email (org admin only).
// Disabled accounts cannot be added.
// @Summary Add a member to an organization
// @Description Add a user to an organization by email (requires admin role)
// @Tags organizations
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body AddMemberRequest true "Member details"
// @Success 201 {object} MemberResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /organizations/{id}/members [post]
func (h *Handler) AddMember(c *gin.Context) {
	id, ok := orgID(c)
	if !ok {
		return
	}
	if !h.requireOrgAdmin(c, id) {
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if !user.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User account is disabled"})
		return
	}

	var count int64
	h.db.Model(&models.OrganizationMembership{}).Where("organization_id = ? AND user_id = ?", id, user.ID).Count(&count)
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}

	membership := models.OrganizationMembership{
		OrganizationID: id,
		UserID:         user.ID,
		Role:           models.OrgRole(req.Role),
	}
	if err := h.db.Create(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add member"})
		return
	}

	membership.User = user
	c.JSON(http.StatusCreated, memberResponse(&membership))
}

// UpdateMember updates a member's role (org admin only)
// @Summary Update a member's role
// @Description Update a member's role in an organization (requires admin role)
// @Tags organizations
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param userId path int true "User ID"
// @Param request body UpdateMemberRequest true "Updated role"
// @Success 200 {object} MemberResponse
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /organizations/{id}/members/{userId} [put]
func (h *Handler) UpdateMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, ok := orgID(c)
	if !ok {
		return
	}
	targetUserID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if !h.requireOrgAdmin(c, id) {
		return
	}

	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var membership models.OrganizationMembership
	if err := h.db.Preload("User").Where("organization_id = ? AND user_id = ?", id, targetUserID).First(&membership).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	if userID == uint(targetUserID) && models.OrgRole(req.Role) == models.OrgRoleMember {
		var adminCount int64
		h.db.Model(&models.OrganizationMembership{}).Where("organization_id = ? AND role = ?", id, models.OrgRoleAdmin).Count(&adminCount)
		if adminCount <= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote the only admin"})
			return
		}
	}

	membership.Role = models.OrgRole(req.Role)
	if err := h.db.Save(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update member"})
		return
	}
	c.JSON(http.StatusOK, memberResponse(&membership))
}

// RemoveMember removes a member from an organization (org admin, or self).
// Leaving an organization also revokes the user's group memberships there and
// deletes their secret copies for resources in those groups.
// @Summary Remove a member from an organization
// @Description Remove a member from an organization (requires admin role)
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Param userId path int true "User ID"
// @Success 200 {object} map[string]string "Member removed"
// @Failure 403 {object} map[string]string "Admin access required"
// @Security BearerAuth
// @Router /organizations/{id}/members/{userId} [delete]
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, ok := orgID(c)
	if !ok {
		return
	}
	targetUserID, err := strconv.ParseUint(c.Param("userId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if userID != uint(targetUserID) && !h.requireOrgAdmin(c, id) {
		return
	}

	var membership models.OrganizationMembership
	if err := h.db.Where("organization_id = ? AND user_id = ?", id, targetUserID).First(&membership).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}

	if membership.Role == models.OrgRoleAdmin {
		var adminCount int64
		h.db.Model(&models.OrganizationMembership{}).Where("organization_id = ? AND role = ?", id, models.OrgRoleAdmin).Count(&adminCount)
		if adminCount <= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot remove the only admin"})
			return
		}
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		var groupIDs []uint
		if err := tx.Model(&models.Group{}).Where("organization_id = ?", id).Pluck("id", &groupIDs).Error; err != nil {
			return err
		}
		if len(groupIDs) > 0 {
			var resourceIDs []uint
			if err := tx.Model(&models.Resource{}).Where("group_id IN ?", groupIDs).Pluck("id", &resourceIDs).Error; err != nil {
				return err
			}
			if len(resourceIDs) > 0 {
				if err := tx.Where("resource_id IN ? AND user_id = ?", resourceIDs, targetUserID).Delete(&models.Secret{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("group_id IN ? AND user_id = ?", groupIDs, targetUserID).Delete(&models.GroupMembership{}).Error; err != nil {
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

// RegisterRoutes registers organization and member management routes
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
