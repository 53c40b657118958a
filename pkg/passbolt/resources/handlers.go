package resources

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles resource-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new resources handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// SecretInput carries one user's encrypted copy of a credential
type SecretInput struct {
	UserID uint   `json:"user_id" binding:"required"`
	Data   string `json:"data" binding:"required"`
}

// CreateResourceRequest represents the request to create a resource.
// Secret is the creator's own encrypted blob; Secrets optionally provisions
// copies for other group members in the same call.
type CreateResourceRequest struct {
	GroupID     uint          `json:"group_id" binding:"required"`
	Name        string        `json:"name" binding:"required,min=1,max=255"`
	Username    string        `json:"username" binding:"max=255"`
	URI         string        `json:"uri" binding:"max=1024"`
	Description string        `json:"description" binding:"max=10000"`
	Secret      string        `json:"secret" binding:"required"`
	Secrets     []SecretInput `json:"secrets"`
}

// UpdateResourceRequest represents the request to update resource metadata
type UpdateResourceRequest struct {
	Name        *string `json:"name" binding:"omitempty,min=1,max=255"`
	Username    *string `json:"username" binding:"omitempty,max=255"`
	URI         *string `json:"uri" binding:"omitempty,max=1024"`
	Description *string `json:"description" binding:"omitempty,max=10000"`
}

// UpdateSecretRequest represents the request to set the caller's secret
type UpdateSecretRequest struct {
	Data string `json:"data" binding:"required"`
}

// ShareRequest provisions encrypted copies for other group members
type ShareRequest struct {
	Secrets []SecretInput `json:"secrets" binding:"required,min=1,dive"`
}

// ResourceResponse represents a resource in API responses
type ResourceResponse struct {
	ID          uint     `json:"id"`
	GroupID     uint     `json:"group_id"`
	CreatedByID uint     `json:"created_by_id"`
	Name        string   `json:"name"`
	Username    string   `json:"username"`
	URI         string   `json:"uri"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// SecretResponse represents the caller's encrypted secret
type SecretResponse struct {
	ResourceID uint   `json:"resource_id"`
	Data       string `json:"data"`
	UpdatedAt  string `json:"updated_at"`
}

func resourceResponse(r *models.Resource) ResourceResponse {
	tags := make([]string, len(r.Tags))
	for i, t := range r.Tags {
		tags[i] = t.Name
	}
	return ResourceResponse{
		ID:          r.ID,
		GroupID:     r.GroupID,
		CreatedByID: r.CreatedByID,
		Name:        r.Name,
		Username:    r.Username,
		URI:         r.URI,
		Description: r.Description,
		Tags:        tags,
		CreatedAt:   r.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   r.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// accessibleGroupIDs returns the IDs of groups the user belongs to in this org
func (h *Handler) accessibleGroupIDs(userID, orgID uint) ([]uint, error) {
	var ids []uint
	err := h.db.Model(&models.GroupMembership{}).
		Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND groups.organization_id = ?", userID, orgID).
		Pluck("group_memberships.group_id", &ids).Error
	return ids, err
}

// loadAccessible loads a resource if the caller is a member of its group
func (h *Handler) loadAccessible(c *gin.Context, resourceID uint) (*models.Resource, bool) {
	userID, _ := auth.GetUserID(c)
	orgID, _ := auth.GetOrgID(c)

	var resource models.Resource
	if err := h.db.Preload("Tags").First(&resource, resourceID).Error; err != nil {
		return nil, false
	}

	var m models.GroupMembership
	err := h.db.Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND group_memberships.group_id = ? AND groups.organization_id = ?",
			userID, resource.GroupID, orgID).
		First(&m).Error
	if err != nil {
		return nil, false
	}
	return &resource, true
}

// List returns all resources visible to the current user
// @Summary List resources
// @Description Get resources across all of the user's groups, with optional filters
// @Tags resources
// @Produce json
// @Param group_id query int false "Filter by group"
// @Param tag query string false "Filter by tag name"
// @Param q query string false "Search in name, username and URI"
// @Success 200 {array} ResourceResponse
// @Security BearerAuth
// @Router /resources [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	orgID, _ := auth.GetOrgID(c)

	groupIDs, err := h.accessibleGroupIDs(userID, orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch resources"})
		return
	}
	if len(groupIDs) == 0 {
		c.JSON(http.StatusOK, []ResourceResponse{})
		return
	}

	query := h.db.Preload("Tags").Where("group_id IN ?", groupIDs).Order("resources.name")

	if raw := c.Query("group_id"); raw != "" {
		groupID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
			return
		}
		query = query.Where("group_id = ?", groupID)
	}
	if tag := c.Query("tag"); tag != "" {
		query = query.
			Joins("JOIN resource_tags ON resource_tags.resource_id = resources.id").
			Joins("JOIN tags ON tags.id = resource_tags.tag_id").
			Where("tags.name = ?", tag)
	}
	if search := c.Query("q"); search != "" {
		like := "%" + search + "%"
		query = query.Where("resources.name LIKE ? OR resources.username LIKE ? OR resources.uri LIKE ?", like, like, like)
	}

	var resources []models.Resource
	if err := query.Find(&resources).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch resources"})
		return
	}

	responses := make([]ResourceResponse, len(resources))
	for i := range resources {
		responses[i] = resourceResponse(&resources[i])
	}
	c.JSON(http.StatusOK, responses)
}

// Create creates a resource in one of the caller's groups
// @Summary Create a resource
// @Description Create a password entry with the caller's encrypted secret and optional copies for other members
// @Tags resources
// @Accept json
// @Produce json
// @Param request body CreateResourceRequest true "Resource details"
// @Success 201 {object} ResourceResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Not a group member"
// @Security BearerAuth
// @Router /resources [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	orgID, _ := auth.GetOrgID(c)

	var req CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var m models.GroupMembership
	err := h.db.Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND group_memberships.group_id = ? AND groups.organization_id = ?",
			userID, req.GroupID, orgID).
		First(&m).Error
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this group"})
		return
	}

	// Every extra secret must target a member of the same group
	for _, s := range req.Secrets {
		var member models.GroupMembership
		if err := h.db.Where("group_id = ? AND user_id = ?", req.GroupID, s.UserID).First(&member).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Secret target is not a group member"})
			return
		}
	}

	var resource models.Resource
	err = h.db.Transaction(func(tx *gorm.DB) error {
		resource = models.Resource{
			GroupID:     req.GroupID,
			CreatedByID: userID,
			Name:        strings.TrimSpace(req.Name),
			Username:    strings.TrimSpace(req.Username),
			URI:         strings.TrimSpace(req.URI),
			Description: req.Description,
		}
		if err := tx.Create(&resource).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.Secret{ResourceID: resource.ID, UserID: userID, Data: req.Secret}).Error; err != nil {
			return err
		}
		for _, s := range req.Secrets {
			if s.UserID == userID {
				continue
			}
			if err := tx.Create(&models.Secret{ResourceID: resource.ID, UserID: s.UserID, Data: s.Data}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create resource"})
		return
	}

	c.JSON(http.StatusCreated, resourceResponse(&resource))
}

// Get returns a single resource
// @Summary Get a resource
// @Description Get a resource the current user has access to
// @Tags resources
// @Produce json
// @Param id path int true "Resource ID"
// @Success 200 {object} ResourceResponse
// @Failure 404 {object} map[string]string "Resource not found"
// @Security BearerAuth
// @Router /resources/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource ID"})
		return
	}

	resource, ok := h.loadAccessible(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}
	c.JSON(http.StatusOK, resourceResponse(resource))
}

// Update updates resource metadata
// @Summary Update a resource
// @Description Update a resource's metadata (any group member)
// @Tags resources
// @Accept json
// @Produce json
// @Param id path int true "Resource ID"
// @Param request body UpdateResourceRequest true "Updated fields"
// @Success 200 {object} ResourceResponse
// @Failure 404 {object} map[string]string "Resource not found"
// @Security BearerAuth
// @Router /resources/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource ID"})
		return
	}

	resource, ok := h.loadAccessible(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}

	var req UpdateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name != nil {
		resource.Name = strings.TrimSpace(*req.Name)
	}
	if req.Username != nil {
		resource.Username = strings.TrimSpace(*req.Username)
	}
	if req.URI != nil {
		resource.URI = strings.TrimSpace(*req.URI)
	}
	if req.Description != nil {
		resource.Description = *req.Description
	}

	if err := h.db.Save(resource).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update resource"})
		return
	}
	c.JSON(http.StatusOK, resourceResponse(resource))
}

// Delete deletes a resource and all its secrets
// @Summary Delete a resource
// @Description Delete a resource (creator or group admin)
// @Tags resources
// @Produce json
// @Param id path int true "Resource ID"
// @Success 200 {object} map[string]string "Resource deleted"
// @Failure 403 {object} map[string]string "Not allowed"
// @Security BearerAuth
// @Router /resources/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource ID"})
		return
	}

	resource, ok := h.loadAccessible(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}

	if resource.CreatedByID != userID {
		var m models.GroupMembership
		err := h.db.Where("group_id = ? AND user_id = ? AND role = ?",
			resource.GroupID, userID, models.GroupRoleAdmin).First(&m).Error
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the creator or a group admin can delete a resource"})
			return
		}
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("resource_id = ?", resource.ID).Delete(&models.Secret{}).Error; err != nil {
			return err
		}
		if err := tx.Model(resource).Association("Tags").Clear(); err != nil {
			return err
		}
		return tx.Delete(resource).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete resource"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Resource deleted"})
}

// GetSecret returns the caller's encrypted secret for a resource
// @Summary Get own secret
// @Description Get the caller's encrypted copy of a resource's credential
// @Tags resources
// @Produce json
// @Param id path int true "Resource ID"
// @Success 200 {object} SecretResponse
// @Failure 404 {object} map[string]string "No secret for this user"
// @Security BearerAuth
// @Router /resources/{id}/secret [get]
func (h *Handler) GetSecret(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource ID"})
		return
	}

	if _, ok := h.loadAccessible(c, uint(id)); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}

	var secret models.Secret
	if err := h.db.Where("resource_id = ? AND user_id = ?", id, userID).First(&secret).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No secret for this user"})
		return
	}
	c.JSON(http.StatusOK, SecretResponse{
		ResourceID: secret.ResourceID,
		Data:       secret.Data,
		UpdatedAt:  secret.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// UpdateSecret creates or replaces the caller's encrypted secret
// @Summary Set own secret
// @Description Create or replace the caller's encrypted copy of a resource's credential
// @Tags resources
// @Accept json
// @Produce json
// @Param id path int true "Resource ID"
// @Param request body UpdateSecretRequest true "Encrypted blob"
// @Success 200 {object} SecretResponse
// @Failure 404 {object} map[string]string "Resource not found"
// @Security BearerAuth
// @Router /resources/{id}/secret [put]
func (h *Handler) UpdateSecret(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource ID"})
		return
	}

	if _, ok := h.loadAccessible(c, uint(id)); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}

	var req UpdateSecretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var secret models.Secret
	err = h.db.Where("resource_id = ? AND user_id = ?", id, userID).First(&secret).Error
	if err != nil {
		secret = models.Secret{ResourceID: uint(id), UserID: userID, Data: req.Data}
		err = h.db.Create(&secret).Error
	} else {
		secret.Data = req.Data
		err = h.db.Save(&secret).Error
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save secret"})
		return
	}
	c.JSON(http.StatusOK, SecretResponse{
		ResourceID: secret.ResourceID,
		Data:       secret.Data,
		UpdatedAt:  secret.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// Share provisions encrypted copies for other group members
// @Summary Share a resource
// @Description Create or replace encrypted copies of a credential for other group members
// @Tags resources
// @Accept json
// @Produce json
// @Param id path int true "Resource ID"
// @Param request body ShareRequest true "Per-user encrypted blobs"
// @Success 200 {object} map[string]string "Secrets saved"
// @Failure 400 {object} map[string]string "Target is not a group member"
// @Security BearerAuth
// @Router /resources/{id}/secrets [put]
func (h *Handler) Share(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource ID"})
		return
	}

	resource, ok := h.loadAccessible(c, uint(id))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}

	var req ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, s := range req.Secrets {
		var m models.GroupMembership
		if err := h.db.Where("group_id = ? AND user_id = ?", resource.GroupID, s.UserID).First(&m).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Secret target is not a group member"})
			return
		}
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		for _, s := range req.Secrets {
			var secret models.Secret
			err := tx.Where("resource_id = ? AND user_id = ?", resource.ID, s.UserID).First(&secret).Error
			if err != nil {
				if err := tx.Create(&models.Secret{ResourceID: resource.ID, UserID: s.UserID, Data: s.Data}).Error; err != nil {
					return err
				}
				continue
			}
			secret.Data = s.Data
			if err := tx.Save(&secret).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save secrets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Secrets saved"})
}

// RegisterRoutes registers resource routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.GET("/:id/secret", h.GetSecret)
	rg.PUT("/:id/secret", h.UpdateSecret)
	rg.PUT("/:id/secrets", h.Share)
}
