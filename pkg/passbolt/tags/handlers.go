package tags

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles tag-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new tags handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// TagResponse represents a tag with its usage count
type TagResponse struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	ResourceCount int64  `json:"resource_count"`
}

// SetTagsRequest represents the request to replace a resource's tags
type SetTagsRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

// List returns all tags used on resources visible to the current user
// @Summary List tags
// @Description Get all tags on resources in the user's groups, with usage counts
// @Tags tags
// @Produce json
// @Success 200 {array} TagResponse
// @Security BearerAuth
// @Router /tags [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	orgID, _ := auth.GetOrgID(c)

	var groupIDs []uint
	err := h.db.Model(&models.GroupMembership{}).
		Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND groups.organization_id = ?", userID, orgID).
		Pluck("group_memberships.group_id", &groupIDs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tags"})
		return
	}
	if len(groupIDs) == 0 {
		c.JSON(http.StatusOK, []TagResponse{})
		return
	}

	var results []TagResponse
	err = h.db.Model(&models.Tag{}).
		Select("tags.id, tags.name, COUNT(resource_tags.resource_id) AS resource_count").
		Joins("JOIN resource_tags ON resource_tags.tag_id = tags.id").
		Joins("JOIN resources ON resources.id = resource_tags.resource_id").
		Where("resources.group_id IN ? AND resources.deleted_at IS NULL", groupIDs).
		Group("tags.id, tags.name").
		Order("tags.name").
		Scan(&results).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tags"})
		return
	}
	if results == nil {
		results = []TagResponse{}
	}
	c.JSON(http.StatusOK, results)
}

// SetResourceTags replaces the tag set of a resource
// @Summary Set resource tags
// @Description Replace the tags of a resource; unknown tags are created
// @Tags tags
// @Accept json
// @Produce json
// @Param id path int true "Resource ID"
// @Param request body SetTagsRequest true "Tag names"
// @Success 200 {object} map[string][]string
// @Failure 404 {object} map[string]string "Resource not found"
// @Security BearerAuth
// @Router /resources/{id}/tags [put]
func (h *Handler) SetResourceTags(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	orgID, _ := auth.GetOrgID(c)

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid resource ID"})
		return
	}

	var resource models.Resource
	if err := h.db.First(&resource, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}

	var m models.GroupMembership
	err = h.db.Joins("JOIN groups ON groups.id = group_memberships.group_id").
		Where("group_memberships.user_id = ? AND group_memberships.group_id = ? AND groups.organization_id = ?",
			userID, resource.GroupID, orgID).
		First(&m).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found"})
		return
	}

	var req SetTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Normalize: lowercase, trimmed, deduplicated
	seen := make(map[string]bool)
	var names []string
	for _, raw := range req.Tags {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	var tags []models.Tag
	err = h.db.Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			var tag models.Tag
			if err := tx.Where("name = ?", name).FirstOrCreate(&tag, models.Tag{Name: name}).Error; err != nil {
				return err
			}
			tags = append(tags, tag)
		}
		return tx.Model(&resource).Association("Tags").Replace(tags)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set tags"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tags": names})
}

// RegisterRoutes registers tag listing routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
}

// RegisterResourceRoutes registers tagging routes on the resources group
func (h *Handler) RegisterResourceRoutes(rg *gin.RouterGroup) {
	rg.PUT("/:id/tags", h.SetResourceTags)
}
