package organizations

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`)

// DomainResponse represents an organization domain in API responses
type DomainResponse struct {
	ID        uint   `json:"id"`
	Domain    string `json:"domain"`
	IsPrimary bool   `json:"is_primary"`
	CreatedAt string `json:"created_at"`
}

// AddDomainRequest represents the request to map a domain to an organization
type AddDomainRequest struct {
	Domain    string `json:"domain" binding:"required,min=3,max=255"`
	IsPrimary bool   `json:"is_primary"`
}

// requireOrgAdmin checks the caller administers the addressed organization
func (h *Handler) requireOrgAdmin(c *gin.Context, id uint) bool {
	userID, _ := auth.GetUserID(c)
	var m models.OrganizationMembership
	err := h.db.Where("user_id = ? AND organization_id = ? AND role = ?", userID, id, models.OrgRoleAdmin).First(&m).Error
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
		return false
	}
	return true
}

// ListDomains returns the domains mapped to an organization
// @Summary List organization domains
// @Description Get the domains that route requests to an organization
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Success 200 {array} DomainResponse
// @Security BearerAuth
// @Router /organizations/{id}/domains [get]
func (h *Handler) ListDomains(c *gin.Context) {
	id, ok := orgID(c)
	if !ok {
		return
	}
	if h.membershipFor(c, id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
		return
	}

	var domains []models.OrganizationDomain
	if err := h.db.Where("organization_id = ?", id).Order("domain").Find(&domains).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch domains"})
		return
	}

	responses := make([]DomainResponse, len(domains))
	for i, d := range domains {
		responses[i] = DomainResponse{
			ID:        d.ID,
			Domain:    d.Domain,
			IsPrimary: d.IsPrimary,
			CreatedAt: d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	c.JSON(http.StatusOK, responses)
}

// AddDomain maps a domain to an organization (org admin only)
// @Summary Add an organization domain
// @Description Map a domain to an organization; requests on that host serve the organization's data
// @Tags organizations
// @Accept json
// @Produce json
// @Param id path int true "Organization ID"
// @Param request body AddDomainRequest true "Domain details"
// @Success 201 {object} DomainResponse
// @Failure 409 {object} map[string]string "Domain already mapped"
// @Security BearerAuth
// @Router /organizations/{id}/domains [post]
func (h *Handler) AddDomain(c *gin.Context) {
	id, ok := orgID(c)
	if !ok {
		return
	}
	if !h.requireOrgAdmin(c, id) {
		return
	}

	var req AddDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Domain))
	if !domainRegex.MatchString(name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain name"})
		return
	}

	var existing models.OrganizationDomain
	if err := h.db.Where("domain = ?", name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Domain is already mapped"})
		return
	}

	domain := models.OrganizationDomain{
		OrganizationID: id,
		Domain:         name,
		IsPrimary:      req.IsPrimary,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if req.IsPrimary {
			if err := tx.Model(&models.OrganizationDomain{}).
				Where("organization_id = ?", id).
				Update("is_primary", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&domain).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add domain"})
		return
	}

	c.JSON(http.StatusCreated, DomainResponse{
		ID:        domain.ID,
		Domain:    domain.Domain,
		IsPrimary: domain.IsPrimary,
		CreatedAt: domain.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// RemoveDomain unmaps a domain from an organization (org admin only)
// @Summary Remove an organization domain
// @Description Remove a domain mapping from an organization
// @Tags organizations
// @Produce json
// @Param id path int true "Organization ID"
// @Param domainId path int true "Domain ID"
// @Success 200 {object} map[string]string "Domain removed"
// @Security BearerAuth
// @Router /organizations/{id}/domains/{domainId} [delete]
func (h *Handler) RemoveDomain(c *gin.Context) {
	id, ok := orgID(c)
	if !ok {
		return
	}
	if !h.requireOrgAdmin(c, id) {
		return
	}

	domainID, err := strconv.ParseUint(c.Param("domainId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid domain ID"})
		return
	}

	var domain models.OrganizationDomain
	if err := h.db.Where("organization_id = ? AND id = ?", id, domainID).First(&domain).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
		return
	}
	if err := h.db.Delete(&domain).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove domain"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Domain removed"})
}

// RegisterDomainRoutes registers domain management routes
func (h *Handler) RegisterDomainRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/domains", h.ListDomains)
	rg.POST("/:id/domains", h.AddDomain)
	rg.DELETE("/:id/domains/:domainId", h.RemoveDomain)
}
