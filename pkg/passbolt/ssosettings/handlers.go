package ssosettings

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
)

// Handler handles SSO settings administration requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new SSO settings handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateSettingRequest represents the request to create a draft setting
type CreateSettingRequest struct {
	Provider     string `json:"provider" binding:"required,oneof=azure google"`
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	TenantID     string `json:"tenant_id"`
	IssuerURL    string `json:"issuer_url" binding:"omitempty,url"`
	EmailClaim   string `json:"email_claim" binding:"omitempty,oneof=email preferred_username upn"`
	PromptLogin  bool   `json:"prompt_login"`
}

// UpdateSettingRequest represents the request to update a setting
type UpdateSettingRequest struct {
	ClientID     *string `json:"client_id"`
	ClientSecret *string `json:"client_secret"`
	TenantID     *string `json:"tenant_id"`
	IssuerURL    *string `json:"issuer_url" binding:"omitempty,url"`
	EmailClaim   *string `json:"email_claim" binding:"omitempty,oneof=email preferred_username upn"`
	PromptLogin  *bool   `json:"prompt_login"`
}

// SettingResponse represents an SSO setting in API responses.
// The client secret is never included.
type SettingResponse struct {
	ID          uint   `json:"id"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	ClientID    string `json:"client_id"`
	TenantID    string `json:"tenant_id,omitempty"`
	IssuerURL   string `json:"issuer_url,omitempty"`
	EmailClaim  string `json:"email_claim"`
	PromptLogin bool   `json:"prompt_login"`
	CreatedAt   string `json:"created_at"`
}

func settingResponse(s *models.SsoSetting) SettingResponse {
	return SettingResponse{
		ID:          s.ID,
		Provider:    string(s.Provider),
		Status:      string(s.Status),
		ClientID:    s.ClientID,
		TenantID:    s.TenantID,
		IssuerURL:   s.IssuerURL,
		EmailClaim:  s.EmailClaim,
		PromptLogin: s.PromptLogin,
		CreatedAt:   s.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// List returns all SSO settings of the current organization
// @Summary List SSO settings
// @Description Get all SSO settings of the organization (admin only)
// @Tags sso-settings
// @Produce json
// @Success 200 {array} SettingResponse
// @Security BearerAuth
// @Router /sso/settings [get]
func (h *Handler) List(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)

	settings, err := h.svc.List(orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}

	responses := make([]SettingResponse, len(settings))
	for i := range settings {
		responses[i] = settingResponse(&settings[i])
	}
	c.JSON(http.StatusOK, responses)
}

// Get returns a single SSO setting
// @Summary Get an SSO setting
// @Description Get one SSO setting by ID (admin only)
// @Tags sso-settings
// @Produce json
// @Param id path int true "Setting ID"
// @Success 200 {object} SettingResponse
// @Failure 404 {object} map[string]string "Setting not found"
// @Security BearerAuth
// @Router /sso/settings/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setting ID"})
		return
	}

	setting, err := h.svc.GetByID(orgID, uint(id))
	if errors.Is(err, ErrSettingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch setting"})
		return
	}
	c.JSON(http.StatusOK, settingResponse(setting))
}

// Create creates a new draft SSO setting
// @Summary Create an SSO setting
// @Description Create a new SSO setting in draft status (admin only)
// @Tags sso-settings
// @Accept json
// @Produce json
// @Param request body CreateSettingRequest true "Setting details"
// @Success 201 {object} SettingResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /sso/settings [post]
func (h *Handler) Create(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)

	var req CreateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if models.SsoProvider(req.Provider) == models.SsoProviderAzure && req.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Azure settings require a tenant_id"})
		return
	}

	emailClaim := req.EmailClaim
	if emailClaim == "" {
		emailClaim = "email"
	}
	setting := models.SsoSetting{
		OrganizationID: orgID,
		Provider:       models.SsoProvider(req.Provider),
		ClientID:       req.ClientID,
		ClientSecret:   req.ClientSecret,
		TenantID:       req.TenantID,
		IssuerURL:      req.IssuerURL,
		EmailClaim:     emailClaim,
		PromptLogin:    req.PromptLogin,
	}
	if err := h.svc.CreateDraft(&setting); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create setting"})
		return
	}
	c.JSON(http.StatusCreated, settingResponse(&setting))
}

// Update updates an SSO setting
// @Summary Update an SSO setting
// @Description Update an SSO setting; changes to an active setting take effect on the next login (admin only)
// @Tags sso-settings
// @Accept json
// @Produce json
// @Param id path int true "Setting ID"
// @Param request body UpdateSettingRequest true "Updated fields"
// @Success 200 {object} SettingResponse
// @Failure 404 {object} map[string]string "Setting not found"
// @Security BearerAuth
// @Router /sso/settings/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setting ID"})
		return
	}

	setting, err := h.svc.GetByID(orgID, uint(id))
	if errors.Is(err, ErrSettingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch setting"})
		return
	}

	var req UpdateSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ClientID != nil {
		setting.ClientID = *req.ClientID
	}
	if req.ClientSecret != nil {
		setting.ClientSecret = *req.ClientSecret
	}
	if req.TenantID != nil {
		setting.TenantID = *req.TenantID
	}
	if req.IssuerURL != nil {
		setting.IssuerURL = *req.IssuerURL
	}
	if req.EmailClaim != nil {
		setting.EmailClaim = *req.EmailClaim
	}
	if req.PromptLogin != nil {
		setting.PromptLogin = *req.PromptLogin
	}
	if setting.Provider == models.SsoProviderAzure && setting.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Azure settings require a tenant_id"})
		return
	}

	if err := h.svc.Update(setting); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update setting"})
		return
	}
	c.JSON(http.StatusOK, settingResponse(setting))
}

// Activate promotes a setting to active
// @Summary Activate an SSO setting
// @Description Activate a setting, deactivating the previously active setting of the same provider (admin only)
// @Tags sso-settings
// @Produce json
// @Param id path int true "Setting ID"
// @Success 200 {object} SettingResponse
// @Failure 404 {object} map[string]string "Setting not found"
// @Security BearerAuth
// @Router /sso/settings/{id}/activate [post]
func (h *Handler) Activate(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setting ID"})
		return
	}

	setting, err := h.svc.Activate(orgID, uint(id))
	if errors.Is(err, ErrSettingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to activate setting"})
		return
	}
	c.JSON(http.StatusOK, settingResponse(setting))
}

// Delete removes an SSO setting
// @Summary Delete an SSO setting
// @Description Delete an SSO setting (admin only)
// @Tags sso-settings
// @Produce json
// @Param id path int true "Setting ID"
// @Success 200 {object} map[string]string "Setting deleted"
// @Failure 404 {object} map[string]string "Setting not found"
// @Security BearerAuth
// @Router /sso/settings/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setting ID"})
		return
	}

	err = h.svc.Delete(orgID, uint(id))
	if errors.Is(err, ErrSettingNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete setting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Setting deleted"})
}

// RegisterRoutes registers SSO settings routes on the given router group.
// The group must already enforce authentication and admin access.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
	rg.POST("/:id/activate", h.Activate)
	rg.DELETE("/:id", h.Delete)
}
