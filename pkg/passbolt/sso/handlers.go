package sso

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/authtoken"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/provider"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/ssosettings"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/ssostate"
	"github.com/gin-gonic/gin"
)

// Handler handles SSO protocol requests
type Handler struct {
	svc *Service
}

// NewHandler creates a new SSO handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// StartLoginRequest represents the request to start a login flow
type StartLoginRequest struct {
	Email string `json:"email" binding:"omitempty,email"`
}

// StartRecoverRequest represents the request to start account recovery
type StartRecoverRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RedirectResponse carries the provider URL the client must redirect to
type RedirectResponse struct {
	URL string `json:"url"`
}

// TokenResponse carries the single-use token issued after a successful callback
type TokenResponse struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

// FinalizeRequest represents the request to redeem a single-use token
type FinalizeRequest struct {
	Token string `json:"token" binding:"required"`
}

// ListProviders returns the providers with an active SSO configuration
// @Summary List SSO providers
// @Description Get the identity providers available for SSO login
// @Tags sso
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /sso/providers [get]
func (h *Handler) ListProviders(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)

	providers, err := h.svc.ActiveProviders(orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch providers"})
		return
	}
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	c.JSON(http.StatusOK, gin.H{"providers": names})
}

// StartLogin begins an SSO login flow
// @Summary Start SSO login
// @Description Start a login flow against a provider, returns the authorization URL
// @Tags sso
// @Accept json
// @Produce json
// @Param provider path string true "Provider name" Enums(azure, google)
// @Param request body StartLoginRequest false "Optional login hint"
// @Success 200 {object} RedirectResponse
// @Failure 400 {object} map[string]string "SSO not configured"
// @Failure 502 {object} map[string]string "Provider unavailable"
// @Router /sso/{provider}/login [post]
func (h *Handler) StartLogin(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)

	// A live session must not silently switch identities mid-flight
	if header := c.GetHeader("Authorization"); header != "" {
		if _, err := auth.ValidateToken(bearerToken(header)); err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Already authenticated"})
			return
		}
	}

	var req StartLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	url, err := h.svc.StartLogin(c.Request.Context(), orgID, models.SsoProvider(c.Param("provider")), req.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RedirectResponse{URL: url})
}

// Callback completes the provider round-trip
// @Summary SSO callback
// @Description Handle the provider redirect, validate the identity and issue a single-use token
// @Tags sso
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string true "Flow state"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} map[string]string "Validation failure"
// @Failure 502 {object} map[string]string "Provider unavailable"
// @Router /sso/callback [get]
func (h *Handler) Callback(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)

	// The provider reports user cancellation and its own errors via the
	// error query parameter instead of a code.
	if errCode := c.Query("error"); errCode != "" {
		log.Printf("SSO callback returned provider error %q: %s", errCode, c.Query("error_description"))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Sign-in was not completed, please restart the login"})
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing code or state"})
		return
	}

	token, err := h.svc.HandleCallback(c.Request.Context(), orgID, code, state)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: token.Token, Type: string(token.Type)})
}

// FinalizeLogin redeems a login token for a session
// @Summary Finalize SSO login
// @Description Exchange a single-use login token for a session token
// @Tags sso
// @Accept json
// @Produce json
// @Param request body FinalizeRequest true "Single-use token"
// @Success 200 {object} auth.AuthResponse
// @Failure 400 {object} map[string]string "Invalid token"
// @Router /sso/login/finalize [post]
func (h *Handler) FinalizeLogin(c *gin.Context) {
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.FinalizeLogin(req.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}

	session, err := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, auth.AuthResponse{
		Token: session,
		User: auth.UserResponse{
			ID:         user.ID,
			Email:      user.Email,
			Name:       user.Name,
			SystemRole: string(user.SystemRole),
		},
	})
}

// StartRecover begins an account-recovery flow
// @Summary Start SSO account recovery
// @Description Start a recovery flow for a user, returns the authorization URL
// @Tags sso
// @Accept json
// @Produce json
// @Param request body StartRecoverRequest true "Account email"
// @Success 200 {object} RedirectResponse
// @Failure 400 {object} map[string]string "Recovery unavailable"
// @Router /sso/recover/start [post]
func (h *Handler) StartRecover(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)

	var req StartRecoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.users.ResolveActiveByEmail(orgID, req.Email)
	if err != nil {
		// Same response as other start failures to avoid account enumeration
		log.Printf("SSO recover start rejected for org %d: %v", orgID, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to start account recovery"})
		return
	}

	url, err := h.svc.StartRecover(c.Request.Context(), orgID, user)
	if err != nil {
		if errors.Is(err, ssosettings.ErrSettingsNotFound) {
			log.Printf("SSO recover start rejected for org %d: %v", orgID, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to start account recovery"})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RedirectResponse{URL: url})
}

// FinalizeRecover redeems a recover token
// @Summary Finalize SSO account recovery
// @Description Exchange a single-use recover token for the recovery subject
// @Tags sso
// @Accept json
// @Produce json
// @Param request body FinalizeRequest true "Single-use token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string "Invalid token"
// @Router /sso/recover/finalize [post]
func (h *Handler) FinalizeRecover(c *gin.Context) {
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.FinalizeRecover(req.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": user.ID,
		"email":   user.Email,
	})
}

// DryRun starts a login flow against a specific setting so an administrator
// can verify its configuration before or after activation. Discovery and URL
// construction run against the addressed setting regardless of status.
// @Summary Dry-run an SSO setting
// @Description Validate an SSO setting by building its authorization URL (admin only)
// @Tags sso
// @Produce json
// @Param id path int true "Setting ID"
// @Success 200 {object} RedirectResponse
// @Failure 502 {object} map[string]string "Provider unavailable"
// @Security BearerAuth
// @Router /sso/settings/{id}/dry-run [post]
func (h *Handler) DryRun(c *gin.Context) {
	orgID, _ := auth.GetOrgID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid setting ID"})
		return
	}

	url, err := h.svc.StartDryRun(c.Request.Context(), orgID, uint(id))
	if err != nil {
		if errors.Is(err, ssosettings.ErrSettingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, RedirectResponse{URL: url})
}

// writeError maps protocol errors onto HTTP responses. Claim-level detail is
// logged but never sent to the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	var claimErr *provider.ClaimError
	switch {
	case errors.Is(err, ssosettings.ErrSettingsNotFound),
		errors.Is(err, provider.ErrUnsupportedProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": "SSO is not configured for this organization"})
	case errors.Is(err, ssostate.ErrStateNotFound),
		errors.Is(err, ssostate.ErrStateExpired),
		errors.Is(err, ssostate.ErrStateConsumed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired sign-in attempt, please restart the login"})
	case errors.Is(err, authtoken.ErrTokenNotFound),
		errors.Is(err, authtoken.ErrTokenExpired),
		errors.Is(err, authtoken.ErrTokenConsumed),
		errors.Is(err, authtoken.ErrTokenTypeMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired token, please restart the login"})
	case errors.Is(err, provider.ErrProviderUnavailable),
		errors.Is(err, provider.ErrExchangeFailed):
		log.Printf("SSO provider failure: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Identity provider is unavailable, please try again later"})
	case errors.As(err, &claimErr):
		log.Printf("SSO id token rejected on claim %q: %s", claimErr.Claim, claimErr.Reason)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication failed"})
	case errors.Is(err, ssostate.ErrNonceMismatch):
		log.Printf("SSO id token rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication failed"})
	case errors.Is(err, ErrUserNotResolvable):
		log.Printf("SSO identity rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication failed"})
	default:
		log.Printf("SSO internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

// RegisterRoutes registers the public SSO protocol routes. The group must
// run OrgMiddleware but no authentication.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/providers", h.ListProviders)
	rg.POST("/:provider/login", h.StartLogin)
	rg.GET("/callback", h.Callback)
	rg.POST("/login/finalize", h.FinalizeLogin)
	rg.POST("/recover/start", h.StartRecover)
	rg.POST("/recover/finalize", h.FinalizeRecover)
}

// RegisterAdminRoutes registers SSO routes requiring admin access
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.POST("/:id/dry-run", h.DryRun)
}
