package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/ssostate"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// azureIssuerTemplate is the v2.0 issuer for a single directory tenant.
// Tokens from the /common endpoint carry per-tenant issuers and are not
// supported; a tenant must be configured.
const azureIssuerTemplate = "https://login.microsoftonline.com/%s/v2.0"

// azureTokenVersion is the only accepted value of the "ver" claim
const azureTokenVersion = "2.0"

// Azure authenticates against a Microsoft Entra ID (Azure AD) tenant
type Azure struct {
	setting  *models.SsoSetting
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewAzure builds an Azure adapter for an SSO setting, performing OpenID
// discovery against the configured tenant.
func NewAzure(ctx context.Context, setting *models.SsoSetting, redirectURL string) (*Azure, error) {
	if setting.TenantID == "" {
		return nil, fmt.Errorf("azure setting %d has no tenant id", setting.ID)
	}

	issuer := setting.IssuerURL
	if issuer == "" {
		issuer = fmt.Sprintf(azureIssuerTemplate, setting.TenantID)
	}
	p, err := discover(ctx, issuer)
	if err != nil {
		return nil, err
	}

	return &Azure{
		setting: setting,
		config: oauth2.Config{
			ClientID:     setting.ClientID,
			ClientSecret: setting.ClientSecret,
			Endpoint:     p.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: p.Verifier(&oidc.Config{ClientID: setting.ClientID}),
	}, nil
}

// Provider returns the provider this adapter serves
func (a *Azure) Provider() models.SsoProvider {
	return models.SsoProviderAzure
}

// AuthorizationURL builds the authorize URL for one flow
func (a *Azure) AuthorizationURL(state, nonce, loginHint string) string {
	opts := []oauth2.AuthCodeOption{oidc.Nonce(nonce)}
	if a.setting.PromptLogin {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "login"))
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return a.config.AuthCodeURL(state, opts...)
}

// ExchangeCode performs the authorization-code grant
func (a *Azure) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return exchangeCode(ctx, &a.config, code)
}

// azureClaims are the provider-specific claims checked on top of the
// standard issuer/audience/expiry set.
type azureClaims struct {
	TenantID          string `json:"tid"`
	Version           string `json:"ver"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	UPN               string `json:"upn"`
	Name              string `json:"name"`
}

// emailFor returns the identity claim selected by the setting's EmailClaim
// alias. Entra tenants differ in which claim carries the routable address.
func (c *azureClaims) emailFor(alias string) string {
	switch alias {
	case "preferred_username":
		return c.PreferredUsername
	case "upn":
		return c.UPN
	default:
		return c.Email
	}
}

// ValidateIDToken verifies signature and standard claims via the tenant's
// JWKS, then the Azure-specific tid/ver claims and the flow nonce.
func (a *Azure) ValidateIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (*ResourceOwner, error) {
	idToken, err := verifyRawIDToken(ctx, a.verifier, tok)
	if err != nil {
		return nil, err
	}

	if err := ssostate.ValidateNonce(expectedNonce, idToken.Nonce); err != nil {
		return nil, err
	}

	var claims azureClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, &ClaimError{Claim: "id_token", Reason: "undecodable claims: " + err.Error()}
	}
	if claims.TenantID != a.setting.TenantID {
		return nil, &ClaimError{Claim: "tid", Reason: "token issued for a different tenant"}
	}
	if claims.Version != azureTokenVersion {
		return nil, &ClaimError{Claim: "ver", Reason: fmt.Sprintf("unsupported token version %q", claims.Version)}
	}

	alias := a.setting.EmailClaim
	email := strings.TrimSpace(claims.emailFor(alias))
	if email == "" {
		if alias == "" {
			alias = "email"
		}
		return nil, &ClaimError{Claim: alias, Reason: "identity claim absent or empty"}
	}

	return &ResourceOwner{
		Subject: idToken.Subject,
		Email:   strings.ToLower(email),
		Name:    claims.Name,
	}, nil
}
