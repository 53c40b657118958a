package provider

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	// ErrProviderUnavailable covers discovery, JWKS and network failures.
	// Safe to retry on a later attempt; never retried within one flow.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrExchangeFailed means the provider rejected the authorization code
	ErrExchangeFailed = errors.New("authorization code exchange rejected")
	// ErrUnsupportedProvider means no adapter exists for the configured provider
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
)

// ClaimError reports an ID token that failed validation, naming the
// offending claim. Handlers log the claim but return a generic message.
type ClaimError struct {
	Claim  string
	Reason string
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("invalid id token claim %q: %s", e.Claim, e.Reason)
}

// ResourceOwner is the identity asserted by a validated ID token
type ResourceOwner struct {
	Subject string
	Email   string
	Name    string
}

// Adapter hides all provider quirks behind one interface so the
// orchestrator stays provider-agnostic and new providers can be added
// without touching the state/token protocol.
type Adapter interface {
	// Provider returns the provider this adapter serves
	Provider() models.SsoProvider
	// AuthorizationURL builds the provider's authorize endpoint URL for one flow
	AuthorizationURL(state, nonce, loginHint string) string
	// ExchangeCode performs the authorization-code grant
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	// ValidateIDToken verifies the ID token's signature and claims,
	// including that its nonce equals expectedNonce
	ValidateIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (*ResourceOwner, error)
}

// providerTimeout bounds every HTTP call to a provider (discovery, token
// exchange, JWKS fetch). A timeout surfaces as ErrProviderUnavailable.
const providerTimeout = 10 * time.Second

// discover fetches and validates the provider's OpenID discovery document.
// go-oidc caches the JWKS in-process after the first fetch.
func discover(ctx context.Context, issuer string) (*oidc.Provider, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	p, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery for %q: %v", ErrProviderUnavailable, issuer, err)
	}

	var meta struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := p.Claims(&meta); err != nil {
		return nil, fmt.Errorf("%w: reading discovery document: %v", ErrProviderUnavailable, err)
	}
	endpoint := p.Endpoint()
	for name, raw := range map[string]string{
		"authorization_endpoint": endpoint.AuthURL,
		"token_endpoint":         endpoint.TokenURL,
		"jwks_uri":               meta.JWKSURI,
	} {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("%w: discovery document has malformed %s %q", ErrProviderUnavailable, name, raw)
		}
	}
	return p, nil
}

// exchangeCode runs the authorization-code grant, surfacing provider
// rejections distinctly from network failures.
func exchangeCode(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return nil, fmt.Errorf("%w: %s", ErrExchangeFailed, retrieveErr.ErrorCode)
		}
		return nil, fmt.Errorf("%w: token exchange: %v", ErrProviderUnavailable, err)
	}
	return tok, nil
}

// verifyRawIDToken extracts and verifies the ID token carried in a token
// response: signature against the provider JWKS, issuer, audience, expiry.
func verifyRawIDToken(ctx context.Context, verifier *oidc.IDTokenVerifier, tok *oauth2.Token) (*oidc.IDToken, error) {
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, &ClaimError{Claim: "id_token", Reason: "missing from token response"}
	}
	ctx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	idToken, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, &ClaimError{Claim: "id_token", Reason: err.Error()}
	}
	return idToken, nil
}

// Registry builds and caches one adapter per SSO setting. The cache is
// read-mostly; redundant concurrent population is tolerated.
type Registry struct {
	redirectURL string
	mu          sync.RWMutex
	adapters    map[uint]Adapter
}

// NewRegistry creates an adapter registry. redirectURL is the deployment's
// fixed OAuth2 callback URL.
func NewRegistry(redirectURL string) *Registry {
	return &Registry{
		redirectURL: redirectURL,
		adapters:    make(map[uint]Adapter),
	}
}

// For returns the adapter for a setting, building it (discovery included)
// on first use.
func (r *Registry) For(ctx context.Context, setting *models.SsoSetting) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[setting.ID]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	var (
		a2  Adapter
		err error
	)
	switch setting.Provider {
	case models.SsoProviderAzure:
		a2, err = NewAzure(ctx, setting, r.redirectURL)
	case models.SsoProviderGoogle:
		a2, err = NewGoogle(ctx, setting, r.redirectURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, setting.Provider)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.adapters[setting.ID] = a2
	r.mu.Unlock()
	return a2, nil
}

// Invalidate drops the cached adapter for a setting, forcing a rebuild on
// next use. Called when settings change.
func (r *Registry) Invalidate(settingID uint) {
	r.mu.Lock()
	delete(r.adapters, settingID)
	r.mu.Unlock()
}
