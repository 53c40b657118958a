package models

import (
	"time"

	"gorm.io/gorm"
)

// SsoProvider identifies a supported identity provider
type SsoProvider string

const (
	SsoProviderAzure  SsoProvider = "azure"
	SsoProviderGoogle SsoProvider = "google"
)

// SsoSettingStatus represents the lifecycle status of an SSO setting
type SsoSettingStatus string

const (
	SsoSettingStatusDraft  SsoSettingStatus = "draft"
	SsoSettingStatusActive SsoSettingStatus = "active"
)

// SsoSetting represents an identity provider configuration for an organization.
// At most one setting per (organization, provider) is active at a time;
// activating a new one deactivates the previous.
type SsoSetting struct {
	ID             uint             `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-"`
	OrganizationID uint             `gorm:"not null;index" json:"organization_id"`
	Provider       SsoProvider      `gorm:"type:varchar(20);not null" json:"provider"`
	Status         SsoSettingStatus `gorm:"type:varchar(20);default:'draft'" json:"status"`
	ClientID       string           `gorm:"not null" json:"client_id"`
	ClientSecret   string           `gorm:"not null" json:"-"`
	TenantID       string           `json:"tenant_id,omitempty"` // Azure directory tenant
	IssuerURL      string           `json:"issuer_url,omitempty"` // Overrides the provider's default issuer
	EmailClaim     string           `gorm:"default:'email'" json:"email_claim"` // Azure: email, preferred_username or upn
	PromptLogin    bool             `gorm:"default:false" json:"prompt_login"`  // Force the provider to re-prompt credentials

	// Relationships
	Organization Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

// SsoStateType represents the kind of flow an SsoState belongs to
type SsoStateType string

const (
	SsoStateTypeLogin   SsoStateType = "login"
	SsoStateTypeRecover SsoStateType = "sso_recover"
)

// SsoState represents one in-flight SSO flow, correlating the authorization
// request with its callback. State is the anti-CSRF value round-tripped
// through the provider; Nonce is echoed inside the signed ID token.
// A record is consumable exactly once. Expiry is always derived from
// CreatedAt plus the per-type TTL, never stored.
type SsoState struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	OrganizationID uint           `gorm:"not null;index" json:"organization_id"`
	SsoSettingID   uint           `gorm:"not null;index" json:"sso_setting_id"`
	State          string         `gorm:"uniqueIndex;not null" json:"-"`
	Nonce          string         `gorm:"uniqueIndex;not null" json:"-"`
	Type           SsoStateType   `gorm:"type:varchar(20);not null" json:"type"`
	UserID         *uint          `gorm:"index" json:"user_id,omitempty"` // Set up-front for recover flows
	Active         bool           `gorm:"default:true;index" json:"active"`

	// Relationships
	Setting SsoSetting `gorm:"foreignKey:SsoSettingID" json:"-"`
}

// AuthTokenType represents the follow-up action an AuthenticationToken unlocks
type AuthTokenType string

const (
	AuthTokenTypeLogin   AuthTokenType = "login"
	AuthTokenTypeRecover AuthTokenType = "recover"
)

// AuthenticationToken is a short-lived, single-use token bridging a
// successful SSO verification to local session creation or account recovery.
// Expiry is derived from CreatedAt plus the per-type TTL at read time.
type AuthenticationToken struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Token     string         `gorm:"uniqueIndex;not null" json:"token"`
	Type      AuthTokenType  `gorm:"type:varchar(20);not null" json:"type"`
	Active    bool           `gorm:"default:true;index" json:"active"`

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"-"`
}
