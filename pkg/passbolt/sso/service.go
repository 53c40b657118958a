package sso

import (
	"context"
	"errors"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/authtoken"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/provider"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/ssosettings"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/ssostate"
	"gorm.io/gorm"
)

var (
	// ErrUserNotResolvable means the provider-asserted identity maps to no
	// active local user, or to a different user than the flow was bound to.
	ErrUserNotResolvable = errors.New("no active user for asserted identity")
)

// UserResolver maps a provider-asserted email to a local user. Split out so
// tests and future provisioning strategies can swap the lookup.
type UserResolver interface {
	ResolveActiveByEmail(orgID uint, email string) (*models.User, error)
}

// DatabaseUserResolver resolves users against existing records only. SSO
// never provisions accounts; an unknown identity is a hard failure.
type DatabaseUserResolver struct {
	db *gorm.DB
}

// NewDatabaseUserResolver creates a resolver backed by the users table
func NewDatabaseUserResolver(db *gorm.DB) *DatabaseUserResolver {
	return &DatabaseUserResolver{db: db}
}

// ResolveActiveByEmail finds an active member of the organization by email
func (r *DatabaseUserResolver) ResolveActiveByEmail(orgID uint, email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ? AND active = ?", strings.ToLower(email), true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotResolvable
	}
	if err != nil {
		return nil, err
	}

	var membership models.OrganizationMembership
	err = r.db.Where("organization_id = ? AND user_id = ?", orgID, user.ID).First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotResolvable
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Service orchestrates the SSO protocol: flow start, provider callback,
// and the exchange of single-use tokens for sessions.
type Service struct {
	db        *gorm.DB
	states    *ssostate.Store
	tokens    *authtoken.Store
	settings  *ssosettings.Service
	providers *provider.Registry
	users     UserResolver
}

// NewService creates an SSO service
func NewService(db *gorm.DB, settings *ssosettings.Service, providers *provider.Registry, users UserResolver) *Service {
	if users == nil {
		users = NewDatabaseUserResolver(db)
	}
	return &Service{
		db:        db,
		states:    ssostate.NewStore(db),
		tokens:    authtoken.NewStore(db),
		settings:  settings,
		providers: providers,
		users:     users,
	}
}

// ActiveProviders returns the providers a client may start a flow against
func (s *Service) ActiveProviders(orgID uint) ([]models.SsoProvider, error) {
	return s.settings.ActiveProviders(orgID)
}

// StartLogin begins a login flow against a provider and returns the URL the
// client must redirect the browser to. The adapter is resolved before any
// state is written, so a missing setting or failed discovery leaves no record.
func (s *Service) StartLogin(ctx context.Context, orgID uint, prov models.SsoProvider, loginHint string) (string, error) {
	setting, err := s.settings.GetActive(orgID, prov)
	if err != nil {
		return "", err
	}
	adapter, err := s.providers.For(ctx, setting)
	if err != nil {
		return "", err
	}

	st, err := s.states.Create(orgID, setting.ID, models.SsoStateTypeLogin, nil)
	if err != nil {
		return "", err
	}
	return adapter.AuthorizationURL(st.State, st.Nonce, loginHint), nil
}

// StartRecover begins an account-recovery flow bound to one user. The
// callback will only accept an identity matching that user.
func (s *Service) StartRecover(ctx context.Context, orgID uint, user *models.User) (string, error) {
	setting, err := s.settings.GetActiveAny(orgID)
	if err != nil {
		return "", err
	}
	adapter, err := s.providers.For(ctx, setting)
	if err != nil {
		return "", err
	}

	userID := user.ID
	st, err := s.states.Create(orgID, setting.ID, models.SsoStateTypeRecover, &userID)
	if err != nil {
		return "", err
	}
	return adapter.AuthorizationURL(st.State, st.Nonce, user.Email), nil
}

// StartDryRun begins a login flow against one specific setting, active or
// draft, so administrators can validate a configuration end to end before
// activating it. Completing the callback still requires the setting to be
// active.
func (s *Service) StartDryRun(ctx context.Context, orgID, settingID uint) (string, error) {
	setting, err := s.settings.GetByID(orgID, settingID)
	if err != nil {
		return "", err
	}
	adapter, err := s.providers.For(ctx, setting)
	if err != nil {
		return "", err
	}

	st, err := s.states.Create(orgID, setting.ID, models.SsoStateTypeLogin, nil)
	if err != nil {
		return "", err
	}
	return adapter.AuthorizationURL(st.State, st.Nonce, ""), nil
}

// HandleCallback processes the provider redirect: it validates the state,
// exchanges the code, verifies the ID token against the flow nonce, resolves
// the local user, and only then consumes the state and issues a single-use
// authentication token. Any failure before that point leaves the state
// untouched so the flow can be retried within its TTL.
func (s *Service) HandleCallback(ctx context.Context, orgID uint, code, stateValue string) (*models.AuthenticationToken, error) {
	st, err := s.states.Get(stateValue)
	if err != nil {
		return nil, err
	}
	if st.OrganizationID != orgID {
		return nil, ssostate.ErrStateNotFound
	}

	setting, err := s.settings.GetByID(orgID, st.SsoSettingID)
	if err != nil {
		return nil, ssosettings.ErrSettingsNotFound
	}
	if setting.Status != models.SsoSettingStatusActive {
		return nil, ssosettings.ErrSettingsNotFound
	}
	adapter, err := s.providers.For(ctx, setting)
	if err != nil {
		return nil, err
	}

	tok, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	owner, err := adapter.ValidateIDToken(ctx, tok, st.Nonce)
	if err != nil {
		return nil, err
	}

	user, err := s.resolveUser(orgID, st, owner)
	if err != nil {
		return nil, err
	}

	// Consume the state and issue the token atomically so a crash between
	// the two cannot strand a consumed state without its token.
	var issued *models.AuthenticationToken
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := ssostate.NewStore(tx).Consume(st); err != nil {
			return err
		}
		t, err := authtoken.NewStore(tx).Issue(user.ID, tokenTypeFor(st.Type))
		if err != nil {
			return err
		}
		issued = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// resolveUser maps the provider-asserted identity to a local user. Recover
// flows additionally require the identity to match the user the flow was
// started for.
func (s *Service) resolveUser(orgID uint, st *models.SsoState, owner *provider.ResourceOwner) (*models.User, error) {
	if st.Type == models.SsoStateTypeRecover {
		if st.UserID == nil {
			return nil, ErrUserNotResolvable
		}
		var user models.User
		if err := s.db.First(&user, *st.UserID).Error; err != nil {
			return nil, ErrUserNotResolvable
		}
		if !user.Active || !strings.EqualFold(user.Email, owner.Email) {
			return nil, ErrUserNotResolvable
		}
		return &user, nil
	}
	return s.users.ResolveActiveByEmail(orgID, owner.Email)
}

func tokenTypeFor(typ models.SsoStateType) models.AuthTokenType {
	if typ == models.SsoStateTypeRecover {
		return models.AuthTokenTypeRecover
	}
	return models.AuthTokenTypeLogin
}

// FinalizeLogin exchanges a single-use login token for a session JWT. The
// token is consumed even if it turns out the user has been deactivated since.
func (s *Service) FinalizeLogin(tokenValue string) (*models.User, error) {
	record, err := s.tokens.AssertAndConsume(tokenValue, models.AuthTokenTypeLogin)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.First(&user, record.UserID).Error; err != nil {
		return nil, ErrUserNotResolvable
	}
	if !user.Active {
		return nil, ErrUserNotResolvable
	}
	return &user, nil
}

// FinalizeRecover exchanges a single-use recover token for the recovery
// subject, letting the client proceed with credential re-establishment.
func (s *Service) FinalizeRecover(tokenValue string) (*models.User, error) {
	record, err := s.tokens.AssertAndConsume(tokenValue, models.AuthTokenTypeRecover)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.First(&user, record.UserID).Error; err != nil {
		return nil, ErrUserNotResolvable
	}
	if !user.Active {
		return nil, ErrUserNotResolvable
	}
	return &user, nil
}
