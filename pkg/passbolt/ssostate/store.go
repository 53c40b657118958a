package ssostate

import (
	"crypto/subtle"
	"errors"
	"os"
	"time"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/token"
	"gorm.io/gorm"
)

var (
	ErrStateNotFound = errors.New("sso state not found")
	ErrStateExpired  = errors.New("sso state has expired")
	ErrStateConsumed = errors.New("sso state already consumed")
	ErrNonceMismatch = errors.New("nonce mismatch")
)

// createAttempts bounds the retry loop on a state/nonce uniqueness collision.
// With 258-bit tokens a single collision is already improbable.
const createAttempts = 3

// TTL returns the validity window for a state type. Expiry is always derived
// from created_at plus this value at read time, so changing the TTL applies
// retroactively to in-flight flows.
func TTL(typ models.SsoStateType) time.Duration {
	switch typ {
	case models.SsoStateTypeRecover:
		return durationFromEnv("SSO_RECOVER_STATE_TTL", time.Hour)
	default:
		return durationFromEnv("SSO_LOGIN_STATE_TTL", 5*time.Minute)
	}
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// Store persists per-flow SSO state records
type Store struct {
	db *gorm.DB
}

// NewStore creates a new SsoState store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Create generates a fresh state and nonce and persists an active record.
// The user is bound up-front only for recover flows.
func (s *Store) Create(orgID, settingID uint, typ models.SsoStateType, userID *uint) (*models.SsoState, error) {
	var lastErr error
	for i := 0; i < createAttempts; i++ {
		state, err := token.Generate(token.DefaultLength)
		if err != nil {
			return nil, err
		}
		nonce, err := token.Generate(token.DefaultLength)
		if err != nil {
			return nil, err
		}

		record := models.SsoState{
			OrganizationID: orgID,
			SsoSettingID:   settingID,
			State:          state,
			Nonce:          nonce,
			Type:           typ,
			UserID:         userID,
			Active:         true,
		}
		if err := s.db.Create(&record).Error; err != nil {
			// Unique index violation on state or nonce; regenerate and retry
			lastErr = err
			continue
		}
		return &record, nil
	}
	return nil, lastErr
}

// Get looks up a state by its value and checks expiry and consumption.
// It never deactivates the record: consumption happens only once the whole
// callback has been validated, so a transient downstream failure does not
// lock the user out of an otherwise valid flow.
func (s *Store) Get(stateValue string) (*models.SsoState, error) {
	var record models.SsoState
	if err := s.db.Where("state = ?", stateValue).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	if time.Since(record.CreatedAt) > TTL(record.Type) {
		return nil, ErrStateExpired
	}
	if !record.Active {
		return nil, ErrStateConsumed
	}
	return &record, nil
}

// Consume deactivates a state record. The conditional update guarantees that
// concurrent callbacks presenting the same state yield exactly one success.
func (s *Store) Consume(st *models.SsoState) error {
	res := s.db.Model(&models.SsoState{}).
		Where("id = ? AND active = ?", st.ID, true).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStateConsumed
	}
	st.Active = false
	return nil
}

// ReapExpired deactivates all active states older than their type's TTL.
// Returns the number of records reaped.
func (s *Store) ReapExpired() (int64, error) {
	var reaped int64
	for _, typ := range []models.SsoStateType{models.SsoStateTypeLogin, models.SsoStateTypeRecover} {
		cutoff := time.Now().Add(-TTL(typ))
		res := s.db.Model(&models.SsoState{}).
			Where("type = ? AND active = ? AND created_at < ?", typ, true, cutoff).
			Update("active", false)
		if res.Error != nil {
			return reaped, res.Error
		}
		reaped += res.RowsAffected
	}
	return reaped, nil
}

// ValidateNonce compares the nonce echoed in the ID token against the one
// generated for this flow. Constant-time; any mismatch is a hard failure.
func ValidateNonce(expected, got string) error {
	if expected == "" || got == "" {
		return ErrNonceMismatch
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return ErrNonceMismatch
	}
	return nil
}
