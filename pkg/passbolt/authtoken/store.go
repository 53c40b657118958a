package authtoken

import (
	"errors"
	"os"
	"time"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/token"
	"gorm.io/gorm"
)

var (
	ErrTokenNotFound     = errors.New("authentication token not found")
	ErrTokenExpired      = errors.New("authentication token has expired")
	ErrTokenConsumed     = errors.New("authentication token already consumed")
	ErrTokenTypeMismatch = errors.New("authentication token type mismatch")
)

const createAttempts = 3

// TTL returns the validity window for a token type, derived from created_at
// at read time so configuration changes apply to outstanding tokens.
func TTL(typ models.AuthTokenType) time.Duration {
	switch typ {
	case models.AuthTokenTypeRecover:
		return durationFromEnv("AUTH_TOKEN_RECOVER_TTL", time.Hour)
	default:
		return durationFromEnv("AUTH_TOKEN_LOGIN_TTL", 5*time.Minute)
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

// Store persists single-use authentication tokens
type Store struct {
	db *gorm.DB
}

// NewStore creates a new AuthenticationToken store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Issue creates a new active token bound to a user
func (s *Store) Issue(userID uint, typ models.AuthTokenType) (*models.AuthenticationToken, error) {
	var lastErr error
	for i := 0; i < createAttempts; i++ {
		value, err := token.Generate(token.DefaultLength)
		if err != nil {
			return nil, err
		}
		record := models.AuthenticationToken{
			UserID: userID,
			Token:  value,
			Type:   typ,
			Active: true,
		}
		if err := s.db.Create(&record).Error; err != nil {
			lastErr = err
			continue
		}
		return &record, nil
	}
	return nil, lastErr
}

// GetActiveNotExpired looks up a token by value and rejects consumed,
// expired or wrongly-typed tokens with distinct errors. It does not consume.
func (s *Store) GetActiveNotExpired(value string, typ models.AuthTokenType) (*models.AuthenticationToken, error) {
	var record models.AuthenticationToken
	if err := s.db.Where("token = ?", value).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if record.Type != typ {
		return nil, ErrTokenTypeMismatch
	}
	if time.Since(record.CreatedAt) > TTL(record.Type) {
		return nil, ErrTokenExpired
	}
	if !record.Active {
		return nil, ErrTokenConsumed
	}
	return &record, nil
}

// AssertAndConsume validates a token and flips it inactive in one conditional
// update, closing the check-then-act race: of two concurrent callers at most
// one succeeds, the other gets ErrTokenConsumed.
func (s *Store) AssertAndConsume(value string, typ models.AuthTokenType) (*models.AuthenticationToken, error) {
	record, err := s.GetActiveNotExpired(value, typ)
	if err != nil {
		return nil, err
	}
	res := s.db.Model(&models.AuthenticationToken{}).
		Where("id = ? AND active = ?", record.ID, true).
		Update("active", false)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrTokenConsumed
	}
	record.Active = false
	return record, nil
}

// ReapExpired deactivates active tokens older than their type's TTL
func (s *Store) ReapExpired() (int64, error) {
	var reaped int64
	for _, typ := range []models.AuthTokenType{models.AuthTokenTypeLogin, models.AuthTokenTypeRecover} {
		cutoff := time.Now().Add(-TTL(typ))
		res := s.db.Model(&models.AuthenticationToken{}).
			Where("type = ? AND active = ? AND created_at < ?", typ, true, cutoff).
			Update("active", false)
		if res.Error != nil {
			return reaped, res.Error
		}
		reaped += res.RowsAffected
	}
	return reaped, nil
}
