package ssostate

import (
	"sync"
	"testing"
	"time"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	// A single pooled connection keeps every goroutine on the same
	// in-memory database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	models.AutoMigrate(db)
	return db
}

func TestCreateGeneratesUniqueStateAndNonce(t *testing.T) {
	store := NewStore(setupTestDB(t))

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		st, err := store.Create(1, 1, models.SsoStateTypeLogin, nil)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if !st.Active {
			t.Error("Expected new state to be active")
		}
		if st.State == st.Nonce {
			t.Error("State and nonce should differ")
		}
		for _, v := range []string{st.State, st.Nonce} {
			if _, dup := seen[v]; dup {
				t.Fatalf("Duplicate value generated: %q", v)
			}
			seen[v] = struct{}{}
		}
	}
}

func TestCreateBindsUserForRecover(t *testing.T) {
	store := NewStore(setupTestDB(t))

	userID := uint(42)
	st, err := store.Create(1, 1, models.SsoStateTypeRecover, &userID)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if st.UserID == nil || *st.UserID != 42 {
		t.Errorf("Expected user 42 bound to recover state, got %v", st.UserID)
	}
}

func TestGetUnknownState(t *testing.T) {
	store := NewStore(setupTestDB(t))

	if _, err := store.Get("never-issued"); err != ErrStateNotFound {
		t.Errorf("Expected ErrStateNotFound, got %v", err)
	}
}

func TestGetExpiredState(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	st, err := store.Create(1, 1, models.SsoStateTypeLogin, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Age the record past the login TTL
	old := time.Now().Add(-TTL(models.SsoStateTypeLogin) - time.Minute)
	db.Model(&models.SsoState{}).Where("id = ?", st.ID).Update("created_at", old)

	if _, err := store.Get(st.State); err != ErrStateExpired {
		t.Errorf("Expected ErrStateExpired, got %v", err)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store := NewStore(setupTestDB(t))

	st, err := store.Create(1, 1, models.SsoStateTypeLogin, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.Consume(st); err != nil {
		t.Fatalf("First consume failed: %v", err)
	}
	if err := store.Consume(st); err != ErrStateConsumed {
		t.Errorf("Expected ErrStateConsumed on second consume, got %v", err)
	}
	if _, err := store.Get(st.State); err != ErrStateConsumed {
		t.Errorf("Expected ErrStateConsumed on lookup after consume, got %v", err)
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewStore(setupTestDB(t))

	st, err := store.Create(1, 1, models.SsoStateTypeLogin, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attempt := *st
			errs[i] = store.Consume(&attempt)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch err {
		case nil:
			wins++
		case ErrStateConsumed:
			losses++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly one successful consume, got %d", wins)
	}
	if losses != attempts-1 {
		t.Errorf("Expected %d ErrStateConsumed, got %d", attempts-1, losses)
	}
}

func TestGetDoesNotConsume(t *testing.T) {
	store := NewStore(setupTestDB(t))

	st, _ := store.Create(1, 1, models.SsoStateTypeLogin, nil)

	// Repeated lookups must succeed until an explicit consume
	for i := 0; i < 3; i++ {
		if _, err := store.Get(st.State); err != nil {
			t.Fatalf("Lookup %d failed: %v", i, err)
		}
	}
}

func TestReapExpired(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	fresh, _ := store.Create(1, 1, models.SsoStateTypeLogin, nil)
	stale, _ := store.Create(1, 1, models.SsoStateTypeLogin, nil)

	old := time.Now().Add(-TTL(models.SsoStateTypeLogin) - time.Minute)
	db.Model(&models.SsoState{}).Where("id = ?", stale.ID).Update("created_at", old)

	reaped, err := store.ReapExpired()
	if err != nil {
		t.Fatalf("ReapExpired failed: %v", err)
	}
	if reaped != 1 {
		t.Errorf("Expected 1 reaped state, got %d", reaped)
	}
	if _, err := store.Get(fresh.State); err != nil {
		t.Errorf("Fresh state should survive reaping, got %v", err)
	}
}

func TestValidateNonce(t *testing.T) {
	if err := ValidateNonce("abc123", "abc123"); err != nil {
		t.Errorf("Expected matching nonces to validate, got %v", err)
	}
	if err := ValidateNonce("abc123", "abc124"); err != ErrNonceMismatch {
		t.Errorf("Expected ErrNonceMismatch, got %v", err)
	}
	if err := ValidateNonce("abc123", ""); err != ErrNonceMismatch {
		t.Errorf("Expected ErrNonceMismatch for empty token nonce, got %v", err)
	}
	if err := ValidateNonce("", ""); err != ErrNonceMismatch {
		t.Errorf("Expected ErrNonceMismatch for empty expected nonce, got %v", err)
	}
}

func TestTTLPerType(t *testing.T) {
	if TTL(models.SsoStateTypeLogin) >= TTL(models.SsoStateTypeRecover) {
		t.Error("Expected recover TTL to be longer than login TTL by default")
	}
}
