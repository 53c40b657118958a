package authtoken

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

func TestIssueAndConsume(t *testing.T) {
	store := NewStore(setupTestDB(t))

	issued, err := store.Issue(7, models.AuthTokenTypeLogin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !issued.Active {
		t.Error("Expected issued token to be active")
	}

	consumed, err := store.AssertAndConsume(issued.Token, models.AuthTokenTypeLogin)
	if err != nil {
		t.Fatalf("AssertAndConsume failed: %v", err)
	}
	if consumed.UserID != 7 {
		t.Errorf("Expected user 7, got %d", consumed.UserID)
	}
	if consumed.Active {
		t.Error("Expected consumed token to be inactive")
	}

	if _, err := store.AssertAndConsume(issued.Token, models.AuthTokenTypeLogin); err != ErrTokenConsumed {
		t.Errorf("Expected ErrTokenConsumed on reuse, got %v", err)
	}
}

func TestConsumeUnknownToken(t *testing.T) {
	store := NewStore(setupTestDB(t))

	if _, err := store.AssertAndConsume("never-issued", models.AuthTokenTypeLogin); err != ErrTokenNotFound {
		t.Errorf("Expected ErrTokenNotFound, got %v", err)
	}
}

func TestConsumeTypeMismatch(t *testing.T) {
	store := NewStore(setupTestDB(t))

	issued, _ := store.Issue(7, models.AuthTokenTypeLogin)
	if _, err := store.AssertAndConsume(issued.Token, models.AuthTokenTypeRecover); err != ErrTokenTypeMismatch {
		t.Errorf("Expected ErrTokenTypeMismatch, got %v", err)
	}

	// The mismatch must not have consumed the token
	if _, err := store.AssertAndConsume(issued.Token, models.AuthTokenTypeLogin); err != nil {
		t.Errorf("Token should still be consumable with the right type, got %v", err)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	issued, _ := store.Issue(7, models.AuthTokenTypeLogin)
	old := time.Now().Add(-TTL(models.AuthTokenTypeLogin) - time.Minute)
	db.Model(&models.AuthenticationToken{}).Where("id = ?", issued.ID).Update("created_at", old)

	if _, err := store.AssertAndConsume(issued.Token, models.AuthTokenTypeLogin); err != ErrTokenExpired {
		t.Errorf("Expected ErrTokenExpired, got %v", err)
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	store := NewStore(setupTestDB(t))

	issued, err := store.Issue(7, models.AuthTokenTypeLogin)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.AssertAndConsume(issued.Token, models.AuthTokenTypeLogin)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch err {
		case nil:
			wins++
		case ErrTokenConsumed:
			losses++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly one successful consume, got %d", wins)
	}
	if losses != attempts-1 {
		t.Errorf("Expected %d ErrTokenConsumed, got %d", attempts-1, losses)
	}
}

func TestReapExpired(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)

	fresh, _ := store.Issue(1, models.AuthTokenTypeLogin)
	stale, _ := store.Issue(2, models.AuthTokenTypeLogin)
	old := time.Now().Add(-TTL(models.AuthTokenTypeLogin) - time.Minute)
	db.Model(&models.AuthenticationToken{}).Where("id = ?", stale.ID).Update("created_at", old)

	reaped, err := store.ReapExpired()
	if err != nil {
		t.Fatalf("ReapExpired failed: %v", err)
	}
	if reaped != 1 {
		t.Errorf("Expected 1 reaped token, got %d", reaped)
	}
	if _, err := store.GetActiveNotExpired(fresh.Token, models.AuthTokenTypeLogin); err != nil {
		t.Errorf("Fresh token should survive reaping, got %v", err)
	}
}
