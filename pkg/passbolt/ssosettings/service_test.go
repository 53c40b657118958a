package ssosettings

import (
	"errors"
	"testing"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

type recordingSink struct {
	activated []uint
}

func (r *recordingSink) SettingActivated(setting *models.SsoSetting) {
	r.activated = append(r.activated, setting.ID)
}

func newTestService(t *testing.T) (*Service, *recordingSink) {
	sink := &recordingSink{}
	return NewService(setupTestDB(t), sink, nil), sink
}

func draftSetting(t *testing.T, svc *Service, orgID uint, prov models.SsoProvider) *models.SsoSetting {
	setting := &models.SsoSetting{
		OrganizationID: orgID,
		Provider:       prov,
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		TenantID:       "tenant",
	}
	if err := svc.CreateDraft(setting); err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	return setting
}

func TestCreateDraftStatus(t *testing.T) {
	svc, _ := newTestService(t)

	setting := &models.SsoSetting{
		OrganizationID: 1,
		Provider:       models.SsoProviderAzure,
		Status:         models.SsoSettingStatusActive, // must be ignored
		ClientID:       "client-id",
		ClientSecret:   "client-secret",
		TenantID:       "tenant",
	}
	if err := svc.CreateDraft(setting); err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	if setting.Status != models.SsoSettingStatusDraft {
		t.Errorf("Expected draft status, got %q", setting.Status)
	}
	if _, err := svc.GetActive(1, models.SsoProviderAzure); !errors.Is(err, ErrSettingsNotFound) {
		t.Errorf("Expected ErrSettingsNotFound for draft-only org, got %v", err)
	}
}

func TestActivate(t *testing.T) {
	svc, sink := newTestService(t)
	setting := draftSetting(t, svc, 1, models.SsoProviderAzure)

	activated, err := svc.Activate(1, setting.ID)
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if activated.Status != models.SsoSettingStatusActive {
		t.Errorf("Expected active status, got %q", activated.Status)
	}
	if len(sink.activated) != 1 || sink.activated[0] != setting.ID {
		t.Errorf("Expected exactly one activation event for setting %d, got %v", setting.ID, sink.activated)
	}

	active, err := svc.GetActive(1, models.SsoProviderAzure)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if active.ID != setting.ID {
		t.Errorf("Expected setting %d active, got %d", setting.ID, active.ID)
	}
}

func TestActivateDeactivatesPrevious(t *testing.T) {
	svc, sink := newTestService(t)
	first := draftSetting(t, svc, 1, models.SsoProviderAzure)
	second := draftSetting(t, svc, 1, models.SsoProviderAzure)

	if _, err := svc.Activate(1, first.ID); err != nil {
		t.Fatalf("Activate first failed: %v", err)
	}
	if _, err := svc.Activate(1, second.ID); err != nil {
		t.Fatalf("Activate second failed: %v", err)
	}

	active, err := svc.GetActive(1, models.SsoProviderAzure)
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("Expected setting %d active, got %d", second.ID, active.ID)
	}

	demoted, err := svc.GetByID(1, first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if demoted.Status != models.SsoSettingStatusDraft {
		t.Errorf("Expected previous setting demoted to draft, got %q", demoted.Status)
	}
	if len(sink.activated) != 2 {
		t.Errorf("Expected one event per activation, got %v", sink.activated)
	}
}

func TestActivateAlreadyActiveIsIdempotent(t *testing.T) {
	svc, sink := newTestService(t)
	setting := draftSetting(t, svc, 1, models.SsoProviderAzure)

	if _, err := svc.Activate(1, setting.ID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if _, err := svc.Activate(1, setting.ID); err != nil {
		t.Fatalf("Re-activate failed: %v", err)
	}
	if len(sink.activated) != 1 {
		t.Errorf("Expected no event for re-activation, got %v", sink.activated)
	}
}

func TestActivateKeepsOtherProviderActive(t *testing.T) {
	svc, _ := newTestService(t)
	azure := draftSetting(t, svc, 1, models.SsoProviderAzure)
	google := draftSetting(t, svc, 1, models.SsoProviderGoogle)

	if _, err := svc.Activate(1, azure.ID); err != nil {
		t.Fatalf("Activate azure failed: %v", err)
	}
	if _, err := svc.Activate(1, google.ID); err != nil {
		t.Fatalf("Activate google failed: %v", err)
	}

	providers, err := svc.ActiveProviders(1)
	if err != nil {
		t.Fatalf("ActiveProviders failed: %v", err)
	}
	if len(providers) != 2 {
		t.Errorf("Expected both providers active, got %v", providers)
	}
}

func TestActivateWrongOrg(t *testing.T) {
	svc, _ := newTestService(t)
	setting := draftSetting(t, svc, 1, models.SsoProviderAzure)

	if _, err := svc.Activate(2, setting.ID); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("Expected ErrSettingNotFound for foreign org, got %v", err)
	}
}

func TestActivationIsIsolatedPerOrg(t *testing.T) {
	svc, _ := newTestService(t)
	org1 := draftSetting(t, svc, 1, models.SsoProviderAzure)
	org2 := draftSetting(t, svc, 2, models.SsoProviderAzure)

	if _, err := svc.Activate(1, org1.ID); err != nil {
		t.Fatalf("Activate org1 failed: %v", err)
	}
	if _, err := svc.Activate(2, org2.ID); err != nil {
		t.Fatalf("Activate org2 failed: %v", err)
	}

	active1, err := svc.GetActive(1, models.SsoProviderAzure)
	if err != nil {
		t.Fatalf("GetActive org1 failed: %v", err)
	}
	if active1.ID != org1.ID {
		t.Errorf("Expected org1 setting %d active, got %d", org1.ID, active1.ID)
	}
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	setting := draftSetting(t, svc, 1, models.SsoProviderAzure)

	if err := svc.Delete(1, setting.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.GetByID(1, setting.ID); !errors.Is(err, ErrSettingNotFound) {
		t.Errorf("Expected ErrSettingNotFound after delete, got %v", err)
	}
}

func TestGetActiveAny(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.GetActiveAny(1); !errors.Is(err, ErrSettingsNotFound) {
		t.Errorf("Expected ErrSettingsNotFound for empty org, got %v", err)
	}

	setting := draftSetting(t, svc, 1, models.SsoProviderGoogle)
	if _, err := svc.Activate(1, setting.ID); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	active, err := svc.GetActiveAny(1)
	if err != nil {
		t.Fatalf("GetActiveAny failed: %v", err)
	}
	if active.Provider != models.SsoProviderGoogle {
		t.Errorf("Expected google setting, got %q", active.Provider)
	}
}
