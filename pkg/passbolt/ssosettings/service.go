package ssosettings

import (
	"errors"
	"log"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/provider"
	"gorm.io/gorm"
)

var (
	// ErrSettingsNotFound means no active SSO setting exists for the request
	ErrSettingsNotFound = errors.New("no active sso settings configured")
	// ErrSettingNotFound means the addressed setting record does not exist
	ErrSettingNotFound = errors.New("sso setting not found")
)

// NotificationSink receives settings lifecycle events. Delivery must never
// block the flow; implementations dispatch asynchronously or log.
type NotificationSink interface {
	SettingActivated(setting *models.SsoSetting)
}

// logSink is the default sink; the email collaborator replaces it in
// deployments that notify administrators.
type logSink struct{}

func (logSink) SettingActivated(setting *models.SsoSetting) {
	log.Printf("SSO setting %d (%s) activated for organization %d", setting.ID, setting.Provider, setting.OrganizationID)
}

// NewLogSink returns a sink that logs activation events
func NewLogSink() NotificationSink {
	return logSink{}
}

// Service manages the SsoSetting lifecycle: draft creation, activation and
// removal. At most one setting per (organization, provider) is active.
type Service struct {
	db       *gorm.DB
	sink     NotificationSink
	registry *provider.Registry
}

// NewService creates a settings service
func NewService(db *gorm.DB, sink NotificationSink, registry *provider.Registry) *Service {
	if sink == nil {
		sink = NewLogSink()
	}
	return &Service{db: db, sink: sink, registry: registry}
}

// List returns all settings of an organization
func (s *Service) List(orgID uint) ([]models.SsoSetting, error) {
	var settings []models.SsoSetting
	if err := s.db.Where("organization_id = ?", orgID).Order("id").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// GetByID returns one setting of an organization
func (s *Service) GetByID(orgID, id uint) (*models.SsoSetting, error) {
	var setting models.SsoSetting
	err := s.db.Where("organization_id = ? AND id = ?", orgID, id).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// GetActive returns the active setting for a provider
func (s *Service) GetActive(orgID uint, prov models.SsoProvider) (*models.SsoSetting, error) {
	var setting models.SsoSetting
	err := s.db.Where("organization_id = ? AND provider = ? AND status = ?",
		orgID, prov, models.SsoSettingStatusActive).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// GetActiveAny returns the organization's single active setting when no
// provider is specified. The oldest activation wins if several providers
// are active.
func (s *Service) GetActiveAny(orgID uint) (*models.SsoSetting, error) {
	var setting models.SsoSetting
	err := s.db.Where("organization_id = ? AND status = ?", orgID, models.SsoSettingStatusActive).
		Order("updated_at").First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// ActiveProviders returns the provider names with an active setting
func (s *Service) ActiveProviders(orgID uint) ([]models.SsoProvider, error) {
	var settings []models.SsoSetting
	if err := s.db.Where("organization_id = ? AND status = ?", orgID, models.SsoSettingStatusActive).
		Order("provider").Find(&settings).Error; err != nil {
		return nil, err
	}
	providers := make([]models.SsoProvider, len(settings))
	for i, st := range settings {
		providers[i] = st.Provider
	}
	return providers, nil
}

// CreateDraft persists a new setting in draft status
func (s *Service) CreateDraft(setting *models.SsoSetting) error {
	setting.Status = models.SsoSettingStatusDraft
	return s.db.Create(setting).Error
}

// Update modifies a draft or active setting and drops any cached provider
// adapter built from the stale configuration.
func (s *Service) Update(setting *models.SsoSetting) error {
	if err := s.db.Save(setting).Error; err != nil {
		return err
	}
	if s.registry != nil {
		s.registry.Invalidate(setting.ID)
	}
	return nil
}

// Activate promotes a setting to active, deactivating any previously active
// setting of the same (organization, provider) in the same transaction, and
// emits exactly one activation event.
func (s *Service) Activate(orgID, id uint) (*models.SsoSetting, error) {
	setting, err := s.GetByID(orgID, id)
	if err != nil {
		return nil, err
	}
	if setting.Status == models.SsoSettingStatusActive {
		return setting, nil
	}

	var demoted []uint
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var previous []models.SsoSetting
		if err := tx.Where("organization_id = ? AND provider = ? AND status = ? AND id != ?",
			orgID, setting.Provider, models.SsoSettingStatusActive, setting.ID).Find(&previous).Error; err != nil {
			return err
		}
		for _, p := range previous {
			demoted = append(demoted, p.ID)
		}
		if len(demoted) > 0 {
			if err := tx.Model(&models.SsoSetting{}).Where("id IN ?", demoted).
				Update("status", models.SsoSettingStatusDraft).Error; err != nil {
				return err
			}
		}
		return tx.Model(setting).Update("status", models.SsoSettingStatusActive).Error
	})
	if err != nil {
		return nil, err
	}

	if s.registry != nil {
		s.registry.Invalidate(setting.ID)
		for _, id := range demoted {
			s.registry.Invalidate(id)
		}
	}
	setting.Status = models.SsoSettingStatusActive
	s.sink.SettingActivated(setting)
	return setting, nil
}

// Delete removes a setting
func (s *Service) Delete(orgID, id uint) error {
	setting, err := s.GetByID(orgID, id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(setting).Error; err != nil {
		return err
	}
	if s.registry != nil {
		s.registry.Invalidate(setting.ID)
	}
	return nil
}
