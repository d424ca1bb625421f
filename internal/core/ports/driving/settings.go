package driving

import "github.com/custodia-labs/suitelink/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get returns the current settings with defaults applied.
	Get() (*domain.AppSettings, error)

	// Save validates and persists settings.
	Save(settings *domain.AppSettings) error

	// SetVaultBackend switches the vault backend.
	SetVaultBackend(backend domain.VaultBackend) error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
