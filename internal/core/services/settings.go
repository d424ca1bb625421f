package services

import (
	"fmt"

	"github.com/custodia-labs/suitelink/internal/core/domain"
	"github.com/custodia-labs/suitelink/internal/core/ports/driven"
	"github.com/custodia-labs/suitelink/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyProvider      = "provider"
	keyVaultBackend  = "vault.backend"
	keyVaultDir      = "vault.dir"
	keyRedisAddr     = "redis.addr"
	keyRedisPassword = "redis.password"
	keyRedisDB       = "redis.db"
	keyRateLimit     = "api.rate_limit"
	keyBurst         = "api.burst"
	keyHTTPTimeout   = "http.timeout_seconds"
	keyCallbackPort  = "callback.port"
	keyStrictState   = "oauth.strict_state"
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// Get retrieves current application settings. Missing or unusable values
// fall back to the defaults; the result is validated.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Provider: s.getString(keyProvider, defaults.Provider),
		Vault: domain.VaultSettings{
			Backend: s.getVaultBackend(defaults.Vault.Backend),
			Dir:     s.configStore.GetString(keyVaultDir),
		},
		Redis: domain.RedisSettings{
			Addr:     s.getString(keyRedisAddr, defaults.Redis.Addr),
			Password: s.configStore.GetString(keyRedisPassword),
			DB:       s.configStore.GetInt(keyRedisDB),
		},
		API: domain.APISettings{
			RateLimit: s.getFloat(keyRateLimit, defaults.API.RateLimit),
			Burst:     s.getInt(keyBurst, defaults.API.Burst),
		},
		HTTP: domain.HTTPSettings{
			TimeoutSeconds: s.getInt(keyHTTPTimeout, defaults.HTTP.TimeoutSeconds),
		},
		Callback: domain.CallbackSettings{
			Port: s.getInt(keyCallbackPort, defaults.Callback.Port),
		},
		OAuth: domain.OAuthSettings{
			StrictState: s.getBool(keyStrictState, defaults.OAuth.StrictState),
		},
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("settings in %s: %w", s.configStore.Path(), err)
	}
	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	values := []struct {
		key   string
		value any
	}{
		{keyProvider, settings.Provider},
		{keyVaultBackend, settings.Vault.Backend.String()},
		{keyVaultDir, settings.Vault.Dir},
		{keyRedisAddr, settings.Redis.Addr},
		{keyRedisDB, settings.Redis.DB},
		{keyRateLimit, settings.API.RateLimit},
		{keyBurst, settings.API.Burst},
		{keyHTTPTimeout, settings.HTTP.TimeoutSeconds},
		{keyCallbackPort, settings.Callback.Port},
		{keyStrictState, settings.OAuth.StrictState},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	// Only written when set, so an env-supplied password stays out of the file.
	if settings.Redis.Password != "" {
		if err := s.configStore.Set(keyRedisPassword, settings.Redis.Password); err != nil {
			return fmt.Errorf("save %s: %w", keyRedisPassword, err)
		}
	}
	return nil
}

// SetVaultBackend updates the vault backend.
func (s *SettingsService) SetVaultBackend(backend domain.VaultBackend) error {
	if !backend.IsValid() {
		return fmt.Errorf("%w: unknown vault backend %q", domain.ErrInvalidInput, backend)
	}
	return s.configStore.Set(keyVaultBackend, backend.String())
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val := s.configStore.GetFloat(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getVaultBackend(defaultVal domain.VaultBackend) domain.VaultBackend {
	val := s.configStore.GetString(keyVaultBackend)
	if val == "" {
		return defaultVal
	}
	return domain.VaultBackend(val)
}
