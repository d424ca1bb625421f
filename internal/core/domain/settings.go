package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// VaultBackend selects where tokens and client configuration are kept.
type VaultBackend string

// Available vault backends.
const (
	// VaultSQLite is a file in the data directory. The default.
	VaultSQLite VaultBackend = "sqlite"

	// VaultMemory lives for one process only.
	VaultMemory VaultBackend = "memory"

	// VaultRedis is a hash in a shared Redis instance.
	VaultRedis VaultBackend = "redis"
)

// IsValid returns true if the backend is recognised.
func (b VaultBackend) IsValid() bool {
	switch b {
	case VaultSQLite, VaultMemory, VaultRedis:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (b VaultBackend) String() string {
	return string(b)
}

// Description returns a human-readable description of the backend.
func (b VaultBackend) Description() string {
	switch b {
	case VaultSQLite:
		return "SQLite file (persists across runs)"
	case VaultMemory:
		return "In memory (lost when the process exits)"
	case VaultRedis:
		return "Redis hash (shared between hosts)"
	default:
		return unknownDescription
	}
}

// AllVaultBackends returns every supported backend.
func AllVaultBackends() []VaultBackend {
	return []VaultBackend{VaultSQLite, VaultMemory, VaultRedis}
}

// AppSettings holds the application settings read from config.toml.
type AppSettings struct {
	Provider string
	Vault    VaultSettings
	Redis    RedisSettings
	API      APISettings
	HTTP     HTTPSettings
	Callback CallbackSettings
	OAuth    OAuthSettings
}

// VaultSettings selects the vault backend.
type VaultSettings struct {
	Backend VaultBackend
	// Dir holds the sqlite file. Empty means ~/.suitelink/data.
	Dir string
}

// RedisSettings configures the redis vault.
type RedisSettings struct {
	Addr     string
	Password string
	DB       int
}

// APISettings configures client-side throttling of API calls.
type APISettings struct {
	RateLimit float64
	Burst     int
}

// HTTPSettings configures outbound HTTP.
type HTTPSettings struct {
	TimeoutSeconds int
}

// Timeout returns the request timeout.
func (h HTTPSettings) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// CallbackSettings configures the loopback login.
type CallbackSettings struct {
	// Port is used when suggesting a redirect URI.
	Port int
}

// OAuthSettings tunes callback validation.
type OAuthSettings struct {
	// StrictState rejects callbacks whose state does not match.
	StrictState bool
}

// DefaultAppSettings returns the settings used when config.toml is empty.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Provider: "netsuite",
		Vault: VaultSettings{
			Backend: VaultSQLite,
		},
		Redis: RedisSettings{
			Addr: "localhost:6379",
		},
		API: APISettings{
			RateLimit: 5,
			Burst:     10,
		},
		HTTP: HTTPSettings{
			TimeoutSeconds: 30,
		},
		Callback: CallbackSettings{
			Port: 8765,
		},
	}
}

// Validate checks that the settings can be used to build a client.
func (s AppSettings) Validate() error {
	if _, ok := ProviderPreset(s.Provider); !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidInput, s.Provider)
	}
	if !s.Vault.Backend.IsValid() {
		return fmt.Errorf("%w: unknown vault backend %q", ErrInvalidInput, s.Vault.Backend)
	}
	if s.Vault.Backend == VaultRedis && s.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required for the redis vault", ErrInvalidInput)
	}
	if s.API.RateLimit <= 0 {
		return fmt.Errorf("%w: api.rate_limit must be positive", ErrInvalidInput)
	}
	if s.API.Burst < 1 {
		return fmt.Errorf("%w: api.burst must be at least 1", ErrInvalidInput)
	}
	if s.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("%w: http.timeout_seconds must be positive", ErrInvalidInput)
	}
	if s.Callback.Port <= 0 || s.Callback.Port > 65535 {
		return fmt.Errorf("%w: callback.port %d out of range", ErrInvalidInput, s.Callback.Port)
	}
	return nil
}
