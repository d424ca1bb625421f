package driven

// ConfigStore provides access to application settings.
// Keys use dot notation matching the TOML tables, e.g. "vault.backend".
// Typed getters return the zero value when a key is missing or has the
// wrong type.
type ConfigStore interface {
	// Get retrieves a raw value and whether the key exists.
	Get(key string) (any, bool)

	GetString(key string) string
	GetInt(key string) int
	GetFloat(key string) float64
	GetBool(key string) bool

	// Set stores a value and persists immediately.
	Set(key string, value any) error

	// Save persists the current settings.
	Save() error

	// Load reads settings from storage.
	Load() error

	// Path returns the settings file path.
	Path() string
}
