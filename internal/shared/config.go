package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

//go:embed config.example.toml
var exampleConf []byte

// EnvPrefix namespaces environment overrides, e.g. ALBUMWALL_SERVER__PORT.
const EnvPrefix = "ALBUMWALL_"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials" koanf:"credentials"`
	Server      ServerConfig      `toml:"server" koanf:"server"`
	Session     SessionConfig     `toml:"session" koanf:"session"`
	Library     LibraryConfig     `toml:"library" koanf:"library"`
	Sync        SyncConfig        `toml:"sync" koanf:"sync"`
	Collage     CollageConfig     `toml:"collage" koanf:"collage"`
	Database    DatabaseConfig    `toml:"database" koanf:"database"`
	Analytics   AnalyticsConfig   `toml:"analytics" koanf:"analytics"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify" koanf:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string   `toml:"client_id" koanf:"client_id" validate:"required"`
	ClientSecret string   `toml:"client_secret" koanf:"client_secret" validate:"required"`
	RedirectURI  string   `toml:"redirect_uri" koanf:"redirect_uri" validate:"required,url"`
	Scopes       []string `toml:"scopes" koanf:"scopes" validate:"min=1"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string `toml:"host" koanf:"host"`
	Port        int    `toml:"port" koanf:"port" validate:"gte=0,lte=65535"`
	FrontendURI string `toml:"frontend_uri" koanf:"frontend_uri" validate:"required,url"`
	Environment string `toml:"environment" koanf:"environment" validate:"omitempty,oneof=development production test"`
	// RateLimit is the per-IP request budget per minute on the session routes. Zero disables it.
	RateLimit int `toml:"rate_limit" koanf:"rate_limit" validate:"gte=0"`
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP. Only enable behind a proxy
	// that overwrites those headers, since the rate limit is keyed on that IP.
	TrustProxy bool `toml:"trust_proxy" koanf:"trust_proxy"`
}

// SessionConfig controls the session cookie and the server-side library cache.
type SessionConfig struct {
	CookieName      string `toml:"cookie_name" koanf:"cookie_name" validate:"required"`
	MaxAgeSeconds   int    `toml:"max_age_seconds" koanf:"max_age_seconds" validate:"gt=0"`
	HashKey         string `toml:"hash_key" koanf:"hash_key"`
	BlockKey        string `toml:"block_key" koanf:"block_key" validate:"omitempty,len=16|len=24|len=32"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds" koanf:"cache_ttl_seconds" validate:"gte=0"`
	// CacheMaxAgeSeconds drops cached libraries that have not been refetched for this long. Zero keeps them.
	CacheMaxAgeSeconds int `toml:"cache_max_age_seconds" koanf:"cache_max_age_seconds" validate:"gte=0"`
}

// LibraryConfig tunes the paginated album fetch.
type LibraryConfig struct {
	PageSize          int     `toml:"page_size" koanf:"page_size" validate:"gte=1,lte=50"`
	RequestsPerSecond float64 `toml:"requests_per_second" koanf:"requests_per_second" validate:"gte=0"`
	MaxAttempts       int     `toml:"max_attempts" koanf:"max_attempts" validate:"gte=1"`
	TimeoutSeconds    int     `toml:"timeout_seconds" koanf:"timeout_seconds" validate:"gte=0"`
}

// SyncConfig drives the client sync loop.
type SyncConfig struct {
	IntervalSeconds int    `toml:"interval_seconds" koanf:"interval_seconds" validate:"gt=0"`
	ServerURL       string `toml:"server_url" koanf:"server_url" validate:"required,url"`
}

// CollageConfig holds rendering defaults.
type CollageConfig struct {
	Layout              string `toml:"layout" koanf:"layout" validate:"oneof=grid cd"`
	GridSize            int    `toml:"grid_size" koanf:"grid_size" validate:"gte=0"`
	Count               int    `toml:"count" koanf:"count" validate:"gte=0"`
	Scale               int    `toml:"scale" koanf:"scale" validate:"gte=1,lte=4"`
	Background          string `toml:"background" koanf:"background"`
	Concurrency         int    `toml:"concurrency" koanf:"concurrency" validate:"gte=1"`
	ImageTimeoutSeconds int    `toml:"image_timeout_seconds" koanf:"image_timeout_seconds" validate:"gte=1"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" koanf:"path"`
	MaxOpenConns int    `toml:"max_open_conns" koanf:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns" koanf:"max_idle_conns"`
}

// AnalyticsConfig enables login tracking.
type AnalyticsConfig struct {
	Enabled  bool   `toml:"enabled" koanf:"enabled"`
	AdminKey string `toml:"admin_key" koanf:"admin_key"`
}

// IsProduction reports whether cookies must always carry the Secure attribute.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Validate checks the fields the session server needs before it can accept requests.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Analytics.Enabled && c.Analytics.AdminKey == "" {
		return fmt.Errorf("%w: analytics.admin_key is required when analytics is enabled", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// WriteConfigFile encodes config as TOML at path, replacing any existing file.
func WriteConfigFile(path string, config *Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// legacyEnv maps the variable names used by earlier deployments onto config keys.
var legacyEnv = map[string]string{
	"SPOTIFY_CLIENT_ID":     "credentials.spotify.client_id",
	"SPOTIFY_CLIENT_SECRET": "credentials.spotify.client_secret",
	"SPOTIFY_REDIRECT_URI":  "credentials.spotify.redirect_uri",
	"FRONTEND_URI":          "server.frontend_uri",
	"ADMIN_KEY":             "analytics.admin_key",
	"NODE_ENV":              "server.environment",
}

var sliceKeys = []string{"credentials.spotify.scopes"}

// ApplyEnv overlays environment variables on top of config and returns the merged result.
//
// Keys take the form ALBUMWALL_<SECTION>__<KEY>, so ALBUMWALL_SYNC__INTERVAL_SECONDS sets
// sync.interval_seconds. The legacy names in [legacyEnv] are honoured as well.
func ApplyEnv(config *Config) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(config, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load config values: %w", err)
	}

	if err := k.Load(env.Provider("", ".", legacyEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", prefixedEnvKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		if err := k.Set(key, values); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	merged := &Config{}
	if err := k.Unmarshal("", merged); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return merged, nil
}

func legacyEnvKey(key string) string {
	return legacyEnv[key]
}

func prefixedEnvKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}
