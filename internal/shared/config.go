package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Grant flow names accepted in [credentials.spotify].flow
const (
	FlowClientCredentials = "client_credentials"
	FlowAuthorizationCode = "authorization_code"
	FlowPKCE              = "pkce"
)

// Storage backends accepted in [storage].backend
const (
	StorageNone   = "none"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Client      ClientConfig      `toml:"client"`
	Storage     StorageConfig     `toml:"storage"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify application credentials and the grant used to authorize.
type SpotifyConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	RedirectURI  string   `toml:"redirect_uri"`
	Flow         string   `toml:"flow"`
	Scopes       []string `toml:"scopes"`
}

// ClientConfig tunes the request engine.
type ClientConfig struct {
	APIURL            string        `toml:"api_url"`
	AccountsURL       string        `toml:"accounts_url"`
	Timeout           time.Duration `toml:"timeout"`
	RefreshMargin     time.Duration `toml:"refresh_margin"`
	RefreshTimeout    time.Duration `toml:"refresh_timeout"`
	DefaultRetryAfter time.Duration `toml:"default_retry_after"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	MaxInFlight       int           `toml:"max_in_flight"`
}

// StorageConfig selects where refresh tokens are kept between runs.
type StorageConfig struct {
	Backend     string `toml:"backend"`
	Path        string `toml:"path"`
	RedisAddr   string `toml:"redis_addr"`
	RedisPrefix string `toml:"redis_prefix"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.fillDefaults(DefaultConfig())
	return &config, nil
}

// fillDefaults copies engine and storage settings the file left unset.
func (c *Config) fillDefaults(d *Config) {
	if c.Credentials.Spotify.Flow == "" {
		c.Credentials.Spotify.Flow = d.Credentials.Spotify.Flow
	}
	if c.Client.APIURL == "" {
		c.Client.APIURL = d.Client.APIURL
	}
	if c.Client.AccountsURL == "" {
		c.Client.AccountsURL = d.Client.AccountsURL
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = d.Client.Timeout
	}
	if c.Client.RefreshMargin == 0 {
		c.Client.RefreshMargin = d.Client.RefreshMargin
	}
	if c.Client.RefreshTimeout == 0 {
		c.Client.RefreshTimeout = d.Client.RefreshTimeout
	}
	if c.Client.DefaultRetryAfter == 0 {
		c.Client.DefaultRetryAfter = d.Client.DefaultRetryAfter
	}
	if c.Client.MaxInFlight == 0 {
		c.Client.MaxInFlight = d.Client.MaxInFlight
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Storage.RedisPrefix == "" {
		c.Storage.RedisPrefix = d.Storage.RedisPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
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
		return fmt.Errorf("config file already exists at %s: %w", path, ErrInvalidArgument)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig writes config to path, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadEnv loads a .env file when one exists and applies Spotify credential overrides from the environment.
//
// SPOTIFY_* variables win over the bare CLIENT_ID / CLIENT_SECRET names.
func LoadEnv(config *Config, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	sp := &config.Credentials.Spotify
	if v := firstEnv("SPOTIFY_CLIENT_ID", "CLIENT_ID"); v != "" {
		sp.ClientID = v
	}
	if v := firstEnv("SPOTIFY_CLIENT_SECRET", "CLIENT_SECRET"); v != "" {
		sp.ClientSecret = v
	}
	if v := firstEnv("SPOTIFY_REDIRECT_URI", "REDIRECT_URI"); v != "" {
		sp.RedirectURI = v
	}
	if v := firstEnv("SPOTIFY_FLOW"); v != "" {
		sp.Flow = v
	}
	return nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the settings a client cannot be built without.
func (c *Config) Validate() error {
	sp := c.Credentials.Spotify
	if sp.ClientID == "" {
		return fmt.Errorf("%w: credentials.spotify.client_id", ErrMissingCredentials)
	}

	switch sp.Flow {
	case FlowClientCredentials, FlowAuthorizationCode:
		if sp.ClientSecret == "" {
			return fmt.Errorf("%w: credentials.spotify.client_secret is required for %s", ErrMissingCredentials, sp.Flow)
		}
	case FlowPKCE:
	default:
		return fmt.Errorf("%w: unknown flow %q", ErrInvalidConfig, sp.Flow)
	}

	if sp.Flow != FlowClientCredentials && sp.RedirectURI == "" {
		return fmt.Errorf("%w: credentials.spotify.redirect_uri is required for %s", ErrMissingCredentials, sp.Flow)
	}

	switch c.Storage.Backend {
	case "", StorageNone, StorageSQLite, StorageRedis:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	return nil
}
