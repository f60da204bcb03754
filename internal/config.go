package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/vaultgate/internal/docpatch"
	"github.com/starford/vaultgate/internal/history"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Upstream backends.
const (
	BackendREST = "rest"
	BackendFS   = "fs"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Upstream UpstreamConfig    `yaml:"upstream"`
	History  HistoryConfig     `yaml:"history"`
	Auth     AuthConfig        `yaml:"auth"`
	Patch    PatchConfig       `yaml:"patch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Upstream.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	if err := c.Patch.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// UpstreamConfig selects and configures the vault the gateway fronts.
//
// Backend "rest" talks to the Obsidian Local REST API at URL with APIKey.
// Backend "fs" edits the vault directory at Path directly.
type UpstreamConfig struct {
	Backend            string        `yaml:"backend"`
	URL                string        `yaml:"url"`
	APIKey             string        `yaml:"api_key"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Path               string        `yaml:"path"`
}

// Validate validates the upstream configuration.
func (c *UpstreamConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendREST, BackendFS)),
		validation.Field(&c.URL, validation.When(c.Backend == BackendREST, validation.Required)),
		validation.Field(&c.APIKey, validation.When(c.Backend == BackendREST, validation.Required)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Path, validation.When(c.Backend == BackendFS, validation.Required)),
	)
}

// HistoryConfig holds the history ring and journal configuration.
// An empty JournalPath keeps history in memory only.
type HistoryConfig struct {
	Capacity    int    `yaml:"capacity"`
	JournalPath string `yaml:"journal_path"`
	JournalKeep int    `yaml:"journal_keep"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.JournalKeep, validation.Min(0)),
	)
}

// PatchConfig holds patch addressing options.
type PatchConfig struct {
	HeadingDelimiter string `yaml:"heading_delimiter"`
}

// Validate validates the patch configuration.
func (c *PatchConfig) Validate() error {
	if c.HeadingDelimiter == "" {
		c.HeadingDelimiter = docpatch.DefaultHeadingDelimiter
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": X-API-Key or Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 27150,
			},
		},
		Upstream: UpstreamConfig{
			Backend: BackendREST,
			URL:     "http://127.0.0.1:27123",
			Timeout: 30 * time.Second,
		},
		History: HistoryConfig{
			Capacity:    history.DefaultCapacity,
			JournalKeep: 1000,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Patch: PatchConfig{
			HeadingDelimiter: docpatch.DefaultHeadingDelimiter,
		},
	}
}
