package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/scanvault/internal/models"
	"github.com/starford/scanvault/internal/vaultpath"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app" toml:"app"`
	Vault      VaultConfig       `yaml:"vault" toml:"vault"`
	SQLite     SQLiteConfig      `yaml:"sqlite" toml:"sqlite"`
	Auth       AuthConfig        `yaml:"auth" toml:"auth"`
	Processing ProcessingConfig  `yaml:"processing" toml:"processing"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Processing.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level    `yaml:"log_level" toml:"log_level"`
	LogFile  LogFileConfig `yaml:"log_file" toml:"log_file"`
	HTTP     HTTPConfig    `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig enables a rotating JSON log file next to stderr output.
// An empty Path disables the file.
type LogFileConfig struct {
	Path       string `yaml:"path" toml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
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

// VaultConfig holds the vault location, its top-level folders, and the
// optional mirror destination.
type VaultConfig struct {
	Path    string       `yaml:"path" toml:"path"`
	Folders []string     `yaml:"folders" toml:"folders"`
	Mirror  MirrorConfig `yaml:"mirror" toml:"mirror"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	if len(c.Folders) == 0 {
		c.Folders = append([]string(nil), vaultpath.Folders...)
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Folders, validation.Each(validation.Required)),
	); err != nil {
		return err
	}
	for _, f := range c.Folders {
		if _, err := vaultpath.Normalize(f); err != nil {
			return fmt.Errorf("vault: folder %q: %w", f, err)
		}
	}
	return c.Mirror.Validate(c.Path)
}

// MirrorConfig configures the folder mirror. An empty Path disables it.
type MirrorConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Watch bool   `yaml:"watch" toml:"watch"`
}

// Enabled reports whether a mirror destination is configured.
func (c *MirrorConfig) Enabled() bool {
	return c.Path != ""
}

// Validate validates the mirror configuration against the vault path.
func (c *MirrorConfig) Validate(vaultPath string) error {
	if c.Watch && c.Path == "" {
		return fmt.Errorf("mirror: watch is enabled but path is empty")
	}
	if c.Path != "" && filepath.Clean(c.Path) == filepath.Clean(vaultPath) {
		return fmt.Errorf("mirror: path must differ from the vault path")
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
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

// ProcessingConfig holds the processing quality preference read once per
// pipeline run.
type ProcessingConfig struct {
	Mode string `yaml:"mode" toml:"mode"`
}

// Validate normalizes and validates the processing mode.
func (c *ProcessingConfig) Validate() error {
	mode, err := models.ParseProcessingMode(c.Mode)
	if err != nil {
		return fmt.Errorf("processing: %w", err)
	}
	c.Mode = string(mode)
	return nil
}

// ProcessingMode returns the configured mode. Call after Validate.
func (c *ProcessingConfig) ProcessingMode() models.ProcessingMode {
	mode, err := models.ParseProcessingMode(c.Mode)
	if err != nil {
		return models.ModeBalanced
	}
	return mode
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFileConfig{
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:    "./vault",
			Folders: append([]string(nil), vaultpath.Folders...),
		},
		SQLite: SQLiteConfig{
			Path: "./scanvault.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Processing: ProcessingConfig{
			Mode: string(models.ModeBalanced),
		},
	}
}
