package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string           `mapstructure:"state_dir" yaml:"state_dir"`
	Store         StoreConfig      `mapstructure:"store" yaml:"store"`
	Auth          AuthConfig       `mapstructure:"auth" yaml:"auth"`
	Enrichment    EnrichmentConfig `mapstructure:"enrichment" yaml:"enrichment"`
	Catalog       CatalogConfig    `mapstructure:"catalog" yaml:"catalog"`
	Logging       LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// StoreConfig configures the document store.
type StoreConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	InMemory   bool   `mapstructure:"in_memory" yaml:"in_memory"`
	SyncWrites bool   `mapstructure:"sync_writes" yaml:"sync_writes"`
}

// AuthConfig configures auth storage and seed users.
type AuthConfig struct {
	UserFile  string     `mapstructure:"user_file" yaml:"user_file"`
	SeedUsers []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// SeedUser seeds a user record in the auth store.
type SeedUser struct {
	Username     string `mapstructure:"username" yaml:"username"`
	Email        string `mapstructure:"email" yaml:"email"`
	DisplayName  string `mapstructure:"display_name" yaml:"display_name"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// EnrichmentConfig configures the OpenAI-compatible text enrichment client.
type EnrichmentConfig struct {
	Model          string `mapstructure:"model" yaml:"model"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv      string `mapstructure:"api_key_env" yaml:"api_key_env"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// CatalogConfig controls catalog invariant checks.
type CatalogConfig struct {
	// VerifyServerSide re-queries children before a parent delete.
	VerifyServerSide bool `mapstructure:"verify_server_side" yaml:"verify_server_side"`
}

// LoggingConfig controls write audit logging.
type LoggingConfig struct {
	AuditWrites bool `mapstructure:"audit_writes" yaml:"audit_writes"`
}

// DraftDir returns the directory holding per-identity drafts.
func (c Config) DraftDir() string {
	return filepath.Join(c.StateDir, "drafts")
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".plantao", "state"),
		Store: StoreConfig{
			Path:       filepath.Join(home, ".plantao", "state", "store"),
			InMemory:   false,
			SyncWrites: true,
		},
		Auth: AuthConfig{
			UserFile:  filepath.Join(home, ".plantao", "users.json"),
			SeedUsers: []SeedUser{},
		},
		Enrichment: EnrichmentConfig{
			Model:          "gpt-4o-mini",
			BaseURL:        "",
			APIKeyEnv:      "OPENAI_API_KEY",
			TimeoutSeconds: 30,
		},
		Catalog: CatalogConfig{
			VerifyServerSide: true,
		},
		Logging: LoggingConfig{
			AuditWrites: true,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".plantao", "config.yaml"), nil
}
