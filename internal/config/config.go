package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"zenodo-upload/internal/zenodo"
)

// DefaultTimeout applies when [zenodo] timeout_seconds is unset.
const DefaultTimeout = 60 * time.Second

// Config represents the main configuration for zenodo-upload.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Zenodo     ZenodoConfig     `toml:"zenodo"`
	Archive    ArchiveConfig    `toml:"archive"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
	Database   DatabaseConfig   `toml:"database"`
}

// ZenodoConfig holds the defaults for talking to Zenodo. Command-line
// arguments take precedence over these values.
type ZenodoConfig struct {
	AccessToken    string `toml:"access_token,omitempty"`
	Sandbox        bool   `toml:"sandbox"`
	Checksum       *bool  `toml:"checksum,omitempty"` // unset means enabled
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`

	// APIURL and SiteURL replace the production or sandbox deployment.
	// Both must be set together.
	APIURL  string `toml:"api_url,omitempty"`
	SiteURL string `toml:"site_url,omitempty"`
}

// ChecksumEnabled reports whether unchanged files should be skipped.
func (z ZenodoConfig) ChecksumEnabled() bool {
	return z.Checksum == nil || *z.Checksum
}

// Timeout returns the per-request timeout.
func (z ZenodoConfig) Timeout() time.Duration {
	if z.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(z.TimeoutSeconds) * time.Second
}

// Environment returns the custom deployment, or nil when the standard
// production and sandbox deployments apply.
func (z ZenodoConfig) Environment() *zenodo.Environment {
	if z.APIURL == "" {
		return nil
	}
	return &zenodo.Environment{APIURL: z.APIURL, SiteURL: z.SiteURL}
}

// ArchiveConfig controls local archiving of published files.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Encrypt bool   `toml:"encrypt"`
	Vault   string `toml:"vault,omitempty"` // vault name; defaults to the first vault
}

// EncryptionConfig holds paths to the age key pair used for encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for an archive vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible services; enables path-style addressing

	// Static credentials; when empty the default AWS credential chain applies.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the publication ledger.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a Config with default paths below baseDir. Archiving is
// off; a filesystem vault is prepared so enabling it is a one-line change.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "archive")},
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "zenodo-upload.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "zenodo-upload.key"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: baseDir},
	}
}

// ArchiveVault returns the vault archived files go to, or nil when
// archiving is disabled.
func (c *Config) ArchiveVault() (*VaultConfig, error) {
	if !c.Archive.Enabled {
		return nil, nil
	}
	if len(c.Vaults) == 0 {
		return nil, fmt.Errorf("archive enabled but no vaults configured")
	}
	if c.Archive.Vault == "" {
		return &c.Vaults[0], nil
	}
	for i := range c.Vaults {
		if c.Vaults[i].Name == c.Archive.Vault {
			return &c.Vaults[i], nil
		}
	}
	return nil, fmt.Errorf("archive vault %q not found", c.Archive.Vault)
}

// Validate checks the settings that cannot be caught by decoding.
func (c *Config) Validate() error {
	if (c.Zenodo.APIURL == "") != (c.Zenodo.SiteURL == "") {
		return fmt.Errorf("zenodo api_url and site_url must be set together")
	}
	if c.Zenodo.TimeoutSeconds < 0 {
		return fmt.Errorf("zenodo timeout_seconds must not be negative")
	}
	for _, v := range c.Vaults {
		switch v.Type {
		case "memory", "filesystem", "s3":
		default:
			return fmt.Errorf("vault %q: unknown type %q", v.Name, v.Type)
		}
	}
	if _, err := c.ArchiveVault(); err != nil {
		return err
	}
	if c.Archive.Encrypt && !c.Archive.Enabled {
		return fmt.Errorf("archive encrypt requires archive enabled")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path. A missing file
// yields an error matching fs.ErrNotExist.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to path. The file may hold an access token,
// so it is only readable by the owner.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
