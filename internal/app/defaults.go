package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"zenodo-upload/internal/config"
)

// Environment variables read by the CLI.
const (
	EnvConfigPath  = "ZENODO_UPLOAD_CONFIG_PATH"
	EnvHome        = "ZENODO_UPLOAD_HOME"
	EnvAccessToken = "ZENODO_ACCESS_TOKEN"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - ZENODO_UPLOAD_CONFIG_PATH: config file location (default: ~/.config/zenodo-upload.toml)
//   - ZENODO_UPLOAD_HOME: base directory for ledger, archive and keys (default: ~/.local/share/zenodo-upload)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "zenodo-upload.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "zenodo-upload"), nil
}

// LoadConfig reads the config file named by defaults. Without a config file
// the tool still uploads: the ledger is kept in memory and nothing is
// archived.
func LoadConfig(defaults map[string]string) (*config.Config, error) {
	cfg, err := config.ReadFromFile(defaults["config_path"])
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		cfg = config.NewConfig("", defaults["base_dir"])
		cfg.Database = config.DatabaseConfig{Type: "memory"}
	default:
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", defaults["config_path"], err)
	}
	return cfg, nil
}

// ResolveToken picks the access token: an explicit argument wins over
// ZENODO_ACCESS_TOKEN, which wins over the config file.
func ResolveToken(arg string, cfg *config.Config) string {
	if arg != "" {
		return arg
	}
	if tok := os.Getenv(EnvAccessToken); tok != "" {
		return tok
	}
	return cfg.Zenodo.AccessToken
}
