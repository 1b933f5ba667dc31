package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/dattool/pkg/dat"
	"github.com/Faultbox/dattool/pkg/encoding"
)

const fileName = "dattool.yaml"

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	cfg := Default()

	// Explicit path takes priority over the search locations
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that the packing code would otherwise reject late.
func (c *Config) Validate() error {
	if _, err := dat.ParseLayout(c.Pack.Layout); err != nil {
		return fmt.Errorf("pack.layout: %w", err)
	}
	if !encoding.Supported(c.Pack.NameTable.Charset) {
		return fmt.Errorf("pack.name_table.charset: unknown charset %q", c.Pack.NameTable.Charset)
	}
	if !encoding.Supported(c.Unpack.NameTable.Charset) {
		return fmt.Errorf("unpack.name_table.charset: unknown charset %q", c.Unpack.NameTable.Charset)
	}
	if c.Unpack.CacheEntries < 0 {
		return fmt.Errorf("unpack.cache_entries: must not be negative, got %d", c.Unpack.CacheEntries)
	}
	return nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./" + fileName,
		filepath.Join(ConfigDir(), fileName),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "dattool")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "dattool")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "dattool")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "dattool")
	}
}

// loadFromFile loads config from a YAML file, merging with existing values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
