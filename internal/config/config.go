// Package config handles commanddeck configuration parsing and validation.
package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/swamp-dev/commanddeck/internal/memory"
)

// FileName is the configuration file looked up by FindConfigFile.
const FileName = "commanddeck.yaml"

// maxValueCeiling bounds memory.max_value_bytes.
const maxValueCeiling = 16 << 20

// Config represents the commanddeck.yaml configuration file.
type Config struct {
	Version string        `yaml:"version"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
	Memory  MemoryConfig  `yaml:"memory"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig locates the database.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// MemoryConfig holds memory limits and the snapshot export directory.
type MemoryConfig struct {
	ExportDir     string         `yaml:"export_dir"`
	MaxValueBytes int            `yaml:"max_value_bytes"`
	Budgets       memory.Budgets `yaml:"budgets"`
}

// LogConfig enables a rotating log file next to stderr output.
type LogConfig struct {
	File       string `yaml:"file"` // empty = stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Storage: StorageConfig{
			Path: filepath.Join(".commanddeck", "commanddeck.db"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7420",
		},
		Memory: MemoryConfig{
			ExportDir:     filepath.Join(".commanddeck", "exports"),
			MaxValueBytes: memory.DefaultMaxValueBytes,
			Budgets:       memory.DefaultBudgets(),
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads and parses a config file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = FileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors. Memory budgets are not
// range-checked here; the memory service clamps them.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("invalid server.addr %q: %w", c.Server.Addr, err)
	}

	if c.Memory.MaxValueBytes < 1 || c.Memory.MaxValueBytes > maxValueCeiling {
		return fmt.Errorf("memory.max_value_bytes must be between 1 and %d", maxValueCeiling)
	}

	b := c.Memory.Budgets
	if b.MaxObjects < 0 || b.MaxEvents < 0 || b.MaxObjectBytes < 0 || b.MaxEventBytes < 0 {
		return fmt.Errorf("memory.budgets must not be negative")
	}

	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation settings must not be negative")
	}

	return nil
}

// Resolve makes relative file paths absolute against dir, normally the
// directory holding the config file.
func (c *Config) Resolve(dir string) {
	for _, p := range []*string{&c.Storage.Path, &c.Memory.ExportDir, &c.Log.File} {
		if *p != "" && *p != ":memory:" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// MemoryOptions returns the memory service settings described by c.
func (c *Config) MemoryOptions() memory.Options {
	return memory.Options{
		Budgets:       c.Memory.Budgets,
		MaxValueBytes: c.Memory.MaxValueBytes,
		ExportDir:     c.Memory.ExportDir,
	}
}

// FindConfigFile searches for commanddeck.yaml in current and parent directories.
func FindConfigFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for dir := cwd; ; dir = filepath.Dir(dir) {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		if dir == filepath.Dir(dir) {
			break
		}
	}

	return "", fmt.Errorf("%s not found in %s or parent directories", FileName, cwd)
}
