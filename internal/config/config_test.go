package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swamp-dev/commanddeck/internal/memory"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != "1.0" {
		t.Errorf("expected version 1.0, got %s", cfg.Version)
	}

	if cfg.Server.Addr != "127.0.0.1:7420" {
		t.Errorf("expected addr 127.0.0.1:7420, got %s", cfg.Server.Addr)
	}

	if cfg.Memory.MaxValueBytes != memory.DefaultMaxValueBytes {
		t.Errorf("expected max_value_bytes %d, got %d", memory.DefaultMaxValueBytes, cfg.Memory.MaxValueBytes)
	}

	if cfg.Memory.Budgets != memory.DefaultBudgets() {
		t.Errorf("expected default budgets, got %+v", cfg.Memory.Budgets)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing storage path",
			modify:  func(c *Config) { c.Storage.Path = "" },
			wantErr: true,
		},
		{
			name:    "addr without port",
			modify:  func(c *Config) { c.Server.Addr = "localhost" },
			wantErr: true,
		},
		{
			name:    "any interface",
			modify:  func(c *Config) { c.Server.Addr = ":8080" },
			wantErr: false,
		},
		{
			name:    "zero max value bytes",
			modify:  func(c *Config) { c.Memory.MaxValueBytes = 0 },
			wantErr: true,
		},
		{
			name:    "huge max value bytes",
			modify:  func(c *Config) { c.Memory.MaxValueBytes = 1 << 30 },
			wantErr: true,
		},
		{
			name:    "negative budget",
			modify:  func(c *Config) { c.Memory.Budgets.MaxEvents = -1 },
			wantErr: true,
		},
		{
			name:    "out of range budget is clamped later",
			modify:  func(c *Config) { c.Memory.Budgets.MaxObjects = 1 },
			wantErr: false,
		},
		{
			name:    "negative log backups",
			modify:  func(c *Config) { c.Log.MaxBackups = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg := DefaultConfig()
	cfg.Server.Addr = "127.0.0.1:9000"
	cfg.Memory.Budgets.MaxObjects = 50

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	data := "memory:\n  budgets:\n    max_events: 500\nlog:\n  file: deck.log\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Memory.Budgets.MaxEvents)
	assert.Equal(t, memory.DefaultBudgets().MaxObjects, cfg.Memory.Budgets.MaxObjects)
	assert.Equal(t, "deck.log", cfg.Log.File)
	assert.Equal(t, DefaultConfig().Storage, cfg.Storage)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/commanddeck.yaml")
	if err != nil {
		t.Fatalf("Load() should not error for missing file, got %v", err)
	}

	if cfg.Server.Addr != DefaultConfig().Server.Addr {
		t.Errorf("expected default addr, got %s", cfg.Server.Addr)
	}
}

func TestResolve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.File = "deck.log"
	cfg.Memory.ExportDir = "/abs/exports"
	cfg.Resolve("/srv/deck")

	assert.Equal(t, filepath.Join("/srv/deck", ".commanddeck", "commanddeck.db"), cfg.Storage.Path)
	assert.Equal(t, "/abs/exports", cfg.Memory.ExportDir)
	assert.Equal(t, filepath.Join("/srv/deck", "deck.log"), cfg.Log.File)

	mem := DefaultConfig()
	mem.Storage.Path = ":memory:"
	mem.Resolve("/srv/deck")
	assert.Equal(t, ":memory:", mem.Storage.Path)
}

func TestMemoryOptions(t *testing.T) {
	cfg := DefaultConfig()
	opts := cfg.MemoryOptions()
	assert.Equal(t, cfg.Memory.Budgets, opts.Budgets)
	assert.Equal(t, cfg.Memory.ExportDir, opts.ExportDir)
	assert.Equal(t, cfg.Memory.MaxValueBytes, opts.MaxValueBytes)
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	subdir := filepath.Join(dir, "subdir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	configPath := filepath.Join(dir, FileName)
	if err := os.WriteFile(configPath, []byte("version: '1.0'"), 0644); err != nil {
		t.Fatal(err)
	}

	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	if err := os.Chdir(subdir); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfigFile()
	if err != nil {
		t.Fatalf("FindConfigFile() error = %v", err)
	}

	// TempDir may sit behind a symlink (macOS /var -> /private/var).
	want, _ := filepath.EvalSymlinks(configPath)
	got, _ := filepath.EvalSymlinks(found)
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
