package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/swamp-dev/commanddeck/internal/memory"
	"github.com/swamp-dev/commanddeck/internal/store"
	"github.com/swamp-dev/commanddeck/internal/workflow"
)

// app holds the services a command works with.
type app struct {
	store  *store.Store
	engine *workflow.Engine
	memory *memory.Service
}

// openApp opens the configured database and builds the services on it.
func openApp(ctx context.Context) (*app, error) {
	path := cfg.Storage.Path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
	}

	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening store at %s: %w", path, err)
	}

	opts := cfg.MemoryOptions()
	opts.Logger = logger
	mem, err := memory.NewService(ctx, s, opts)
	if err != nil {
		s.Close()
		return nil, err
	}

	return &app{
		store:  s,
		engine: workflow.New(s, logger),
		memory: mem,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
