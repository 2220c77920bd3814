package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/swamp-dev/commanddeck/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and live event feed",
	Long: `Serve starts the HTTP/JSON API over boards, milestones, cards, artifacts
and memory, plus a websocket feed of committed events at /api/events/ws.

Memory budgets are reloaded when the config file changes.

Examples:
  commanddeck serve
  commanddeck serve --addr 127.0.0.1:9000
  COMMANDDECK_SERVER_ADDR=:7420 commanddeck serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, stopping server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	watchBudgets(a)

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := server.New(server.Options{Engine: a.engine, Memory: a.memory, Logger: logger})
	return srv.ListenAndServe(ctx, addr)
}

// watchBudgets applies memory budget edits from the config file without a
// restart. Other settings need one.
func watchBudgets(a *app) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := loadConfig()
		if err != nil {
			logger.Warn("ignoring config change", "path", e.Name, "error", err)
			return
		}
		a.memory.SetBudgets(next.Memory.Budgets)
	})
	viper.WatchConfig()
}
