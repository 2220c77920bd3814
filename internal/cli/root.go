// Package cli provides the command-line interface for commanddeck.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/swamp-dev/commanddeck/internal/config"
)

// envPrefix namespaces environment overrides, e.g. COMMANDDECK_SERVER_ADDR.
const envPrefix = "COMMANDDECK"

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
	cfg     *config.Config
	logSink io.Closer
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "commanddeck",
	Short: "Milestone workflow and agent memory for a single operator",
	Long: `Commanddeck tracks work on boards of milestones and cards, keeps an
immutable record of findings and closeout outcomes, and maintains a compact,
conflict-resolved memory that AI agents can read and write.

Run 'commanddeck serve' for the HTTP API or 'commanddeck mcp' to expose
memory tools to an agent over stdio.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		logger, logSink = newLogger(verbose, cfg.Log)
		if path := viper.ConfigFileUsed(); path != "" {
			logger.Debug("using config file", "path", path)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSink != nil {
			_ = logSink.Close()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is commanddeck.yaml in this or a parent directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(milestoneCmd)
	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(artifactCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	switch {
	case cfgFile != "":
		viper.SetConfigFile(cfgFile)
	default:
		if path, err := config.FindConfigFile(); err == nil {
			viper.SetConfigFile(path)
		}
	}
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing file is fine: defaults and environment still apply.
	_ = viper.ReadInConfig()
}

// loadConfig reads the file viper found, then layers environment overrides
// on top and resolves relative paths against the file's directory.
func loadConfig() (*config.Config, error) {
	path := viper.ConfigFileUsed()
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = config.FileName
	}
	applyOverrides(c)

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}
	c.Resolve(dir)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// applyOverrides copies every key viper knows about, which includes
// COMMANDDECK_* environment variables, onto c.
func applyOverrides(c *config.Config) {
	strs := map[string]*string{
		"storage.path":      &c.Storage.Path,
		"server.addr":       &c.Server.Addr,
		"memory.export_dir": &c.Memory.ExportDir,
		"log.file":          &c.Log.File,
	}
	for key, dst := range strs {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}

	ints := map[string]*int{
		"memory.max_value_bytes":     &c.Memory.MaxValueBytes,
		"memory.budgets.max_objects": &c.Memory.Budgets.MaxObjects,
		"memory.budgets.max_events":  &c.Memory.Budgets.MaxEvents,
		"log.max_size_mb":            &c.Log.MaxSizeMB,
		"log.max_backups":            &c.Log.MaxBackups,
		"log.max_age_days":           &c.Log.MaxAgeDays,
	}
	for key, dst := range ints {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}

	int64s := map[string]*int64{
		"memory.budgets.max_object_bytes": &c.Memory.Budgets.MaxObjectBytes,
		"memory.budgets.max_event_bytes":  &c.Memory.Budgets.MaxEventBytes,
	}
	for key, dst := range int64s {
		if viper.IsSet(key) {
			*dst = viper.GetInt64(key)
		}
	}
}

// newLogger builds the process logger. With a log file configured, records
// go to stderr and to a rotating file.
func newLogger(verbose bool, lc config.LogConfig) (*slog.Logger, io.Closer) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	var out io.Writer = os.Stderr
	var closer io.Closer
	if lc.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closer = rotator
	}

	l := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(l)
	return l, closer
}
