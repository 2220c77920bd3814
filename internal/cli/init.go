package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/swamp-dev/commanddeck/internal/config"
)

var (
	initBoard string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a commanddeck.yaml and database in this directory",
	Long: `Init writes a default commanddeck.yaml, creates the database and, when
--board is given, creates a first board and makes it active.

Examples:
  commanddeck init
  commanddeck init --board "Launch"
  commanddeck init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initBoard, "board", "b", "", "title of a first board to create")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing commanddeck.yaml")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	logger.Info("initializing commanddeck", "dir", cwd)

	if err := createConfigFile(cwd); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	success("Database ready: %s", a.store.Path())

	if initBoard != "" {
		b, err := a.engine.CreateBoard(ctx, initBoard)
		if err != nil {
			return fmt.Errorf("creating board: %w", err)
		}
		success("Created board %q (%s)", b.Title, b.ID)
	}

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. commanddeck milestone create \"Preflight\"")
	fmt.Fprintln(out, "  2. commanddeck card create \"EVAL: review the contract\" --milestone <id>")
	fmt.Fprintln(out, "  3. commanddeck serve")
	return nil
}

func createConfigFile(dir string) error {
	path := filepath.Join(dir, config.FileName)

	if !initForce {
		if _, err := os.Stat(path); err == nil {
			warning("%s already exists, skipping", config.FileName)
			return nil
		}
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}

	success("Created %s", config.FileName)
	return nil
}
