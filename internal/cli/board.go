package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var boardJSON bool

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Create, list and activate boards",
}

var boardCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a board with the default lists and make it active",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.engine.CreateBoard(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if boardJSON {
			return printJSON(b)
		}
		success("Created board %q", b.Title)
		detail("id", b.ID)
		return nil
	},
}

var boardListCmd = &cobra.Command{
	Use:   "list",
	Short: "List boards",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		boards, err := a.engine.ListBoards(ctx)
		if err != nil {
			return err
		}
		if boardJSON {
			return printJSON(boards)
		}
		if len(boards) == 0 {
			fmt.Fprintln(out, "No boards. Create one with 'commanddeck board create <title>'.")
			return nil
		}

		active, err := a.engine.GetBoard(ctx, "")
		activeID := ""
		if err == nil {
			activeID = active.ID
		}
		for _, b := range boards {
			marker := " "
			if b.ID == activeID {
				marker = green.Sprint("*")
			}
			fmt.Fprintf(out, "%s %s  %s\n", marker, faint.Sprint(b.ID), b.Title)
		}
		return nil
	},
}

var boardActivateCmd = &cobra.Command{
	Use:   "activate <board-id>",
	Short: "Make a board the default for commands that omit --board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.engine.ActivateBoard(ctx, args[0])
		if err != nil {
			return err
		}
		if boardJSON {
			return printJSON(b)
		}
		success("Activated board %q", b.Title)
		return nil
	},
}

func init() {
	boardCmd.PersistentFlags().BoolVar(&boardJSON, "json", false, "output in JSON format")
	boardCmd.AddCommand(boardCreateCmd)
	boardCmd.AddCommand(boardListCmd)
	boardCmd.AddCommand(boardActivateCmd)
}
