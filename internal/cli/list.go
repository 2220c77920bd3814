package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swamp-dev/commanddeck/internal/workflow"
)

var (
	listBoard string
	listKey   string
	listJSON  bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Manage board lists",
}

var listCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Append a list to a board",
	Long: `Create appends a list after the board's existing lists. The key defaults
to a slug of the title and must be unique on the board. Lists keyed qa or
done count as complete for write-close and findings.

Examples:
  commanddeck list create "Needs Design"
  commanddeck list create "Parked" --key parked --board <id>`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		l, err := a.engine.CreateList(ctx, workflow.ListInput{
			BoardID: listBoard,
			Key:     listKey,
			Title:   strings.Join(args, " "),
		})
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(l)
		}
		success("Created list %q", l.Title)
		detail("key", l.Key)
		detail("id", l.ID)
		return nil
	},
}

func init() {
	listCmd.PersistentFlags().BoolVar(&listJSON, "json", false, "output in JSON format")
	listCreateCmd.Flags().StringVarP(&listBoard, "board", "b", "", "board id (default: active board)")
	listCreateCmd.Flags().StringVarP(&listKey, "key", "k", "", "list key (default: derived from the title)")
	listCmd.AddCommand(listCreateCmd)
}
