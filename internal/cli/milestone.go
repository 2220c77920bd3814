package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swamp-dev/commanddeck/internal/workflow"
)

var (
	milestoneBoard string
	milestoneKind  string
	milestoneJSON  bool
)

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Create, archive and restore milestones",
}

var milestoneCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a milestone",
	Long: `Create adds a milestone to a board. The first milestone of a board becomes
its pre-flight milestone unless --kind standard is given; pre-flight
milestones stop accepting new cards once every card on them is done.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.engine.CreateMilestone(ctx, workflow.MilestoneInput{
			BoardID: milestoneBoard,
			Title:   strings.Join(args, " "),
			Kind:    milestoneKind,
		})
		if err != nil {
			return err
		}
		if milestoneJSON {
			return printJSON(m)
		}
		success("Created %s milestone %q", m.Kind, m.Title)
		detail("id", m.ID)
		return nil
	},
}

var milestoneArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a milestone and record its closeout outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.engine.ArchiveMilestone(ctx, args[0])
		if err != nil {
			return err
		}
		if milestoneJSON {
			return printJSON(res)
		}
		success("Archived %q", res.Milestone.Title)
		if res.Outcomes != nil {
			detail("outcomes", fmt.Sprintf("revision %d", res.Outcomes.Revision))
			detail("summary", res.Outcomes.Summary)
		} else {
			warning("already archived, no new outcomes recorded")
		}
		return nil
	},
}

var milestoneRestoreCmd = &cobra.Command{
	Use:   "restore <id>",
	Short: "Restore an archived milestone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.engine.RestoreMilestone(ctx, args[0])
		if err != nil {
			return err
		}
		if milestoneJSON {
			return printJSON(m)
		}
		success("Restored %q", m.Title)
		return nil
	},
}

func init() {
	milestoneCmd.PersistentFlags().BoolVar(&milestoneJSON, "json", false, "output in JSON format")
	milestoneCreateCmd.Flags().StringVarP(&milestoneBoard, "board", "b", "", "board id (default: active board)")
	milestoneCreateCmd.Flags().StringVar(&milestoneKind, "kind", "", "preflight or standard (default: preflight for a board's first milestone)")

	milestoneCmd.AddCommand(milestoneCreateCmd)
	milestoneCmd.AddCommand(milestoneArchiveCmd)
	milestoneCmd.AddCommand(milestoneRestoreCmd)
}
