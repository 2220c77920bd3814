package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/swamp-dev/commanddeck/internal/store"
	"github.com/swamp-dev/commanddeck/internal/workflow"
)

var (
	artifactBoard     string
	artifactMilestone string
	artifactType      string
	artifactTitle     string
	artifactSummary   string
	artifactBody      string
	artifactBodyFile  string
	artifactJSON      bool
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Read and append board or milestone artifacts",
	Long: `Artifacts are immutable, revisioned documents. Board artifacts are
charter, prd, guardrails and playbook; milestone artifacts are findings and
outcomes. Adding an artifact always creates the next revision.

Pass --milestone for a milestone artifact; otherwise the board (default:
active board) is used.`,
}

var artifactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifact revisions, newest first, without bodies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		scope, err := artifactScope(ctx, a)
		if err != nil {
			return err
		}
		arts, err := a.engine.ListArtifacts(ctx, scope, artifactType)
		if err != nil {
			return err
		}
		if artifactJSON {
			return printJSON(arts)
		}
		if len(arts) == 0 {
			fmt.Fprintln(out, "No artifacts.")
			return nil
		}
		for _, art := range arts {
			fmt.Fprintf(out, "%-10s r%-3d %s  %s %s\n",
				art.ArtifactType, art.Revision, formatMillis(art.CreatedAt),
				truncate(art.Title, 50), faint.Sprintf("(%d bytes)", art.BodyLength))
		}
		return nil
	},
}

var artifactLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the newest revision of an artifact type",
	RunE: func(cmd *cobra.Command, args []string) error {
		if artifactType == "" {
			return fmt.Errorf("--type is required")
		}
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		scope, err := artifactScope(ctx, a)
		if err != nil {
			return err
		}
		art, err := a.engine.LatestArtifact(ctx, scope, artifactType)
		if err != nil {
			return err
		}
		if artifactJSON {
			return printJSON(art)
		}
		printArtifact(art)
		return nil
	},
}

var artifactAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a new artifact revision",
	Long: `Add appends the next revision of an artifact type.

Examples:
  commanddeck artifact add --type charter --title "Charter" --body-file charter.md
  commanddeck artifact add --milestone <id> --type findings --title "Audit" --summary "Two gaps"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := artifactBody
		if artifactBodyFile != "" {
			data, err := os.ReadFile(artifactBodyFile)
			if err != nil {
				return fmt.Errorf("reading body file: %w", err)
			}
			body = string(data)
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		scope, err := artifactScope(ctx, a)
		if err != nil {
			return err
		}
		art, err := a.engine.AppendArtifact(ctx, scope, workflow.ArtifactInput{
			ArtifactType: artifactType,
			Title:        artifactTitle,
			Summary:      artifactSummary,
			Body:         body,
			CreatedBy:    "cli",
		})
		if err != nil {
			return err
		}
		if artifactJSON {
			return printJSON(art)
		}
		success("Recorded %s revision %d", art.ArtifactType, art.Revision)
		detail("id", art.ID)
		return nil
	},
}

// artifactScope picks the milestone scope when --milestone is set, else
// the given or active board.
func artifactScope(ctx context.Context, a *app) (store.ArtifactScope, error) {
	if artifactMilestone != "" {
		return workflow.MilestoneScope(artifactMilestone), nil
	}
	b, err := a.engine.GetBoard(ctx, artifactBoard)
	if err != nil {
		return store.ArtifactScope{}, err
	}
	return workflow.BoardScope(b.ID), nil
}

func printArtifact(art *store.Artifact) {
	heading("%s · revision %d", art.Title, art.Revision)
	detail("type", art.ArtifactType)
	detail("created", formatMillis(art.CreatedAt)+" by "+art.CreatedBy)
	if art.Summary != "" {
		detail("summary", art.Summary)
	}
	if art.Body != "" {
		fmt.Fprintf(out, "\n%s\n", art.Body)
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func init() {
	artifactCmd.PersistentFlags().StringVarP(&artifactBoard, "board", "b", "", "board id (default: active board)")
	artifactCmd.PersistentFlags().StringVarP(&artifactMilestone, "milestone", "m", "", "milestone id")
	artifactCmd.PersistentFlags().StringVarP(&artifactType, "type", "t", "", "artifact type")
	artifactCmd.PersistentFlags().BoolVar(&artifactJSON, "json", false, "output in JSON format")

	artifactAddCmd.Flags().StringVar(&artifactTitle, "title", "", "artifact title")
	artifactAddCmd.Flags().StringVar(&artifactSummary, "summary", "", "one-line summary")
	artifactAddCmd.Flags().StringVar(&artifactBody, "body", "", "artifact body")
	artifactAddCmd.Flags().StringVar(&artifactBodyFile, "body-file", "", "read the body from a file")

	artifactCmd.AddCommand(artifactListCmd)
	artifactCmd.AddCommand(artifactLatestCmd)
	artifactCmd.AddCommand(artifactAddCmd)
}
