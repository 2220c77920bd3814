package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swamp-dev/commanddeck/internal/memory"
	"github.com/swamp-dev/commanddeck/internal/store"
	"github.com/swamp-dev/commanddeck/internal/workflow"
)

var (
	statusBoard string
	statusJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show milestones and memory budget usage for a board",
	Long: `Status displays the milestones of a board with their write state, and
how much of each memory budget the board uses.

It warns when usage passes 80% of a budget and flags budgets that are
exceeded, which 'commanddeck memory compact' brings back in line.

Examples:
  commanddeck status
  commanddeck status --board <id>
  commanddeck status --json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusBoard, "board", "b", "", "board id (default: active board)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output in JSON format")
}

type statusReport struct {
	Board  *workflow.BoardDetail `json:"board"`
	Memory *memory.BudgetStatus  `json:"memory"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	board, err := a.engine.GetBoard(ctx, statusBoard)
	if err != nil {
		return err
	}
	mem, err := a.memory.Status(ctx, board.ID)
	if err != nil {
		return err
	}

	report := statusReport{Board: board, Memory: mem}
	if statusJSON {
		return printJSON(report)
	}
	printStatusText(report)
	return nil
}

func printStatusText(r statusReport) {
	heading("%s", r.Board.Title)
	detail("board", r.Board.ID)

	fmt.Fprintln(out)
	heading("Milestones")
	if len(r.Board.Milestones) == 0 {
		fmt.Fprintln(out, "  none yet. Create one with 'commanddeck milestone create'.")
	}
	for _, m := range r.Board.Milestones {
		fmt.Fprintf(out, "  %s %-40s %s\n", milestoneIcon(&m), truncate(m.Title, 40), faint.Sprint(milestoneState(&m)))
	}

	fmt.Fprintln(out)
	heading("Memory")
	st, b := r.Memory.Stats, r.Memory.Budgets
	usage("objects", int64(st.ObjectCount), int64(b.MaxObjects))
	usage("events", int64(st.EventCount), int64(b.MaxEvents))
	usage("object bytes", st.ObjectBytes, b.MaxObjectBytes)
	usage("event bytes", st.EventBytes, b.MaxEventBytes)

	switch {
	case r.Memory.Exceeded:
		failure("%s. Run 'commanddeck memory compact'.", r.Memory.Reason)
	case r.Memory.Warning:
		warning("%s", r.Memory.Reason)
	default:
		success("memory within budget")
	}
}

func usage(label string, used, limit int64) {
	pct := 0.0
	if limit > 0 {
		pct = float64(used) / float64(limit) * 100
	}
	fmt.Fprintf(out, "  %-13s %s %5.1f%%  %d/%d\n", label, renderProgressBar(pct, 24), pct, used, limit)
}

func milestoneIcon(m *store.Milestone) string {
	switch {
	case m.Archived():
		return "⊘"
	case !m.AcceptsNewCards:
		return "✓"
	default:
		return "▶"
	}
}

func milestoneState(m *store.Milestone) string {
	switch {
	case m.Archived():
		return "archived"
	case !m.AcceptsNewCards:
		return m.Kind + ", write-closed"
	default:
		return m.Kind + ", open"
	}
}
