package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swamp-dev/commanddeck/internal/store"
	"github.com/swamp-dev/commanddeck/internal/workflow"
)

var (
	cardMilestone   string
	cardList        string
	cardDescription string
	cardAcceptance  string
	cardIssue       string
	cardEval        bool
	cardJSON        bool
)

var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Create and move cards",
}

var cardCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a card on a milestone",
	Long: `Create adds a card to a milestone. Titles containing the word EVAL mark an
evaluation card unless --eval=false is given; moving an evaluation card to
QA or Done records a findings artifact.

Examples:
  commanddeck card create "EVAL: audit the contract" --milestone <id>
  commanddeck card create "Write docs" --milestone <id> --list active --issue DOC-12`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		in := workflow.CardInput{
			MilestoneID: cardMilestone,
			Title:       strings.Join(args, " "),
			Description: cardDescription,
			Acceptance:  cardAcceptance,
			Issue:       cardIssue,
		}
		if cmd.Flags().Changed("eval") {
			in.IsEval = &cardEval
		}
		if cardList != "" {
			boardID := ""
			if cardMilestone != "" {
				m, err := a.engine.GetMilestone(ctx, cardMilestone)
				if err != nil {
					return err
				}
				boardID = m.BoardID
			}
			list, err := findList(ctx, a, boardID, cardList)
			if err != nil {
				return err
			}
			in.BoardID = list.BoardID
			in.ListID = list.ID
		}

		c, err := a.engine.CreateCard(ctx, in)
		if err != nil {
			return err
		}
		if cardJSON {
			return printJSON(c)
		}
		success("Created card %q", c.Title)
		detail("id", c.ID)
		if c.IsEval {
			detail("evaluation", "yes")
		}
		return nil
	},
}

var cardMoveCmd = &cobra.Command{
	Use:   "move <card-id> <list>",
	Short: "Move a card to another list by key (backlog, active, blocked, qa, done) or id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		card, err := a.engine.GetCard(ctx, args[0])
		if err != nil {
			return err
		}
		list, err := findList(ctx, a, card.BoardID, args[1])
		if err != nil {
			return err
		}

		res, err := a.engine.UpdateCard(ctx, card.ID, workflow.CardPatch{ListID: &list.ID})
		if err != nil {
			return err
		}
		if cardJSON {
			return printJSON(res)
		}
		success("Moved %q to %s", res.Card.Title, list.Title)
		if res.Findings != nil {
			detail("findings", fmt.Sprintf("revision %d recorded", res.Findings.Revision))
		}
		return nil
	},
}

// findList resolves a list on a board by key or id.
func findList(ctx context.Context, a *app, boardID, ref string) (*store.List, error) {
	board, err := a.engine.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	for i := range board.Lists {
		l := &board.Lists[i]
		if l.ID == ref || strings.EqualFold(l.Key, ref) {
			return l, nil
		}
	}
	return nil, &store.NotFoundError{Kind: "list", ID: ref}
}

func init() {
	cardCmd.PersistentFlags().BoolVar(&cardJSON, "json", false, "output in JSON format")

	f := cardCreateCmd.Flags()
	f.StringVarP(&cardMilestone, "milestone", "m", "", "milestone id (required)")
	f.StringVarP(&cardList, "list", "l", "", "list key or id (default: backlog)")
	f.StringVarP(&cardDescription, "description", "d", "", "card description")
	f.StringVar(&cardAcceptance, "acceptance", "", "acceptance criteria")
	f.StringVar(&cardIssue, "issue", "", "issue reference")
	f.BoolVar(&cardEval, "eval", false, "mark as evaluation card (default: detected from the title)")

	cardCmd.AddCommand(cardCreateCmd)
	cardCmd.AddCommand(cardMoveCmd)
}
