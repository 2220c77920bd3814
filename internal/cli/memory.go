package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/swamp-dev/commanddeck/internal/memory"
)

var (
	memBoard      string
	memJSON       bool
	memSource     string
	memEvent      string
	memBucket     string
	memValue      string
	memTags       []string
	memTTL        int
	memRef        string
	memDeleted    bool
	memLimit      int
	memTag        string
	memBudgets    memory.Budgets
	memExportPath string
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Record, inspect, compact and export board memory",
}

var memoryAppendCmd = &cobra.Command{
	Use:   "append <key>",
	Short: "Append a memory event",
	Long: `Append records an upsert, delete or touch event for a memory key.
The newest event by logical clock wins, so replays and concurrent writers
converge on the same state.

Examples:
  commanddeck memory append risk/auth --source user --bucket trb --value '{"summary":"Token refresh races"}'
  commanddeck memory append risk/auth --source operator --event delete`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		var value memory.Payload
		if cmd.Flags().Changed("value") {
			value = memory.Payload(memValue)
		}
		res, err := a.memory.Append(ctx, memory.AppendInput{
			BoardID:    memBoard,
			MemoryKey:  args[0],
			EventType:  memEvent,
			SourceType: memSource,
			Bucket:     memBucket,
			Value:      value,
			Tags:       memTags,
			TTLSeconds: memTTL,
			SourceRef:  memRef,
		})
		if err != nil {
			return err
		}
		if memJSON {
			return printJSON(res)
		}
		if res.Applied {
			success("%s %s", res.EventType, res.MemoryKey)
		} else {
			warning("%s %s recorded; a newer event already holds this key", res.EventType, res.MemoryKey)
		}
		detail("event", res.EventID)
		return nil
	},
}

var memoryStateCmd = &cobra.Command{
	Use:   "state",
	Short: "List current memory entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.memory.State(ctx, memBoard, memDeleted, memLimit)
		if err != nil {
			return err
		}
		if memJSON {
			return printJSON(res)
		}
		printObjects(res.Objects)
		fmt.Fprintf(out, "\n%d of %d live entries\n", len(res.Objects), res.Stats.ObjectCount)
		return nil
	},
}

var memoryQueryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search live memory entries",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.memory.Query(ctx, memory.QueryInput{
			BoardID:    memBoard,
			Text:       strings.Join(args, " "),
			SourceType: memSource,
			Bucket:     memBucket,
			Tag:        memTag,
			Limit:      memLimit,
		})
		if err != nil {
			return err
		}
		if memJSON {
			return printJSON(res)
		}
		printObjects(res.Matches)
		fmt.Fprintf(out, "\n%d matches\n", res.Count)
		return nil
	},
}

var memoryCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Enforce memory budgets",
	Long: `Compact removes expired entries, then the oldest entries and events
beyond the count and byte budgets. Flags override the configured budgets for
this run; values are clamped to their allowed ranges.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.memory.Compact(ctx, memBoard, &memBudgets)
		if err != nil {
			return err
		}
		if memJSON {
			return printJSON(report)
		}
		r := report.Removed
		success("compacted: %d removed", r.Total())
		detail("expired", fmt.Sprint(r.ExpiredObjects))
		detail("objects", fmt.Sprintf("%d over count, %d over bytes", r.OverflowObjects, r.ObjectBytesPruned))
		detail("events", fmt.Sprintf("%d over count, %d over bytes", r.OverflowEvents, r.EventBytesPruned))
		detail("now", fmt.Sprintf("%d entries, %d events", report.After.ObjectCount, report.After.EventCount))
		return nil
	},
}

var memoryExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write a bounded memory snapshot into the export directory",
	Long: `Export writes a bucketed snapshot of live memory to a file inside
memory.export_dir. The file keeps the last few snapshots as history.
The default file name is <boardId>.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := memExportPath
		if len(args) == 1 {
			target = args[0]
		}
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.memory.Export(ctx, memBoard, target)
		if err != nil {
			return err
		}
		if memJSON {
			return printJSON(res)
		}
		success("exported %d entries to %s", res.Count, res.Path)
		return nil
	},
}

var memoryHistoryCmd = &cobra.Command{
	Use:   "history <key>",
	Short: "Show every event recorded for a memory key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		events, err := a.memory.History(ctx, memBoard, args[0])
		if err != nil {
			return err
		}
		if memJSON {
			return printJSON(events)
		}
		for _, ev := range events {
			fmt.Fprintf(out, "%s %-6s %-15s %s\n",
				formatMillis(ev.CreatedAt), ev.EventType, ev.SourceType, truncate(compactValue(ev.Value), 60))
		}
		return nil
	},
}

func printObjects(objects []memory.Object) {
	for _, o := range objects {
		key := o.MemoryKey
		if o.IsDeleted {
			key = faint.Sprint(key + " (deleted)")
		}
		fmt.Fprintf(out, "%-4s %-32s %s\n", o.Bucket, key, truncate(compactValue(o.Value), 60))
		if len(o.Tags) > 0 {
			fmt.Fprintf(out, "     %s\n", faint.Sprint("#"+strings.Join(o.Tags, " #")))
		}
	}
}

func compactValue(p memory.Payload) string {
	if p == nil {
		return ""
	}
	var v any
	if err := json.Unmarshal(p, &v); err != nil {
		return string(p)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return string(p)
	}
	return string(data)
}

func init() {
	memoryCmd.PersistentFlags().StringVarP(&memBoard, "board", "b", "", "board id (default: active board)")
	memoryCmd.PersistentFlags().BoolVar(&memJSON, "json", false, "output in JSON format")

	f := memoryAppendCmd.Flags()
	f.StringVarP(&memSource, "source", "s", "", "user, operator or verified-system (required)")
	f.StringVarP(&memEvent, "event", "e", "upsert", "upsert, delete or touch")
	f.StringVar(&memBucket, "bucket", "", "ct, dec, trb, lrn, nx, ref or misc")
	f.StringVar(&memValue, "value", "", "JSON value for upserts")
	f.StringSliceVar(&memTags, "tag", nil, "tag (repeatable)")
	f.IntVar(&memTTL, "ttl", 0, "expire after this many seconds (0 = never)")
	f.StringVar(&memRef, "ref", "", "where the fact came from")

	memoryStateCmd.Flags().BoolVar(&memDeleted, "include-deleted", false, "include tombstoned entries")
	memoryStateCmd.Flags().IntVarP(&memLimit, "limit", "n", 0, "max entries")

	q := memoryQueryCmd.Flags()
	q.StringVarP(&memSource, "source", "s", "", "only entries last written by this source")
	q.StringVar(&memBucket, "bucket", "", "only entries in this bucket")
	q.StringVar(&memTag, "tag", "", "only entries with this exact tag")
	q.IntVarP(&memLimit, "limit", "n", 0, "max matches")

	c := memoryCompactCmd.Flags()
	c.IntVar(&memBudgets.MaxObjects, "max-objects", 0, "entry count budget")
	c.IntVar(&memBudgets.MaxEvents, "max-events", 0, "event count budget")
	c.Int64Var(&memBudgets.MaxObjectBytes, "max-object-bytes", 0, "entry byte budget")
	c.Int64Var(&memBudgets.MaxEventBytes, "max-event-bytes", 0, "event byte budget")

	memoryExportCmd.Flags().StringVarP(&memExportPath, "output", "o", "", "file inside the export directory")

	memoryCmd.AddCommand(memoryAppendCmd)
	memoryCmd.AddCommand(memoryStateCmd)
	memoryCmd.AddCommand(memoryQueryCmd)
	memoryCmd.AddCommand(memoryCompactCmd)
	memoryCmd.AddCommand(memoryExportCmd)
	memoryCmd.AddCommand(memoryHistoryCmd)
}
