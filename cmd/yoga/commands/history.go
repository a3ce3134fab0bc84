package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/collection"
	"github.com/dhkts1/yoga-app-sub002/internal/filter"
	"github.com/dhkts1/yoga-app-sub002/internal/listing"
	"github.com/dhkts1/yoga-app-sub002/internal/printer"
	"github.com/dhkts1/yoga-app-sub002/internal/sessions"
	"github.com/dhkts1/yoga-app-sub002/internal/timespec"
	"github.com/spf13/cobra"
)

var (
	historyOutputFormat string
	historySince        string
	historyUntil        string
	historySession      string
	historyListProgram  string
	historyProgram      string
	historySeconds      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Record and review completed practices",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List completed practices",
	Long: `List completed practices, oldest first.

Time Filters:
  --since  - Only practices completed at or after this time
  --until  - Only practices completed before this time

Both accept durations ago ("7d", "36h"), "today", "yesterday", a date
("2025-03-01") or an RFC3339 timestamp.

Other Filters:
  --session  - Glob pattern on the session ID (e.g., "morning-*")
  --program  - Only practices recorded in this program

Examples:
  yoga history list --since 7d
  yoga history list --session 'back-*' --program foundations
  yoga history list --since 2025-03-01 --until 2025-04-01 -o jsonl`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyRecordCmd = &cobra.Command{
	Use:   "record SESSION",
	Short: "Record a completed practice",
	Long: `Record that SESSION was practised just now.

Without --seconds the effective length of the session is recorded, with
overrides applied.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryRecord,
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show practice totals and the current daily streak",
	Args:  cobra.NoArgs,
	RunE:  runHistorySummary,
}

var historyRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete a recorded practice",
	Args:    cobra.ExactArgs(1),
	RunE:    runHistoryRemove,
}

func init() {
	historyListCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	historyListCmd.Flags().StringVar(&historySince, "since", "", "Show practices from this time")
	historyListCmd.Flags().StringVar(&historyUntil, "until", "", "Show practices before this time")
	historyListCmd.Flags().StringVar(&historySession, "session", "", "Filter by session ID (glob pattern)")
	historyListCmd.Flags().StringVarP(&historyListProgram, "program", "p", "", "Filter by program ID")

	historyRecordCmd.Flags().IntVar(&historySeconds, "seconds", 0, "Practised seconds (default: session length)")
	historyRecordCmd.Flags().StringVarP(&historyProgram, "program", "p", "", "Program the session was practised in")

	historySummaryCmd.Flags().StringVarP(&historyOutputFormat, "output", "o", "default", "Output format (default or json)")

	historyCmd.AddCommand(historyListCmd, historyRecordCmd, historySummaryCmd, historyRemoveCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	format, err := listing.ParseOutputFormat(historyOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl"})
	}

	now := time.Now()
	since, until, err := timespec.ParseRange(historySince, historyUntil, now)
	if err != nil {
		return printer.Error("invalid time filter", err.Error(), nil)
	}

	criteria := filter.Criteria{
		Since:       since,
		Until:       until,
		SessionGlob: historySession,
		ProgramID:   historyListProgram,
	}
	if err := criteria.Validate(); err != nil {
		return printer.Error("invalid --session", fmt.Sprintf("'%s': %v", historySession, err), nil)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries := criteria.Apply(a.History.List(ctx, time.Time{}, time.Time{}))
	return listing.WriteHistory(printer.Out, entries, format, now)
}

func runHistoryRecord(cmd *cobra.Command, args []string) error {
	if historySeconds < 0 {
		return printer.Error("invalid --seconds", "Practised seconds cannot be negative.", nil)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveSession(ctx, a, args[0])
	if err != nil {
		return err
	}

	seconds := historySeconds
	if seconds == 0 {
		if historyProgram != "" {
			poses, err := a.EffectiveProgramSession(ctx, historyProgram, id)
			if err != nil {
				return programError(a, historyProgram, id, err)
			}
			seconds = sessions.TotalSeconds(poses)
		} else {
			poses, err := a.EffectiveSession(ctx, id)
			if err != nil {
				return err
			}
			seconds = sessions.TotalSeconds(poses)
		}
	} else if historyProgram != "" {
		if _, err := a.EffectiveProgramSession(ctx, historyProgram, id); err != nil {
			return programError(a, historyProgram, id, err)
		}
	}

	entry, err := a.History.Record(ctx, id, historyProgram, seconds)
	if err != nil {
		if errors.Is(err, collection.ErrInvalidRecord) {
			return printer.Error("invalid practice", err.Error(), nil)
		}
		return saveError("practice", err)
	}

	printer.Success("Recorded %s of %s (%s)\n", time.Duration(entry.Seconds)*time.Second, id, entry.ID)
	summary := a.History.Summary(ctx)
	printer.Hint("  Streak: %d day(s), %d practice(s) in total\n", summary.StreakDays, summary.Count)
	return nil
}

func runHistorySummary(cmd *cobra.Command, args []string) error {
	if historyOutputFormat != "default" && historyOutputFormat != "json" {
		return printer.Error("invalid output format",
			fmt.Sprintf("Unknown format: %s", historyOutputFormat),
			[]string{"Valid formats: default, json"})
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summary := a.History.Summary(ctx)
	if historyOutputFormat == "json" {
		return listing.FormatSingleJSON(printer.Out, summary)
	}
	listing.FormatSummary(printer.Out, summary)
	return nil
}

func runHistoryRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	entries := a.History.List(ctx, time.Time{}, time.Time{})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	id, err := resolveIn("practices", ids, args[0])
	if err != nil {
		return err
	}
	if _, err := a.History.Remove(ctx, id); err != nil {
		return saveError("history", err)
	}
	printer.Success("Deleted practice %s\n", id)
	return nil
}
