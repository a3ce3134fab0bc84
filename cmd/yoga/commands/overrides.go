package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/dhkts1/yoga-app-sub002/internal/app"
	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/internal/listing"
	"github.com/dhkts1/yoga-app-sub002/internal/override"
	"github.com/dhkts1/yoga-app-sub002/internal/printer"
	"github.com/spf13/cobra"
)

var (
	overridesProgram string
	overridesAll     bool
	overridesOutput  string
)

var overridesCmd = &cobra.Command{
	Use:     "overrides",
	Aliases: []string{"override"},
	Short:   "Adjust pose durations of catalog sessions",
	Long: fmt.Sprintf(`Adjust how long each pose of a catalog session is held.

Overrides are sparse: only adjusted poses are stored and everything else
keeps the catalog duration. Values are rounded to the nearest %d seconds
and clamped to %d-%d.

With --program the override applies only when the session is practised
inside that program, independently of the session's own overrides.`,
		override.StepSeconds, override.MinSeconds, override.MaxSeconds),
}

var overridesSetCmd = &cobra.Command{
	Use:   "set SESSION INDEX SECONDS",
	Short: "Override the duration of one pose",
	Long: `Override the duration of the pose at INDEX (0-based, as shown by
'yoga sessions show').

Examples:
  yoga overrides set morning-flow 0 60
  yoga overrides set back-care 3 120 --program foundations`,
	Args: cobra.ExactArgs(3),
	RunE: runOverridesSet,
}

var overridesShowCmd = &cobra.Command{
	Use:   "show SESSION",
	Short: "Show the overrides of one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runOverridesShow,
}

var overridesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions and programs that carry overrides",
	Args:  cobra.NoArgs,
	RunE:  runOverridesList,
}

var overridesClearCmd = &cobra.Command{
	Use:   "clear SESSION INDEX",
	Short: "Restore the catalog duration of one pose",
	Args:  cobra.ExactArgs(2),
	RunE:  runOverridesClear,
}

var overridesResetCmd = &cobra.Command{
	Use:   "reset [SESSION]",
	Short: "Remove overrides of a session, a program, or everything",
	Long: `Remove overrides in bulk.

Examples:
  # One session
  yoga overrides reset morning-flow

  # One session inside a program
  yoga overrides reset back-care --program foundations

  # Every session of a program
  yoga overrides reset --program foundations

  # Everything, sessions and programs
  yoga overrides reset --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOverridesReset,
}

func init() {
	for _, c := range []*cobra.Command{overridesSetCmd, overridesShowCmd, overridesClearCmd, overridesResetCmd} {
		c.Flags().StringVarP(&overridesProgram, "program", "p", "", "Apply to the session inside this program")
	}
	overridesShowCmd.Flags().StringVarP(&overridesOutput, "output", "o", "default", "Output format (default or json)")
	overridesResetCmd.Flags().BoolVar(&overridesAll, "all", false, "Remove every session and program override")

	overridesCmd.AddCommand(overridesSetCmd, overridesShowCmd, overridesListCmd, overridesClearCmd, overridesResetCmd)
	rootCmd.AddCommand(overridesCmd)
}

// overrideTarget is a catalog session, optionally inside a program.
type overrideTarget struct {
	programID string
	sessionID string
	base      []content.SessionPose
}

func (t overrideTarget) String() string {
	if t.programID != "" {
		return fmt.Sprintf("%s in program %s", t.sessionID, t.programID)
	}
	return t.sessionID
}

func resolveOverrideTarget(a *app.App, programID, sessionID string) (overrideTarget, error) {
	base, ok := a.Catalog.Session(sessionID)
	if !ok {
		return overrideTarget{}, printer.Error(
			"not a catalog session",
			fmt.Sprintf("'%s' is not a catalog session. Overrides only apply to catalog sessions.", sessionID),
			[]string{"List catalog sessions with:\n  yoga sessions list"},
		)
	}
	if programID != "" {
		program, ok := a.Catalog.Program(programID)
		if !ok || !contains(program.Sessions, sessionID) {
			return overrideTarget{}, programError(a, programID, sessionID, app.ErrUnknownProgram)
		}
	}
	return overrideTarget{programID: programID, sessionID: sessionID, base: base.Poses}, nil
}

func (t overrideTarget) values(ctx context.Context, a *app.App) override.Values {
	if t.programID != "" {
		return a.ProgramOverrides.SessionDurations(ctx, t.programID, t.sessionID)
	}
	return a.SessionOverrides.SessionDurations(ctx, t.sessionID)
}

func parseIndex(t overrideTarget, s string) (int, error) {
	index, err := strconv.Atoi(s)
	if err != nil || index < 0 || index >= len(t.base) {
		return 0, printer.Error(
			"invalid pose index",
			fmt.Sprintf("'%s' is not a pose index of %s.", s, t.sessionID),
			[]string{fmt.Sprintf("Use 0 to %d; see:\n  yoga sessions show %s", len(t.base)-1, t.sessionID)},
		)
	}
	return index, nil
}

func runOverridesSet(cmd *cobra.Command, args []string) error {
	raw, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return printer.Error("invalid duration", fmt.Sprintf("'%s' is not a number of seconds.", args[2]), nil)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := resolveOverrideTarget(a, overridesProgram, args[0])
	if err != nil {
		return err
	}
	index, err := parseIndex(target, args[1])
	if err != nil {
		return err
	}

	if target.programID != "" {
		err = a.ProgramOverrides.SetDuration(ctx, target.programID, target.sessionID, index, raw)
	} else {
		err = a.SessionOverrides.SetDuration(ctx, target.sessionID, index, raw)
	}
	if err != nil {
		return saveError("override", err)
	}

	seconds := override.Normalize(raw)
	printer.Success("Pose %d of %s (%s) now lasts %ds\n", index, target, target.base[index].PoseID, seconds)
	if float64(seconds) != raw {
		printer.Hint("  %s was adjusted to the %ds grid between %ds and %ds\n",
			args[2], override.StepSeconds, override.MinSeconds, override.MaxSeconds)
	}
	return nil
}

type overrideRow struct {
	Index    int    `json:"index"`
	PoseID   string `json:"poseId"`
	Base     int    `json:"baseSeconds"`
	Override int    `json:"seconds"`
}

func runOverridesShow(cmd *cobra.Command, args []string) error {
	if overridesOutput != "default" && overridesOutput != "json" {
		return printer.Error("invalid output format",
			fmt.Sprintf("Unknown format: %s", overridesOutput),
			[]string{"Valid formats: default, json"})
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := resolveOverrideTarget(a, overridesProgram, args[0])
	if err != nil {
		return err
	}

	values := target.values(ctx, a)
	indices := make([]int, 0, len(values))
	for i := range values {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	rows := make([]overrideRow, 0, len(indices))
	for _, i := range indices {
		row := overrideRow{Index: i, Override: values[i]}
		// Indices past the end of the session are kept but never applied
		if i < len(target.base) {
			row.PoseID = target.base[i].PoseID
			row.Base = target.base[i].Seconds
		}
		rows = append(rows, row)
	}

	if overridesOutput == "json" {
		return listing.FormatSingleJSON(printer.Out, rows)
	}

	if len(rows) == 0 {
		printer.Info("No overrides for %s\n", target)
		return nil
	}

	printer.Info("Overrides for %s:\n\n", target)
	printer.Printf("%-5s %-16s %-6s %s\n", "#", "POSE", "BASE", "OVERRIDE")
	for _, r := range rows {
		if r.PoseID == "" {
			printer.Printf("%-5d %-16s %-6s %ds (not applied)\n", r.Index, "-", "-", r.Override)
			continue
		}
		printer.Printf("%-5d %-16s %-6s %ds\n", r.Index, r.PoseID, fmt.Sprintf("%ds", r.Base), r.Override)
	}
	return nil
}

func runOverridesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sessionIDs := a.SessionOverrides.Sessions(ctx)
	programIDs := a.ProgramOverrides.Programs(ctx)
	if len(sessionIDs) == 0 && len(programIDs) == 0 {
		printer.Info("No overrides\n")
		return nil
	}

	for _, id := range sessionIDs {
		printer.Printf("session  %-16s %d\n", id, len(a.SessionOverrides.SessionDurations(ctx, id)))
	}
	for _, programID := range programIDs {
		program, _ := a.Catalog.Program(programID)
		for _, sessionID := range program.Sessions {
			if n := len(a.ProgramOverrides.SessionDurations(ctx, programID, sessionID)); n > 0 {
				printer.Printf("program  %-16s %d\n", programID+"/"+sessionID, n)
			}
		}
	}
	return nil
}

func runOverridesClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := resolveOverrideTarget(a, overridesProgram, args[0])
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(args[1])
	if err != nil || index < 0 {
		return printer.Error("invalid pose index", fmt.Sprintf("'%s' is not a pose index.", args[1]), nil)
	}

	var cleared bool
	if target.programID != "" {
		cleared, err = a.ProgramOverrides.ClearDuration(ctx, target.programID, target.sessionID, index)
	} else {
		cleared, err = a.SessionOverrides.ClearDuration(ctx, target.sessionID, index)
	}
	if err != nil {
		return saveError("override", err)
	}

	if !cleared {
		printer.Info("No override at pose %d of %s\n", index, target)
		return nil
	}
	printer.Success("Pose %d of %s restored to its catalog duration\n", index, target)
	return nil
}

func runOverridesReset(cmd *cobra.Command, args []string) error {
	if overridesAll && (len(args) > 0 || overridesProgram != "") {
		return printer.Error("conflicting arguments", "--all cannot be combined with a session or --program.", nil)
	}
	if !overridesAll && len(args) == 0 && overridesProgram == "" {
		return printer.Error("nothing to reset",
			"Name a session, a program, or pass --all.",
			[]string{"yoga overrides reset SESSION", "yoga overrides reset --program PROGRAM", "yoga overrides reset --all"})
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case overridesAll:
		if err := a.SessionOverrides.ResetAll(ctx); err != nil {
			return saveError("overrides", err)
		}
		if err := a.ProgramOverrides.ResetAll(ctx); err != nil {
			return saveError("overrides", err)
		}
		printer.Success("Removed every override\n")

	case len(args) == 0:
		if _, ok := a.Catalog.Program(overridesProgram); !ok {
			return programError(a, overridesProgram, "", app.ErrUnknownProgram)
		}
		if err := a.ProgramOverrides.ResetProgram(ctx, overridesProgram); err != nil {
			return saveError("overrides", err)
		}
		printer.Success("Removed the overrides of program %s\n", overridesProgram)

	default:
		target, err := resolveOverrideTarget(a, overridesProgram, args[0])
		if err != nil {
			return err
		}
		if target.programID != "" {
			err = a.ProgramOverrides.ResetSession(ctx, target.programID, target.sessionID)
		} else {
			err = a.SessionOverrides.ResetSession(ctx, target.sessionID)
		}
		if err != nil {
			return saveError("overrides", err)
		}
		printer.Success("Removed the overrides of %s\n", target)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
