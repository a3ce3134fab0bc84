package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/app"
	"github.com/dhkts1/yoga-app-sub002/internal/content"
	"github.com/dhkts1/yoga-app-sub002/internal/listing"
	"github.com/dhkts1/yoga-app-sub002/internal/override"
	"github.com/dhkts1/yoga-app-sub002/internal/printer"
	"github.com/dhkts1/yoga-app-sub002/internal/resolver"
	"github.com/dhkts1/yoga-app-sub002/internal/sequencing"
	"github.com/dhkts1/yoga-app-sub002/internal/sessions"
	"github.com/spf13/cobra"
)

var (
	sessionsOutputFormat string
	sessionsProgram      string
	sessionsName         string
	sessionsPoses        []string
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "List, inspect and build sessions",
	Long: `Manage practice sessions.

Catalog sessions ship with the app and can only be customised through
duration overrides. Custom sessions are built from catalog poses and are
addressed by their UUID or a unique prefix of at least 6 characters.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog and custom sessions",
	Long: `List every catalog session followed by the custom sessions, oldest first.
A '*' after the length marks a catalog session whose length includes
duration overrides.

Output Formats:
  default - Human-readable table
  jsonl   - Line-delimited JSON, one session per line`,
	Args: cobra.NoArgs,
	RunE: runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show SESSION",
	Short: "Show the poses of a session as they will be practised",
	Long: `Show the poses of a session with duration overrides applied.
A '*' after the length marks an overridden duration.

Examples:
  yoga sessions show morning-flow
  yoga sessions show back-care --program foundations
  yoga sessions show 4f1c2a -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsShow,
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a custom session",
	Long: fmt.Sprintf(`Create a custom session from catalog poses.

A session needs %d to %d poses, each held %d to %d seconds in steps of %d.

Examples:
  yoga sessions create --name "Desk Break" --pose mountain:30 --pose forward-fold:45
  yoga sessions create --name "Short" --pose cobra:30,child:60`,
		sessions.MinPoses, sessions.MaxPoses,
		sessions.MinPoseSeconds, sessions.MaxPoseSeconds, sessions.PoseSecondsStep),
	Args: cobra.NoArgs,
	RunE: runSessionsCreate,
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename SESSION NAME",
	Short: "Rename a custom session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionsRename,
}

var sessionsRemoveCmd = &cobra.Command{
	Use:     "rm SESSION",
	Aliases: []string{"remove", "delete"},
	Short:   "Delete a custom session",
	Args:    cobra.ExactArgs(1),
	RunE:    runSessionsRemove,
}

var sessionsCheckCmd = &cobra.Command{
	Use:   "check SESSION",
	Short: "Check a session against the sequencing rules",
	Long: `Check the effective pose order of a session against the sequencing rules.
The check is advisory: a warning is printed but the command succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionsCheck,
}

func init() {
	sessionsListCmd.Flags().StringVarP(&sessionsOutputFormat, "output", "o", "default", "Output format (default or jsonl)")

	sessionsShowCmd.Flags().StringVarP(&sessionsProgram, "program", "p", "", "Show the session as it appears inside a program")
	sessionsShowCmd.Flags().StringVarP(&sessionsOutputFormat, "output", "o", "default", "Output format (default or json)")

	sessionsCreateCmd.Flags().StringVar(&sessionsName, "name", "", "Session name (required)")
	sessionsCreateCmd.Flags().StringSliceVar(&sessionsPoses, "pose", nil, "Pose as id:seconds, repeatable or comma-separated")
	sessionsCreateCmd.MarkFlagRequired("name")
	sessionsCreateCmd.MarkFlagRequired("pose")

	sessionsCheckCmd.Flags().StringVarP(&sessionsProgram, "program", "p", "", "Check the session as it appears inside a program")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsCreateCmd,
		sessionsRenameCmd, sessionsRemoveCmd, sessionsCheckCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	format, err := listing.ParseOutputFormat(sessionsOutputFormat)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), []string{"Valid formats: default, jsonl"})
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows := listing.SessionRows(a.Catalog, a.Sessions.List(ctx), func(id string) override.Values {
		return a.SessionOverrides.SessionDurations(ctx, id)
	})
	return listing.WriteSessions(printer.Out, rows, format, time.Now())
}

type sessionDetail struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Source   listing.Source    `json:"source"`
	Program  string            `json:"program,omitempty"`
	Poses    []listing.PoseRow `json:"poses"`
	Seconds  int               `json:"seconds"`
	Sequence sequencing.Result `json:"sequence"`
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	if sessionsOutputFormat != "default" && sessionsOutputFormat != "json" {
		return printer.Error("invalid output format",
			fmt.Sprintf("Unknown format: %s", sessionsOutputFormat),
			[]string{"Valid formats: default, json"})
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

	detail := sessionDetail{ID: id, Program: sessionsProgram, Source: listing.SourceCatalog}
	var poses []content.SessionPose
	var overridden func(int) bool

	if sessionsProgram != "" {
		poses, err = a.EffectiveProgramSession(ctx, sessionsProgram, id)
		if err != nil {
			return programError(a, sessionsProgram, id, err)
		}
		values := a.ProgramOverrides.SessionDurations(ctx, sessionsProgram, id)
		overridden = func(i int) bool { _, ok := values[i]; return ok }
	} else {
		poses, err = a.EffectiveSession(ctx, id)
		if err != nil {
			return err
		}
		values := a.SessionOverrides.SessionDurations(ctx, id)
		overridden = func(i int) bool { _, ok := values[i]; return ok }
	}

	if base, ok := a.Catalog.Session(id); ok {
		detail.Name = base.Name
	} else {
		custom, _ := a.Sessions.Get(ctx, id)
		detail.Name = custom.Name
		detail.Source = listing.SourceCustom
	}

	detail.Poses = listing.NewPoseRows(poses, a.Catalog, overridden)
	detail.Seconds = sessions.TotalSeconds(poses)
	detail.Sequence, err = a.CheckEffectiveSession(ctx, sessionsProgram, id)
	if err != nil {
		return err
	}

	if sessionsOutputFormat == "json" {
		return listing.FormatSingleJSON(printer.Out, detail)
	}

	title := fmt.Sprintf("%s (%s)", detail.Name, detail.Source)
	if sessionsProgram != "" {
		title = fmt.Sprintf("%s in program '%s'", title, sessionsProgram)
	}
	listing.FormatPoses(printer.Out, title, detail.Poses)
	if !detail.Sequence.Valid {
		printer.Warning("%s\n", detail.Sequence.Warning)
	}
	return nil
}

func runSessionsCreate(cmd *cobra.Command, args []string) error {
	poses, err := parsePoses(sessionsPoses)
	if err != nil {
		return printer.Error("invalid --pose", err.Error(),
			[]string{"Use id:seconds, e.g. --pose mountain:30"})
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	session, err := a.Sessions.Create(ctx, sessionsName, poses)
	if err != nil {
		var verr *sessions.ValidationError
		if errors.As(err, &verr) {
			return printer.Error("invalid session", "  - "+strings.Join(verr.Problems, "\n  - "),
				[]string{"List the available poses with:\n  yoga sessions show morning-flow"})
		}
		return saveError("session", err)
	}

	printer.Success("Created session '%s' (%s, %d poses, %ds)\n",
		session.Name, session.ID, len(session.Poses), session.Duration)

	result, err := a.Sessions.CheckSequence(ctx, session.ID)
	if err == nil && !result.Valid {
		printer.Warning("%s\n", result.Warning)
	}
	return nil
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveCustomSession(ctx, a, args[0])
	if err != nil {
		return err
	}

	if _, err := a.Sessions.Rename(ctx, id, args[1]); err != nil {
		if sessions.IsValidationError(err) {
			return printer.Error("invalid name", err.Error(), nil)
		}
		return saveError("session", err)
	}
	printer.Success("Renamed %s to '%s'\n", id, args[1])
	return nil
}

func runSessionsRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := resolveCustomSession(ctx, a, args[0])
	if err != nil {
		return err
	}

	if _, err := a.Sessions.Remove(ctx, id); err != nil {
		return saveError("session", err)
	}
	printer.Success("Deleted session %s\n", id)
	return nil
}

func runSessionsCheck(cmd *cobra.Command, args []string) error {
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

	result, err := a.CheckEffectiveSession(ctx, sessionsProgram, id)
	if err != nil {
		return programError(a, sessionsProgram, id, err)
	}
	if result.Valid {
		printer.Success("Sequence of %s follows the sequencing rules\n", id)
		return nil
	}
	printer.Warning("%s\n", result.Warning)
	return nil
}

// parsePoses turns id:seconds specs into session poses.
func parsePoses(specs []string) ([]content.SessionPose, error) {
	poses := make([]content.SessionPose, 0, len(specs))
	for _, spec := range specs {
		id, secs, ok := strings.Cut(spec, ":")
		if !ok || id == "" {
			return nil, fmt.Errorf("'%s' is not id:seconds", spec)
		}
		n, err := strconv.Atoi(secs)
		if err != nil {
			return nil, fmt.Errorf("'%s': seconds must be a whole number", spec)
		}
		poses = append(poses, content.SessionPose{PoseID: strings.TrimSpace(id), Seconds: n})
	}
	return poses, nil
}

// resolveSession maps a catalog id, custom id or custom id prefix to an id.
func resolveSession(ctx context.Context, a *app.App, input string) (string, error) {
	ids := make([]string, 0, len(a.Catalog.Sessions))
	for _, s := range a.Catalog.Sessions {
		ids = append(ids, s.ID)
	}
	ids = append(ids, a.Sessions.IDs(ctx)...)
	return resolveIn("sessions", ids, input)
}

// resolveCustomSession is resolveSession restricted to custom sessions.
func resolveCustomSession(ctx context.Context, a *app.App, input string) (string, error) {
	if _, ok := a.Catalog.Session(input); ok {
		return "", printer.Error(
			fmt.Sprintf("'%s' is a catalog session", input),
			"Catalog sessions cannot be renamed or deleted.",
			[]string{fmt.Sprintf("Adjust its durations instead:\n  yoga overrides set %s INDEX SECONDS", input)},
		)
	}
	return resolveIn("sessions", a.Sessions.IDs(ctx), input)
}

func resolveIn(kind string, ids []string, input string) (string, error) {
	id, err := resolver.ResolveKind(kind, ids, input)
	if err == nil {
		return id, nil
	}

	var ambiguous *resolver.AmbiguousError
	switch {
	case errors.As(err, &ambiguous):
		return "", printer.Error("ambiguous short ID", resolver.FormatAmbiguousError(ambiguous), nil)
	case resolver.IsNotFoundError(err):
		return "", printer.Error(
			fmt.Sprintf("%s not found", strings.TrimSuffix(kind, "s")),
			err.Error(),
			[]string{fmt.Sprintf("List them with:\n  yoga %s list", listCommandFor(kind))},
		)
	}
	return "", printer.Error("invalid ID", err.Error(), nil)
}

func listCommandFor(kind string) string {
	if kind == "practices" {
		return "history"
	}
	return kind
}

// programError explains a failed program lookup.
func programError(a *app.App, programID, sessionID string, err error) error {
	if programID == "" {
		return err
	}
	if _, ok := a.Catalog.Program(programID); !ok {
		ids := make([]string, len(a.Catalog.Programs))
		for i, p := range a.Catalog.Programs {
			ids[i] = p.ID
		}
		return printer.Error("program not found",
			fmt.Sprintf("No program '%s'.", programID),
			[]string{"Known programs: " + strings.Join(ids, ", ")})
	}
	program, _ := a.Catalog.Program(programID)
	return printer.Error("session not in program",
		fmt.Sprintf("Session '%s' is not part of program '%s'.", sessionID, programID),
		[]string{"Sessions in this program: " + strings.Join(program.Sessions, ", ")})
}
