package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/dhkts1/yoga-app-sub002/internal/app"
	"github.com/dhkts1/yoga-app-sub002/internal/printer"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/spf13/cobra"
)

var statusPurgeBackups bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check stored state and archived corrupted payloads",
	Long: `Load every store and report its state.

A payload that fails to decode is archived under '<key>-corrupted-<ms>' and
the store falls back to its default. Archived payloads are listed here and
can be removed with --purge-backups once inspected.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusPurgeBackups, "purge-backups", false, "Delete archived corrupted payloads")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printer.Printf("Profile:  %s\n", a.Config.Profile)
	printer.Printf("Backend:  %s\n", a.Config.Storage.Backend)
	printer.Printf("Catalog:  %d poses, %d sessions, %d programs\n\n",
		len(a.Catalog.Poses), len(a.Catalog.Sessions), len(a.Catalog.Programs))

	hydrate(ctx, a)
	errs := a.Errs()
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		printer.Success("All stores loaded cleanly\n")
	}
	for _, k := range keys {
		printer.Warning("%s: %v\n", k, errs[k])
	}

	backups, err := archivedBackups(ctx, a.Backend)
	if err != nil {
		return printer.Error("failed to list backups", err.Error(), nil)
	}
	if len(backups) == 0 {
		return nil
	}

	printer.Printf("\nArchived corrupted payloads:\n")
	for _, key := range backups {
		original, _ := kv.ParseCorruptedKey(key)
		printer.Printf("  %s (from %s)\n", key, original)
	}

	if !statusPurgeBackups {
		printer.Hint("\n  Remove them with: yoga status --purge-backups\n")
		return nil
	}
	for _, key := range backups {
		if err := a.Backend.Remove(ctx, key); err != nil {
			return printer.Error("failed to remove backup", fmt.Sprintf("%s: %v", key, err), nil)
		}
	}
	printer.Success("Removed %d archived payload(s)\n", len(backups))
	return nil
}

// hydrate forces the first read of every store so corruption is detected.
func hydrate(ctx context.Context, a *app.App) {
	a.Sessions.List(ctx)
	a.SessionOverrides.Sessions(ctx)
	a.ProgramOverrides.Programs(ctx)
	a.History.Summary(ctx)
	a.Preferences.Get(ctx)
}

func archivedBackups(ctx context.Context, backend kv.Backend) ([]string, error) {
	keys, err := backend.Keys(ctx, "")
	if err != nil {
		return nil, err
	}
	var backups []string
	for _, k := range keys {
		if _, ok := kv.ParseCorruptedKey(k); ok {
			backups = append(backups, k)
		}
	}
	sort.Strings(backups)
	return backups, nil
}
