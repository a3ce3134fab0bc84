package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dhkts1/yoga-app-sub002/internal/app"
	"github.com/dhkts1/yoga-app-sub002/internal/cell"
	"github.com/dhkts1/yoga-app-sub002/internal/config"
	"github.com/dhkts1/yoga-app-sub002/internal/printer"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string

	// getenv is replaced in tests so the caller's YOGA_* variables do not leak in.
	getenv = os.Getenv
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "yoga",
	Short: "Yoga practice data: sessions, overrides, history and preferences",
	Long: `yoga manages the persisted state of a yoga practice app: custom sessions,
per-pose duration overrides, practice history and preferences.

State lives in Redis or in a local directory, namespaced by profile, and
every change is broadcast so other running contexts stay in sync.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Enable strict flag parsing - unknown flags will cause an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Errors are printed by the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to yoga.yml (defaults apply when missing)")
}

// openApp loads the configuration and opens every store.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			fmt.Sprintf("Could not load %s: %v", configPath, err),
			[]string{"Fix the file, or remove it to use the defaults."},
		)
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check %s, %s and %s.", config.EnvRedisURL, config.EnvProfile, config.EnvDataDir)},
		)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		details := map[string]string{
			"Profile": cfg.Profile,
			"Backend": cfg.Storage.Backend,
		}
		if cfg.Storage.Backend == config.BackendRedis {
			details["Redis"] = cfg.Storage.RedisURL
		} else {
			details["Directory"] = cfg.Storage.Dir
		}
		return nil, printer.ErrorWithContext(
			"storage unavailable",
			err.Error(),
			details,
			[]string{
				"Start Redis, or switch to the file backend:\n  storage:\n    backend: file",
				fmt.Sprintf("Point %s at a reachable server.", config.EnvRedisURL),
			},
		)
	}
	return a, nil
}

// saveError reports a failed write. The in-memory value is already updated
// at this point, so the message says the change may not survive.
func saveError(what string, err error) error {
	switch {
	case kv.IsQuotaExceeded(err):
		return printer.Error(
			fmt.Sprintf("failed to save %s", what),
			"The storage quota is exhausted; the change was not persisted.",
			[]string{"Remove old practice history or archived backups:\n  yoga status --purge-backups"},
		)
	case errors.Is(err, cell.ErrPersistenceFailure):
		return printer.Error(
			fmt.Sprintf("failed to save %s", what),
			fmt.Sprintf("The change was not persisted: %v", err),
			nil,
		)
	}
	return printer.Error(fmt.Sprintf("failed to save %s", what), err.Error(), nil)
}
