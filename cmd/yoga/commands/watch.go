package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dhkts1/yoga-app-sub002/internal/printer"
	"github.com/dhkts1/yoga-app-sub002/internal/watch"
	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
	"github.com/spf13/cobra"
)

var (
	watchOutputFormat string
	watchKeys         []string
	watchTimeout      time.Duration
	watchOnce         bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream changes made by other contexts",
	Long: `Stream changes to stored state made by other running contexts, such as
another terminal or another browser tab on the same profile.

Changes this process makes itself are never shown. Corrupted payloads that
another context archived are reported against their original key.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Stream everything until interrupted
  yoga watch

  # Wait for the next preference change, for up to a minute
  yoga watch --key yoga-preferences --once --timeout 1m

  # Export events as JSON
  yoga watch --output=json > events.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().StringSliceVarP(&watchKeys, "key", "k", nil, "Only show changes to these keys (repeatable)")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", 0, "Stop after this long (0 = until interrupted)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Exit after the first matching change")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseOutputFormat(watchOutputFormat)
	if err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}
	p, err := watch.NewPrinter(format, printer.Out)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if watchOnce {
		change, err := watch.WaitForChange(ctx, a.Backend, watchKeys, watchTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return printer.Error("no change received", err.Error(), nil)
		}
		return p.Print(change)
	}

	if watchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, watchTimeout)
		defer cancel()
	}

	// The App applies each change to its stores before it is printed
	filter := watch.NewFilter(watchKeys)
	var printErr error
	done, err := a.Watch(ctx, func(change kv.Change) {
		if printErr == nil && filter(change) {
			printErr = p.Print(change)
		}
	})
	if err != nil {
		return printer.Error("failed to watch storage", err.Error(), nil)
	}
	<-done
	return printErr
}
