package commands

import (
	"fmt"
	"strings"

	"github.com/dhkts1/yoga-app-sub002/internal/listing"
	"github.com/dhkts1/yoga-app-sub002/internal/practice"
	"github.com/dhkts1/yoga-app-sub002/internal/printer"
	"github.com/spf13/cobra"
)

var prefsOutputFormat string

var prefsCmd = &cobra.Command{
	Use:     "prefs",
	Aliases: []string{"preferences"},
	Short:   "Show and change preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsShow,
}

var prefsSetCmd = &cobra.Command{
	Use:   "set KEY=VALUE...",
	Short: "Change one or more preferences",
	Long: `Change preferences. All changes are validated together and saved in a
single write.

Keys:
  voiceEnabled      true or false
  voiceRate         0.5 to 2.0
  theme             light, dark or system
  countdownSeconds  0 to 10

Example:
  yoga prefs set theme=dark voiceRate=1.25`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrefsSet,
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default preferences",
	Args:  cobra.NoArgs,
	RunE:  runPrefsReset,
}

func init() {
	prefsShowCmd.Flags().StringVarP(&prefsOutputFormat, "output", "o", "default", "Output format (default or json)")

	prefsCmd.AddCommand(prefsShowCmd, prefsSetCmd, prefsResetCmd)
	rootCmd.AddCommand(prefsCmd)
}

func runPrefsShow(cmd *cobra.Command, args []string) error {
	if prefsOutputFormat != "default" && prefsOutputFormat != "json" {
		return printer.Error("invalid output format",
			fmt.Sprintf("Unknown format: %s", prefsOutputFormat),
			[]string{"Valid formats: default, json"})
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	prefs := a.Preferences.Get(ctx)
	if prefsOutputFormat == "json" {
		return listing.FormatSingleJSON(printer.Out, prefs)
	}
	printPreferences(prefs)
	return nil
}

func runPrefsSet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	prefs := a.Preferences.Get(ctx)
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return printer.Error("invalid argument",
				fmt.Sprintf("'%s' is not KEY=VALUE.", arg),
				[]string{"Example:\n  yoga prefs set theme=dark"})
		}
		if prefs, err = prefs.With(key, value); err != nil {
			return printer.Error("invalid preference", err.Error(), nil)
		}
	}

	if err := a.Preferences.Set(ctx, prefs); err != nil {
		return saveError("preferences", err)
	}
	printer.Success("Preferences saved\n")
	printPreferences(prefs)
	return nil
}

func runPrefsReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Preferences.Reset(ctx); err != nil {
		return saveError("preferences", err)
	}
	printer.Success("Preferences restored to defaults\n")
	printPreferences(a.Preferences.Get(ctx))
	return nil
}

func printPreferences(p practice.Preferences) {
	printer.Printf("voiceEnabled      %t\n", p.VoiceEnabled)
	printer.Printf("voiceRate         %g\n", p.VoiceRate)
	printer.Printf("theme             %s\n", p.Theme)
	printer.Printf("countdownSeconds  %d\n", p.CountdownSeconds)
}
