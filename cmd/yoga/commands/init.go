package commands

import (
	"errors"
	"fmt"

	"github.com/dhkts1/yoga-app-sub002/internal/printer"
	"github.com/dhkts1/yoga-app-sub002/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default yoga.yml",
	Long: `Write a commented default configuration to the --config path.

The file selects the storage backend, the profile and the log level. Every
setting has a default, so the file is optional; init makes them visible.

Use --force to overwrite an existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing configuration file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := scaffold.Initialize(configPath, forceInit); err != nil {
		if errors.Is(err, scaffold.ErrAlreadyInitialized) {
			return printer.Error(
				"already initialized",
				fmt.Sprintf("Found existing %s.", configPath),
				[]string{"Use 'yoga init --force' to overwrite it, or pass --config to write elsewhere."},
			)
		}
		return printer.Error("initialization failed", err.Error(), nil)
	}

	printer.Success("Initialized %s\n", configPath)
	scaffold.PrintSuccess(printer.Out, configPath)
	return nil
}
