package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cadastral-crawler/internal/store"
)

// newInitCmd creates the 'init' subcommand, which clears previous output and
// writes a fresh state file.
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Resets the state file, output directory and log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			states, err := store.NewFileStateStore(app.Config.Storage.StateFile, app.Logger)
			if err != nil {
				return fmt.Errorf("init state store: %w", err)
			}
			if err := states.Reset(cmd.Context(), app.Config.Storage.OutputDir, app.Config.Logging.File); err != nil {
				return fmt.Errorf("reset crawl files: %w", err)
			}
			return nil
		},
	}
}
