package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
)

type hierarchyOptions struct {
	district string
	tehsil   string
	ri       string
}

// newHierarchyCmd creates the 'hierarchy' subcommand, which prints the options
// of the deepest level selected by the flags.
func newHierarchyCmd() *cobra.Command {
	opts := &hierarchyOptions{}
	cmd := &cobra.Command{
		Use:   "hierarchy",
		Short: "Lists districts, tehsils, RI circles or villages",
		Long: `Without flags, lists districts. --district lists its tehsils, adding
--tehsil lists RI circles, and adding --ri lists villages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			options, err := listLevel(cmd.Context(), newClient(app.Config, app.Logger), opts)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(options); err != nil {
				return fmt.Errorf("write options: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.district, "district", "", "district code")
	cmd.Flags().StringVar(&opts.tehsil, "tehsil", "", "tehsil code (requires --district)")
	cmd.Flags().StringVar(&opts.ri, "ri", "", "RI circle code (requires --district and --tehsil)")
	return cmd
}

func listLevel(ctx context.Context, client crawler.HierarchyClient, opts *hierarchyOptions) ([]crawler.Option, error) {
	switch {
	case opts.district == "":
		if opts.tehsil != "" || opts.ri != "" {
			return nil, fmt.Errorf("--tehsil and --ri require --district")
		}
		return client.Districts(ctx)
	case opts.tehsil == "":
		if opts.ri != "" {
			return nil, fmt.Errorf("--ri requires --tehsil")
		}
		return client.Tehsils(ctx, opts.district)
	case opts.ri == "":
		return client.RICircles(ctx, opts.district, opts.tehsil)
	default:
		return client.Villages(ctx, opts.district, opts.tehsil, opts.ri)
	}
}
