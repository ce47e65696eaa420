package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cadastral-crawler/internal/api"
	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	"github.com/JakeFAU/cadastral-crawler/internal/store"
)

// storedState reads the state file on every request.
type storedState struct {
	states crawler.StateStore
}

func (s storedState) State() crawler.CrawlState {
	state, err := s.states.Load(context.Background())
	if err != nil {
		return crawler.NewCrawlState()
	}
	return state
}

// newServeCmd creates the 'serve' subcommand, which exposes the status API
// over the files of a previous or concurrent crawl. Live progress is only
// available from 'crawl --status-addr'.
func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the read-only status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := resolveApp(ctx)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.Config.Server.Addr
			}
			if addr == "" {
				return fmt.Errorf("no listen address: set --addr or server.addr")
			}

			states, err := store.NewFileStateStore(app.Config.Storage.StateFile, app.Logger)
			if err != nil {
				return fmt.Errorf("init state store: %w", err)
			}
			sink, closeSink, err := newVillageSink(ctx, app)
			if err != nil {
				return err
			}
			if closeSink != nil {
				defer closeSink()
			}

			server := api.NewServer(storedState{states: states}, sink, nil,
				api.Options{APIKey: app.Config.Server.APIKey}, app.Logger)
			shutdown := startStatusServer(addr, server.Handler(), app.Logger)
			<-ctx.Done()
			shutdown()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}
