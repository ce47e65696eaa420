package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/api"
	"github.com/JakeFAU/cadastral-crawler/internal/clock/system"
	"github.com/JakeFAU/cadastral-crawler/internal/id/uuid"
	"github.com/JakeFAU/cadastral-crawler/internal/orchestrator"
	"github.com/JakeFAU/cadastral-crawler/internal/progress"
	"github.com/JakeFAU/cadastral-crawler/internal/scanner"
	"github.com/JakeFAU/cadastral-crawler/internal/store"
)

type crawlOptions struct {
	villages   []string
	statusAddr string
}

// newCrawlCmd creates the 'crawl' subcommand, which scrapes plot records for
// each village and checkpoints after every sheet.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Scrapes plot records for villages",
		Long: `Discovers the sheets of each village and probes plot numbers in
concurrent batches. Villages default to every village under the configured
district, tehsil and RI circle. Sheets already in the state file are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringSliceVar(&opts.villages, "villages", nil, "village numbers to crawl (default: discover)")
	cmd.Flags().StringVar(&opts.statusAddr, "status-addr", "", "serve the status API on this address while crawling")
	return cmd
}

func runCrawl(ctx context.Context, opts *crawlOptions) error {
	app, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := app.Config
	logger := app.Logger

	var cleanup closers
	defer cleanup.run()

	client := newClient(cfg, logger)
	villages, err := resolveVillages(ctx, opts.villages, client, cfg.Remote.Path)
	if err != nil {
		return err
	}

	tracker := progress.NewTracker()
	scan, err := scanner.New(client, scanner.Config{
		BatchSize:           cfg.Crawl.BatchSize,
		MaxWorkers:          cfg.Crawl.MaxWorkers,
		MaxConsecutiveEmpty: cfg.Crawl.MaxConsecutiveEmpty,
		MaxPlotNumber:       cfg.Crawl.MaxPlotNumber,
		BatchDelay:          cfg.Crawl.BatchDelay,
	}, logger, scanner.WithObserver(tracker.Observe))
	if err != nil {
		return fmt.Errorf("init scanner: %w", err)
	}

	states, err := store.NewFileStateStore(cfg.Storage.StateFile, logger)
	if err != nil {
		return fmt.Errorf("init state store: %w", err)
	}
	sink, closeSink, err := newVillageSink(ctx, app)
	if err != nil {
		return err
	}
	cleanup.add(closeSink)
	index, closeIndex, err := newPlotIndex(ctx, cfg)
	if err != nil {
		return err
	}
	cleanup.add(closeIndex)
	publisher, closePublisher, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	cleanup.add(closePublisher)

	orch, err := orchestrator.New(orchestrator.Dependencies{
		Discoverer: client,
		Scanner:    scan,
		States:     states,
		Sink:       sink,
		Index:      index,
		Publisher:  publisher,
		Clock:      system.New(),
		IDs:        uuid.New(),
	}, orchestrator.Config{
		SheetDelay: cfg.Crawl.SheetDelay,
		Topic:      cfg.PubSub.TopicName,
	}, logger)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	if err := orch.LoadState(ctx); err != nil {
		return err
	}

	addr := opts.statusAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	if addr != "" {
		server := api.NewServer(orch, sink, tracker, api.Options{APIKey: cfg.Server.APIKey}, logger)
		cleanup.add(startStatusServer(addr, server.Handler(), logger))
	}

	summary, err := orch.Run(ctx, villages)
	for _, v := range summary.Villages {
		if v.Err != nil {
			logger.Warn("village failed", zap.String("village", v.Village), zap.Error(v.Err))
			continue
		}
		logger.Info("village done", zap.String("village", v.Village), zap.Int("total_plots", v.Plots))
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("crawl interrupted; progress saved", zap.String("run_id", summary.RunID))
			return nil
		}
		return fmt.Errorf("run crawl: %w", err)
	}
	logger.Info("crawl command finished",
		zap.String("run_id", summary.RunID),
		zap.Int("villages", len(summary.Villages)),
		zap.Int("failed", summary.Failed()),
	)
	return nil
}
