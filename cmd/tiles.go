package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/cadastral-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/cadastral-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/cadastral-crawler/internal/tiles"
)

// newTilesCmd creates the 'tiles' subcommand, which downloads one WMS image
// per GIS code of previously crawled villages.
func newTilesCmd() *cobra.Command {
	var villages []string
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "Downloads map tiles for crawled villages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTiles(cmd, villages)
		},
	}
	cmd.Flags().StringSliceVar(&villages, "villages", nil, "village numbers (default: discover)")
	return cmd
}

func runTiles(cmd *cobra.Command, explicit []string) error {
	ctx := cmd.Context()
	app, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := app.Config
	logger := app.Logger

	var cleanup closers
	defer cleanup.run()

	villages, err := resolveVillages(ctx, explicit, newClient(cfg, logger), cfg.Remote.Path)
	if err != nil {
		return err
	}
	sink, closeSink, err := newVillageSink(ctx, app)
	if err != nil {
		return err
	}
	cleanup.add(closeSink)
	images, closeImages, err := newBlobStore(ctx, cfg, cfg.Storage.ImagesDir, "images")
	if err != nil {
		return err
	}
	cleanup.add(closeImages)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Remote.UserAgent,
		Timeout:   cfg.Tiles.Timeout,
	})
	limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.Tiles.RequestsPerS, DefaultBurst: 1})
	downloader, err := tiles.New(fetcher, limiter, images, sink, tiles.Config{
		WMSURL:     cfg.Remote.WMSURL,
		State:      cfg.Remote.Path.State,
		Width:      cfg.Tiles.Width,
		Height:     cfg.Tiles.Height,
		DPI:        cfg.Tiles.DPI,
		MaxWorkers: cfg.Tiles.MaxWorkers,
		Timeout:    cfg.Tiles.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tile downloader: %w", err)
	}

	summaries := make([]tiles.Summary, 0, len(villages))
	for _, village := range villages {
		summary, err := downloader.DownloadVillage(ctx, village)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warn("tile download interrupted", zap.String("village", village))
				break
			}
			logger.Error("failed to download village tiles", zap.String("village", village), zap.Error(err))
			continue
		}
		summaries = append(summaries, summary)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
