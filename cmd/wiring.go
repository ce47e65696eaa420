package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/bhunaksha"
	"github.com/JakeFAU/cadastral-crawler/internal/clock/system"
	"github.com/JakeFAU/cadastral-crawler/internal/config"
	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/cadastral-crawler/internal/fetcher/colly"
	pubsubpublisher "github.com/JakeFAU/cadastral-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/cadastral-crawler/internal/storage/gcs"
	"github.com/JakeFAU/cadastral-crawler/internal/storage/local"
	"github.com/JakeFAU/cadastral-crawler/internal/storage/postgres"
	"github.com/JakeFAU/cadastral-crawler/internal/villagedata"
)

// closers runs cleanup functions in reverse order.
type closers []func()

func (c *closers) add(fn func()) {
	if fn != nil {
		*c = append(*c, fn)
	}
}

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func newClient(cfg config.Config, logger *zap.Logger) *bhunaksha.Client {
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Remote.UserAgent,
		Timeout:   cfg.Crawl.ProbeTimeout,
	})
	return bhunaksha.New(fetcher, bhunaksha.Config{
		BaseURL: cfg.Remote.BaseURL,
		APIURL:  cfg.Remote.APIURL,
		Path:    cfg.Remote.Path,
		Timeout: cfg.Crawl.ProbeTimeout,
	}, logger)
}

// newBlobStore returns a GCS store under prefix when a bucket is configured,
// otherwise a filesystem store rooted at localDir.
func newBlobStore(ctx context.Context, cfg config.Config, localDir, prefix string) (crawler.BlobStore, func(), error) {
	if cfg.Storage.GCSBucket == "" {
		store, err := local.New(local.Config{BaseDir: localDir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local store: %w", err)
		}
		return store, nil, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init gcs client: %w", err)
	}
	store, err := gcs.New(client, gcs.Config{
		Bucket: cfg.Storage.GCSBucket,
		Prefix: path.Join(cfg.Storage.Prefix, prefix),
	})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("init gcs store: %w", err)
	}
	return store, func() { _ = client.Close() }, nil
}

func newVillageSink(ctx context.Context, app *App) (*villagedata.Sink, func(), error) {
	blobs, closeFn, err := newBlobStore(ctx, app.Config, app.Config.Storage.OutputDir, "village_data")
	if err != nil {
		return nil, nil, err
	}
	return villagedata.New(blobs, system.New(), app.Config.Remote.Source, app.Logger), closeFn, nil
}

// newPlotIndex returns nil when no DSN is configured.
func newPlotIndex(ctx context.Context, cfg config.Config) (crawler.PlotIndex, func(), error) {
	if cfg.DB.DSN == "" {
		return nil, nil, nil
	}
	store, err := postgres.NewPlotStore(ctx, postgres.PlotStoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init plot index: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ensure plot index schema: %w", err)
	}
	return store, store.Close, nil
}

// newPublisher returns nil unless both project and topic are configured.
func newPublisher(ctx context.Context, cfg config.Config) (crawler.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil, nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicName)
	return pubsubpublisher.New(topic), func() {
		topic.Stop()
		_ = client.Close()
	}, nil
}

// resolveVillages returns the explicit village list or, when empty, every
// village under the configured RI circle.
func resolveVillages(
	ctx context.Context,
	explicit []string,
	hierarchy crawler.HierarchyClient,
	p crawler.Path,
) ([]string, error) {
	villages := make([]string, 0, len(explicit))
	for _, v := range explicit {
		if v = strings.TrimSpace(v); v != "" {
			villages = append(villages, v)
		}
	}
	if len(villages) > 0 {
		return villages, nil
	}
	options, err := hierarchy.Villages(ctx, p.District, p.Tehsil, p.RI)
	if err != nil {
		return nil, fmt.Errorf("discover villages: %w", err)
	}
	for _, o := range options {
		// Placeholder entries such as "Select Village" carry no numeric code.
		if v := strings.TrimSpace(o.Value); v != "" && strings.Trim(v, "0123456789") == "" {
			villages = append(villages, v)
		}
	}
	return villages, nil
}

// startStatusServer serves handler on addr until the returned function is called.
func startStatusServer(addr string, handler http.Handler, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown error", zap.Error(err))
		}
	}
}
