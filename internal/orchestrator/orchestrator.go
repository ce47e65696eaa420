// Package orchestrator sequences sheet scans for villages and persists
// progress after every sheet.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/clock/system"
	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	"github.com/JakeFAU/cadastral-crawler/internal/metrics"
	"github.com/JakeFAU/cadastral-crawler/internal/scanner"
	"github.com/JakeFAU/cadastral-crawler/internal/villagedata"
)

// SheetScanner scans one sheet.
type SheetScanner interface {
	Scan(ctx context.Context, village, sheet string) (scanner.SheetResult, error)
}

// Config controls pacing and notifications.
type Config struct {
	SheetDelay time.Duration
	// Topic names the destination of village-completed events.
	Topic string
}

// Dependencies groups the collaborators of an Orchestrator. Index, Publisher
// and IDs are optional.
type Dependencies struct {
	Discoverer crawler.SheetDiscoverer
	Scanner    SheetScanner
	States     crawler.StateStore
	Sink       crawler.VillageSink
	Index      crawler.PlotIndex
	Publisher  crawler.Publisher
	Clock      crawler.Clock
	IDs        crawler.IDGenerator
}

// VillageCompleted is published after a village finishes successfully.
type VillageCompleted struct {
	RunID       string    `json:"run_id,omitempty"`
	Village     string    `json:"village"`
	Sheets      []string  `json:"sheets"`
	TotalPlots  int       `json:"total_plots"`
	CompletedAt time.Time `json:"completed_at"`
}

// VillageOutcome summarizes one village of a Run.
type VillageOutcome struct {
	Village string
	Plots   int
	Err     error
}

// RunSummary is returned by Run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Villages   []VillageOutcome
}

// Failed counts villages that ended with an error.
func (s RunSummary) Failed() int {
	n := 0
	for _, v := range s.Villages {
		if v.Err != nil {
			n++
		}
	}
	return n
}

// Orchestrator owns the CrawlState and the per-village accumulator.
type Orchestrator struct {
	deps   Dependencies
	cfg    Config
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error

	mu     sync.RWMutex
	state  crawler.CrawlState
	loaded bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSleep overrides the inter-sheet delay function (tests).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.sleep = fn
	}
}

// New wires an Orchestrator.
func New(deps Dependencies, cfg Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if deps.Discoverer == nil || deps.Scanner == nil || deps.States == nil || deps.Sink == nil {
		return nil, fmt.Errorf("orchestrator: discoverer, scanner, state store and sink are required")
	}
	if cfg.SheetDelay < 0 {
		return nil, fmt.Errorf("orchestrator: sheet delay must be >= 0")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("orchestrator"),
		sleep:  system.New().Sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// LoadState reads the durable state once; later calls are no-ops.
func (o *Orchestrator) LoadState(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.loaded {
		return nil
	}
	state, err := o.deps.States.Load(ctx)
	if err != nil {
		return fmt.Errorf("load crawl state: %w", err)
	}
	o.state = state
	o.loaded = true
	return nil
}

// State returns a copy of the in-memory crawl state.
func (o *Orchestrator) State() crawler.CrawlState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Clone()
}

// Run scrapes villages in order. A failing village is recorded and the loop
// moves on; cancellation stops the loop after the current village.
func (o *Orchestrator) Run(ctx context.Context, villages []string) (RunSummary, error) {
	summary := RunSummary{
		RunID:     o.newRunID(),
		StartedAt: o.deps.Clock.Now(),
	}
	log := o.logger.With(zap.String("run_id", summary.RunID))
	log.Info("crawl run starting", zap.Strings("villages", villages))

	for _, village := range villages {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = o.deps.Clock.Now()
			return summary, fmt.Errorf("crawl run interrupted: %w", err)
		}
		plots, err := o.scrapeVillage(ctx, summary.RunID, village)
		summary.Villages = append(summary.Villages, VillageOutcome{Village: village, Plots: len(plots), Err: err})
		if err != nil {
			log.Error("failed to scrape village", zap.String("village", village), zap.Error(err))
			continue
		}
		log.Info("successfully scraped village", zap.String("village", village), zap.Int("total_plots", len(plots)))
	}

	summary.FinishedAt = o.deps.Clock.Now()
	log.Info("crawl run finished",
		zap.Int("villages", len(summary.Villages)),
		zap.Int("failed", summary.Failed()),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("crawl run interrupted: %w", err)
	}
	return summary, nil
}

// ScrapeVillage discovers the sheets of village, scans every sheet not yet
// processed and returns all plots known for the village.
func (o *Orchestrator) ScrapeVillage(ctx context.Context, village string) (crawler.Plots, error) {
	return o.scrapeVillage(ctx, o.newRunID(), village)
}

func (o *Orchestrator) scrapeVillage(ctx context.Context, runID, village string) (crawler.Plots, error) {
	log := o.logger.With(zap.String("village", village))
	if runID != "" {
		log = log.With(zap.String("run_id", runID))
	}
	if err := o.LoadState(ctx); err != nil {
		metrics.ObserveVillage("failed")
		return nil, err
	}

	sheets, err := o.deps.Discoverer.Sheets(ctx, village)
	if err != nil {
		if !errors.Is(err, crawler.ErrDiscovery) {
			err = fmt.Errorf("%w: %w", crawler.ErrDiscovery, err)
		}
		log.Error("sheet discovery failed", zap.Error(err))
		metrics.ObserveVillage("failed")
		return nil, fmt.Errorf("scrape village %s: %w", village, err)
	}
	log.Info("found sheets for village", zap.Strings("sheets", sheets))

	accumulator := o.seedAccumulator(ctx, village, log)
	for _, sheet := range sheets {
		if err := o.processSheet(ctx, village, sheet, accumulator, log); err != nil {
			o.saveErrorSnapshot(ctx, village, accumulator, log)
			metrics.ObserveVillage("failed")
			return nil, fmt.Errorf("scrape village %s: %w", village, err)
		}
	}

	o.publishCompleted(ctx, runID, village, sheets, accumulator, log)
	metrics.ObserveVillage("completed")
	return accumulator, nil
}

// seedAccumulator starts from the previous snapshot so skipped sheets keep
// their plots when the snapshot is rewritten.
func (o *Orchestrator) seedAccumulator(ctx context.Context, village string, log *zap.Logger) crawler.Plots {
	accumulator := crawler.Plots{}
	doc, err := o.deps.Sink.LoadVillage(ctx, village)
	switch {
	case err == nil:
		accumulator.Merge(doc.Plots)
		log.Debug("resuming from previous snapshot", zap.Int("plots", len(doc.Plots)))
	case errors.Is(err, crawler.ErrNotFound):
	default:
		log.Warn("could not read previous snapshot", zap.Error(err))
	}
	return accumulator
}

func (o *Orchestrator) processSheet(
	ctx context.Context,
	village, sheet string,
	accumulator crawler.Plots,
	log *zap.Logger,
) error {
	log = log.With(zap.String("sheet", sheet))
	o.mu.RLock()
	processed := o.state.IsProcessed(village, sheet)
	o.mu.RUnlock()
	if processed {
		log.Info("sheet already processed, skipping")
		metrics.ObserveSheet("skipped")
		return nil
	}

	log.Info("processing sheet")
	result, err := o.deps.Scanner.Scan(ctx, village, sheet)
	accumulator.Merge(result.Plots)
	if err != nil {
		metrics.ObserveSheet("failed")
		return err
	}
	metrics.ObserveSheet("scanned")

	o.mu.Lock()
	o.state.MarkProcessed(village, sheet, result.MaxPlotFound)
	snapshot := o.state.Clone()
	o.mu.Unlock()

	if err := o.deps.States.Save(ctx, snapshot); err != nil {
		metrics.ObservePersistenceError("state")
		log.Error("error saving state", zap.Error(err))
	}
	if err := o.deps.Sink.SaveVillage(ctx, village, accumulator); err != nil {
		log.Error("error saving village data", zap.Error(err))
	}
	o.indexPlots(ctx, village, result.Plots, log)

	log.Info("sheet complete",
		zap.Int("max_plot", result.MaxPlotFound),
		zap.Int("plots", len(result.Plots)),
		zap.Int("probes", result.Probes),
		zap.Int("errors", result.Errors),
	)
	return o.sleep(ctx, o.cfg.SheetDelay)
}

func (o *Orchestrator) indexPlots(ctx context.Context, village string, plots crawler.Plots, log *zap.Logger) {
	if o.deps.Index == nil || len(plots) == 0 {
		return
	}
	records := make([]crawler.PlotRecord, 0, len(plots))
	for _, p := range plots {
		records = append(records, p)
	}
	if err := o.deps.Index.UpsertPlots(ctx, village, records); err != nil {
		metrics.ObservePersistenceError("index")
		log.Error("error indexing plots", zap.Error(err))
	}
}

func (o *Orchestrator) saveErrorSnapshot(ctx context.Context, village string, accumulator crawler.Plots, log *zap.Logger) {
	// The run context may already be cancelled; the snapshot still has to land.
	saveCtx := context.WithoutCancel(ctx)
	if err := o.deps.Sink.SaveVillage(saveCtx, villagedata.ErrorKey(village), accumulator); err != nil {
		log.Error("error saving partial village data", zap.Error(err))
	}
}

func (o *Orchestrator) publishCompleted(
	ctx context.Context,
	runID, village string,
	sheets []string,
	accumulator crawler.Plots,
	log *zap.Logger,
) {
	if o.deps.Publisher == nil {
		return
	}
	evt := VillageCompleted{
		RunID:       runID,
		Village:     village,
		Sheets:      append([]string{}, sheets...),
		TotalPlots:  len(accumulator),
		CompletedAt: o.deps.Clock.Now(),
	}
	id, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, evt)
	if err != nil {
		log.Warn("failed to publish village completion", zap.Error(err))
		return
	}
	log.Debug("published village completion", zap.String("message_id", id))
}

func (o *Orchestrator) newRunID() string {
	if o.deps.IDs == nil {
		return ""
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		o.logger.Warn("failed to generate run id", zap.Error(err))
		return ""
	}
	return id
}
