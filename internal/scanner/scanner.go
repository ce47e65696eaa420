// Package scanner walks the open-ended plot-number space of one sheet in
// fixed-size batches until a long enough run of empty lookups is observed.
package scanner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/clock/system"
	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	"github.com/JakeFAU/cadastral-crawler/internal/dispatcher"
)

// Config governs batch sizing and the exhaustion heuristic.
type Config struct {
	BatchSize           int
	MaxWorkers          int
	MaxConsecutiveEmpty int
	// MaxPlotNumber stops a scan once the cursor passes it; zero means unlimited.
	MaxPlotNumber int
	BatchDelay    time.Duration
}

// SheetResult is what one scan produced. On cancellation it holds the
// partial progress made before the scan stopped.
type SheetResult struct {
	Village      string
	Sheet        string
	Plots        crawler.Plots
	MaxPlotFound int
	Probes       int
	Errors       int
	Batches      int
}

// BatchProgress is reported after every drained batch.
type BatchProgress struct {
	Village          string
	Sheet            string
	From             int
	To               int
	ConsecutiveEmpty int
	MaxPlotFound     int
	PlotsFound       int
	Errors           int
}

// BatchObserver receives progress after each batch.
type BatchObserver func(BatchProgress)

// Option customizes a Scanner.
type Option func(*Scanner)

// WithObserver registers a callback invoked on the coordinating goroutine after each batch.
func WithObserver(obs BatchObserver) Option {
	return func(s *Scanner) {
		s.observer = obs
	}
}

// WithVisitedSet shares a visited set across scanners.
func WithVisitedSet(v *VisitedSet) Option {
	return func(s *Scanner) {
		s.visited = v
	}
}

// WithSleep overrides the delay function (tests).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(s *Scanner) {
		s.sleep = fn
	}
}

// Scanner drives a Prober over one sheet at a time.
type Scanner struct {
	prober   crawler.Prober
	cfg      Config
	pool     *dispatcher.Pool[int, crawler.ProbeResult]
	visited  *VisitedSet
	observer BatchObserver
	sleep    func(context.Context, time.Duration) error
	logger   *zap.Logger
}

// New wires a Scanner.
func New(prober crawler.Prober, cfg Config, logger *zap.Logger, opts ...Option) (*Scanner, error) {
	if prober == nil {
		return nil, fmt.Errorf("scanner: prober is required")
	}
	if cfg.BatchSize <= 0 || cfg.MaxWorkers <= 0 || cfg.MaxConsecutiveEmpty <= 0 {
		return nil, fmt.Errorf("scanner: batch size, workers and empty-run limit must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		prober:  prober,
		cfg:     cfg,
		pool:    dispatcher.New[int, crawler.ProbeResult](cfg.MaxWorkers),
		visited: NewVisitedSet(),
		sleep:   system.New().Sleep,
		logger:  logger.Named("scanner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Visited exposes the scanner's visited set.
func (s *Scanner) Visited() *VisitedSet {
	return s.visited
}

// Scan probes plots 1, 2, ... of (village, sheet) in batches. After each fully
// drained batch it stops once MaxConsecutiveEmpty non-present outcomes have
// been seen in a row. Results are consumed in completion order, so the counter
// trajectory inside a batch depends on scheduling while the batch-level stop
// decision does not for runs longer than one batch.
func (s *Scanner) Scan(ctx context.Context, village, sheet string) (SheetResult, error) {
	result := SheetResult{
		Village: village,
		Sheet:   sheet,
		Plots:   crawler.Plots{},
	}
	cursor := 1
	consecutiveEmpty := 0
	log := s.logger.With(zap.String("village", village), zap.String("sheet", sheet))

	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("scan village %s sheet %s: %w", village, sheet, err)
		}

		last := cursor + s.cfg.BatchSize - 1
		if s.cfg.MaxPlotNumber > 0 && last > s.cfg.MaxPlotNumber {
			last = s.cfg.MaxPlotNumber
		}
		log.Info("processing plots", zap.Int("from", cursor), zap.Int("to", last))

		for res := range s.pool.Run(ctx, plotRange(cursor, last), s.probeFn(village, sheet)) {
			result.Probes++
			switch {
			case res.Present():
				consecutiveEmpty = 0
				result.MaxPlotFound = max(result.MaxPlotFound, res.PlotNo)
				result.Plots.Put(*res.Plot)
				s.visited.Add(village, res.PlotNo)
			case res.Outcome == crawler.OutcomeError:
				result.Errors++
				consecutiveEmpty++
			default:
				consecutiveEmpty++
			}
		}
		result.Batches++

		if s.observer != nil {
			s.observer(BatchProgress{
				Village:          village,
				Sheet:            sheet,
				From:             cursor,
				To:               last,
				ConsecutiveEmpty: consecutiveEmpty,
				MaxPlotFound:     result.MaxPlotFound,
				PlotsFound:       len(result.Plots),
				Errors:           result.Errors,
			})
		}

		if err := ctx.Err(); err != nil {
			log.Warn("scan interrupted", zap.Int("batches", result.Batches), zap.Int("max_plot", result.MaxPlotFound))
			return result, fmt.Errorf("scan village %s sheet %s: %w", village, sheet, err)
		}
		if consecutiveEmpty >= s.cfg.MaxConsecutiveEmpty {
			log.Info("reached consecutive empty limit",
				zap.Int("limit", s.cfg.MaxConsecutiveEmpty),
				zap.Int("max_plot", result.MaxPlotFound),
				zap.Int("probes", result.Probes),
				zap.Int("errors", result.Errors),
			)
			return result, nil
		}
		if s.cfg.MaxPlotNumber > 0 && last >= s.cfg.MaxPlotNumber {
			log.Warn("plot number cap reached", zap.Int("cap", s.cfg.MaxPlotNumber))
			return result, nil
		}

		cursor += s.cfg.BatchSize
		if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
			return result, fmt.Errorf("scan village %s sheet %s: %w", village, sheet, err)
		}
	}
}

func (s *Scanner) probeFn(village, sheet string) func(context.Context, int) crawler.ProbeResult {
	return func(ctx context.Context, plotNo int) crawler.ProbeResult {
		if s.visited.Contains(village, plotNo) {
			return crawler.ProbeResult{PlotNo: plotNo, Outcome: crawler.OutcomeAbsent}
		}
		return s.prober.Probe(ctx, village, sheet, plotNo)
	}
}

func plotRange(first, last int) []int {
	plots := make([]int, 0, last-first+1)
	for n := first; n <= last; n++ {
		plots = append(plots, n)
	}
	return plots
}
