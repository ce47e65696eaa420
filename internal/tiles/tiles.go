// Package tiles downloads WMS map images for the plots of a crawled village.
package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/cadastral-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/cadastral-crawler/internal/metrics"
)

// Fetcher performs a single GET.
type Fetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Limiter paces outgoing requests.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// VillageSource reads crawled village snapshots.
type VillageSource interface {
	LoadVillage(ctx context.Context, key string) (crawler.VillageDocument, error)
}

// Config describes the WMS endpoint and image parameters.
type Config struct {
	WMSURL     string
	State      string
	Width      int
	Height     int
	DPI        int
	MaxWorkers int
	// Timeout bounds each image request.
	Timeout time.Duration
}

// Summary reports the outcome of one village download. Successful includes
// tiles that were already present.
type Summary struct {
	Village    string `json:"village"`
	Sheets     int    `json:"sheets"`
	Successful int    `json:"successful"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
}

// BBox is the bounding box of every plot on a sheet.
type BBox struct {
	XMin, YMin, XMax, YMax float64
}

// String renders the box as the WMS BBOX parameter.
func (b BBox) String() string {
	return formatFloat(b.XMin) + "," + formatFloat(b.YMin) + "," + formatFloat(b.XMax) + "," + formatFloat(b.YMax)
}

func (b BBox) extend(p crawler.PlotRecord) BBox {
	return BBox{
		XMin: min(b.XMin, p.XMin),
		YMin: min(b.YMin, p.YMin),
		XMax: max(b.XMax, p.XMax),
		YMax: max(b.YMax, p.YMax),
	}
}

// SheetBBoxes groups plots by the sheet in their GIS code and returns the
// enclosing box of each group.
func SheetBBoxes(plots crawler.Plots) map[string]BBox {
	boxes := make(map[string]BBox)
	for _, p := range plots {
		sheet := p.SheetNumber()
		box, ok := boxes[sheet]
		if !ok {
			boxes[sheet] = BBox{XMin: p.XMin, YMin: p.YMin, XMax: p.XMax, YMax: p.YMax}
			continue
		}
		boxes[sheet] = box.extend(p)
	}
	return boxes
}

// ObjectPath is where the tile for gisCode of village is stored.
func ObjectPath(village, gisCode string) string {
	return path.Join("village_"+village, gisCode+".png")
}

type job struct {
	gisCode string
	bbox    BBox
}

// Downloader fetches one PNG per distinct GIS code of a village.
type Downloader struct {
	fetcher  Fetcher
	limiter  Limiter
	blobs    crawler.BlobStore
	villages VillageSource
	cfg      Config
	logger   *zap.Logger
}

// New wires a Downloader.
func New(
	fetcher Fetcher,
	limiter Limiter,
	blobs crawler.BlobStore,
	villages VillageSource,
	cfg Config,
	logger *zap.Logger,
) (*Downloader, error) {
	if fetcher == nil || blobs == nil || villages == nil {
		return nil, fmt.Errorf("tiles: fetcher, blob store and village source are required")
	}
	if cfg.WMSURL == "" {
		return nil, fmt.Errorf("tiles: wms url is required")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher:  fetcher,
		limiter:  limiter,
		blobs:    blobs,
		villages: villages,
		cfg:      cfg,
		logger:   logger.Named("tiles"),
	}, nil
}

// DownloadVillage reads the village snapshot and stores a tile per GIS code.
// Individual download failures are counted, not returned; an error means the
// snapshot could not be read or ctx ended.
func (d *Downloader) DownloadVillage(ctx context.Context, village string) (Summary, error) {
	summary := Summary{Village: village}
	doc, err := d.villages.LoadVillage(ctx, village)
	if err != nil {
		return summary, fmt.Errorf("load village %s: %w", village, err)
	}

	boxes := SheetBBoxes(doc.Plots)
	jobs := planJobs(doc.Plots, boxes)
	summary.Sheets = len(boxes)
	summary.Total = len(jobs)
	log := d.logger.With(zap.String("village", village))
	log.Info("calculated sheet bounding boxes", zap.Int("sheets", len(boxes)), zap.Int("tiles", len(jobs)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxWorkers)
	for _, j := range jobs {
		g.Go(func() error {
			status := d.download(gctx, village, j, log)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case statusSkipped:
				summary.Skipped++
				summary.Successful++
			case statusDownloaded:
				summary.Successful++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("village tiles finished",
		zap.Int("successful", summary.Successful),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("total", summary.Total),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("download village %s tiles: %w", village, err)
	}
	return summary, nil
}

const (
	statusDownloaded = "downloaded"
	statusSkipped    = "skipped"
	statusFailed     = "failed"
)

func (d *Downloader) download(ctx context.Context, village string, j job, log *zap.Logger) string {
	log = log.With(zap.String("gis_code", j.gisCode))
	objectPath := ObjectPath(village, j.gisCode)

	exists, err := d.blobs.Exists(ctx, objectPath)
	if err != nil {
		log.Warn("failed to check existing tile", zap.Error(err))
	}
	if exists {
		log.Debug("tile exists, skipping")
		metrics.ObserveTile(statusSkipped, 0)
		return statusSkipped
	}

	body, err := d.fetch(ctx, j)
	if err != nil {
		log.Warn("failed to download tile", zap.Error(err))
		metrics.ObserveTile(statusFailed, 0)
		return statusFailed
	}
	if _, err := d.blobs.PutObject(ctx, objectPath, "image/png", bytes.NewReader(body)); err != nil {
		log.Warn("failed to store tile", zap.Error(err))
		metrics.ObservePersistenceError("tiles")
		metrics.ObserveTile(statusFailed, 0)
		return statusFailed
	}
	log.Info("downloaded tile", zap.String("sheet", crawler.SheetFromGISCode(j.gisCode)), zap.Int("bytes", len(body)))
	metrics.ObserveTile(statusDownloaded, len(body))
	return statusDownloaded
}

func (d *Downloader) fetch(ctx context.Context, j job) ([]byte, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, d.cfg.WMSURL); err != nil {
			return nil, err
		}
	}
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}
	resp, err := d.fetcher.Fetch(ctx, collyfetcher.Request{URL: d.cfg.WMSURL, Query: d.query(j)})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", crawler.ErrTransport, resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return nil, errors.New("empty tile body")
	}
	return resp.Body, nil
}

func (d *Downloader) query(j job) url.Values {
	return url.Values{
		"SERVICE":        {"WMS"},
		"VERSION":        {"1.3.0"},
		"REQUEST":        {"GetMap"},
		"FORMAT":         {"image/png"},
		"TRANSPARENT":    {"true"},
		"LAYERS":         {"VILLAGE_MAP"},
		"transparent":    {"true"},
		"state":          {d.cfg.State},
		"overlay_codes":  {""},
		"CRS":            {"EPSG:3857"},
		"STYLES":         {"VILLAGE_MAP"},
		"FORMAT_OPTIONS": {"dpi:" + strconv.Itoa(d.cfg.DPI)},
		"WIDTH":          {strconv.Itoa(d.cfg.Width)},
		"HEIGHT":         {strconv.Itoa(d.cfg.Height)},
		"gis_code":       {j.gisCode},
		"BBOX":           {j.bbox.String()},
	}
}

// planJobs returns one job per distinct GIS code, ordered by code.
func planJobs(plots crawler.Plots, boxes map[string]BBox) []job {
	seen := make(map[string]struct{}, len(plots))
	jobs := make([]job, 0, len(plots))
	for _, p := range plots {
		if _, ok := seen[p.GISCode]; ok {
			continue
		}
		seen[p.GISCode] = struct{}{}
		jobs = append(jobs, job{gisCode: p.GISCode, bbox: boxes[p.SheetNumber()]})
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].gisCode < jobs[k].gisCode })
	return jobs
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
