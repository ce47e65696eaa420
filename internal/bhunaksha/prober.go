package bhunaksha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	"github.com/JakeFAU/cadastral-crawler/internal/metrics"
)

// lookupResponse mirrors the OP=5 payload. Coordinates have been observed both
// as JSON numbers and as numeric strings.
type lookupResponse struct {
	HasData string     `json:"has_data"`
	XMax    *flexFloat `json:"xmax"`
	XMin    *flexFloat `json:"xmin"`
	YMin    *flexFloat `json:"ymin"`
	YMax    *flexFloat `json:"ymax"`
	CenterX *flexFloat `json:"center_x"`
	CenterY *flexFloat `json:"center_y"`
	GISCode *string    `json:"gisCode"`
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("coordinate %s: %w", data, err)
	}
	*f = flexFloat(v)
	return nil
}

// Probe looks up one plot. Failures come back as OutcomeError with Err set.
func (c *Client) Probe(ctx context.Context, village, sheet string, plotNo int) crawler.ProbeResult {
	start := time.Now()
	result := c.probe(ctx, village, sheet, plotNo)
	metrics.ObserveProbe(string(result.Outcome), time.Since(start))

	if result.Err != nil {
		c.logger.Warn("plot lookup failed",
			zap.String("village", village),
			zap.String("sheet", sheet),
			zap.Int("plot", plotNo),
			zap.Error(result.Err),
		)
	}
	if result.Present() {
		metrics.ObservePlotFound()
		c.logger.Info("found plot",
			zap.String("village", village),
			zap.String("sheet", sheet),
			zap.Int("plot", plotNo),
		)
	}
	return result
}

func (c *Client) probe(ctx context.Context, village, sheet string, plotNo int) crawler.ProbeResult {
	query := url.Values{
		"OP":     {opPlotLookup},
		"state":  {c.cfg.Path.State},
		"levels": {c.cfg.Path.Selections(village, sheet)},
		"plotno": {strconv.Itoa(plotNo)},
	}
	body, err := c.get(ctx, c.cfg.APIURL, query)
	if err != nil {
		return errorResult(plotNo, err)
	}

	var payload lookupResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return errorResult(plotNo, fmt.Errorf("%w: decode lookup: %w", crawler.ErrParse, err))
	}
	if payload.HasData != "Y" {
		return crawler.ProbeResult{PlotNo: plotNo, Outcome: crawler.OutcomeAbsent}
	}

	record, err := payload.record(plotNo)
	if err != nil {
		return errorResult(plotNo, err)
	}
	return crawler.ProbeResult{PlotNo: plotNo, Outcome: crawler.OutcomePresent, Plot: &record}
}

func (r lookupResponse) record(plotNo int) (crawler.PlotRecord, error) {
	fields := map[string]*flexFloat{
		"xmax":     r.XMax,
		"xmin":     r.XMin,
		"ymin":     r.YMin,
		"ymax":     r.YMax,
		"center_x": r.CenterX,
		"center_y": r.CenterY,
	}
	for name, v := range fields {
		if v == nil {
			return crawler.PlotRecord{}, fmt.Errorf("%w: missing %s", crawler.ErrParse, name)
		}
	}
	if r.GISCode == nil {
		return crawler.PlotRecord{}, fmt.Errorf("%w: missing gisCode", crawler.ErrParse)
	}
	return crawler.PlotRecord{
		PlotNo:  plotNo,
		XMax:    float64(*r.XMax),
		XMin:    float64(*r.XMin),
		YMin:    float64(*r.YMin),
		YMax:    float64(*r.YMax),
		CenterX: float64(*r.CenterX),
		CenterY: float64(*r.CenterY),
		GISCode: *r.GISCode,
	}, nil
}

func errorResult(plotNo int, err error) crawler.ProbeResult {
	return crawler.ProbeResult{PlotNo: plotNo, Outcome: crawler.OutcomeError, Err: err}
}
