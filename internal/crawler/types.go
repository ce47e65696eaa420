// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"strconv"
	"strings"
)

// ProbeOutcome classifies a single plot lookup.
type ProbeOutcome string

// Probe outcomes reported by a Prober.
const (
	OutcomePresent ProbeOutcome = "present"
	OutcomeAbsent  ProbeOutcome = "absent"
	OutcomeError   ProbeOutcome = "error"
)

// Path identifies the fixed part of the administrative hierarchy above a village.
type Path struct {
	State    string `mapstructure:"state"`
	District string `mapstructure:"district"`
	Tehsil   string `mapstructure:"tehsil"`
	RI       string `mapstructure:"ri"`
}

// Selections renders the comma-joined level path for the given trailing levels.
// The remote service expects a trailing comma after the last level.
func (p Path) Selections(levels ...string) string {
	parts := append([]string{p.District, p.Tehsil, p.RI}, levels...)
	return strings.Join(parts, ",") + ","
}

// PlotRecord is created once a probe reports a plot as present.
type PlotRecord struct {
	PlotNo  int     `json:"plot_no"`
	XMax    float64 `json:"xmax"`
	XMin    float64 `json:"xmin"`
	YMin    float64 `json:"ymin"`
	YMax    float64 `json:"ymax"`
	CenterX float64 `json:"center_x"`
	CenterY float64 `json:"center_y"`
	GISCode string  `json:"gisCode"`
}

// SheetNumber returns the sheet encoded in the trailing two characters of the GIS code.
func (p PlotRecord) SheetNumber() string {
	return SheetFromGISCode(p.GISCode)
}

// SheetFromGISCode extracts the sheet number from a GIS code, "00" when too short.
func SheetFromGISCode(gisCode string) string {
	if len(gisCode) < 2 {
		return "00"
	}
	return gisCode[len(gisCode)-2:]
}

// Plots maps a plot number (decimal string) to its record for one village.
type Plots map[string]PlotRecord

// Put stores rec under its plot number.
func (p Plots) Put(rec PlotRecord) {
	p[strconv.Itoa(rec.PlotNo)] = rec
}

// Merge copies every record from other into p.
func (p Plots) Merge(other Plots) {
	for k, v := range other {
		p[k] = v
	}
}

// Clone returns a shallow copy safe to hand to another goroutine.
func (p Plots) Clone() Plots {
	out := make(Plots, len(p))
	out.Merge(p)
	return out
}

// ProbeResult is the answer for one (village, sheet, plot) lookup.
type ProbeResult struct {
	PlotNo  int
	Outcome ProbeOutcome
	Plot    *PlotRecord
	Err     error
}

// Present reports whether the probe found a plot.
func (r ProbeResult) Present() bool {
	return r.Outcome == OutcomePresent && r.Plot != nil
}

// CrawlState is the durable record of crawl progress.
type CrawlState struct {
	ProcessedSheets map[string]map[string]int `json:"processed_sheets"`
	LastVillage     *string                   `json:"last_village"`
	LastSheet       *string                   `json:"last_sheet"`
}

// NewCrawlState returns the fresh-state shape.
func NewCrawlState() CrawlState {
	return CrawlState{ProcessedSheets: make(map[string]map[string]int)}
}

// IsProcessed reports whether the sheet already has a checkpoint.
func (s CrawlState) IsProcessed(village, sheet string) bool {
	sheets, ok := s.ProcessedSheets[village]
	if !ok {
		return false
	}
	_, ok = sheets[sheet]
	return ok
}

// MarkProcessed records the highest plot found for the sheet and advances the cursors.
func (s *CrawlState) MarkProcessed(village, sheet string, maxPlot int) {
	if s.ProcessedSheets == nil {
		s.ProcessedSheets = make(map[string]map[string]int)
	}
	sheets, ok := s.ProcessedSheets[village]
	if !ok {
		sheets = make(map[string]int)
		s.ProcessedSheets[village] = sheets
	}
	sheets[sheet] = maxPlot
	v, sh := village, sheet
	s.LastVillage = &v
	s.LastSheet = &sh
}

// Clone deep-copies the state.
func (s CrawlState) Clone() CrawlState {
	out := NewCrawlState()
	for village, sheets := range s.ProcessedSheets {
		copied := make(map[string]int, len(sheets))
		for sheet, maxPlot := range sheets {
			copied[sheet] = maxPlot
		}
		out.ProcessedSheets[village] = copied
	}
	if s.LastVillage != nil {
		v := *s.LastVillage
		out.LastVillage = &v
	}
	if s.LastSheet != nil {
		sh := *s.LastSheet
		out.LastSheet = &sh
	}
	return out
}

// VillageMetadata accompanies every village snapshot.
type VillageMetadata struct {
	VillageNumber string `json:"village_number"`
	Timestamp     string `json:"timestamp"`
	TotalPlots    int    `json:"total_plots"`
	Source        string `json:"source"`
}

// VillageDocument is the on-disk shape of a village snapshot.
type VillageDocument struct {
	Metadata VillageMetadata `json:"metadata"`
	Plots    Plots           `json:"plots"`
}

// Option is one entry of a hierarchy select list.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Error taxonomy. Callers match with errors.Is.
var (
	ErrTransport   = errors.New("transport error")
	ErrParse       = errors.New("parse error")
	ErrDiscovery   = errors.New("discovery error")
	ErrPersistence = errors.New("persistence error")
	ErrNotFound    = errors.New("not found")
)
