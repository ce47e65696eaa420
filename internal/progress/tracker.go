package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/cadastral-crawler/internal/scanner"
)

// SheetStatus describes the latest known position of one sheet scan.
type SheetStatus struct {
	Village          string    `json:"village"`
	Sheet            string    `json:"sheet"`
	LastPlot         int       `json:"last_plot"`
	ConsecutiveEmpty int       `json:"consecutive_empty"`
	MaxPlotFound     int       `json:"max_plot_found"`
	PlotsFound       int       `json:"plots_found"`
	Errors           int       `json:"errors"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Tracker records BatchProgress reports. It is safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	sheets map[string]SheetStatus
	now    func() time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sheets: make(map[string]SheetStatus),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Observe stores the progress of a drained batch. Its signature matches
// scanner.BatchObserver.
func (t *Tracker) Observe(p scanner.BatchProgress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sheets[p.Village+"/"+p.Sheet] = SheetStatus{
		Village:          p.Village,
		Sheet:            p.Sheet,
		LastPlot:         p.To,
		ConsecutiveEmpty: p.ConsecutiveEmpty,
		MaxPlotFound:     p.MaxPlotFound,
		PlotsFound:       p.PlotsFound,
		Errors:           p.Errors,
		UpdatedAt:        t.now(),
	}
}

// Snapshot returns every tracked sheet ordered by village then sheet.
func (t *Tracker) Snapshot() []SheetStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SheetStatus, 0, len(t.sheets))
	for _, s := range t.sheets {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Village != out[j].Village {
			return out[i].Village < out[j].Village
		}
		return out[i].Sheet < out[j].Sheet
	})
	return out
}

// Village returns the tracked sheets of one village.
func (t *Tracker) Village(village string) []SheetStatus {
	all := t.Snapshot()
	out := all[:0]
	for _, s := range all {
		if s.Village == village {
			out = append(out, s)
		}
	}
	return out
}
