package crawler

import (
	"context"
	"io"
	"time"
)

// Prober looks up a single plot. Implementations never return Go errors; failures
// are reported through ProbeResult.Err with OutcomeError.
type Prober interface {
	Probe(ctx context.Context, village, sheet string, plotNo int) ProbeResult
}

// SheetDiscoverer lists the sheet identifiers of a village.
type SheetDiscoverer interface {
	Sheets(ctx context.Context, village string) ([]string, error)
}

// HierarchyClient walks the administrative levels above a village.
type HierarchyClient interface {
	Districts(ctx context.Context) ([]Option, error)
	Tehsils(ctx context.Context, district string) ([]Option, error)
	RICircles(ctx context.Context, district, tehsil string) ([]Option, error)
	Villages(ctx context.Context, district, tehsil, ri string) ([]Option, error)
}

// StateStore persists CrawlState.
type StateStore interface {
	Load(ctx context.Context) (CrawlState, error)
	Save(ctx context.Context, state CrawlState) error
}

// VillageSink persists village snapshots keyed by village number.
type VillageSink interface {
	SaveVillage(ctx context.Context, key string, plots Plots) error
	LoadVillage(ctx context.Context, key string) (VillageDocument, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// PlotIndex mirrors found plots into a queryable store.
type PlotIndex interface {
	UpsertPlots(ctx context.Context, village string, plots []PlotRecord) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
