// Package villagedata writes and reads per-village plot snapshots.
package villagedata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	"github.com/JakeFAU/cadastral-crawler/internal/metrics"
)

const contentType = "application/json"

// ObjectName is the blob path of a village snapshot.
func ObjectName(key string) string {
	return fmt.Sprintf("village_%s.json", key)
}

// ErrorKey is the snapshot key used when a village fails mid-crawl.
func ErrorKey(village string) string {
	return village + "_error"
}

// Sink stores village snapshots as JSON documents in a BlobStore.
type Sink struct {
	blobs  crawler.BlobStore
	clock  crawler.Clock
	source string
	logger *zap.Logger
}

var _ crawler.VillageSink = (*Sink)(nil)

// New wires a Sink. source is written into every snapshot's metadata.
func New(blobs crawler.BlobStore, clock crawler.Clock, source string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		blobs:  blobs,
		clock:  clock,
		source: source,
		logger: logger.Named("villagedata"),
	}
}

// SaveVillage overwrites the snapshot for key.
func (s *Sink) SaveVillage(ctx context.Context, key string, plots crawler.Plots) error {
	if plots == nil {
		plots = crawler.Plots{}
	}
	doc := crawler.VillageDocument{
		Metadata: crawler.VillageMetadata{
			VillageNumber: key,
			Timestamp:     s.clock.Now().Format(time.RFC3339),
			TotalPlots:    len(plots),
			Source:        s.source,
		},
		Plots: plots,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		metrics.ObservePersistenceError("village")
		return fmt.Errorf("%w: encode village %s: %w", crawler.ErrPersistence, key, err)
	}

	uri, err := s.blobs.PutObject(ctx, ObjectName(key), contentType, &buf)
	if err != nil {
		metrics.ObservePersistenceError("village")
		return fmt.Errorf("%w: write village %s: %w", crawler.ErrPersistence, key, err)
	}
	s.logger.Info("saved village data",
		zap.String("village", key),
		zap.Int("total_plots", len(plots)),
		zap.String("uri", uri),
	)
	return nil
}

// LoadVillage reads the snapshot for key. A missing snapshot wraps crawler.ErrNotFound.
func (s *Sink) LoadVillage(ctx context.Context, key string) (crawler.VillageDocument, error) {
	data, err := s.blobs.GetObject(ctx, ObjectName(key))
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			return crawler.VillageDocument{}, fmt.Errorf("village %s: %w", key, err)
		}
		return crawler.VillageDocument{}, fmt.Errorf("%w: read village %s: %w", crawler.ErrPersistence, key, err)
	}
	var doc crawler.VillageDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return crawler.VillageDocument{}, fmt.Errorf("%w: decode village %s: %w", crawler.ErrParse, key, err)
	}
	if doc.Plots == nil {
		doc.Plots = crawler.Plots{}
	}
	return doc, nil
}
