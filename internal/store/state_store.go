package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	"github.com/JakeFAU/cadastral-crawler/internal/logging"
)

// FileStateStore keeps CrawlState in a JSON file.
type FileStateStore struct {
	path   string
	logger *zap.Logger
}

var _ crawler.StateStore = (*FileStateStore)(nil)

// NewFileStateStore returns a store backed by path.
func NewFileStateStore(path string, logger *zap.Logger) (*FileStateStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStateStore{path: path, logger: logger.Named("state")}, nil
}

// Path returns the state file location.
func (s *FileStateStore) Path() string {
	return s.path
}

// Load reads the state file. A missing or unreadable file yields the fresh
// state so a damaged checkpoint never blocks a crawl; the problem is logged.
func (s *FileStateStore) Load(_ context.Context) (crawler.CrawlState, error) {
	// #nosec G304 -- the state path comes from operator configuration.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("failed to read state file, starting fresh", zap.String("path", s.path), zap.Error(err))
		}
		return crawler.NewCrawlState(), nil
	}

	state := crawler.NewCrawlState()
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Error("failed to decode state file, starting fresh", zap.String("path", s.path), zap.Error(err))
		return crawler.NewCrawlState(), nil
	}
	if state.ProcessedSheets == nil {
		state.ProcessedSheets = make(map[string]map[string]int)
	}
	return state, nil
}

// Save overwrites the state file. The document is written to a temporary file
// in the same directory and renamed into place.
func (s *FileStateStore) Save(_ context.Context, state crawler.CrawlState) error {
	if state.ProcessedSheets == nil {
		state.ProcessedSheets = make(map[string]map[string]int)
	}
	data, err := json.MarshalIndent(state, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode state: %w", crawler.ErrPersistence, err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrPersistence, err)
	}
	s.logger.Debug("state saved", zap.String("path", s.path))
	return nil
}

// Reset prepares a fresh run: it removes the files directly inside outputDir
// (creating the directory when absent), rewrites the fresh state and truncates
// logFile. Subdirectories of outputDir are left alone.
func (s *FileStateStore) Reset(ctx context.Context, outputDir, logFile string) error {
	if err := clearDir(outputDir); err != nil {
		return err
	}
	if err := s.Save(ctx, crawler.NewCrawlState()); err != nil {
		return err
	}
	if err := logging.Truncate(logFile); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrPersistence, err)
	}
	s.logger.Info("initialized fresh scraper files",
		zap.String("output_dir", outputDir),
		zap.String("state_file", s.path),
	)
	return nil
}

func clearDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory is required")
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(bytes.TrimSpace(data)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
