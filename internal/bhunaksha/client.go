// Package bhunaksha talks to a BhuNaksha cadastral service: plot lookups,
// sheet discovery and the administrative option lists above a village.
package bhunaksha

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/cadastral-crawler/internal/fetcher/colly"
)

const (
	opPlotLookup = "5"
	opLevelList  = "2"
)

// Fetcher performs a single GET.
type Fetcher interface {
	Fetch(ctx context.Context, req collyfetcher.Request) (collyfetcher.Response, error)
}

// Config identifies the remote endpoints and the fixed hierarchy path.
type Config struct {
	BaseURL string
	APIURL  string
	Path    crawler.Path
	// Timeout bounds each request; zero disables the per-request deadline.
	Timeout time.Duration
}

// Client implements crawler.Prober, crawler.SheetDiscoverer and crawler.HierarchyClient.
type Client struct {
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
}

var (
	_ crawler.Prober          = (*Client)(nil)
	_ crawler.SheetDiscoverer = (*Client)(nil)
	_ crawler.HierarchyClient = (*Client)(nil)
)

// New wires a Client.
func New(fetcher Fetcher, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger.Named("bhunaksha"),
	}
}

// get issues a GET against rawURL and fails on transport errors and non-200 statuses.
func (c *Client) get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	resp, err := c.fetcher.Fetch(ctx, collyfetcher.Request{URL: rawURL, Query: query})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", crawler.ErrTransport, resp.StatusCode)
	}
	return resp.Body, nil
}
