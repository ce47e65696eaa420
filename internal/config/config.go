// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/cadastral-crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Remote  RemoteConfig  `mapstructure:"remote"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Storage StorageConfig `mapstructure:"storage"`
	Tiles   TilesConfig   `mapstructure:"tiles"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// RemoteConfig describes the cadastral service endpoints and the fixed hierarchy path.
type RemoteConfig struct {
	BaseURL   string       `mapstructure:"base_url"`
	APIURL    string       `mapstructure:"api_url"`
	WMSURL    string       `mapstructure:"wms_url"`
	UserAgent string       `mapstructure:"user_agent"`
	Path      crawler.Path `mapstructure:"path"`
	Source    string       `mapstructure:"source"`
}

// CrawlConfig governs the sheet scanner and orchestrator pacing.
type CrawlConfig struct {
	BatchSize           int           `mapstructure:"batch_size"`
	MaxWorkers          int           `mapstructure:"max_workers"`
	MaxConsecutiveEmpty int           `mapstructure:"max_consecutive_empty"`
	MaxPlotNumber       int           `mapstructure:"max_plot_number"`
	ProbeTimeout        time.Duration `mapstructure:"probe_timeout"`
	BatchDelay          time.Duration `mapstructure:"batch_delay"`
	SheetDelay          time.Duration `mapstructure:"sheet_delay"`
}

// StorageConfig sets paths for the state file, village snapshots, and tiles.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	StateFile string `mapstructure:"state_file"`
	ImagesDir string `mapstructure:"images_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// TilesConfig controls the map-tile downloader.
type TilesConfig struct {
	MaxWorkers   int           `mapstructure:"max_workers"`
	RequestsPerS float64       `mapstructure:"requests_per_second"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Width        int           `mapstructure:"width"`
	Height       int           `mapstructure:"height"`
	DPI          int           `mapstructure:"dpi"`
}

// DBConfig controls the optional Postgres plot index.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

// Load builds a Config from disk/environment. A .env file in the working
// directory is applied first; a missing one is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("PLOTCRAWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.base_url", "https://app1bhunakshaodisha.nic.in/bhunaksha/")
	v.SetDefault("remote.api_url", "https://app1bhunakshaodisha.nic.in/bhunaksha/ScalarDatahandler")
	v.SetDefault("remote.wms_url", "https://app1bhunakshaodisha.nic.in/bhunaksha/WMS")
	v.SetDefault("remote.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("remote.path.state", "21")
	v.SetDefault("remote.path.district", "1")
	v.SetDefault("remote.path.tehsil", "1")
	v.SetDefault("remote.path.ri", "2")
	v.SetDefault("remote.source", "BhuNaksha Odisha")
	v.SetDefault("crawl.batch_size", 200)
	v.SetDefault("crawl.max_workers", 200)
	v.SetDefault("crawl.max_consecutive_empty", 1000)
	v.SetDefault("crawl.max_plot_number", 0)
	v.SetDefault("crawl.probe_timeout", "10s")
	v.SetDefault("crawl.batch_delay", "1s")
	v.SetDefault("crawl.sheet_delay", "2s")
	v.SetDefault("storage.output_dir", "village_data")
	v.SetDefault("storage.state_file", "scraper_state.json")
	v.SetDefault("storage.images_dir", "images")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("tiles.max_workers", 20)
	v.SetDefault("tiles.requests_per_second", 5)
	v.SetDefault("tiles.timeout", "30s")
	v.SetDefault("tiles.width", 4698)
	v.SetDefault("tiles.height", 4086)
	v.SetDefault("tiles.dpi", 180)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "plots")
	v.SetDefault("db.max_conns", 0)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("server.addr", "")
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "scraper.log")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Remote.APIURL == "" {
		return fmt.Errorf("remote.api_url must be set")
	}
	if c.Remote.Path.State == "" {
		return fmt.Errorf("remote.path.state must be set")
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0")
	}
	if c.Crawl.MaxWorkers <= 0 {
		return fmt.Errorf("crawl.max_workers must be > 0")
	}
	if c.Crawl.MaxConsecutiveEmpty <= 0 {
		return fmt.Errorf("crawl.max_consecutive_empty must be > 0")
	}
	if c.Crawl.MaxPlotNumber < 0 {
		return fmt.Errorf("crawl.max_plot_number must be >= 0")
	}
	if c.Crawl.ProbeTimeout <= 0 {
		return fmt.Errorf("crawl.probe_timeout must be > 0")
	}
	if c.Crawl.BatchDelay < 0 || c.Crawl.SheetDelay < 0 {
		return fmt.Errorf("crawl delays must be >= 0")
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir must be set")
	}
	if c.Storage.StateFile == "" {
		return fmt.Errorf("storage.state_file must be set")
	}
	if c.Tiles.MaxWorkers <= 0 {
		return fmt.Errorf("tiles.max_workers must be > 0")
	}
	if c.Tiles.Timeout <= 0 {
		return fmt.Errorf("tiles.timeout must be > 0")
	}
	return nil
}
