// Package config defines the immutable configuration record the core
// consumes (spec.md §6). Loading and merging a config file is an
// external concern per spec.md §1 ("Configuration file loading and
// merging (consumed as an immutable configuration record)"); Load here
// exists only so cmd/vidcrawl has something concrete to call — the core
// packages take *Config by value from whoever constructed it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the flattened, immutable configuration record described in
// spec.md §6. Once Load returns, nothing in the core mutates it.
type Config struct {
	// Transport (C1)
	RequestInterval   time.Duration `koanf:"request_interval"`
	RandomOffset      time.Duration `koanf:"random_offset"`
	MaxRetries        int           `koanf:"max_retries"`
	RetryBaseInterval time.Duration `koanf:"retry_base_interval"`
	Timeout           time.Duration `koanf:"timeout"`
	UserAgents        []string      `koanf:"user_agents"`
	UARotateInterval  time.Duration `koanf:"ua_rotate_interval"`

	// Session (C2)
	PrecheckHosts   []string      `koanf:"precheck_hosts"`
	PrecheckTimeout time.Duration `koanf:"precheck_timeout"`

	// Search (C3)
	PageSize         int            `koanf:"page_size"`
	MaxPages         int            `koanf:"max_pages"`
	PageIntervalLo   time.Duration  `koanf:"page_interval_lo"`
	PageIntervalHi   time.Duration  `koanf:"page_interval_hi"`
	MinViewCount     int64          `koanf:"min_view_count"`
	MinPubdate       time.Time      `koanf:"min_pubdate"`
	MaxPubdate       time.Time      `koanf:"max_pubdate"`
	KeywordFilters   []string       `koanf:"keyword_filters"`
	KeywordExcludes  []string       `koanf:"keyword_excludes"`
	QualityThreshold float64        `koanf:"quality_threshold"`
	QualityWeights   QualityWeights `koanf:"quality_weights"`
	MinDuration      int64          `koanf:"min_duration"`
	MaxDuration      int64          `koanf:"max_duration"`

	// Download (C5)
	DefaultQuality        int    `koanf:"default_quality"`
	ConcurrentLimit       int    `koanf:"concurrent_limit"`
	RetryTimes            int    `koanf:"retry_times"`
	ChunkSize             int64  `koanf:"chunk_size"`
	MaxSizeGB             int64  `koanf:"max_size_gb"`
	MaxDurationOnDownload int64  `koanf:"max_duration_on_download"`
	MuxerPath             string `koanf:"muxer_path"`

	// Dataset store (C6)
	MetadataDir       string `koanf:"metadata_dir"`
	MediaDir          string `koanf:"media_dir"`
	IndexFile         string `koanf:"index_file"`
	CredentialFile    string `koanf:"credential_file"`
	UpdateIndexOnSave bool   `koanf:"update_index_on_save"`

	// Process-level
	MetadataWorkers int    `koanf:"metadata_workers"`
	LogLevel        string `koanf:"log_level"`
	LogFormat       string `koanf:"log_format"`
	Environment     string `koanf:"environment"`
}

// QualityWeights parameterizes the optional quality score filter
// (spec.md §4.3). Off by default per the Open Questions note in §9.
type QualityWeights struct {
	Like     float64 `koanf:"like"`
	Coin     float64 `koanf:"coin"`
	Favorite float64 `koanf:"favorite"`
}

// Validate reports configuration errors that would make the pipeline
// behave incorrectly rather than merely suboptimally.
func (c *Config) Validate() error {
	if c.RequestInterval <= 0 {
		return fmt.Errorf("request_interval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.ConcurrentLimit <= 0 {
		return fmt.Errorf("concurrent_limit must be positive")
	}
	if c.MetadataDir == "" || c.MediaDir == "" || c.IndexFile == "" {
		return fmt.Errorf("metadata_dir, media_dir, and index_file are required")
	}
	return nil
}

// Defaults returns the baseline Config applied before any file or
// environment overrides.
func Defaults() Config {
	return Config{
		RequestInterval:   500 * time.Millisecond,
		RandomOffset:      300 * time.Millisecond,
		MaxRetries:        3,
		RetryBaseInterval: time.Second,
		Timeout:           15 * time.Second,
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_0) AppleWebKit/605.1.15",
		},
		UARotateInterval: 10 * time.Minute,

		PrecheckHosts:   []string{"www.bilibili.com:443", "api.bilibili.com:443"},
		PrecheckTimeout: 5 * time.Second,

		PageSize:       30,
		MaxPages:       50,
		PageIntervalLo: time.Second,
		PageIntervalHi: 2500 * time.Millisecond,

		DefaultQuality:  64,
		ConcurrentLimit: 3,
		RetryTimes:      3,
		ChunkSize:       1 << 20,
		MaxSizeGB:       0,
		MuxerPath:       "ffmpeg",

		MetadataDir:       "dataset/metadata",
		MediaDir:          "dataset/media",
		IndexFile:         "dataset/metadata/index.json",
		CredentialFile:    "dataset/credential.json",
		UpdateIndexOnSave: true,

		MetadataWorkers: 4,
		LogLevel:        "info",
		LogFormat:       "console",
		Environment:     "development",
	}
}

// Load builds a Config by layering defaults, an optional YAML file, and
// VIDCRAWL_-prefixed environment variables, in that order of increasing
// precedence — mirroring the teacher's pkg/config.Manager.LoadConfig.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	defaults := Defaults()

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	const prefix = "VIDCRAWL_"
	if err := k.Load(env.Provider(prefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, prefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
