// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
	"time"
)

// ConflictPolicy selects what the resolver does when members of one
// equivalence class already belong to different proxies.
type ConflictPolicy string

const (
	// ConflictFirst keeps the first proxy found and logs the conflict.
	ConflictFirst ConflictPolicy = "first"
	// ConflictReject fails the entry with a validation error so it is parked.
	ConflictReject ConflictPolicy = "reject"
	// ConflictFlag keeps the first proxy and stores a conflict record for review.
	ConflictFlag ConflictPolicy = "flag"
)

// StoreConfig holds settings for the resolved graph store.
type StoreConfig struct {
	// Path is the SQLite database file holding quads and proxy membership.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// Timeout bounds every store call (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// MaxRetries is the number of retries for transient failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// RetryBaseDelay is the first backoff interval (default 200ms).
	RetryBaseDelay time.Duration `json:"retry_base_delay" yaml:"retry_base_delay" mapstructure:"retry_base_delay"`
}

// CacheConfig holds settings for the document cache.
type CacheConfig struct {
	// Path is the SQLite database file holding cached documents and the queue.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// PipelineConfig holds settings for the processing stage.
type PipelineConfig struct {
	// Workers is the number of concurrent fetch/extract workers (default 4).
	// Resolution and persistence always run on a single writer.
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// BatchSize caps the entries taken from the queue per run; 0 means all.
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// MaxAttempts parks an entry after this many failed attempts; 0 disables.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" mapstructure:"max_attempts"`

	// RatePerSecond throttles entries handed to the writer; 0 disables.
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second" mapstructure:"rate_per_second"`

	// ConflictPolicy is one of first, reject, flag (default first).
	ConflictPolicy ConflictPolicy `json:"conflict_policy" yaml:"conflict_policy" mapstructure:"conflict_policy"`

	// LockFile guards the single writer across processes. Empty derives
	// it from the store path.
	LockFile string `json:"lock_file" yaml:"lock_file" mapstructure:"lock_file"`

	// WatchRules reloads the rule file when it changes.
	WatchRules bool `json:"watch_rules" yaml:"watch_rules" mapstructure:"watch_rules"`

	// Collections adds every subject proxy to the void:Dataset
	// collections it belongs to (default true).
	Collections bool `json:"collections" yaml:"collections" mapstructure:"collections"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	JSON  bool   `json:"json" yaml:"json" mapstructure:"json"`
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// File, when set, receives logs through a rotating writer.
	File string `json:"file" yaml:"file" mapstructure:"file"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile is written in Prometheus text format after each run.
	Textfile string `json:"textfile" yaml:"textfile" mapstructure:"textfile"`
}

// Config is the top-level configuration of the indexer.
type Config struct {
	// Base is the IRI prefix for document graph keys and minted proxies.
	Base string `json:"base" yaml:"base" mapstructure:"base"`

	// Rules is the path of the YAML rule file.
	Rules string `json:"rules" yaml:"rules" mapstructure:"rules"`

	Cache    CacheConfig    `json:"cache" yaml:"cache" mapstructure:"cache"`
	Store    StoreConfig    `json:"store" yaml:"store" mapstructure:"store"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Log      LogConfig      `json:"log" yaml:"log" mapstructure:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Base:  "http://example.org/indexer/",
		Rules: "rules.yaml",
		Cache: CacheConfig{Path: "data/cache.db"},
		Store: StoreConfig{
			Path:           "data/graph.db",
			Timeout:        10 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: 200 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			Workers:        4,
			ConflictPolicy: ConflictFirst,
			Collections:    true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LockPath returns the lock file guarding the single writer.
func (c Config) LockPath() string {
	if c.Pipeline.LockFile != "" {
		return c.Pipeline.LockFile
	}
	return c.Store.Path + ".lock"
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Base == "" {
		return fmt.Errorf("config: base IRI is required")
	}
	if !strings.HasSuffix(c.Base, "/") && !strings.HasSuffix(c.Base, "#") {
		c.Base += "/"
	}
	if c.Rules == "" {
		return fmt.Errorf("config: rules path is required")
	}
	if c.Cache.Path == "" {
		c.Cache.Path = def.Cache.Path
	}
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if c.Store.Timeout <= 0 {
		c.Store.Timeout = def.Store.Timeout
	}
	if c.Store.MaxRetries < 0 {
		return fmt.Errorf("config: store.max_retries must not be negative")
	}
	if c.Store.RetryBaseDelay <= 0 {
		c.Store.RetryBaseDelay = def.Store.RetryBaseDelay
	}
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = def.Pipeline.Workers
	}
	switch c.Pipeline.ConflictPolicy {
	case "":
		c.Pipeline.ConflictPolicy = ConflictFirst
	case ConflictFirst, ConflictReject, ConflictFlag:
	default:
		return fmt.Errorf("config: unknown conflict_policy %q", c.Pipeline.ConflictPolicy)
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	return nil
}
