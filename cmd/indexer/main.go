// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the indexer CLI.
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/indexer/internal/errors"
	"github.com/pdiddy/indexer/internal/logging"
	"github.com/pdiddy/indexer/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is loaded before any subcommand runs.
	cfg types.Config

	log      = logging.Nop()
	closeLog = func() {}
)

// rootCmd is the base command for the indexer CLI.
var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "Derive facts from harvested graphs and resolve them to canonical proxies",
	Long: `indexer loads harvested N-Quads documents into a local cache, applies
declarative extraction rules to each document, consolidates subjects that
denote the same entity into canonical proxy identifiers, and stores the
result with its provenance in a graph store.

Typical use: ingest dumps with "indexer ingest", then drain the queue with
"indexer process". Entries that cannot be indexed are listed by
"indexer parked".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			cfg.Log.Level = "debug"
		}
		l, closer, err := logging.New(cfg.Log, os.Stderr)
		if err != nil {
			return err
		}
		log, closeLog = l, closer
		if used := viper.ConfigFileUsed(); used != "" {
			log.Debugw("using config file", "path", used)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeLog()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./indexer.yaml or ~/.config/indexer/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "log at debug level")
	rootCmd.PersistentFlags().Bool("json-logs", false, "write logs as JSON")
	_ = viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("json-logs"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("indexer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "indexer"))
		}
	}

	viper.SetEnvPrefix("INDEXER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper(), types.DefaultConfig())
}

// setDefaults registers every config key so that environment variables
// such as INDEXER_STORE_PATH are seen by Unmarshal.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("base", d.Base)
	v.SetDefault("rules", d.Rules)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("store.max_retries", d.Store.MaxRetries)
	v.SetDefault("store.retry_base_delay", d.Store.RetryBaseDelay)
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.batch_size", d.Pipeline.BatchSize)
	v.SetDefault("pipeline.max_attempts", d.Pipeline.MaxAttempts)
	v.SetDefault("pipeline.rate_per_second", d.Pipeline.RatePerSecond)
	v.SetDefault("pipeline.conflict_policy", string(d.Pipeline.ConflictPolicy))
	v.SetDefault("pipeline.lock_file", d.Pipeline.LockFile)
	v.SetDefault("pipeline.watch_rules", d.Pipeline.WatchRules)
	v.SetDefault("pipeline.collections", d.Pipeline.Collections)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}

// loadConfig reads the config file, if any, and validates the result.
func loadConfig() (types.Config, error) {
	return readConfig(viper.GetViper())
}

func readConfig(v *viper.Viper) (types.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, errors.Wrap(err, "reading config")
		}
	}
	c := types.DefaultConfig()
	if err := v.Unmarshal(&c); err != nil {
		return types.Config{}, errors.Wrap(err, "decoding config")
	}
	if err := c.Validate(); err != nil {
		return types.Config{}, err
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
