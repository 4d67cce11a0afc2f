// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/indexer/pkg/types"
)

func testViper(t *testing.T, file string) *viper.Viper {
	t.Helper()
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("indexer")
		v.SetConfigType("yaml")
		v.AddConfigPath(t.TempDir())
	}
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, types.DefaultConfig())
	return v
}

func TestReadConfig_Defaults(t *testing.T) {
	c, err := readConfig(testViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, types.DefaultConfig(), c)
}

func TestReadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base: http://data.example.org/id
rules: conf/rules.yaml
store:
  path: /var/lib/indexer/graph.db
  timeout: 2s
pipeline:
  workers: 8
  conflict_policy: flag
  max_attempts: 5
`), 0o644))

	c, err := readConfig(testViper(t, path))
	require.NoError(t, err)
	assert.Equal(t, "http://data.example.org/id/", c.Base)
	assert.Equal(t, "conf/rules.yaml", c.Rules)
	assert.Equal(t, 2*time.Second, c.Store.Timeout)
	assert.Equal(t, 3, c.Store.MaxRetries, "unset keys keep their defaults")
	assert.Equal(t, 8, c.Pipeline.Workers)
	assert.Equal(t, types.ConflictFlag, c.Pipeline.ConflictPolicy)
	assert.Equal(t, 5, c.Pipeline.MaxAttempts)
	assert.Equal(t, "/var/lib/indexer/graph.db.lock", c.LockPath())
}

func TestReadConfig_Env(t *testing.T) {
	t.Setenv("INDEXER_STORE_PATH", "/tmp/other.db")
	t.Setenv("INDEXER_PIPELINE_CONFLICT_POLICY", "reject")

	c, err := readConfig(testViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", c.Store.Path)
	assert.Equal(t, types.ConflictReject, c.Pipeline.ConflictPolicy)
}

func TestReadConfig_Invalid(t *testing.T) {
	t.Setenv("INDEXER_PIPELINE_CONFLICT_POLICY", "merge")
	_, err := readConfig(testViper(t, ""))
	require.Error(t, err)
}

func TestReadConfig_MissingExplicitFile(t *testing.T) {
	_, err := readConfig(testViper(t, filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
}
