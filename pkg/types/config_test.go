// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, DefaultConfig(), c)
}

func TestValidateFillsDefaults(t *testing.T) {
	c := Config{Base: "http://ex.org/id", Rules: "rules.yaml"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "http://ex.org/id/", c.Base)
	assert.Equal(t, "data/cache.db", c.Cache.Path)
	assert.Equal(t, "data/graph.db", c.Store.Path)
	assert.Equal(t, 10*time.Second, c.Store.Timeout)
	assert.Equal(t, 200*time.Millisecond, c.Store.RetryBaseDelay)
	assert.Equal(t, 4, c.Pipeline.Workers)
	assert.Equal(t, ConflictFirst, c.Pipeline.ConflictPolicy)
	assert.True(t, c.Pipeline.Collections)
	assert.Equal(t, "info", c.Log.Level)
}

func TestValidateKeepsFragmentBase(t *testing.T) {
	c := Config{Base: "http://ex.org/id#", Rules: "rules.yaml"}
	require.NoError(t, c.Validate())
	assert.Equal(t, "http://ex.org/id#", c.Base)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"no base", func(c *Config) { c.Base = "" }},
		{"no rules", func(c *Config) { c.Rules = "" }},
		{"negative retries", func(c *Config) { c.Store.MaxRetries = -1 }},
		{"unknown policy", func(c *Config) { c.Pipeline.ConflictPolicy = "merge" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mod(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLockPath(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, "data/graph.db.lock", c.LockPath())
	c.Pipeline.LockFile = "/run/indexer.lock"
	assert.Equal(t, "/run/indexer.lock", c.LockPath())
}
