package sqlkit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.DisableValidation)
	assert.Equal(t, 50, cfg.MaxQueryCache)
	assert.Equal(t, 50, cfg.MaxWhereConditions)
	assert.Equal(t, 20, cfg.MaxJoins)
	assert.Equal(t, 100, cfg.MaxSelectFields)
	assert.Equal(t, 20, cfg.MaxGroupByFields)
	assert.Equal(t, 10, cfg.MaxOrderByFields)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "public", cfg.Schema)
}

func TestWithDefaults(t *testing.T) {
	t.Run("nil receiver yields the full default set", func(t *testing.T) {
		var cfg *Config
		assert.Equal(t, DefaultConfig(), cfg.withDefaults())
	})

	t.Run("set fields survive, unset fields fill in", func(t *testing.T) {
		cfg := (&Config{MaxJoins: 5, Schema: "analytics"}).withDefaults()
		assert.Equal(t, 5, cfg.MaxJoins)
		assert.Equal(t, "analytics", cfg.Schema)
		assert.Equal(t, 50, cfg.MaxWhereConditions)
		assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	})

	t.Run("the receiver is not mutated", func(t *testing.T) {
		orig := &Config{MaxJoins: 5}
		_ = orig.withDefaults()
		assert.Equal(t, 0, orig.MaxWhereConditions)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("partial yaml keeps defaults for missing keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sqlkit.yaml")
		body := "max_joins: 7\nschema: reporting\nquery_timeout: 5s\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.MaxJoins)
		assert.Equal(t, "reporting", cfg.Schema)
		assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
		assert.Equal(t, 50, cfg.MaxWhereConditions)
		assert.False(t, cfg.DisableValidation)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}
