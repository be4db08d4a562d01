package sqlkit

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCache(t *testing.T) {
	t.Run("get after put", func(t *testing.T) {
		c := NewQueryCache(2)
		c.Put("k", "SELECT 1")
		sql, ok := c.Get("k")
		assert.True(t, ok)
		assert.Equal(t, "SELECT 1", sql)
	})

	t.Run("refuses insertions at capacity", func(t *testing.T) {
		c := NewQueryCache(2)
		c.Put("a", "1")
		c.Put("b", "2")
		c.Put("c", "3")
		assert.Equal(t, 2, c.Len())
		_, ok := c.Get("c")
		assert.False(t, ok)
		_, ok = c.Get("a")
		assert.True(t, ok)
	})

	t.Run("state key is deterministic", func(t *testing.T) {
		k := stateKey{Driver: "mysql", Select: []string{"*"}, From: "`t`", Limit: -1, Offset: -1}
		first, err := k.encode()
		require.NoError(t, err)
		second, err := k.encode()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("distinct states produce distinct keys", func(t *testing.T) {
		a := stateKey{Driver: "mysql", From: "`t`", Wheres: []string{"`a` = ?"}}
		b := stateKey{Driver: "mysql", From: "`t`", Wheres: []string{"`b` = ?"}}
		ka, err := a.encode()
		require.NoError(t, err)
		kb, err := b.encode()
		require.NoError(t, err)
		assert.NotEqual(t, ka, kb)
	})

	t.Run("builder reuses cached text across resets", func(t *testing.T) {
		b := newTestBuilder(t, DriverMySQL)
		build := func() (string, []any) {
			sql, args, err := b.From("users").Where("ativo", 1).ToSQL()
			require.NoError(t, err)
			b.resetState()
			return sql, args
		}
		sql1, args1 := build()
		before := b.cache.Len()
		sql2, args2 := build()
		assert.Equal(t, sql1, sql2)
		assert.Equal(t, args1, args2)
		assert.Equal(t, before, b.cache.Len(), "second compile should hit the cache")
	})

	t.Run("cache stops growing at the configured cap", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxQueryCache = 3
		b, err := NewBuilder(nil, DriverMySQL, cfg)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			_, _, err := b.From(fmt.Sprintf("table_%d", i)).ToSQL()
			require.NoError(t, err)
			b.resetState()
		}
		assert.Equal(t, 3, b.cache.Len())
	})
}
