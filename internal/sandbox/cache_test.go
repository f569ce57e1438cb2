// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sandbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	cache, err := NewCache(context.Background(), filepath.Join(t.TempDir(), "cache.sqlite3"), ttl, 1)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestCachePutGet(t *testing.T) {
	cache := newSQLiteCache(t, time.Hour)
	ctx := context.Background()

	cache.Put(ctx, "key-1", "tech-debt-tracker", `{"status":"ok"}`)

	stdout, hit := cache.Get(ctx, "key-1")
	require.True(t, hit)
	assert.Equal(t, `{"status":"ok"}`, stdout)

	_, miss := cache.Get(ctx, "key-2")
	assert.False(t, miss)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := newSQLiteCache(t, time.Hour)
	ctx := context.Background()

	// Backdate an entry past the TTL.
	_, err := cache.db.ExecContext(ctx,
		`INSERT INTO execution_cache (cache_key, skill, stdout, created_at) VALUES (?, ?, ?, ?)`,
		"stale-key", "tech-debt-tracker", `{}`, time.Now().UTC().Add(-2*time.Hour))
	require.NoError(t, err)

	_, hit := cache.Get(ctx, "stale-key")
	assert.False(t, hit)
}

func TestCacheReplaceRefreshesEntry(t *testing.T) {
	cache := newSQLiteCache(t, time.Hour)
	ctx := context.Background()

	cache.Put(ctx, "key-1", "s", `{"v":1}`)
	cache.Put(ctx, "key-1", "s", `{"v":2}`)

	stdout, hit := cache.Get(ctx, "key-1")
	require.True(t, hit)
	assert.Equal(t, `{"v":2}`, stdout)
}

func TestCacheDisabledByZeroTTL(t *testing.T) {
	cache, err := NewCache(context.Background(), filepath.Join(t.TempDir(), "cache.sqlite3"), 0, 1)
	require.NoError(t, err)
	defer cache.Close()

	cache.Put(context.Background(), "key-1", "s", `{}`)
	_, hit := cache.Get(context.Background(), "key-1")
	assert.False(t, hit)
}

func TestCacheCleanupRemovesOldRows(t *testing.T) {
	cache := newSQLiteCache(t, time.Hour)
	ctx := context.Background()

	_, err := cache.db.ExecContext(ctx,
		`INSERT INTO execution_cache (cache_key, skill, stdout, created_at) VALUES (?, ?, ?, ?)`,
		"ancient-key", "s", `{}`, time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	cache.Put(ctx, "fresh-key", "s", `{}`)

	cache.cleanup(ctx)

	var n int
	require.NoError(t, cache.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM execution_cache`).Scan(&n))
	assert.Equal(t, 1, n)
}

// TestCacheBackgroundCleanup verifies expired rows are swept while the cache
// stays open, without a reopen.
func TestCacheBackgroundCleanup(t *testing.T) {
	old := cleanupInterval
	cleanupInterval = 20 * time.Millisecond
	defer func() { cleanupInterval = old }()

	cache := newSQLiteCache(t, time.Hour)
	ctx := context.Background()

	_, err := cache.db.ExecContext(ctx,
		`INSERT INTO execution_cache (cache_key, skill, stdout, created_at) VALUES (?, ?, ?, ?)`,
		"ancient-key", "s", `{}`, time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		var n int
		if err := cache.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM execution_cache WHERE cache_key = ?`, "ancient-key").Scan(&n); err != nil {
			return false
		}
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// TestCacheGetSwallowsQueryErrors uses sqlmock to exercise the degraded read
// path: a broken store reports a miss rather than failing the execution.
func TestCacheGetSwallowsQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT stdout, created_at FROM execution_cache").
		WillReturnError(assert.AnError)

	cache := &Cache{db: db, ttl: time.Hour, retentionDays: 1, enabled: true}

	_, hit := cache.Get(context.Background(), "any-key")
	assert.False(t, hit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestCachePutSwallowsExecErrors verifies a failed write never propagates.
func TestCachePutSwallowsExecErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT OR REPLACE INTO execution_cache").
		WillReturnError(assert.AnError)

	cache := &Cache{db: db, ttl: time.Hour, retentionDays: 1, enabled: true}

	cache.Put(context.Background(), "any-key", "s", `{}`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
