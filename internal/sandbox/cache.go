// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	log "github.com/sirupsen/logrus"
)

// cleanupInterval paces the background expiry sweep.
var cleanupInterval = time.Hour

// cachedResult is a stored successful execution.
type cachedResult struct {
	Stdout    string
	CreatedAt time.Time
}

// Cache is the TTL-expiring execution cache backed by SQLite. Only successful
// executions are cached; a hit within the TTL short-circuits execution
// entirely. The store self-expires so it never grows unbounded.
type Cache struct {
	db            *sql.DB
	ttl           time.Duration
	retentionDays int
	mu            sync.RWMutex
	enabled       bool

	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewCache opens (or creates) the cache database at dbPath. A zero TTL
// disables caching entirely.
func NewCache(ctx context.Context, dbPath string, ttl time.Duration, retentionDays int) (*Cache, error) {
	if ttl <= 0 {
		return &Cache{enabled: false}, nil
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open execution cache: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS execution_cache (
		cache_key TEXT PRIMARY KEY,
		skill TEXT NOT NULL,
		stdout TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_execution_cache_created_at ON execution_cache(created_at);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	c := &Cache{
		db:            db,
		ttl:           ttl,
		retentionDays: retentionDays,
		enabled:       true,
	}

	// Expiry runs for the lifetime of the cache, not just at open; the
	// store must stay bounded in a long-running daemon.
	c.cleanupStop = make(chan struct{})
	c.cleanupDone = make(chan struct{})
	go c.cleanupLoop()

	return c, nil
}

// cleanupLoop sweeps expired rows once at start and then on every tick until
// Close. Sweep failures only cost disk space.
func (c *Cache) cleanupLoop() {
	defer close(c.cleanupDone)

	c.cleanup(context.Background())

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup(context.Background())
		case <-c.cleanupStop:
			return
		}
	}
}

// Get returns the cached stdout for key if a fresh entry exists.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return "", false
	}

	var result cachedResult
	row := c.db.QueryRowContext(ctx,
		`SELECT stdout, created_at FROM execution_cache WHERE cache_key = ?`, key)
	if err := row.Scan(&result.Stdout, &result.CreatedAt); err != nil {
		if err != sql.ErrNoRows {
			log.Warnf("Execution cache read failed: %v", err)
		}
		return "", false
	}

	if time.Since(result.CreatedAt) > c.ttl {
		return "", false
	}
	return result.Stdout, true
}

// Put stores a successful execution result under key, replacing any stale
// entry. Cache write failures are logged and swallowed; caching is an
// optimization, never a correctness requirement.
func (c *Cache) Put(ctx context.Context, key, skill, stdout string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO execution_cache (cache_key, skill, stdout, created_at) VALUES (?, ?, ?, ?)`,
		key, skill, stdout, time.Now().UTC())
	if err != nil {
		log.Warnf("Execution cache write failed: %v", err)
	}
}

// cleanup deletes entries older than the retention window.
func (c *Cache) cleanup(ctx context.Context) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.enabled {
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -c.retentionDays)
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM execution_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		log.Warnf("Execution cache cleanup failed: %v", err)
		return
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		log.Debugf("Execution cache cleanup removed %d expired entries", n)
	}
}

// Close stops the cleanup loop and closes the cache database.
func (c *Cache) Close() error {
	if c.cleanupStop != nil {
		close(c.cleanupStop)
		<-c.cleanupDone
		c.cleanupStop = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || c.db == nil {
		return nil
	}
	c.enabled = false
	return c.db.Close()
}
