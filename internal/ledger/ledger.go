// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ledger persists historical routing selections in JSONL format. The
// ledger is bounded: once it grows past the configured maximum plus a slack
// factor, the oldest entries are evicted by rewriting the file atomically.
// It is the single source of truth for retrieval index rebuilds.
package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/skillrouter/internal/util"
)

const (
	// writeQueueSize buffers async appends so routing never blocks on disk.
	writeQueueSize     = 1000
	writeFlushInterval = 5 * time.Second
	writeTimeout       = 10 * time.Second

	// compactionSlack delays eviction until the file exceeds the bound by
	// this factor, so a hot ledger is not rewritten on every append.
	compactionSlack = 1.25

	filePermissions = 0600
)

// ErrNotFound reports that no ledger entry carries the requested id.
var ErrNotFound = errors.New("selection not found")

// SelectionType distinguishes the chosen route kind.
const (
	SelectionSkill = "skill"
	SelectionAgent = "agent"
)

// HistoricalSelection is one recorded routing outcome, a single JSONL row.
type HistoricalSelection struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Input      string    `json:"input"`
	TargetType string    `json:"target_type"`
	TargetName string    `json:"target_name"`
	Confidence float64   `json:"confidence"`

	// Overridden marks selections where the caller rejected the routing
	// recommendation; index rebuilds exclude them as evidence.
	Overridden bool `json:"overridden,omitempty"`
}

// writeOp is a pending append travelling through the writer queue.
type writeOp struct {
	entry   *HistoricalSelection
	errChan chan error
}

// Store is the bounded selection ledger. Appends flow through a single
// background writer goroutine; one owning goroutine serializes all file
// mutation, so no file locking is needed within the process.
type Store struct {
	filePath   string
	maxEntries int

	writeQueue chan *writeOp
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc

	mu    sync.Mutex
	file  *os.File
	count int
}

// NewStore opens (or creates) the ledger at filePath and starts the writer.
// maxEntries bounds the ledger; zero or negative disables compaction.
func NewStore(filePath string, maxEntries int) (*Store, error) {
	ctx, cancel := context.WithCancel(context.Background())

	store := &Store{
		filePath:   filePath,
		maxEntries: maxEntries,
		writeQueue: make(chan *writeOp, writeQueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open selection ledger: %w", err)
	}
	store.file = file

	// Seed the in-memory count so the compaction trigger survives restarts.
	entries, err := store.All()
	if err != nil {
		file.Close()
		cancel()
		return nil, err
	}
	store.count = len(entries)

	store.wg.Add(1)
	go store.writeWorker()

	return store, nil
}

// Append records a selection. Missing IDs and timestamps are filled in. The
// call queues the write and waits for the writer's result; a full queue
// returns an error immediately instead of blocking the router.
func (s *Store) Append(entry *HistoricalSelection) error {
	if entry == nil {
		return fmt.Errorf("selection cannot be nil")
	}
	if entry.TargetType != SelectionSkill && entry.TargetType != SelectionAgent {
		return fmt.Errorf("invalid target type %q", entry.TargetType)
	}
	if entry.TargetName == "" {
		return fmt.Errorf("target name cannot be empty")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	op := &writeOp{entry: entry, errChan: make(chan error, 1)}

	select {
	case s.writeQueue <- op:
		select {
		case err := <-op.errChan:
			return err
		case <-time.After(writeTimeout):
			return fmt.Errorf("ledger write timed out")
		case <-s.ctx.Done():
			return fmt.Errorf("ledger is shutting down")
		}
	default:
		return fmt.Errorf("ledger write queue is full, dropping write (queue size: %d)", writeQueueSize)
	}
}

// All reads every entry in chronological order. Torn or malformed lines are
// skipped so a crash mid-append never poisons readers.
func (s *Store) All() ([]*HistoricalSelection, error) {
	file, err := os.Open(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []*HistoricalSelection{}, nil
		}
		return nil, fmt.Errorf("failed to open selection ledger: %w", err)
	}
	defer file.Close()

	var entries []*HistoricalSelection
	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry HistoricalSelection
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading selection ledger: %w", err)
	}

	if s.maxEntries > 0 && len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}
	if entries == nil {
		entries = []*HistoricalSelection{}
	}
	return entries, nil
}

// Tail returns the most recent n entries, newest first.
func (s *Store) Tail(n int) ([]*HistoricalSelection, error) {
	if n <= 0 {
		n = 100
	}
	entries, err := s.All()
	if err != nil {
		return nil, err
	}

	result := make([]*HistoricalSelection, 0, n)
	for i := len(entries) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, entries[i])
	}
	return result, nil
}

// Override marks the selection with id as overridden, so index rebuilds stop
// treating it as evidence. The ledger is rewritten through the same
// atomic-rename path compaction uses.
func (s *Store) Override(id string) error {
	if id == "" {
		return fmt.Errorf("selection id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync before override: %w", err)
	}

	entries, err := s.All()
	if err != nil {
		return err
	}

	found := false
	for _, entry := range entries {
		if entry.ID == id {
			entry.Overridden = true
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.rewriteLocked(entries)
}

// Count returns the number of live entries.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// writeWorker is the single goroutine that owns the ledger file.
func (s *Store) writeWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(writeFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case op := <-s.writeQueue:
			err := s.writeEntry(op.entry)
			select {
			case op.errChan <- err:
			default:
			}

		case <-ticker.C:
			s.flush()

		case <-s.ctx.Done():
			s.drainQueue()
			return
		}
	}
}

// writeEntry appends one JSONL row and triggers compaction past the slack
// threshold.
func (s *Store) writeEntry(entry *HistoricalSelection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}
	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("failed to write selection: %w", err)
	}
	s.count++

	if s.maxEntries > 0 && float64(s.count) > float64(s.maxEntries)*compactionSlack {
		if err := s.compactLocked(); err != nil {
			// Compaction failure leaves an oversized but valid ledger.
			log.Warnf("Ledger compaction failed: %v", err)
		}
	}
	return nil
}

// compactLocked rewrites the ledger keeping only the newest maxEntries rows.
// The rewrite goes through an atomic rename so readers never observe a
// partial file. Caller holds s.mu.
func (s *Store) compactLocked() error {
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync before compaction: %w", err)
	}

	entries, err := s.All()
	if err != nil {
		return err
	}
	// All() already applies the bound; entries is the survivor set.

	if err := s.rewriteLocked(entries); err != nil {
		return err
	}
	log.Debugf("Compacted selection ledger to %d entries", s.count)
	return nil
}

// rewriteLocked replaces the ledger file with entries via an atomic rename so
// readers never observe a partial file. Caller holds s.mu.
func (s *Store) rewriteLocked(entries []*HistoricalSelection) error {
	var buf []byte
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close ledger for rewrite: %w", err)
	}

	if err := util.SecureWrite(s.filePath, buf, nil); err != nil {
		// Reopen in append mode regardless; the old file is still intact.
		s.reopenLocked()
		return fmt.Errorf("failed to rewrite ledger: %w", err)
	}

	if err := s.reopenLocked(); err != nil {
		return err
	}
	s.count = len(entries)
	return nil
}

// reopenLocked reopens the ledger file for appending after compaction.
func (s *Store) reopenLocked() error {
	file, err := os.OpenFile(s.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to reopen ledger: %w", err)
	}
	s.file = file
	return nil
}

// flush syncs the file to disk.
func (s *Store) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Sync()
	}
}

// drainQueue processes remaining appends during shutdown.
func (s *Store) drainQueue() {
	for {
		select {
		case op := <-s.writeQueue:
			err := s.writeEntry(op.entry)
			select {
			case op.errChan <- err:
			default:
			}
		default:
			s.flush()
			return
		}
	}
}

// Close drains pending writes and closes the file.
func (s *Store) Close() error {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("failed to close selection ledger: %w", err)
		}
		s.file = nil
	}
	return nil
}
