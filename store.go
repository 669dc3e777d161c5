// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package tabletstore implements a rowset-based tablet store with a
// size-tiered compaction policy. Tablets hold immutable, versioned
// rowsets; a background scheduler picks runs of rowsets to merge so that
// read amplification stays bounded while delete-predicate ordering and
// missed-version gaps are respected.
package tabletstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/cockroachdb/tabletstore/internal/manifest"
)

// maxCompactionBackoff caps the per-tablet retry backoff after repeated
// compaction failures.
const maxCompactionBackoff = 10 * time.Minute

// Store owns the tablets under one storage root and runs their background
// compactions: a scheduler goroutine polls the tablets, and a worker pool
// bounded by MaxCompactionConcurrency executes tasks in parallel across
// tablets.
type Store struct {
	dir  string
	opts *Options

	metrics *Metrics
	mem     *memTracker
	pacer   *compactionPacer

	// workers is a counting semaphore bounding concurrent compactions.
	workers chan struct{}

	mu struct {
		sync.Mutex
		tablets map[int64]*Tablet
		backoff map[int64]backoffState
	}

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// backoffState tracks per-tablet compaction failures so the scheduler
// retries with exponential backoff instead of hammering a failing tablet.
type backoffState struct {
	failures    int
	nextAttempt time.Time
}

// Open opens the store rooted at dir, loading any tablets already present.
func Open(dir string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	opts.EnsureDefaults()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating storage root")
	}
	s := &Store{
		dir:     dir,
		opts:    opts,
		metrics: newMetrics(),
		mem:     newMemTracker(opts.CompactionMemoryBudget),
		pacer:   newCompactionPacer(opts.CompactionBytesPerSec),
		workers: make(chan struct{}, opts.MaxCompactionConcurrency),
		stopCh:  make(chan struct{}),
	}
	s.mu.tablets = make(map[int64]*Tablet)
	s.mu.backoff = make(map[int64]backoffState)
	if opts.MetricsRegisterer != nil {
		if err := s.metrics.register(opts.MetricsRegisterer); err != nil {
			return nil, err
		}
	}
	if err := s.loadTablets(); err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go s.schedulerLoop()
	return s, nil
}

func tabletDirName(id int64) string {
	return fmt.Sprintf("tablet_%d", id)
}

func (s *Store) loadTablets() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "reading storage root")
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "tablet_") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), "tablet_"), 10, 64)
		if err != nil {
			continue
		}
		dir := filepath.Join(s.dir, e.Name())
		meta, err := manifest.LoadTabletMeta(dir)
		if err != nil {
			return errors.Wrapf(err, "loading tablet %d", id)
		}
		t, err := newTablet(dir, meta, s.opts, s.metrics, s.mem, s.pacer)
		if err != nil {
			return err
		}
		s.mu.tablets[t.id] = t
	}
	return nil
}

// CreateTablet creates an empty tablet under the store.
func (s *Store) CreateTablet(id, partitionID int64, keysType base.KeysType) (*Tablet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mu.tablets[id]; ok {
		return nil, errors.Errorf("tablet %d already exists", id)
	}
	dir := filepath.Join(s.dir, tabletDirName(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating tablet dir")
	}
	meta := &manifest.TabletMeta{
		TabletID:     id,
		PartitionID:  partitionID,
		KeysType:     keysType,
		NextRowsetID: 1,
	}
	if err := manifest.StoreTabletMeta(dir, meta); err != nil {
		return nil, err
	}
	t, err := newTablet(dir, meta, s.opts, s.metrics, s.mem, s.pacer)
	if err != nil {
		return nil, err
	}
	s.mu.tablets[id] = t
	return t, nil
}

// Tablet returns the tablet with the given id.
func (s *Store) Tablet(id int64) (*Tablet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.mu.tablets[id]
	return t, ok
}

// DropTablet drops the tablet, cancelling its in-flight compaction and
// removing its data.
func (s *Store) DropTablet(id int64) error {
	s.mu.Lock()
	t, ok := s.mu.tablets[id]
	delete(s.mu.tablets, id)
	delete(s.mu.backoff, id)
	s.mu.Unlock()
	if !ok {
		return errors.Errorf("tablet %d not found", id)
	}
	t.Drop()
	return t.removeData()
}

// Metrics returns the store's prometheus collectors.
func (s *Store) Metrics() *Metrics { return s.metrics }

// Close stops the scheduler and waits for in-flight compactions to
// finish.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}

func (s *Store) schedulerLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.SchedulerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.maybeScheduleCompactions()
		}
	}
}

func (s *Store) maybeScheduleCompactions() {
	now := time.Now()
	s.mu.Lock()
	candidates := make([]*Tablet, 0, len(s.mu.tablets))
	for id, t := range s.mu.tablets {
		if bo, ok := s.mu.backoff[id]; ok && now.Before(bo.nextAttempt) {
			continue
		}
		candidates = append(candidates, t)
	}
	s.mu.Unlock()

	for _, t := range candidates {
		if !t.NeedCompaction() {
			continue
		}
		select {
		case s.workers <- struct{}{}:
		default:
			// Worker pool saturated; try again next tick.
			return
		}
		s.wg.Add(1)
		go func(t *Tablet) {
			defer s.wg.Done()
			defer func() { <-s.workers }()
			s.runCompaction(t)
		}(t)
	}
}

func (s *Store) runCompaction(t *Tablet) {
	task, err := t.CreateCompactionTask()
	if err != nil {
		if !errors.Is(err, ErrNoCandidate) && !errors.Is(err, ErrTabletDropped) {
			s.opts.EventListener.BackgroundError(err)
		}
		return
	}
	ctx, cancel := t.compactionContext(context.Background())
	defer cancel()
	if err := task.Run(ctx); err != nil {
		if !IsRetryable(err) && !errors.Is(err, context.Canceled) {
			s.opts.EventListener.BackgroundError(
				errors.Wrapf(err, "tablet %d compaction", t.id))
		}
		s.recordFailure(t.id)
		return
	}
	s.recordSuccess(t.id)
}

func (s *Store) recordFailure(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bo := s.mu.backoff[id]
	bo.failures++
	backoff := s.opts.SchedulerInterval << uint(bo.failures)
	if backoff > maxCompactionBackoff || backoff <= 0 {
		backoff = maxCompactionBackoff
	}
	bo.nextAttempt = time.Now().Add(backoff)
	s.mu.backoff[id] = bo
}

func (s *Store) recordSuccess(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mu.backoff, id)
}
