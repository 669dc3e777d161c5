// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/cockroachdb/tabletstore/internal/manifest"
)

// Tablet is a horizontal shard of a table: a sequence of immutable,
// versioned rowsets sharing a schema. The tablet owns its catalog under
// the meta mutex; the compaction picker runs against snapshots, and the
// lock is dropped for the duration of a merge.
type Tablet struct {
	id          int64
	partitionID int64
	keysType    base.KeysType
	dir         string

	opts    *Options
	metrics *Metrics
	mem     *memTracker
	pacer   *compactionPacer

	mu struct {
		sync.Mutex
		catalog      *manifest.Catalog
		nextRowsetID base.RowsetID
		// compacting enforces the single in-flight compaction per tablet.
		compacting bool
		dropped    bool
		cancel     context.CancelFunc
	}
}

func newTablet(
	dir string, meta *manifest.TabletMeta, opts *Options,
	metrics *Metrics, mem *memTracker, pacer *compactionPacer,
) (*Tablet, error) {
	cat, err := manifest.NewCatalog(meta.Rowsets)
	if err != nil {
		return nil, errors.Wrapf(err, "tablet %d", meta.TabletID)
	}
	t := &Tablet{
		id:          meta.TabletID,
		partitionID: meta.PartitionID,
		keysType:    meta.KeysType,
		dir:         dir,
		opts:        opts,
		metrics:     metrics,
		mem:         mem,
		pacer:       pacer,
	}
	t.mu.catalog = cat
	t.mu.nextRowsetID = meta.NextRowsetID
	if t.mu.nextRowsetID == 0 {
		t.mu.nextRowsetID = 1
	}
	return t, nil
}

// ID returns the tablet id.
func (t *Tablet) ID() int64 { return t.id }

// Dir returns the tablet's data directory.
func (t *Tablet) Dir() string { return t.dir }

// KeysType returns the key semantics of the tablet's schema.
func (t *Tablet) KeysType() base.KeysType { return t.keysType }

// AllocRowsetID allocates a fresh rowset id for an ingest writer.
func (t *Tablet) AllocRowsetID() base.RowsetID {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.mu.nextRowsetID
	t.mu.nextRowsetID++
	return id
}

// AddRowset installs an ingested rowset's meta into the catalog and
// persists the tablet meta. It is an error for the version to overlap an
// existing rowset.
func (t *Tablet) AddRowset(m *manifest.RowsetMeta) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mu.dropped {
		return ErrTabletDropped
	}
	next := t.mu.catalog.Clone()
	if err := next.Add(m); err != nil {
		return err
	}
	if err := t.persistLocked(next); err != nil {
		return err
	}
	t.mu.catalog = next
	return nil
}

// persistLocked writes the tablet meta for the given catalog. The
// in-memory catalog is only swapped by the caller after a successful
// write, so a persistence failure leaves both disk and memory on the old
// state.
func (t *Tablet) persistLocked(cat *manifest.Catalog) error {
	meta := &manifest.TabletMeta{
		TabletID:     t.id,
		PartitionID:  t.partitionID,
		KeysType:     t.keysType,
		NextRowsetID: t.mu.nextRowsetID,
		Rowsets:      cat.Rowsets(),
	}
	return manifest.StoreTabletMeta(t.dir, meta)
}

// Versions returns the sorted version intervals currently in the catalog.
func (t *Tablet) Versions() []base.Version {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mu.catalog.Versions()
}

// VersionCount returns the number of rowsets in the catalog.
func (t *Tablet) VersionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mu.catalog.Len()
}

// NeedCompaction reports whether the policy would pick a compaction for
// the current catalog. The answer is advisory: a racing ingest can change
// it before CreateCompactionTask runs.
func (t *Tablet) NeedCompaction() bool {
	t.mu.Lock()
	snap := t.mu.catalog.Clone()
	compacting := t.mu.compacting || t.mu.dropped
	t.mu.Unlock()
	if compacting {
		return false
	}
	return pickCompaction(snap, t.opts, time.Now()) != nil
}

// CreateCompactionTask snapshots the catalog, runs selection and builds an
// executable task. Returns ErrNoCandidate when the policy declines, which
// can happen even right after NeedCompaction returned true. At most one
// task per tablet exists at a time; the task's Run releases the slot.
func (t *Tablet) CreateCompactionTask() (*Compaction, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mu.dropped {
		return nil, ErrTabletDropped
	}
	if t.mu.compacting {
		return nil, ErrNoCandidate
	}
	pc := pickCompaction(t.mu.catalog.Clone(), t.opts, time.Now())
	if pc == nil {
		return nil, ErrNoCandidate
	}
	id := t.mu.nextRowsetID
	t.mu.nextRowsetID++
	t.mu.compacting = true
	return &Compaction{
		tablet:   t,
		kind:     pc.kind,
		inputs:   pc.inputs,
		output:   pc.outputVersion,
		outputID: id,
	}, nil
}

func (t *Tablet) compactionDone() {
	t.mu.Lock()
	t.mu.compacting = false
	t.mu.Unlock()
}

// applyCompaction re-validates the task's inputs against the live catalog
// and atomically swaps them for the output meta. Readers observing the
// output's version span see exactly the same logical rows as before; only
// the physical rowset boundaries change.
func (t *Tablet) applyCompaction(c *Compaction, output *manifest.RowsetMeta) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mu.dropped {
		return ErrTabletDropped
	}
	if !t.mu.catalog.ContainsAll(c.inputs) {
		return ErrCatalogChanged
	}
	next := t.mu.catalog.Clone()
	if err := next.Replace(c.inputs, output); err != nil {
		return errors.Mark(err, ErrCatalogChanged)
	}
	if err := t.persistLocked(next); err != nil {
		return err
	}
	t.mu.catalog = next
	return nil
}

// Drop marks the tablet dropped and signals its in-flight compaction. The
// task observes the signal through its context and aborts; the catalog is
// not mutated afterwards.
func (t *Tablet) Drop() {
	t.mu.Lock()
	t.mu.dropped = true
	cancel := t.mu.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// compactionContext derives the context a compaction runs under: canceled
// when the parent is, or when the tablet is dropped.
func (t *Tablet) compactionContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	t.mu.Lock()
	t.mu.cancel = cancel
	dropped := t.mu.dropped
	t.mu.Unlock()
	if dropped {
		cancel()
	}
	return ctx, cancel
}

// removeData deletes the tablet's directory. Called by the store right
// after Drop; it does not wait for a canceled compaction to return.
func (t *Tablet) removeData() error {
	return os.RemoveAll(t.dir)
}
