// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/cockroachdb/tabletstore/internal/manifest"
	"github.com/cockroachdb/tabletstore/rowset"
)

// compactionMemoryEstimate is the merge buffer budget a task reserves
// before touching disk, covering its input read buffers and the writer's
// scratch space. It is a fixed amount, whatever the number of inputs.
const compactionMemoryEstimate = 8 << 20 // 8 MB

// Compaction is an executable compaction task: a picked run of input
// rowsets, the output they will be replaced with, and the machinery to run
// the merge and install the result. A Compaction holds references to its
// input rowsets; they are destroyed only after the replacement has been
// applied.
type Compaction struct {
	tablet   *Tablet
	kind     compactionKind
	inputs   []*manifest.RowsetMeta
	output   base.Version
	outputID base.RowsetID

	beganAt crtime.Mono
}

// Kind returns the compaction kind as a string: "cumulative", "base" or
// "backtrace".
func (c *Compaction) Kind() string { return c.kind.String() }

// OutputVersion returns the version span the output rowset will cover.
func (c *Compaction) OutputVersion() base.Version { return c.output }

// InputVersions returns the versions of the input rowsets, in catalog
// order.
func (c *Compaction) InputVersions() []base.Version {
	vs := make([]base.Version, len(c.inputs))
	for i, m := range c.inputs {
		vs[i] = m.Version
	}
	return vs
}

func (c *Compaction) info() base.CompactionInfo {
	return base.CompactionInfo{
		TabletID: c.tablet.id,
		Kind:     c.kind.String(),
		Inputs:   c.InputVersions(),
		Output:   c.output,
	}
}

// Run executes the merge and, on success, installs the output into the
// tablet's catalog. On any failure the catalog is untouched and the
// partial output is removed. Cancellation is cooperative and checked
// between chunk writes.
func (c *Compaction) Run(ctx context.Context) error {
	t := c.tablet
	c.beganAt = crtime.NowMono()

	info := c.info()
	t.opts.EventListener.CompactionBegin(info)
	t.metrics.CompactionsInProgress.Inc()

	err := c.run(ctx)

	t.metrics.CompactionsInProgress.Dec()
	info.Duration = c.beganAt.Elapsed()
	info.Err = err
	t.opts.EventListener.CompactionEnd(info)
	t.compactionDone()

	if err != nil {
		t.metrics.CompactionsFailed.Inc()
		return err
	}
	t.metrics.CompactionsCompleted.WithLabelValues(c.kind.String()).Inc()
	t.metrics.CompactionDuration.Observe(info.Duration.Seconds())
	return nil
}

func (c *Compaction) run(ctx context.Context) error {
	t := c.tablet

	reserved, err := t.mem.reserve(compactionMemoryEstimate)
	if err != nil {
		return err
	}
	defer t.mem.release(reserved)

	w := rowset.NewWriter(rowset.WriterContext{
		TabletID:    t.id,
		PartitionID: t.partitionID,
		RowsetID:    c.outputID,
		Version:     c.output,
		KeysType:    t.keysType,
		Dir:         t.dir,
	})

	for _, in := range c.inputs {
		if err := c.copyRowset(ctx, in, w); err != nil {
			w.Abort()
			return err
		}
	}
	res, err := w.Build()
	if err != nil {
		w.Abort()
		return errors.Wrapf(err, "building compaction output %s", c.outputID)
	}
	t.metrics.CompactionBytesWritten.Add(float64(res.DataSize))

	out := manifest.MergedMeta(c.inputs, c.outputID, time.Now().Unix())
	out.NumRows = res.NumRows
	out.DataSize = res.DataSize
	out.NumSegments = res.NumSegments

	if err := t.applyCompaction(c, out); err != nil {
		_ = rowset.RemoveSegments(t.dir, c.outputID, res.NumSegments)
		return err
	}

	// The inputs are out of the catalog; their files can go. Best effort:
	// a leaked segment is reclaimed by the next store scrub, not a
	// correctness problem.
	for _, in := range c.inputs {
		if err := rowset.RemoveSegments(t.dir, in.ID, in.NumSegments); err != nil {
			t.opts.EventListener.BackgroundError(
				errors.Wrapf(err, "removing compacted rowset %s", in.ID))
		}
	}
	return nil
}

func (c *Compaction) copyRowset(
	ctx context.Context, in *manifest.RowsetMeta, w *rowset.Writer,
) error {
	if in.NumSegments == 0 {
		// Pure tombstone: predicates travel on the output meta, there is
		// no data to copy.
		return nil
	}
	t := c.tablet
	r, err := rowset.OpenReader(t.dir, in.ID, in.NumSegments)
	if err != nil {
		return errors.Wrapf(err, "opening compaction input %s", in.ID)
	}
	defer func() { _ = r.Close() }()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading compaction input %s", in.ID)
		}
		if err := t.pacer.pace(ctx, int64(len(chunk.Data))); err != nil {
			return err
		}
		if err := w.AddChunk(chunk); err != nil {
			return err
		}
	}
}
