// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/tabletstore/internal/manifest"
	"github.com/stretchr/testify/require"
)

func TestApplyRevalidation(t *testing.T) {
	tab := newTestTablet(t, testOptions())
	writeDataVersion(t, tab, 0, 2)
	writeDataVersion(t, tab, 1, 2)

	task, err := tab.CreateCompactionTask()
	require.NoError(t, err)
	require.Equal(t, "cumulative", task.Kind())
	require.Equal(t, v(0, 1), task.OutputVersion())

	out := manifest.MergedMeta(task.inputs, tab.AllocRowsetID(), time.Now().Unix())
	require.NoError(t, tab.applyCompaction(task, out))
	requireVersions(t, tab, v(0, 1))

	// The inputs are gone; a second apply of the same task must not touch
	// the catalog.
	out2 := manifest.MergedMeta(task.inputs, tab.AllocRowsetID(), time.Now().Unix())
	require.ErrorIs(t, tab.applyCompaction(task, out2), ErrCatalogChanged)
	requireVersions(t, tab, v(0, 1))
	tab.compactionDone()
}

func TestCompactionCancellation(t *testing.T) {
	tab := newTestTablet(t, testOptions())
	writeDataVersion(t, tab, 0, 2)
	writeDataVersion(t, tab, 1, 2)

	task, err := tab.CreateCompactionTask()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, task.Run(ctx), context.Canceled)

	// The catalog is untouched and the tablet accepts a new task.
	requireVersions(t, tab, v(0, 0), v(1, 1))
	require.NoError(t, compact(t, tab))
	requireVersions(t, tab, v(0, 1))
}

func TestDropCancelsCompaction(t *testing.T) {
	tab := newTestTablet(t, testOptions())
	writeDataVersion(t, tab, 0, 2)
	writeDataVersion(t, tab, 1, 2)

	task, err := tab.CreateCompactionTask()
	require.NoError(t, err)
	ctx, cancel := tab.compactionContext(context.Background())
	defer cancel()
	tab.Drop()
	require.Error(t, task.Run(ctx))
	requireVersions(t, tab, v(0, 0), v(1, 1))

	require.ErrorIs(t, tab.AddRowset(&manifest.RowsetMeta{}), ErrTabletDropped)
	_, err = tab.CreateCompactionTask()
	require.ErrorIs(t, err, ErrTabletDropped)
}

func TestSingleCompactionPerTablet(t *testing.T) {
	tab := newTestTablet(t, testOptions())
	writeDataVersion(t, tab, 0, 2)
	writeDataVersion(t, tab, 1, 2)

	task, err := tab.CreateCompactionTask()
	require.NoError(t, err)
	require.False(t, tab.NeedCompaction())
	_, err = tab.CreateCompactionTask()
	require.ErrorIs(t, err, ErrNoCandidate)

	require.NoError(t, task.Run(context.Background()))
	requireVersions(t, tab, v(0, 1))
}

func TestMemTracker(t *testing.T) {
	tr := newMemTracker(10)

	got, err := tr.reserve(6)
	require.NoError(t, err)
	require.Equal(t, int64(6), got)

	_, err = tr.reserve(6)
	require.ErrorIs(t, err, ErrMemoryExhausted)

	tr.release(got)
	got, err = tr.reserve(6)
	require.NoError(t, err)
	tr.release(got)

	// Oversized reservations are clamped so a big merge can run alone.
	got, err = tr.reserve(100)
	require.NoError(t, err)
	require.Equal(t, int64(10), got)
	tr.release(got)
}

func TestCompactionPacerDisabled(t *testing.T) {
	p := newCompactionPacer(0)
	require.NoError(t, p.pace(context.Background(), 1<<30))
}

func TestCompactionPacerCancellation(t *testing.T) {
	// One byte/sec with an empty bucket: pace must block until the context
	// is canceled.
	p := newCompactionPacer(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.pace(ctx, 1))
	cancel()
	err := p.pace(ctx, 1<<20)
	require.ErrorIs(t, err, context.Canceled)
}
