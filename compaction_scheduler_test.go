// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"testing"
	"time"

	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/stretchr/testify/require"
)

func TestSchedulerCompactsInBackground(t *testing.T) {
	opts := testOptions()
	opts.SchedulerInterval = 10 * time.Millisecond
	store, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	tab, err := store.CreateTablet(1, 10, base.DupKeys)
	require.NoError(t, err)
	for i := int64(0); i < 6; i++ {
		writeDataVersion(t, tab, i, 2)
	}

	require.Eventually(t, func() bool {
		return tab.VersionCount() == 1
	}, 10*time.Second, 20*time.Millisecond)
	requireVersions(t, tab, v(0, 5))
}

func TestSchedulerSkipsGappedTablets(t *testing.T) {
	opts := testOptions()
	opts.SchedulerInterval = 10 * time.Millisecond
	store, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	tab, err := store.CreateTablet(1, 10, base.DupKeys)
	require.NoError(t, err)
	writeDataVersion(t, tab, 0, 2)
	writeDataVersion(t, tab, 2, 2)

	// Two islands of one rowset each: nothing for the scheduler to do.
	time.Sleep(100 * time.Millisecond)
	requireVersions(t, tab, v(0, 0), v(2, 2))
}

func TestSchedulerBackoff(t *testing.T) {
	opts := testOptions()
	store, err := Open(t.TempDir(), opts)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	store.recordFailure(1)
	store.mu.Lock()
	first := store.mu.backoff[1]
	store.mu.Unlock()
	require.Equal(t, 1, first.failures)
	require.True(t, first.nextAttempt.After(time.Now()))

	store.recordFailure(1)
	store.mu.Lock()
	second := store.mu.backoff[1]
	store.mu.Unlock()
	require.Equal(t, 2, second.failures)
	require.True(t, second.nextAttempt.After(first.nextAttempt))

	store.recordSuccess(1)
	store.mu.Lock()
	_, ok := store.mu.backoff[1]
	store.mu.Unlock()
	require.False(t, ok)
}
