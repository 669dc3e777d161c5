// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOptionsEnsureDefaults(t *testing.T) {
	opts := (&Options{}).EnsureDefaults()
	require.Equal(t, int64(5), opts.TierLevelMultiple)
	require.Equal(t, 7, opts.TierLevelNum)
	require.Equal(t, int64(128<<10), opts.MinTierSize)
	require.Equal(t, 5, opts.MinCumulativeDeltas)
	require.Equal(t, 1000, opts.MaxCumulativeDeltas)
	require.Equal(t, 10, opts.MinBaseDeltas)
	require.Equal(t, 24*time.Hour, opts.BaseCompactionInterval)
	require.Equal(t, 4, opts.MaxCompactionConcurrency)
	require.NotNil(t, opts.Logger)
	require.NotNil(t, opts.EventListener.CompactionBegin)
	require.NotNil(t, opts.EventListener.BackgroundError)

	// Explicit values survive.
	opts = (&Options{MinCumulativeDeltas: 2, TierLevelMultiple: 3}).EnsureDefaults()
	require.Equal(t, 2, opts.MinCumulativeDeltas)
	require.Equal(t, int64(3), opts.TierLevelMultiple)
}

func TestOptionsMaxTierSize(t *testing.T) {
	opts := (&Options{MinTierSize: 100}).EnsureDefaults()
	// Five rungs above the floor with the default multiple of 5.
	require.Equal(t, int64(100*5*5*5*5*5), opts.maxTierSize())
}
