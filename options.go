// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"time"

	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// minTier is the smallest working tier. Rowsets below MinTierSize land
	// here; tier 0 and 1 are reserved so that tier arithmetic on tombstones
	// (which have zero data size) never collides with real data tiers.
	minTier = 2
)

// Options holds the configuration for a store and the compaction policy of
// its tablets. Process-level configuration is only a source for an Options
// value; the compaction picker consults Options alone, which keeps it pure
// and testable.
type Options struct {
	// TierLevelMultiple is the geometric factor M between size tiers.
	// Merging all rowsets of one tier yields roughly a rowset of the next.
	//
	// The default value is 5.
	TierLevelMultiple int64

	// TierLevelNum is the largest tier Lmax. Rowsets bigger than the
	// ladder's top rung are all classified as Lmax.
	//
	// The default value is 7.
	TierLevelNum int

	// MinTierSize is the floor size of the ladder: any rowset at or below
	// this size is tier 2.
	//
	// The default value is 128KB.
	MinTierSize int64

	// MinCumulativeDeltas is the minimum length of a run picked for
	// cumulative compaction.
	//
	// The default value is 5.
	MinCumulativeDeltas int

	// MaxCumulativeDeltas caps the length of a cumulative run; longer
	// candidates keep their first MaxCumulativeDeltas rowsets.
	//
	// The default value is 1000.
	MaxCumulativeDeltas int

	// MinBaseDeltas is the minimum number of rowsets in the version-0
	// prefix before a size-driven base compaction is considered.
	//
	// The default value is 10.
	MinBaseDeltas int

	// BaseCompactionInterval forces a base compaction over a gap-free
	// catalog when no rowset has been written or compacted for this long.
	//
	// The default value is 24h.
	BaseCompactionInterval time.Duration

	// MaxCompactionConcurrency bounds the number of compactions the store
	// runs in parallel across tablets. Within a single tablet at most one
	// compaction runs at a time regardless of this setting.
	//
	// The default value is 4.
	MaxCompactionConcurrency int

	// CompactionBytesPerSec rate limits compaction writes so that merges do
	// not contend with foreground traffic. Zero disables pacing.
	CompactionBytesPerSec int64

	// CompactionMemoryBudget bounds the total merge buffer memory of
	// concurrent compactions. A task that cannot reserve its estimate fails
	// with ErrMemoryExhausted and is retried later.
	//
	// The default value is 512MB.
	CompactionMemoryBudget int64

	// SchedulerInterval is how often the background scheduler polls the
	// store's tablets for compaction work.
	//
	// The default value is 5s.
	SchedulerInterval time.Duration

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger base.Logger

	// EventListener provides hooks into significant store events.
	EventListener base.EventListener

	// MetricsRegisterer, if set, has the store's prometheus collectors
	// registered with it on Open.
	MetricsRegisterer prometheus.Registerer
}

// EnsureDefaults ensures that the default values for all options are set if
// a valid value was not already specified. Returns the options for chaining.
func (o *Options) EnsureDefaults() *Options {
	if o.TierLevelMultiple <= 1 {
		o.TierLevelMultiple = 5
	}
	if o.TierLevelNum < minTier {
		o.TierLevelNum = 7
	}
	if o.MinTierSize <= 0 {
		o.MinTierSize = 128 << 10 // 128 KB
	}
	if o.MinCumulativeDeltas < 2 {
		o.MinCumulativeDeltas = 5
	}
	if o.MaxCumulativeDeltas <= 0 {
		o.MaxCumulativeDeltas = 1000
	}
	if o.MinBaseDeltas <= 0 {
		o.MinBaseDeltas = 10
	}
	if o.BaseCompactionInterval <= 0 {
		o.BaseCompactionInterval = 24 * time.Hour
	}
	if o.MaxCompactionConcurrency <= 0 {
		o.MaxCompactionConcurrency = 4
	}
	if o.CompactionMemoryBudget <= 0 {
		o.CompactionMemoryBudget = 512 << 20 // 512 MB
	}
	if o.SchedulerInterval <= 0 {
		o.SchedulerInterval = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	o.EventListener.EnsureDefaults(o.Logger)
	return o
}

// maxTierSize returns the size of the ladder's top rung: rowsets at or
// beyond it are tier TierLevelNum.
func (o *Options) maxTierSize() int64 {
	size := o.MinTierSize
	for t := minTier; t < o.TierLevelNum; t++ {
		size *= o.TierLevelMultiple
	}
	return size
}
