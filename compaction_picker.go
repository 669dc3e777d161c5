// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"time"

	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/cockroachdb/tabletstore/internal/manifest"
)

type compactionKind int8

const (
	// compactionKindCumulative merges a run of similar-sized rowsets in the
	// non-base region.
	compactionKindCumulative compactionKind = iota
	// compactionKindBase merges the version-0 prefix into a single rowset.
	compactionKindBase
	// compactionKindBacktrace pulls a delete down into the larger rowsets
	// to its left so that orphan tombstones cannot block cumulative work.
	compactionKindBacktrace
)

// String implements fmt.Stringer.
func (k compactionKind) String() string {
	switch k {
	case compactionKindCumulative:
		return "cumulative"
	case compactionKindBase:
		return "base"
	case compactionKindBacktrace:
		return "backtrace"
	default:
		return "unknown"
	}
}

// SafeFormat implements redact.SafeFormatter.
func (k compactionKind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(k.String()))
}

// pickedCompaction describes the run the policy selected and what kind of
// task it becomes. The inputs are a contiguous, gap-free sub-slice of the
// catalog snapshot the pick ran against.
type pickedCompaction struct {
	kind          compactionKind
	inputs        []*manifest.RowsetMeta
	outputVersion base.Version
}

func newPickedCompaction(kind compactionKind, inputs []*manifest.RowsetMeta) *pickedCompaction {
	return &pickedCompaction{
		kind:   kind,
		inputs: inputs,
		outputVersion: base.MakeVersion(
			inputs[0].Version.Start, inputs[len(inputs)-1].Version.End),
	}
}

// tierForSize maps a rowset data size onto the geometric size ladder. The
// ladder starts at MinTierSize (tier 2) and multiplies by TierLevelMultiple
// per rung, capped at TierLevelNum. Monotonic in size.
func tierForSize(size int64, opts *Options) int {
	tier := minTier
	for rung := opts.MinTierSize * opts.TierLevelMultiple; size >= rung && tier < opts.TierLevelNum; rung *= opts.TierLevelMultiple {
		tier++
	}
	return tier
}

// effectiveTiers assigns a tier to every rowset of a gap-free run.
// Tombstones have no data of their own; they inherit the tier of the next
// non-tombstone rowset to their right, or the nearest to their left if none
// exists, so that they flow with the run that carries them instead of
// dragging every small compaction toward tier 0.
func effectiveTiers(rs []*manifest.RowsetMeta, opts *Options) []int {
	tiers := make([]int, len(rs))
	lastData := -1
	for i, m := range rs {
		if m.IsTombstone() {
			tiers[i] = -1
			continue
		}
		tiers[i] = tierForSize(m.DataSize, opts)
		// Pending tombstones to the left inherit from this rowset.
		for j := lastData + 1; j < i; j++ {
			tiers[j] = tiers[i]
		}
		lastData = i
	}
	if lastData < 0 {
		// No data at all; park every tombstone on the minimum tier.
		for i := range tiers {
			tiers[i] = minTier
		}
		return tiers
	}
	// Trailing tombstones inherit from the last data rowset.
	for j := lastData + 1; j < len(rs); j++ {
		tiers[j] = tiers[lastData]
	}
	return tiers
}

func hasData(rs []*manifest.RowsetMeta) bool {
	for _, m := range rs {
		if !m.IsTombstone() {
			return true
		}
	}
	return false
}

// tierGroups splits a gap-free run into cumulative candidate groups. A
// group accumulates while sizes stay within one tier step of the group's
// first data rowset: it breaks when a rowset falls more than a
// (TierLevelMultiple-1) factor below that anchor, unless the anchor is at
// or below MinTierSize (where everything is tier 2). Ascending sizes never
// break, which is what squashes the small-to-big pattern left behind by a
// bulk load in one task. Tombstones are transparent; a tombstone between
// groups attaches to the group on its right, matching the tier it
// inherits.
func tierGroups(rs []*manifest.RowsetMeta, opts *Options) [][]*manifest.RowsetMeta {
	maxSize := opts.maxTierSize()
	var groups [][]*manifest.RowsetMeta
	start := 0
	anchor := int64(-1)
	pendingTomb := -1
	for i, m := range rs {
		if m.IsTombstone() {
			if pendingTomb < 0 {
				pendingTomb = i
			}
			continue
		}
		size := m.DataSize
		if size <= 0 {
			size = 1
		}
		if size > maxSize {
			size = maxSize
		}
		if anchor < 0 {
			anchor = size
			pendingTomb = -1
			continue
		}
		if anchor > opts.MinTierSize && size < anchor &&
			float64(anchor)/float64(size) > float64(opts.TierLevelMultiple-1) {
			brk := i
			if pendingTomb >= 0 {
				brk = pendingTomb
			}
			groups = append(groups, rs[start:brk])
			start = brk
			anchor = size
		}
		pendingTomb = -1
	}
	if start < len(rs) {
		groups = append(groups, rs[start:])
	}
	return groups
}

// deleteSafeSegments returns the sub-runs of an island that a cumulative
// run may be drawn from. In an island rooted at version 0 every rowset is
// fair game: all versions a tombstone applies to are present. In an island
// behind a gap, rowsets carrying delete predicates are off limits (their
// predicates have not been applied to the missing versions) and split the
// island into data-only segments.
func deleteSafeSegments(is manifest.Island) [][]*manifest.RowsetMeta {
	if is.RootedAtZero() || !is.ContainsDeletes() {
		return [][]*manifest.RowsetMeta{is.Rowsets}
	}
	var segs [][]*manifest.RowsetMeta
	start := 0
	for i, m := range is.Rowsets {
		if m.CarriesDeletes() {
			if i > start {
				segs = append(segs, is.Rowsets[start:i])
			}
			start = i + 1
		}
	}
	if start < len(is.Rowsets) {
		segs = append(segs, is.Rowsets[start:])
	}
	return segs
}

// pickCompaction selects at most one compaction for the catalog snapshot.
// Selection order, first match wins: forced base (the catalog went stale),
// backtrace (a delete is stranded above bigger data), cumulative
// (size-tier run merge), size-driven base. Returns nil when there is
// nothing worth doing.
func pickCompaction(cat *manifest.Catalog, opts *Options, now time.Time) *pickedCompaction {
	if cat.Len() < 2 {
		return nil
	}
	islands := cat.Islands()
	prefix := islands[0]
	rooted := prefix.RootedAtZero()

	// Forced base compaction: if nothing has been written or compacted for
	// BaseCompactionInterval and the prefix is gap-free from version 0,
	// squash the whole prefix. Trailing tombstones are absorbed.
	if rooted && len(prefix.Rowsets) >= 2 && hasData(prefix.Rowsets) {
		newest := int64(0)
		for _, m := range cat.Rowsets() {
			if m.CreationTime > newest {
				newest = m.CreationTime
			}
		}
		if now.Sub(time.Unix(newest, 0)) >= opts.BaseCompactionInterval {
			return newPickedCompaction(compactionKindBase, prefix.Rowsets)
		}
	}

	// Backtrace compaction: a rowset carrying delete predicates whose left
	// neighbor sits on a strictly larger tier means the tombstone's data
	// lives below it. Merge the whole prefix up to the carrier so the
	// delete lands in the tier where its rows are. Only legal when every
	// version below the carrier is present, i.e. the prefix is rooted at 0.
	deletes := manifest.MakeDeleteTracker(cat)
	if rooted && !deletes.Empty() {
		tiers := effectiveTiers(prefix.Rowsets, opts)
		for i := 1; i < len(prefix.Rowsets); i++ {
			if prefix.Rowsets[i].CarriesDeletes() && tiers[i-1] > tiers[i] {
				run := prefix.Rowsets[:i+1]
				if hasData(run) {
					return newPickedCompaction(compactionKindBacktrace, run)
				}
			}
		}
	}

	// Cumulative compaction: across all islands, find the best same-tier
	// run. Longest wins; ties prefer the smaller starting tier (smallest
	// files first, cheapest merge), then the smaller start version.
	var best []*manifest.RowsetMeta
	bestTier := 0
	for _, is := range islands {
		for _, seg := range deleteSafeSegments(is) {
			for _, g := range tierGroups(seg, opts) {
				if len(g) > opts.MaxCumulativeDeltas {
					g = g[:opts.MaxCumulativeDeltas]
				}
				if len(g) < opts.MinCumulativeDeltas || !hasData(g) {
					continue
				}
				tier := startingTier(g, opts)
				switch {
				case best == nil,
					len(g) > len(best),
					len(g) == len(best) && tier < bestTier,
					len(g) == len(best) && tier == bestTier &&
						g[0].Version.Start < best[0].Version.Start:
					best = g
					bestTier = tier
				}
			}
		}
	}
	if best != nil {
		return newPickedCompaction(compactionKindCumulative, best)
	}

	// Size-driven base compaction: a long enough version-0 prefix whose
	// merged size would dominate the rowset to its right.
	if rooted && len(prefix.Rowsets) >= opts.MinBaseDeltas && hasData(prefix.Rowsets) {
		var total int64
		for _, m := range prefix.Rowsets {
			total += m.DataSize
		}
		ok := true
		if len(islands) > 1 {
			ok = total > islands[1].Rowsets[0].DataSize
		}
		if ok {
			return newPickedCompaction(compactionKindBase, prefix.Rowsets)
		}
	}

	return nil
}

// startingTier is the tier of the first data rowset of a run; used only
// for ranking equal-length cumulative candidates.
func startingTier(rs []*manifest.RowsetMeta, opts *Options) int {
	for _, m := range rs {
		if !m.IsTombstone() {
			return tierForSize(m.DataSize, opts)
		}
	}
	return minTier
}

// Tier returns the size tier the ladder assigns to a rowset of the given
// data size.
func (o *Options) Tier(size int64) int { return tierForSize(size, o) }

// Plan describes the compaction the policy would pick for a catalog, in a
// form suitable for tooling; see cmd/tabletstore.
type Plan struct {
	Kind   string
	Inputs []base.Version
	Output base.Version
}

// PlanCompaction runs the selection algorithm over a standalone set of
// rowset metas without a tablet. It returns false when the policy declines.
func PlanCompaction(metas []*manifest.RowsetMeta, opts *Options, now time.Time) (Plan, bool) {
	opts.EnsureDefaults()
	cat, err := manifest.NewCatalog(metas)
	if err != nil {
		return Plan{}, false
	}
	pc := pickCompaction(cat, opts, now)
	if pc == nil {
		return Plan{}, false
	}
	p := Plan{Kind: pc.kind.String(), Output: pc.outputVersion}
	for _, m := range pc.inputs {
		p.Inputs = append(p.Inputs, m.Version)
	}
	return p, true
}
