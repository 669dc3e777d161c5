// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/cockroachdb/tabletstore/internal/manifest"
	"github.com/stretchr/testify/require"
)

// The picker test fixes its own reference clock so that rowset ages in the
// testdata are stable.
var pickerTestNow = time.Unix(1700000000, 0)

func formatMeta(m *manifest.RowsetMeta) string {
	if m.IsTombstone() {
		return fmt.Sprintf("%s delete", m.Version)
	}
	s := fmt.Sprintf("%s size=%d", m.Version, m.DataSize)
	if m.CarriesDeletes() {
		s += fmt.Sprintf(" deletes=%d", len(m.DeletePredicates))
	}
	return s
}

func formatCatalog(metas []*manifest.RowsetMeta) string {
	sorted := slices.Clone(metas)
	slices.SortFunc(sorted, func(a, b *manifest.RowsetMeta) int {
		switch {
		case a.Version.Start < b.Version.Start:
			return -1
		case a.Version.Start > b.Version.Start:
			return 1
		default:
			return 0
		}
	})
	var sb strings.Builder
	for _, m := range sorted {
		sb.WriteString(formatMeta(m))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestCompactionPicker(t *testing.T) {
	var metas []*manifest.RowsetMeta
	var opts *Options
	var lastPick *pickedCompaction
	var nextID base.RowsetID

	mustCatalog := func(t *testing.T) *manifest.Catalog {
		cat, err := manifest.NewCatalog(metas)
		require.NoError(t, err)
		return cat
	}

	datadriven.RunTest(t, "testdata/compaction_picker", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "define":
			opts = &Options{MinTierSize: 100}
			td.MaybeScanArgs(t, "min-cumulative", &opts.MinCumulativeDeltas)
			td.MaybeScanArgs(t, "max-cumulative", &opts.MaxCumulativeDeltas)
			td.MaybeScanArgs(t, "min-base", &opts.MinBaseDeltas)
			var interval string
			if td.MaybeScanArgs(t, "base-interval", &interval) {
				d, err := time.ParseDuration(interval)
				require.NoError(t, err)
				opts.BaseCompactionInterval = d
			}
			opts.EnsureDefaults()
			metas = nil
			lastPick = nil
			nextID = 1
			for _, line := range strings.Split(td.Input, "\n") {
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}
				v, err := base.ParseVersion(fields[0])
				require.NoError(t, err)
				m := &manifest.RowsetMeta{
					ID:           nextID,
					Version:      v,
					CreationTime: pickerTestNow.Unix(),
				}
				nextID++
				for _, f := range fields[1:] {
					switch {
					case f == "delete":
						m.DeletePredicates = []base.DeletePredicate{{
							Version: v.End, Column: "k1", Values: []string{"0"},
						}}
					case strings.HasPrefix(f, "size="):
						size, err := strconv.ParseInt(strings.TrimPrefix(f, "size="), 10, 64)
						require.NoError(t, err)
						m.DataSize = size
						m.NumRows = size
						m.NumSegments = 1
					case strings.HasPrefix(f, "age="):
						d, err := time.ParseDuration(strings.TrimPrefix(f, "age="))
						require.NoError(t, err)
						m.CreationTime = pickerTestNow.Add(-d).Unix()
					default:
						td.Fatalf(t, "unknown field %q", f)
					}
				}
				metas = append(metas, m)
			}
			mustCatalog(t)
			return ""

		case "catalog":
			return formatCatalog(metas)

		case "tier":
			cat := mustCatalog(t)
			var sb strings.Builder
			for _, is := range cat.Islands() {
				tiers := effectiveTiers(is.Rowsets, opts)
				for i, m := range is.Rowsets {
					fmt.Fprintf(&sb, "%s: %d\n", m.Version, tiers[i])
				}
			}
			return sb.String()

		case "need-compaction":
			pc := pickCompaction(mustCatalog(t), opts, pickerTestNow)
			return fmt.Sprintf("%t\n", pc != nil)

		case "pick":
			lastPick = pickCompaction(mustCatalog(t), opts, pickerTestNow)
			if lastPick == nil {
				return "no compaction\n"
			}
			var sb strings.Builder
			sb.WriteString(lastPick.kind.String())
			sb.WriteString(":")
			for _, m := range lastPick.inputs {
				sb.WriteByte(' ')
				sb.WriteString(m.Version.String())
			}
			fmt.Fprintf(&sb, " -> %s\n", lastPick.outputVersion)
			return sb.String()

		case "apply":
			require.NotNil(t, lastPick)
			out := manifest.MergedMeta(lastPick.inputs, nextID, pickerTestNow.Unix())
			nextID++
			var next []*manifest.RowsetMeta
			for _, m := range metas {
				if !slices.Contains(lastPick.inputs, m) {
					next = append(next, m)
				}
			}
			metas = append(next, out)
			lastPick = nil
			return formatCatalog(metas)

		default:
			td.Fatalf(t, "unknown command %q", td.Cmd)
			return ""
		}
	})
}

func TestTierMonotonic(t *testing.T) {
	opts := (&Options{MinTierSize: 100}).EnsureDefaults()
	prevTier := 0
	for size := int64(0); size <= opts.maxTierSize()*2; size += 37 {
		tier := tierForSize(size, opts)
		require.GreaterOrEqual(t, tier, prevTier, "size %d", size)
		require.GreaterOrEqual(t, tier, minTier)
		require.LessOrEqual(t, tier, opts.TierLevelNum)
		prevTier = tier
	}
	// Ladder boundaries: one rung per multiple.
	require.Equal(t, 2, opts.Tier(0))
	require.Equal(t, 2, opts.Tier(499))
	require.Equal(t, 3, opts.Tier(500))
	require.Equal(t, 3, opts.Tier(2499))
	require.Equal(t, 4, opts.Tier(2500))
	require.Equal(t, opts.TierLevelNum, opts.Tier(1<<40))
}
