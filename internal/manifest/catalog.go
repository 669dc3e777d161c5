// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package manifest

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore/internal/base"
)

// Catalog is the set of rowset metas owned by a tablet, kept sorted by
// Version.Start. The version intervals are pairwise disjoint; the union may
// have gaps, which represent versions that have not shipped yet.
//
// A Catalog is not safe for concurrent use; the owning tablet serializes
// access under its meta mutex and hands immutable snapshots to the
// compaction picker.
type Catalog struct {
	rowsets []*RowsetMeta
}

// NewCatalog returns a catalog over the given metas. The metas are sorted;
// an error is returned if any two overlap.
func NewCatalog(metas []*RowsetMeta) (*Catalog, error) {
	c := &Catalog{}
	for _, m := range metas {
		if err := c.Add(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Len returns the number of rowsets.
func (c *Catalog) Len() int { return len(c.rowsets) }

// At returns the i'th rowset in version order.
func (c *Catalog) At(i int) *RowsetMeta { return c.rowsets[i] }

// Rowsets returns the underlying sorted slice. The caller must not mutate
// it.
func (c *Catalog) Rowsets() []*RowsetMeta { return c.rowsets }

// Add inserts a rowset meta, maintaining sort order. It is an error for the
// new version to overlap an existing rowset.
func (c *Catalog) Add(m *RowsetMeta) error {
	if err := m.Validate(); err != nil {
		return err
	}
	i, _ := slices.BinarySearchFunc(c.rowsets, m, func(a, b *RowsetMeta) int {
		switch {
		case a.Version.Start < b.Version.Start:
			return -1
		case a.Version.Start > b.Version.Start:
			return 1
		default:
			return 0
		}
	})
	if i > 0 && c.rowsets[i-1].Version.Overlaps(m.Version) {
		return errors.Errorf("rowset %s overlaps %s", m, c.rowsets[i-1])
	}
	if i < len(c.rowsets) && c.rowsets[i].Version.Overlaps(m.Version) {
		return errors.Errorf("rowset %s overlaps %s", m, c.rowsets[i])
	}
	c.rowsets = slices.Insert(c.rowsets, i, m)
	return nil
}

// Clone returns a snapshot of the catalog. The metas themselves are
// immutable and shared.
func (c *Catalog) Clone() *Catalog {
	return &Catalog{rowsets: slices.Clone(c.rowsets)}
}

// Island is a maximal gap-free run of the catalog: consecutive rowsets with
// no missed version between them. Compaction candidates never cross island
// boundaries.
type Island struct {
	// Rowsets is a sub-slice of the catalog's sorted rowsets.
	Rowsets []*RowsetMeta
}

// RootedAtZero reports whether the island begins at version 0, i.e. no
// version below it is missing.
func (is Island) RootedAtZero() bool {
	return len(is.Rowsets) > 0 && is.Rowsets[0].Version.Start == 0
}

// ContainsDeletes reports whether any rowset in the island carries delete
// predicates.
func (is Island) ContainsDeletes() bool {
	for _, m := range is.Rowsets {
		if m.CarriesDeletes() {
			return true
		}
	}
	return false
}

// Islands partitions the catalog into maximal gap-free runs.
func (c *Catalog) Islands() []Island {
	var islands []Island
	start := 0
	for i := 1; i < len(c.rowsets); i++ {
		if !c.rowsets[i-1].Version.Precedes(c.rowsets[i].Version) {
			islands = append(islands, Island{Rowsets: c.rowsets[start:i]})
			start = i
		}
	}
	if len(c.rowsets) > 0 {
		islands = append(islands, Island{Rowsets: c.rowsets[start:]})
	}
	return islands
}

// GapFreeFromZero reports whether the catalog is a single island starting
// at version 0.
func (c *Catalog) GapFreeFromZero() bool {
	if len(c.rowsets) == 0 || c.rowsets[0].Version.Start != 0 {
		return false
	}
	for i := 1; i < len(c.rowsets); i++ {
		if !c.rowsets[i-1].Version.Precedes(c.rowsets[i].Version) {
			return false
		}
	}
	return true
}

// ContainsAll reports whether every meta in inputs is still present in the
// catalog, matched by rowset ID and version. Used by apply-time
// re-validation: a racing ingest or a concurrent catalog mutation makes a
// previously picked compaction stale.
func (c *Catalog) ContainsAll(inputs []*RowsetMeta) bool {
	for _, in := range inputs {
		i, found := slices.BinarySearchFunc(c.rowsets, in, func(a, b *RowsetMeta) int {
			switch {
			case a.Version.Start < b.Version.Start:
				return -1
			case a.Version.Start > b.Version.Start:
				return 1
			default:
				return 0
			}
		})
		if !found || c.rowsets[i].ID != in.ID || c.rowsets[i].Version != in.Version {
			return false
		}
	}
	return true
}

// Replace atomically swaps the input metas for the single output meta. The
// inputs must be present (by ID and version) and contiguous in the catalog,
// and the output version must equal their combined span. The catalog is
// left untouched on error.
func (c *Catalog) Replace(inputs []*RowsetMeta, output *RowsetMeta) error {
	if len(inputs) == 0 {
		return errors.New("replace with no inputs")
	}
	if !c.ContainsAll(inputs) {
		return errors.Errorf("catalog changed: input rowsets no longer present")
	}
	first, found := slices.BinarySearchFunc(c.rowsets, inputs[0], func(a, b *RowsetMeta) int {
		switch {
		case a.Version.Start < b.Version.Start:
			return -1
		case a.Version.Start > b.Version.Start:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return errors.Errorf("catalog changed: input rowsets no longer present")
	}
	for i := range inputs {
		if first+i >= len(c.rowsets) || c.rowsets[first+i].ID != inputs[i].ID {
			return errors.Errorf("catalog changed: inputs not contiguous")
		}
	}
	want := base.MakeVersion(inputs[0].Version.Start, inputs[len(inputs)-1].Version.End)
	if output.Version != want {
		return errors.Errorf("output version %s does not cover inputs %s", output.Version, want)
	}
	c.rowsets = slices.Replace(c.rowsets, first, first+len(inputs), output)
	return nil
}

// Versions returns the sorted version intervals, mostly for tests and
// debugging output.
func (c *Catalog) Versions() []base.Version {
	vs := make([]base.Version, len(c.rowsets))
	for i, m := range c.rowsets {
		vs[i] = m.Version
	}
	return vs
}

// String renders the catalog as a space-separated list of versions.
func (c *Catalog) String() string {
	var sb strings.Builder
	for i, m := range c.rowsets {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(m.Version.String())
	}
	return sb.String()
}
