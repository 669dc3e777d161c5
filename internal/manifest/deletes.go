// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package manifest

import (
	"slices"
)

// DeleteTracker indexes the delete predicates present in a catalog
// snapshot. It answers which versions carry delete predicates and which is
// the next one at or after a given version. Whether the versions below a
// tombstone are present is an island question (Island.RootedAtZero).
type DeleteTracker struct {
	// versions carrying a delete predicate, sorted.
	versions []int64
}

// MakeDeleteTracker builds a tracker over a catalog snapshot.
func MakeDeleteTracker(c *Catalog) DeleteTracker {
	var t DeleteTracker
	for _, m := range c.Rowsets() {
		for _, p := range m.DeletePredicates {
			t.versions = append(t.versions, p.Version)
		}
	}
	slices.Sort(t.versions)
	t.versions = slices.Compact(t.versions)
	return t
}

// IsDelete reports whether version v carries a delete predicate.
func (t DeleteTracker) IsDelete(v int64) bool {
	_, found := slices.BinarySearch(t.versions, v)
	return found
}

// NextDeleteAtOrAfter returns the smallest delete version >= v, or false if
// there is none.
func (t DeleteTracker) NextDeleteAtOrAfter(v int64) (int64, bool) {
	i, _ := slices.BinarySearch(t.versions, v)
	if i == len(t.versions) {
		return 0, false
	}
	return t.versions[i], true
}

// Empty reports whether the catalog carries no delete predicates at all.
func (t DeleteTracker) Empty() bool { return len(t.versions) == 0 }
