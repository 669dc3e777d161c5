// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package manifest maintains the in-memory model of a tablet's rowsets: the
// immutable per-rowset metadata, the versioned catalog they form, and the
// persistent tablet meta the catalog is reconstructed from.
package manifest

import (
	"fmt"
	"time"

	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/tabletstore/internal/base"
)

// RowsetMeta is the immutable metadata record for a single rowset. A
// RowsetMeta is created once, when its rowset is ingested or produced by a
// compaction, and never modified afterwards; catalog mutations swap whole
// records.
type RowsetMeta struct {
	ID      base.RowsetID `json:"id"`
	Version base.Version  `json:"version"`
	// NumRows is the number of data rows. Zero for a pure tombstone.
	NumRows int64 `json:"num_rows"`
	// DataSize is the on-disk size of the rowset's segments in bytes.
	DataSize int64 `json:"data_size"`
	// NumSegments is the number of segment files backing the rowset.
	// Tombstones have none.
	NumSegments int64 `json:"num_segments"`
	// CreationTime is the unix time the rowset was built.
	CreationTime int64 `json:"creation_time"`
	// DeletePredicates carried by the rowset, ordered by predicate version.
	// A pure tombstone carries exactly one; a compaction output carries the
	// union of its inputs' predicates.
	DeletePredicates []base.DeletePredicate `json:"delete_predicates,omitempty"`
}

// IsTombstone reports whether the rowset is a pure tombstone: no rows, a
// single-version span, and a delete predicate.
func (m *RowsetMeta) IsTombstone() bool {
	return m.NumRows == 0 && m.Version.IsSingleton() && len(m.DeletePredicates) > 0
}

// CarriesDeletes reports whether the rowset's effective delete set is
// non-empty. True for tombstones and for compaction outputs that absorbed
// one.
func (m *RowsetMeta) CarriesDeletes() bool {
	return len(m.DeletePredicates) > 0
}

// Age returns the time elapsed since the rowset was built.
func (m *RowsetMeta) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(m.CreationTime, 0))
}

// String implements fmt.Stringer.
func (m *RowsetMeta) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m *RowsetMeta) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s:%s(%s)", m.ID, m.Version, redact.Safe(m.DataSize))
	if m.CarriesDeletes() {
		w.SafeString("+del")
	}
}

// Validate checks the meta's internal invariants.
func (m *RowsetMeta) Validate() error {
	if m.Version.End < m.Version.Start {
		return fmt.Errorf("rowset %s: version %s ends before it starts", m.ID, m.Version)
	}
	if m.NumRows < 0 || m.DataSize < 0 || m.NumSegments < 0 {
		return fmt.Errorf("rowset %s: negative counters", m.ID)
	}
	if m.NumRows == 0 && len(m.DeletePredicates) > 0 && !m.Version.IsSingleton() {
		// Pure tombstones apply to a single version; multi-version spans
		// with predicates must have absorbed data rows too.
		if m.NumSegments == 0 {
			return fmt.Errorf("rowset %s: multi-version tombstone", m.ID)
		}
	}
	return nil
}

// DeleteVersions returns the versions of the carried delete predicates.
func (m *RowsetMeta) DeleteVersions() []int64 {
	if len(m.DeletePredicates) == 0 {
		return nil
	}
	vs := make([]int64, len(m.DeletePredicates))
	for i := range m.DeletePredicates {
		vs[i] = m.DeletePredicates[i].Version
	}
	return vs
}
