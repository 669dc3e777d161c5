// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package base holds the fundamental types shared by the tabletstore
// packages: versions, rowset identifiers, delete predicates, logging and
// event plumbing.
package base

import (
	"fmt"

	"github.com/cockroachdb/redact"
)

// RowsetID uniquely identifies a rowset within a tablet. IDs are allocated
// monotonically and never reused; a compaction output always receives a
// fresh ID.
type RowsetID uint64

// String implements fmt.Stringer.
func (id RowsetID) String() string {
	return fmt.Sprintf("%06d", uint64(id))
}

// SafeFormat implements redact.SafeFormatter.
func (id RowsetID) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%06d", redact.SafeUint(uint64(id)))
}

// KeysType describes the key semantics of a tablet's schema. It is carried
// on the rowset writer context so that a merge can honor the schema's
// duplicate/unique/aggregate behavior.
type KeysType int8

const (
	// DupKeys permits duplicate keys; merges concatenate rows.
	DupKeys KeysType = iota
	// UniqueKeys keeps the newest row per key.
	UniqueKeys
	// AggregateKeys folds rows with equal keys through per-column
	// aggregation functions.
	AggregateKeys
)

// String implements fmt.Stringer.
func (k KeysType) String() string {
	switch k {
	case DupKeys:
		return "dup"
	case UniqueKeys:
		return "unique"
	case AggregateKeys:
		return "aggregate"
	default:
		return "unknown"
	}
}

// DeletePredicate is a logical tombstone: rows matching the predicate are
// deleted from every version at or below Version. A pure tombstone rowset
// carries exactly one predicate and zero rows; a compaction output carries
// the union of its inputs' predicates.
type DeletePredicate struct {
	// Version the predicate was written at. The predicate applies to all
	// rows at or below this version.
	Version int64 `json:"version"`
	// Column the predicate filters on.
	Column string `json:"column"`
	// NotIn inverts the membership test.
	NotIn bool `json:"not_in,omitempty"`
	// Values the column is matched against.
	Values []string `json:"values"`
}

// String implements fmt.Stringer.
func (p DeletePredicate) String() string {
	op := "IN"
	if p.NotIn {
		op = "NOT IN"
	}
	return fmt.Sprintf("v%d: %s %s %v", p.Version, p.Column, op, p.Values)
}
