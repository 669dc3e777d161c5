// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package manifest

import (
	"slices"

	"github.com/cockroachdb/tabletstore/internal/base"
)

// MergedMeta builds the output meta for replacing the given contiguous run
// with a single rowset. Counters are summed as an estimate; a real merge
// overwrites them with what the writer produced. Delete predicates are the
// union of the inputs', so tombstones survive every compaction that
// consumes them.
func MergedMeta(inputs []*RowsetMeta, id base.RowsetID, creationTime int64) *RowsetMeta {
	out := &RowsetMeta{
		ID: id,
		Version: base.MakeVersion(
			inputs[0].Version.Start, inputs[len(inputs)-1].Version.End),
		CreationTime: creationTime,
	}
	for _, in := range inputs {
		out.NumRows += in.NumRows
		out.DataSize += in.DataSize
		out.NumSegments += in.NumSegments
		out.DeletePredicates = append(out.DeletePredicates, in.DeletePredicates...)
	}
	slices.SortFunc(out.DeletePredicates, func(a, b base.DeletePredicate) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		default:
			return 0
		}
	})
	return out
}
