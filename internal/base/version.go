// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Version is a closed interval [Start, End] of ingest versions covered by a
// single rowset. A rowset produced by ingest covers a single version
// (Start == End); a rowset produced by compaction covers the span of its
// inputs.
type Version struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// MakeVersion returns the version [start, end].
func MakeVersion(start, end int64) Version {
	return Version{Start: start, End: end}
}

// SingletonVersion returns the version [v, v].
func SingletonVersion(v int64) Version {
	return Version{Start: v, End: v}
}

// IsSingleton reports whether the version covers exactly one ingest version.
func (v Version) IsSingleton() bool {
	return v.Start == v.End
}

// Contains reports whether version i lies within [Start, End].
func (v Version) Contains(i int64) bool {
	return v.Start <= i && i <= v.End
}

// Overlaps reports whether the two intervals intersect.
func (v Version) Overlaps(o Version) bool {
	return v.Start <= o.End && o.Start <= v.End
}

// Precedes reports whether o begins exactly one version after v ends, i.e.
// the two rowsets are adjacent with no missed version between them.
func (v Version) Precedes(o Version) bool {
	return v.End+1 == o.Start
}

// String implements fmt.Stringer.
func (v Version) String() string {
	return fmt.Sprintf("[%d,%d]", v.Start, v.End)
}

// SafeFormat implements redact.SafeFormatter.
func (v Version) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("[%d,%d]", redact.Safe(v.Start), redact.Safe(v.End))
}

// ParseVersion parses "s-e" or a bare "v" (meaning [v,v]).
func ParseVersion(s string) (Version, error) {
	if i := strings.IndexByte(s, '-'); i >= 0 {
		start, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return Version{}, errors.Wrapf(err, "parsing version %q", s)
		}
		end, err := strconv.ParseInt(s[i+1:], 10, 64)
		if err != nil {
			return Version{}, errors.Wrapf(err, "parsing version %q", s)
		}
		if end < start {
			return Version{}, errors.Errorf("version %q ends before it starts", s)
		}
		return MakeVersion(start, end), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Version{}, errors.Wrapf(err, "parsing version %q", s)
	}
	return SingletonVersion(v), nil
}
