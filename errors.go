// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import "github.com/cockroachdb/errors"

// ErrNoCandidate is returned by CreateCompactionTask when the policy found
// nothing to compact. It is the normal negative result, not a failure.
var ErrNoCandidate = errors.New("tabletstore: no compaction candidate")

// ErrCatalogChanged is returned when apply-time re-validation finds that
// the catalog no longer contains a compaction's input rowsets. The catalog
// is left untouched; the policy may propose again on the next tick.
var ErrCatalogChanged = errors.New("tabletstore: catalog changed during compaction")

// ErrMemoryExhausted is returned when the compaction memory tracker vetoes
// a task's buffer reservation. The task is retried later.
var ErrMemoryExhausted = errors.New("tabletstore: compaction memory budget exhausted")

// ErrTabletDropped is returned by operations on a tablet that has been
// dropped from the store. In-flight compactions observe it through their
// canceled context.
var ErrTabletDropped = errors.New("tabletstore: tablet dropped")

// IsRetryable reports whether err is one of the transient negative results
// the scheduler should retry with backoff rather than surface.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCatalogChanged) || errors.Is(err, ErrMemoryExhausted)
}
