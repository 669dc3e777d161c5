// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"golang.org/x/sync/semaphore"
)

// memTracker bounds the total merge buffer memory of concurrent
// compactions across a store. Reservations never block: a task that cannot
// reserve fails with ErrMemoryExhausted and the scheduler retries it
// later, which keeps a large merge from deadlocking behind many small
// ones.
type memTracker struct {
	budget int64
	sem    *semaphore.Weighted
}

func newMemTracker(budget int64) *memTracker {
	return &memTracker{budget: budget, sem: semaphore.NewWeighted(budget)}
}

// reserve claims n bytes of budget. Reservations larger than the whole
// budget are clamped so that an oversized merge can still run alone.
func (t *memTracker) reserve(n int64) (int64, error) {
	if n > t.budget {
		n = t.budget
	}
	if !t.sem.TryAcquire(n) {
		return 0, ErrMemoryExhausted
	}
	return n, nil
}

func (t *memTracker) release(n int64) {
	t.sem.Release(n)
}
