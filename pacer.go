// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import (
	"context"
	"time"

	"github.com/cockroachdb/tokenbucket"
)

// compactionPacer rate limits compaction writes so background merges do
// not contend with foreground traffic for disk bandwidth. A single pacer
// is shared by all compactions of a store.
type compactionPacer struct {
	enabled bool
	bucket  tokenbucket.TokenBucket
}

func newCompactionPacer(bytesPerSec int64) *compactionPacer {
	p := &compactionPacer{}
	if bytesPerSec > 0 {
		p.enabled = true
		p.bucket.Init(tokenbucket.TokensPerSecond(bytesPerSec), tokenbucket.Tokens(bytesPerSec))
	}
	return p
}

// pace blocks until n bytes of write budget are available, or the context
// is canceled.
func (p *compactionPacer) pace(ctx context.Context, n int64) error {
	if !p.enabled {
		return nil
	}
	for {
		ok, d := p.bucket.TryToFulfill(tokenbucket.Tokens(n))
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}
