// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

// Package rowset implements the on-disk rowset format: a sequence of
// segment files, each holding checksummed, snappy-compressed chunks of
// serialized rows. The compaction executor streams chunks out of input
// rowsets and into an output writer; it never interprets row contents,
// which keeps the physical merge independent of the tablet schema.
package rowset

import (
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore/internal/base"
)

// Chunk is a block of serialized rows. The payload layout is opaque to
// this package; NumRows is carried alongside so that metadata can be
// maintained without decoding.
type Chunk struct {
	NumRows int32
	Data    []byte
}

// WriterContext carries everything a rowset writer needs: the identity of
// the tablet and rowset being written, the version span the output covers,
// and where the segment files go.
type WriterContext struct {
	TabletID    int64
	PartitionID int64
	RowsetID    base.RowsetID
	Version     base.Version
	KeysType    base.KeysType
	// Dir is the tablet data directory the segment files are created in.
	Dir string
	// MaxChunksPerSegment rolls the writer over to a new segment file once
	// a segment holds this many chunks. Zero means a single segment.
	MaxChunksPerSegment int
}

// BuildResult summarizes what a writer produced.
type BuildResult struct {
	NumRows     int64
	DataSize    int64
	NumSegments int64
}

// ErrCorruption is the error a reader returns when a block fails its
// checksum or framing check.
var ErrCorruption = errors.New("rowset: corrupted block")

// SegmentPath returns the path of segment seg of the given rowset.
func SegmentPath(dir string, id base.RowsetID, seg int64) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.dat", id, seg))
}
