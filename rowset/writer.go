// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package rowset

import (
	"bufio"
	"encoding/binary"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/golang/snappy"
)

// Segment block framing:
//
//	+----------------+------------------+------------------+
//	| length (u32le) | checksum (u64le) | snappy payload   |
//	+----------------+------------------+------------------+
//
// The payload decompresses to a u32le row count followed by the chunk
// data. The checksum is xxhash64 over the compressed payload, so a torn or
// bit-flipped block is caught before decompression.
const blockHeaderLen = 12

// Writer writes a rowset as one or more segment files. Not safe for
// concurrent use.
type Writer struct {
	ctx WriterContext

	file *os.File
	buf  *bufio.Writer

	segment     int64
	chunksInSeg int
	rows        int64
	bytes       int64
	scratch     []byte
}

// NewWriter creates a writer for the rowset described by ctx. The first
// segment file is created lazily on the first AddChunk, so a tombstone
// build leaves no segment files behind.
func NewWriter(ctx WriterContext) *Writer {
	return &Writer{ctx: ctx}
}

func (w *Writer) openSegment() error {
	f, err := os.Create(SegmentPath(w.ctx.Dir, w.ctx.RowsetID, w.segment))
	if err != nil {
		return errors.Wrap(err, "creating rowset segment")
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.chunksInSeg = 0
	return nil
}

// AddChunk appends a chunk to the rowset, rolling to a new segment file if
// the current one is full.
func (w *Writer) AddChunk(c Chunk) error {
	if w.file == nil {
		if err := w.openSegment(); err != nil {
			return err
		}
	}
	raw := make([]byte, 4+len(c.Data))
	binary.LittleEndian.PutUint32(raw, uint32(c.NumRows))
	copy(raw[4:], c.Data)
	w.scratch = snappy.Encode(w.scratch[:0], raw)

	var hdr [blockHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(len(w.scratch)))
	binary.LittleEndian.PutUint64(hdr[4:], xxhash.Sum64(w.scratch))
	if _, err := w.buf.Write(hdr[:]); err != nil {
		return errors.Wrap(err, "writing rowset block")
	}
	if _, err := w.buf.Write(w.scratch); err != nil {
		return errors.Wrap(err, "writing rowset block")
	}
	w.rows += int64(c.NumRows)
	w.bytes += int64(blockHeaderLen + len(w.scratch))
	w.chunksInSeg++
	if w.ctx.MaxChunksPerSegment > 0 && w.chunksInSeg >= w.ctx.MaxChunksPerSegment {
		return w.Flush()
	}
	return nil
}

// Flush ends the current segment. The next AddChunk starts a new one.
func (w *Writer) Flush() error {
	if w.file == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		return errors.Wrap(err, "flushing rowset segment")
	}
	if err := w.file.Sync(); err != nil {
		return errors.Wrap(err, "syncing rowset segment")
	}
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "closing rowset segment")
	}
	w.file = nil
	w.buf = nil
	w.segment++
	return nil
}

// Build finalizes the rowset and returns its counters. The writer must not
// be used afterwards.
func (w *Writer) Build() (BuildResult, error) {
	if err := w.Flush(); err != nil {
		return BuildResult{}, err
	}
	return BuildResult{
		NumRows:     w.rows,
		DataSize:    w.bytes,
		NumSegments: w.segment,
	}, nil
}

// Abort removes any segment files written so far. Safe to call after a
// failed Build.
func (w *Writer) Abort() {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
		w.segment++
	}
	for seg := int64(0); seg < w.segment; seg++ {
		_ = os.Remove(SegmentPath(w.ctx.Dir, w.ctx.RowsetID, seg))
	}
}

// RemoveSegments deletes the segment files of a rowset. Used after a
// compaction has swapped its inputs out of the catalog.
func RemoveSegments(dir string, id base.RowsetID, numSegments int64) error {
	var firstErr error
	for seg := int64(0); seg < numSegments; seg++ {
		if err := os.Remove(SegmentPath(dir, id, seg)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
