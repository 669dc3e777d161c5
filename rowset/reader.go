// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package rowset

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore/internal/base"
	"github.com/golang/snappy"
)

// Reader streams the chunks of a rowset across its segment files in
// order. Not safe for concurrent use.
type Reader struct {
	dir         string
	id          base.RowsetID
	numSegments int64

	segment int64
	file    *os.File
	buf     *bufio.Reader
	scratch []byte
}

// OpenReader opens a reader over the rowset's segments. A rowset with no
// segments (a pure tombstone) yields io.EOF immediately.
func OpenReader(dir string, id base.RowsetID, numSegments int64) (*Reader, error) {
	r := &Reader{dir: dir, id: id, numSegments: numSegments}
	if numSegments > 0 {
		if err := r.openSegment(0); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) openSegment(seg int64) error {
	f, err := os.Open(SegmentPath(r.dir, r.id, seg))
	if err != nil {
		return errors.Wrap(err, "opening rowset segment")
	}
	r.segment = seg
	r.file = f
	r.buf = bufio.NewReader(f)
	return nil
}

// Next returns the next chunk, or io.EOF once every segment is exhausted.
// A checksum or framing mismatch returns an error wrapping ErrCorruption.
func (r *Reader) Next() (Chunk, error) {
	for {
		if r.file == nil {
			return Chunk{}, io.EOF
		}
		var hdr [blockHeaderLen]byte
		_, err := io.ReadFull(r.buf, hdr[:])
		if err == io.EOF {
			// Segment exhausted; move to the next one.
			if cerr := r.file.Close(); cerr != nil {
				return Chunk{}, errors.Wrap(cerr, "closing rowset segment")
			}
			r.file = nil
			if r.segment+1 < r.numSegments {
				if err := r.openSegment(r.segment + 1); err != nil {
					return Chunk{}, err
				}
				continue
			}
			return Chunk{}, io.EOF
		}
		if err != nil {
			return Chunk{}, errors.Wrapf(ErrCorruption, "truncated block header in segment %d", r.segment)
		}
		n := binary.LittleEndian.Uint32(hdr[:4])
		sum := binary.LittleEndian.Uint64(hdr[4:])
		if cap(r.scratch) < int(n) {
			r.scratch = make([]byte, n)
		}
		r.scratch = r.scratch[:n]
		if _, err := io.ReadFull(r.buf, r.scratch); err != nil {
			return Chunk{}, errors.Wrapf(ErrCorruption, "truncated block in segment %d", r.segment)
		}
		if xxhash.Sum64(r.scratch) != sum {
			return Chunk{}, errors.Wrapf(ErrCorruption, "checksum mismatch in segment %d", r.segment)
		}
		raw, err := snappy.Decode(nil, r.scratch)
		if err != nil {
			return Chunk{}, errors.Wrapf(ErrCorruption, "decompressing block in segment %d", r.segment)
		}
		if len(raw) < 4 {
			return Chunk{}, errors.Wrapf(ErrCorruption, "short block in segment %d", r.segment)
		}
		return Chunk{
			NumRows: int32(binary.LittleEndian.Uint32(raw[:4])),
			Data:    raw[4:],
		}, nil
	}
}

// Close releases the reader's resources.
func (r *Reader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil
		return err
	}
	return nil
}
