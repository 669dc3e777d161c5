// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tabletstore/internal/base"
)

// TabletMeta is the persisted state of a tablet: its identity and the
// rowset metas the catalog is reconstructed from. The compaction policy
// itself is stateless across restarts.
type TabletMeta struct {
	TabletID     int64         `json:"tablet_id"`
	PartitionID  int64         `json:"partition_id"`
	KeysType     base.KeysType `json:"keys_type"`
	NextRowsetID base.RowsetID `json:"next_rowset_id"`
	Rowsets      []*RowsetMeta `json:"rowsets"`
}

const metaFilename = "tablet_meta.json"

// MetaPath returns the tablet meta path under the tablet directory.
func MetaPath(dir string) string {
	return filepath.Join(dir, metaFilename)
}

// StoreTabletMeta writes the meta under dir. The write goes through a temp
// file and a rename so that a crash leaves either the old or the new meta,
// never a torn one.
func StoreTabletMeta(dir string, meta *TabletMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding tablet meta")
	}
	tmp := MetaPath(dir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing tablet meta")
	}
	if err := os.Rename(tmp, MetaPath(dir)); err != nil {
		return errors.Wrap(err, "installing tablet meta")
	}
	return nil
}

// LoadTabletMeta reads the meta under dir.
func LoadTabletMeta(dir string) (*TabletMeta, error) {
	data, err := os.ReadFile(MetaPath(dir))
	if err != nil {
		return nil, errors.Wrap(err, "reading tablet meta")
	}
	meta := &TabletMeta{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, errors.Wrap(err, "decoding tablet meta")
	}
	for _, m := range meta.Rowsets {
		if err := m.Validate(); err != nil {
			return nil, errors.Wrap(err, "validating tablet meta")
		}
	}
	return meta, nil
}
