// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package tabletstore

import "github.com/cockroachdb/tabletstore/internal/base"

// Version exports the base.Version type.
type Version = base.Version

// RowsetID exports the base.RowsetID type.
type RowsetID = base.RowsetID

// DeletePredicate exports the base.DeletePredicate type.
type DeletePredicate = base.DeletePredicate

// KeysType exports the base.KeysType type.
type KeysType = base.KeysType

// Exported KeysType constants.
const (
	DupKeys       = base.DupKeys
	UniqueKeys    = base.UniqueKeys
	AggregateKeys = base.AggregateKeys
)

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger type.
type DefaultLogger = base.DefaultLogger

// CompactionInfo exports the base.CompactionInfo type.
type CompactionInfo = base.CompactionInfo

// EventListener exports the base.EventListener type.
type EventListener = base.EventListener

// MakeLoggingEventListener exports the base.MakeLoggingEventListener
// function.
func MakeLoggingEventListener(logger Logger) EventListener {
	return base.MakeLoggingEventListener(logger)
}
