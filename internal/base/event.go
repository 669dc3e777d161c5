// Copyright 2023 The TabletStore Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package base

import (
	"fmt"
	"strings"
	"time"
)

// CompactionInfo contains the info for a compaction event.
type CompactionInfo struct {
	TabletID int64
	// Kind is the compaction kind: "cumulative", "base" or "backtrace".
	Kind string
	// Input versions, in catalog order.
	Inputs []Version
	// Output version span the compaction produces. Set from the picked run,
	// so it is already filled in on CompactionBegin.
	Output Version
	// Duration is the time the compaction took. Only set on CompactionEnd.
	Duration time.Duration
	// Err is set if the compaction failed.
	Err error
}

func (i CompactionInfo) String() string {
	var sb strings.Builder
	inputs := make([]string, len(i.Inputs))
	for j := range i.Inputs {
		inputs[j] = i.Inputs[j].String()
	}
	if i.Err != nil {
		fmt.Fprintf(&sb, "[tablet %d] %s compaction of %s error: %s",
			i.TabletID, i.Kind, strings.Join(inputs, " "), i.Err)
		return sb.String()
	}
	fmt.Fprintf(&sb, "[tablet %d] %s compaction %s -> %s (%.1fs)",
		i.TabletID, i.Kind, strings.Join(inputs, " "), i.Output, i.Duration.Seconds())
	return sb.String()
}

// EventListener contains a set of functions that will be invoked when
// various significant store events occur. Note that the functions should
// not run for an excessive amount of time as they are invoked
// synchronously by the store and may block continued store work.
type EventListener struct {
	// BackgroundError is invoked whenever an error occurs during a
	// background operation such as compaction or tablet meta persistence.
	BackgroundError func(error)

	// CompactionBegin is invoked after the inputs to a compaction have been
	// determined, but before the compaction has produced any output.
	CompactionBegin func(CompactionInfo)

	// CompactionEnd is invoked after a compaction has completed and the
	// result has been installed, or after it has failed.
	CompactionEnd func(CompactionInfo)
}

// EnsureDefaults ensures that background error events are logged to the
// specified logger if a handler is not registered, while other events are
// ignored.
func (l *EventListener) EnsureDefaults(logger Logger) {
	if l.BackgroundError == nil {
		if logger != nil {
			l.BackgroundError = func(err error) {
				logger.Errorf("background error: %s", err)
			}
		} else {
			l.BackgroundError = func(error) {}
		}
	}
	if l.CompactionBegin == nil {
		l.CompactionBegin = func(CompactionInfo) {}
	}
	if l.CompactionEnd == nil {
		l.CompactionEnd = func(CompactionInfo) {}
	}
}

// MakeLoggingEventListener creates an EventListener that logs all events to
// the specified logger.
func MakeLoggingEventListener(logger Logger) EventListener {
	if logger == nil {
		logger = DefaultLogger{}
	}
	return EventListener{
		BackgroundError: func(err error) {
			logger.Errorf("background error: %s", err)
		},
		CompactionBegin: func(info CompactionInfo) {
			logger.Infof("%s begin", info)
		},
		CompactionEnd: func(info CompactionInfo) {
			logger.Infof("%s", info)
		},
	}
}
