/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package observe is the observation bus: a narrow, external
// collaborator interface the storage packages dispatch typed
// lifecycle notifications to. Dispatch is always fire-and-forget — an
// observer's panic never reaches the emitting operation.
package observe

import "github.com/launix-de/chronostore/internal/corelog"

// WriteEvent is emitted around every eventlog.Writer publish.
type WriteEvent struct {
	Phase   string // "start", "end", "error"
	Dataset string
	Rows    int
	Bytes   int64
	Latency int64 // milliseconds; zero on "start"
	Err     error
}

// SegmentEvent is emitted when a segment is published or retired.
type SegmentEvent struct {
	Phase   string // "created", "retired"
	Dataset string
	Seq     int64
	Path    string
}

// CompactionEvent is emitted around a Compactor run.
type CompactionEvent struct {
	Phase           string // "started", "completed", "failed"
	Dataset         string
	CutoffTS        int64
	EventsFolded    int64
	SegmentsFolded  int
	SegmentsRetired int
	Err             error
}

// LagSample is taken at the start of every Reader scan, recording how
// far that scan's Manifest snapshot trails the dataset's most recently published
// event, in milliseconds of wall-clock between the segment's
// created_at and the sample time.
type LagSample struct {
	Dataset  string
	LagMS    int64
	AsOfSeq  int64
}

// IOEvent records bytes fetched from the object store for a footer or
// row-group page read — the counter tests use to verify pruning
// actually avoided materializing skipped row groups.
type IOEvent struct {
	Dataset string
	Kind    string // "footer" or "row_group"
	Bytes   int64
}

// Bus receives the typed notification families the core emits. Every
// method must return promptly and must never panic the caller;
// implementations that need to do real work should hand it to a
// goroutine or buffered channel themselves.
type Bus interface {
	OnWrite(WriteEvent)
	OnSegment(SegmentEvent)
	OnCompaction(CompactionEvent)
	OnReaderLag(LagSample)
	OnIO(IOEvent)
}

// Nop discards every notification. It is the default Bus so the core
// never special-cases a nil observer at call sites.
type Nop struct{}

func (Nop) OnWrite(WriteEvent)           {}
func (Nop) OnSegment(SegmentEvent)       {}
func (Nop) OnCompaction(CompactionEvent) {}
func (Nop) OnReaderLag(LagSample)        {}
func (Nop) OnIO(IOEvent)                 {}

// dispatch wraps a call to bus in a recover so a misbehaving observer
// can never take down the storage operation that triggered it.
func dispatch(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			corelog.Printf("observe: %s observer panicked: %v", name, r)
		}
	}()
	f()
}

// Emit* helpers are what the core calls; they own the recover so
// every call site (Writer, Reader, Compactor) stays one line.

func EmitWrite(bus Bus, ev WriteEvent) {
	if bus == nil {
		return
	}
	dispatch("write", func() { bus.OnWrite(ev) })
}

func EmitSegment(bus Bus, ev SegmentEvent) {
	if bus == nil {
		return
	}
	dispatch("segment", func() { bus.OnSegment(ev) })
}

func EmitCompaction(bus Bus, ev CompactionEvent) {
	if bus == nil {
		return
	}
	dispatch("compaction", func() { bus.OnCompaction(ev) })
}

func EmitReaderLag(bus Bus, ev LagSample) {
	if bus == nil {
		return
	}
	dispatch("reader_lag", func() { bus.OnReaderLag(ev) })
}

func EmitIO(bus Bus, ev IOEvent) {
	if bus == nil {
		return
	}
	dispatch("io", func() { bus.OnIO(ev) })
}
