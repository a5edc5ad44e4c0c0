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

// Package chronostore wires the storage packages into one embeddable
// per-dataset handle: load the Manifest, construct the event Writer
// and Reader on top of it, and a Compactor that drives the state
// Collector. It is the thin composition root the storage packages
// themselves deliberately have none of.
package chronostore

import (
	"context"
	"sync"
	"time"

	"github.com/dc0d/onexit"

	"github.com/launix-de/chronostore/compactor"
	"github.com/launix-de/chronostore/config"
	"github.com/launix-de/chronostore/eventlog"
	"github.com/launix-de/chronostore/manifest"
	"github.com/launix-de/chronostore/objectstore"
	"github.com/launix-de/chronostore/observe"
	"github.com/launix-de/chronostore/segment"
)

// Store is one dataset's embeddable handle over the storage core.
type Store struct {
	dataset string
	mgr     *manifest.Manager
	writer  *eventlog.Writer
	reader  *eventlog.Reader
	comp    *compactor.Compactor
	bus     observe.Bus
	cfg     config.Config
	clock   func() time.Time

	closeOnce sync.Once
}

// Open loads (or synthesizes) dataset's Manifest from store and wires
// up the Writer, Reader, and Compactor against it. bus may be nil.
func Open(ctx context.Context, objStore objectstore.Store, dataset string, cfg config.Config, bus observe.Bus) (*Store, error) {
	if bus == nil {
		bus = observe.Nop{}
	}
	mgr := manifest.NewManager(objStore, dataset)
	if err := mgr.Load(ctx); err != nil {
		return nil, err
	}

	writerOpts := eventlog.WriterOptions{
		Compression: cfg.DefaultCompression,
		Segment: segment.WriterOptions{
			TargetRows:  cfg.SegmentTargetRows,
			TargetBytes: cfg.SegmentTargetBytes,
		},
		RetryPolicy: eventlog.DefaultWriterOptions.RetryPolicy,
	}

	s := &Store{
		dataset: dataset,
		mgr:     mgr,
		writer:  eventlog.NewWriter(objStore, mgr, dataset, writerOpts, bus),
		reader:  eventlog.NewReader(objStore, mgr, dataset, bus),
		comp:    compactor.New(objStore, mgr, dataset, bus),
		bus:     bus,
		cfg:     cfg,
		clock:   time.Now,
	}

	// Flush a dirty Manifest on process exit, best-effort.
	onexit.Register(func() {
		_ = mgr.SaveIfDirty(context.Background())
	})

	return s, nil
}

// Publish submits a batch of accepted events through the Event
// Segment Writer. An empty batch is a no-op.
func (s *Store) Publish(ctx context.Context, events []eventlog.Event) error {
	return s.writer.Publish(ctx, events)
}

// Scan delegates to the event Reader.
func (s *Store) Scan(ctx context.Context, tr eventlog.TimeRange, predicates []segment.Predicate, projection []string) ([]eventlog.Event, error) {
	return s.reader.Scan(ctx, tr, predicates, projection)
}

// ScanAfterSeq delegates to the event Reader.
func (s *Store) ScanAfterSeq(ctx context.Context, seq int64) ([]eventlog.Event, error) {
	return s.reader.ScanAfterSeq(ctx, seq)
}

// Compact runs the Compactor through cutoffTS with this Store's
// configured compression and segment-size options, letting the
// caller control CreateSnapshot/DeleteSegments.
func (s *Store) Compact(ctx context.Context, cutoffTS int64, createSnapshot, deleteSegments bool) (compactor.Summary, error) {
	opts := compactor.Options{
		CreateSnapshot: createSnapshot,
		DeleteSegments: deleteSegments,
		Compression:    s.cfg.DefaultCompression,
		Segment: segment.WriterOptions{
			TargetRows:  s.cfg.SegmentTargetRows,
			TargetBytes: s.cfg.SegmentTargetBytes,
		},
		RetryPolicy: compactor.DefaultOptions.RetryPolicy,
	}
	return s.comp.Compact(ctx, cutoffTS, opts)
}

// NeedsCompaction checks the configured thresholds against the
// current Manifest snapshot.
func (s *Store) NeedsCompaction() bool {
	snap := s.mgr.Snapshot()
	return compactor.NeedsCompaction(snap, s.clock(), s.cfg.CompactionMinEvents, s.cfg.CompactionMinBytes, s.cfg.CompactionMaxAge)
}

// Manifest returns a consistent snapshot of the dataset's current
// Manifest, for callers that want to inspect segment lists or
// aggregates directly.
func (s *Store) Manifest() manifest.Manifest {
	return s.mgr.Snapshot()
}

// Close flushes a dirty Manifest and releases this handle. Safe to
// call more than once.
func (s *Store) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = s.mgr.SaveIfDirty(ctx)
	})
	return err
}
