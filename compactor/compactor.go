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

// Package compactor drives the Collector over a prefix of segments
// bounded by a cutoff timestamp, optionally writes entity/relationship
// state snapshots, advances the Manifest's compaction watermark, and
// optionally retires the folded segments.
package compactor

import (
	"context"
	"errors"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/launix-de/chronostore/collector"
	"github.com/launix-de/chronostore/eventlog"
	"github.com/launix-de/chronostore/internal/corelog"
	"github.com/launix-de/chronostore/internal/retry"
	"github.com/launix-de/chronostore/manifest"
	"github.com/launix-de/chronostore/objectstore"
	"github.com/launix-de/chronostore/observe"
	"github.com/launix-de/chronostore/segment"
)

// ErrThresholdUnmet is the benign "the policy trigger did not
// actually require work" outcome of MaybeCompact.
var ErrThresholdUnmet = errors.New("compactor: threshold not met, no work required")

// Options configures one compaction run.
type Options struct {
	CreateSnapshot bool
	DeleteSegments bool
	Compression    segment.Compression
	Segment        segment.WriterOptions
	RetryPolicy    retry.Policy
}

// DefaultOptions compacts with a snapshot but leaves folded segments
// in place, the conservative default that never loses data even if
// the caller forgets to opt into deletion.
var DefaultOptions = Options{
	CreateSnapshot: true,
	DeleteSegments: false,
	Compression:    segment.Uncompressed,
	Segment:        segment.DefaultWriterOptions,
	RetryPolicy:    retry.DefaultPolicy,
}

// Summary reports what one Compact call actually did, used by both
// the caller and the observation bus's CompactionEvent.
type Summary struct {
	CutoffTS        int64
	EventsFolded    int64
	SegmentsFolded  int
	SegmentsRetired int
	Entities        []collector.EntityState
	Relationships   []collector.RelationshipState
}

// Compactor runs compaction for one dataset against its Manifest and
// object store.
type Compactor struct {
	store   objectstore.Store
	mgr     *manifest.Manager
	reader  *eventlog.Reader
	dataset string
	bus     observe.Bus
	clock   func() time.Time
}

func New(store objectstore.Store, mgr *manifest.Manager, dataset string, bus observe.Bus) *Compactor {
	return &Compactor{
		store:   store,
		mgr:     mgr,
		reader:  eventlog.NewReader(store, mgr, dataset, bus),
		dataset: dataset,
		bus:     bus,
		clock:   time.Now,
	}
}

// NeedsCompaction is a pure predicate over a Manifest summary: any
// one of event-count, live-byte, or oldest-segment-age thresholds
// being exceeded says a run is due.
func NeedsCompaction(m manifest.Manifest, now time.Time, minEvents, minBytes int64, maxSegmentAge time.Duration) bool {
	if m.TotalEvents >= minEvents && minEvents > 0 {
		return true
	}
	var liveBytes int64
	var oldest int64 = -1
	for _, d := range m.Segments {
		liveBytes += d.SizeBytes
		if oldest == -1 || d.CreatedAt < oldest {
			oldest = d.CreatedAt
		}
	}
	if minBytes > 0 && liveBytes >= minBytes {
		return true
	}
	if maxSegmentAge > 0 && oldest >= 0 {
		age := now.Sub(time.UnixMilli(oldest))
		if age >= maxSegmentAge {
			return true
		}
	}
	return false
}

// Compact folds every event with ts <= T through a fresh Collector
// (reading across every segment that can contain such an event, not
// only ones entirely below T — a segment straddling the cutoff still
// contributes its <= T rows), optionally writes state snapshots,
// advances the watermark, and optionally retires the segments that
// are now *entirely* subsumed (max_ts <= T — the only segments that
// are safe to delete without losing rows still needed by a future
// compaction).
//
// T <= 0 is a no-op: nothing is folded and Manifest bytes are left
// untouched.
func (c *Compactor) Compact(ctx context.Context, cutoffTS int64, opts Options) (Summary, error) {
	if cutoffTS <= 0 {
		return Summary{}, nil
	}
	observe.EmitCompaction(c.bus, observe.CompactionEvent{Phase: "started", Dataset: c.dataset, CutoffTS: cutoffTS})

	coll, eventsFolded, err := c.foldThrough(ctx, cutoffTS)
	if err != nil {
		observe.EmitCompaction(c.bus, observe.CompactionEvent{Phase: "failed", Dataset: c.dataset, CutoffTS: cutoffTS, Err: err})
		return Summary{}, err
	}
	retirable := c.fullyRetiredSegments(cutoffTS)

	summary := Summary{
		CutoffTS:       cutoffTS,
		EventsFolded:   eventsFolded,
		SegmentsFolded: len(retirable),
		Entities:       coll.AllEntities(),
		Relationships:  coll.AllRelationships(),
	}

	if opts.CreateSnapshot {
		if err := c.writeSnapshots(ctx, cutoffTS, coll, opts); err != nil {
			observe.EmitCompaction(c.bus, observe.CompactionEvent{Phase: "failed", Dataset: c.dataset, CutoffTS: cutoffTS, Err: err})
			return Summary{}, err
		}
	}

	err = retry.Do(ctx, opts.RetryPolicy, func(attempt int) error {
		return c.advanceWatermark(ctx, cutoffTS, retirable, opts, &summary)
	})
	if err != nil {
		observe.EmitCompaction(c.bus, observe.CompactionEvent{Phase: "failed", Dataset: c.dataset, CutoffTS: cutoffTS, Err: err})
		return Summary{}, err
	}

	observe.EmitCompaction(c.bus, observe.CompactionEvent{
		Phase: "completed", Dataset: c.dataset, CutoffTS: cutoffTS,
		EventsFolded: summary.EventsFolded, SegmentsFolded: summary.SegmentsFolded, SegmentsRetired: summary.SegmentsRetired,
	})
	corelog.Printf("compactor: compacted %s through ts=%d (%d events, %d segments, retired %d)", c.dataset, cutoffTS, summary.EventsFolded, summary.SegmentsFolded, summary.SegmentsRetired)
	return summary, nil
}

// fullyRetiredSegments returns the segments entirely below the
// cutoff (max_ts <= T) — the only ones Compact may delete.
func (c *Compactor) fullyRetiredSegments(cutoffTS int64) []manifest.SegmentDescriptor {
	var out []manifest.SegmentDescriptor
	snap := c.mgr.Snapshot()
	for _, d := range snap.Segments {
		if d.MaxSeq > 0 && d.MaxTS <= cutoffTS {
			out = append(out, d)
		}
	}
	return out
}

// foldThrough streams every event with ts <= T, in whatever order the
// Reader returns them — the Collector's fold is order-independent
// within ties — into a fresh Collector, dropping any individual event
// past T. It scans the whole dataset rather than a segment subset: a
// segment can straddle the cutoff, and its <= T rows must still be
// folded even though the segment as a whole isn't yet safe to retire.
func (c *Compactor) foldThrough(ctx context.Context, cutoffTS int64) (*collector.Collector, int64, error) {
	coll := collector.New()
	events, err := c.reader.Scan(ctx, eventlog.TimeRange{Lo: 0, Hi: cutoffTS + 1}, nil, nil)
	if err != nil {
		return nil, 0, err
	}
	var n int64
	for _, e := range events {
		if e.TS > cutoffTS {
			continue
		}
		coll.Process(e)
		n++
	}
	return coll, n, nil
}

// writeSnapshots serializes the Collector's full tables to the two
// snapshot segment keys under {dataset}/snapshots/{T}/.
func (c *Compactor) writeSnapshots(ctx context.Context, cutoffTS int64, coll *collector.Collector, opts Options) error {
	entityBytes, err := encodeEntities(coll.AllEntities(), opts)
	if err != nil {
		return err
	}
	relBytes, err := encodeRelationships(coll.AllRelationships(), opts)
	if err != nil {
		return err
	}
	entityKey, relKey := SnapshotKeys(c.dataset, cutoffTS)
	if _, err := c.store.WriteAtomic(ctx, entityKey, entityBytes); err != nil {
		return err
	}
	if _, err := c.store.WriteAtomic(ctx, relKey, relBytes); err != nil {
		return err
	}
	return nil
}

func encodeEntities(rows []collector.EntityState, opts Options) ([]byte, error) {
	w := segment.NewWriter(collector.EntitySchema(opts.Compression), opts.Segment)
	for _, r := range rows {
		if err := w.WriteRow(collector.EntityToRow(r)); err != nil {
			return nil, err
		}
	}
	bytes, _, err := w.Finish()
	return bytes, err
}

func encodeRelationships(rows []collector.RelationshipState, opts Options) ([]byte, error) {
	w := segment.NewWriter(collector.RelationshipSchema(opts.Compression), opts.Segment)
	for _, r := range rows {
		if err := w.WriteRow(collector.RelationshipToRow(r)); err != nil {
			return nil, err
		}
	}
	bytes, _, err := w.Finish()
	return bytes, err
}

// advanceWatermark sets the watermark, performs the optional
// retire-and-delete, then saves. It is the unit retried on a manifest
// conflict; snapshot bytes, already durable, are reused across
// retries without re-encoding since the cutoff T and Collector output
// don't change.
func (c *Compactor) advanceWatermark(ctx context.Context, cutoffTS int64, targets []manifest.SegmentDescriptor, opts Options, summary *Summary) error {
	c.mgr.SetCompactedThrough(cutoffTS)

	if opts.DeleteSegments {
		seqs := mapset.NewSet[int64]()
		for _, d := range targets {
			seqs.Add(d.Seq)
		}
		c.mgr.RemoveSegments(seqs)
	}

	if err := c.mgr.Save(ctx); err != nil {
		if err == manifest.ErrManifestConflict {
			corelog.Printf("compactor: manifest conflict advancing watermark to %d, retrying", cutoffTS)
		}
		return err
	}

	if opts.DeleteSegments {
		retired := 0
		for _, d := range targets {
			if err := c.store.Delete(ctx, d.Path); err != nil {
				if !objectstore.IsKind(err, objectstore.NotFound) {
					// Surplus bytes are harmless garbage; a failed delete
					// here doesn't unwind the watermark advance that
					// already committed.
					corelog.Printf("compactor: failed to delete retired segment %s: %v", d.Path, err)
					continue
				}
			}
			observe.EmitSegment(c.bus, observe.SegmentEvent{Phase: "retired", Dataset: c.dataset, Seq: d.Seq, Path: d.Path})
			retired++
		}
		summary.SegmentsRetired = retired
	}
	return nil
}

// Policy bounds the thresholds NeedsCompaction checks: event count,
// live bytes, and oldest-segment age.
type Policy struct {
	MinEvents     int64
	MinBytes      int64
	MaxSegmentAge time.Duration
}

// MaybeCompact is the policy-triggered entry point: it checks
// NeedsCompaction against the current Manifest snapshot and, if due,
// compacts through the newest segment's max_ts — the latest point the
// dataset can be folded up to without racing an in-flight publish.
// Returns ErrThresholdUnmet when no threshold is exceeded.
func (c *Compactor) MaybeCompact(ctx context.Context, policy Policy, opts Options) (Summary, error) {
	snap := c.mgr.Snapshot()
	if !NeedsCompaction(snap, c.clock(), policy.MinEvents, policy.MinBytes, policy.MaxSegmentAge) {
		return Summary{}, ErrThresholdUnmet
	}
	var cutoff int64
	for _, d := range snap.Segments {
		if d.MaxSeq > 0 && d.MaxTS > cutoff {
			cutoff = d.MaxTS
		}
	}
	if cutoff <= 0 {
		return Summary{}, ErrThresholdUnmet
	}
	return c.Compact(ctx, cutoff, opts)
}
