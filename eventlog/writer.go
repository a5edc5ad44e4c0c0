package eventlog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/launix-de/chronostore/internal/corelog"
	"github.com/launix-de/chronostore/internal/retry"
	"github.com/launix-de/chronostore/manifest"
	"github.com/launix-de/chronostore/objectstore"
	"github.com/launix-de/chronostore/observe"
	"github.com/launix-de/chronostore/segment"
)

// WriterOptions configures one dataset's event Writer.
type WriterOptions struct {
	Compression  segment.Compression
	Segment      segment.WriterOptions
	RetryPolicy  retry.Policy
}

// DefaultWriterOptions mirrors segment.DefaultWriterOptions with
// compression off.
var DefaultWriterOptions = WriterOptions{
	Compression: segment.Uncompressed,
	Segment:     segment.DefaultWriterOptions,
	RetryPolicy: retry.DefaultPolicy,
}

// Writer stamps, encodes, and atomically publishes an accepted batch
// of events as one new immutable segment, registered through the
// Manifest Manager.
type Writer struct {
	store   objectstore.Store
	mgr     *manifest.Manager
	dataset string
	opts    WriterOptions
	bus     observe.Bus
	clock   func() time.Time
}

// NewWriter constructs a Writer for dataset, publishing through mgr
// and persisting bytes via store. bus may be nil: every Emit* helper
// then returns without dispatching.
func NewWriter(store objectstore.Store, mgr *manifest.Manager, dataset string, opts WriterOptions, bus observe.Bus) *Writer {
	return &Writer{store: store, mgr: mgr, dataset: dataset, opts: opts, bus: bus, clock: time.Now}
}

// Publish stamps, encodes, and durably publishes a batch of events.
// An empty batch is a no-op: no Manifest write happens at all.
func (w *Writer) Publish(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	start := w.clock()
	observe.EmitWrite(w.bus, observe.WriteEvent{Phase: "start", Dataset: w.dataset, Rows: len(events)})

	// The writer enforces the (ts, seq) order itself rather than
	// merely checking it: a stable sort by ts leaves same-ts events in
	// input order, which the seq assignment below then turns into the
	// tie-break order, while ruling out an out-of-order publish
	// corrupting segment bounds.
	sorted := append([]Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TS < sorted[j].TS })
	for i := range sorted {
		if sorted[i].ID == "" {
			sorted[i].ID = NewID()
		}
	}

	var lastBytes int64
	err := retry.Do(ctx, w.opts.RetryPolicy, func(attempt int) error {
		// A failed attempt can leave a dangling in-memory seq
		// reservation (reserve succeeded, Save never did). Reloading
		// discards it so the retry re-reserves against the durable
		// counter — otherwise the log's seq space would gap.
		if attempt > 0 {
			if err := w.mgr.Load(ctx); err != nil {
				return err
			}
		}
		_, n, err := w.publishOnce(ctx, sorted)
		lastBytes = n
		return err
	})
	latency := w.clock().Sub(start).Milliseconds()
	if err != nil {
		// Drop whatever the failed attempts staged in memory so a later
		// SaveIfDirty can't persist a reservation no event ever used.
		_ = w.mgr.Load(context.WithoutCancel(ctx))
		observe.EmitWrite(w.bus, observe.WriteEvent{Phase: "error", Dataset: w.dataset, Rows: len(sorted), Latency: latency, Err: err})
		return err
	}
	observe.EmitWrite(w.bus, observe.WriteEvent{Phase: "end", Dataset: w.dataset, Rows: len(sorted), Bytes: lastBytes, Latency: latency})
	return nil
}

// publishOnce reserves a fresh dense event-seq range and segment seq
// against the Manager's *current* in-memory state, stamps, encodes,
// uploads, and publishes. It must redo seq reservation and encoding on
// every retry attempt, not just the upload: after a manifest conflict,
// Manager.Save has already reloaded the authoritative manifest, so the
// seqs reserved on a prior attempt may now collide with what a racing
// writer committed in the meantime.
func (w *Writer) publishOnce(ctx context.Context, sorted []Event) (string, int64, error) {
	first := w.mgr.ReserveEventSeq(int64(len(sorted)))
	for i := range sorted {
		sorted[i].Seq = first + int64(i)
	}

	bytes, footer, err := encodeBatch(sorted, w.opts)
	if err != nil {
		return "", 0, err
	}

	segSeq := w.mgr.ReserveSegmentSeq()
	key := segmentKey(w.dataset, segSeq)

	if _, err := w.store.WriteAtomic(ctx, key, bytes); err != nil {
		return key, int64(len(bytes)), err
	}

	desc := deriveDescriptor(segSeq, key, footer, int64(len(bytes)), w.clock().UnixMilli())
	w.mgr.AddSegment(desc)
	if err := w.mgr.Save(ctx); err != nil {
		if err == manifest.ErrManifestConflict {
			corelog.Printf("eventlog: manifest conflict publishing seg %d, retrying", segSeq)
		}
		return key, int64(len(bytes)), err
	}
	observe.EmitSegment(w.bus, observe.SegmentEvent{Phase: "created", Dataset: w.dataset, Seq: segSeq, Path: key})
	corelog.Printf("eventlog: published segment %s (%d rows, %d bytes)", key, desc.RowCount, desc.SizeBytes)
	return key, int64(len(bytes)), nil
}

func segmentKey(dataset string, segSeq int64) string {
	return fmt.Sprintf("%s/events/seg-%010d.parquet", dataset, segSeq)
}

// encodeBatch encodes sorted events through the segment Codec using
// the event Schema, returning the finished file bytes and footer.
func encodeBatch(sorted []Event, opts WriterOptions) ([]byte, *segment.Footer, error) {
	w := segment.NewWriter(Schema(opts.Compression), opts.Segment)
	for _, e := range sorted {
		if err := w.WriteRow(ToRow(e)); err != nil {
			return nil, nil, err
		}
	}
	return w.Finish()
}

// deriveDescriptor computes a SegmentDescriptor's bounds from the
// codec's own per-row-group statistics (ts, seq columns) — the writer
// never re-scans rows to find min/max, it trusts the footer it just
// produced.
func deriveDescriptor(segSeq int64, key string, footer *segment.Footer, sizeBytes int64, createdAt int64) manifest.SegmentDescriptor {
	tsStats, _ := footer.ColumnStatsAcross("ts")
	seqStats, _ := footer.ColumnStatsAcross("seq")
	var rowCount int64
	for _, rg := range footer.RowGroups {
		rowCount += rg.RowCount
	}
	return manifest.SegmentDescriptor{
		Seq:       segSeq,
		Path:      key,
		MinTS:     tsStats.MinInt,
		MaxTS:     tsStats.MaxInt,
		MinSeq:    seqStats.MinInt,
		MaxSeq:    seqStats.MaxInt,
		RowCount:  rowCount,
		SizeBytes: sizeBytes,
		CreatedAt: createdAt,
	}
}
