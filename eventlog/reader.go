package eventlog

import (
	"context"
	"sort"
	"time"

	"github.com/launix-de/chronostore/manifest"
	"github.com/launix-de/chronostore/objectstore"
	"github.com/launix-de/chronostore/observe"
	"github.com/launix-de/chronostore/segment"
)

// TimeRange is an inclusive-exclusive [Lo, Hi) window over ts, the
// shape scan's time_range argument takes. A zero-value Hi of 0 with
// Unbounded set means "to infinity."
type TimeRange struct {
	Lo, Hi    int64
	Unbounded bool
}

// Reader runs time-range and seq scans over published segments,
// pruning by per-column statistics before
// ever fetching a row-group page. It never mutates the Manifest and
// is safe to use concurrently with a Writer — it only ever consults a
// Manager snapshot.
type Reader struct {
	store   objectstore.Store
	mgr     *manifest.Manager
	dataset string
	bus     observe.Bus
	clock   func() time.Time
}

func NewReader(store objectstore.Store, mgr *manifest.Manager, dataset string, bus observe.Bus) *Reader {
	return &Reader{store: store, mgr: mgr, dataset: dataset, bus: bus, clock: time.Now}
}

// sampleLag emits the consistency-lag sample taken at the start of
// each scan: how far this scan's manifest snapshot trails the newest published
// segment, and the highest event seq the snapshot covers.
func (r *Reader) sampleLag(snap manifest.Manifest) {
	var newest, asOf int64
	for _, d := range snap.Segments {
		if d.CreatedAt > newest {
			newest = d.CreatedAt
		}
		if d.MaxSeq > asOf {
			asOf = d.MaxSeq
		}
	}
	if newest == 0 {
		return
	}
	observe.EmitReaderLag(r.bus, observe.LagSample{
		Dataset: r.dataset,
		LagMS:   r.clock().UnixMilli() - newest,
		AsOfSeq: asOf,
	})
}

// Scan returns every event whose ts falls in tr and that satisfies
// predicates, restricted to the columns in projection (nil/empty
// means every column), in (ts, seq) order.
func (r *Reader) Scan(ctx context.Context, tr TimeRange, predicates []segment.Predicate, projection []string) ([]Event, error) {
	hi := tr.Hi
	if tr.Unbounded {
		hi = int64(1)<<62 - 1
	}
	r.sampleLag(r.mgr.Snapshot())
	candidates := r.mgr.SegmentsInRange(tr.Lo, hi)
	return r.scanSegments(ctx, candidates, predicates, projection, func(e Event) bool {
		return e.TS >= tr.Lo && (tr.Unbounded || e.TS < tr.Hi)
	})
}

// ScanAfterSeq returns the ordered tail of events with Seq > seq.
func (r *Reader) ScanAfterSeq(ctx context.Context, seq int64) ([]Event, error) {
	var candidates []manifest.SegmentDescriptor
	snap := r.mgr.Snapshot()
	r.sampleLag(snap)
	for _, d := range snap.Segments {
		if d.MaxSeq > 0 && d.MaxSeq > seq {
			candidates = append(candidates, d)
		}
	}
	return r.scanSegments(ctx, candidates, nil, nil, func(e Event) bool {
		return e.Seq > seq
	})
}

// scanSegments is the shared pruning + decode + merge path for Scan
// and ScanAfterSeq: fetch each candidate's footer, drop segments the
// statistics prove can't match, decode surviving row groups column by
// column, and filter+merge-concatenate the results into (ts, seq)
// order.
func (r *Reader) scanSegments(ctx context.Context, candidates []manifest.SegmentDescriptor, predicates []segment.Predicate, projection []string, keep func(Event) bool) ([]Event, error) {
	var out []Event
	for _, d := range candidates {
		footer, err := r.readFooter(ctx, d)
		if err != nil {
			return nil, err
		}
		if len(predicates) > 0 && segment.CanSkipSegment(footer, predicates) {
			continue
		}
		proj := withRequiredColumns(projection)
		for rgIdx, rg := range footer.RowGroups {
			if skipRowGroup(rg, predicates) {
				continue
			}
			cols, err := r.readRowGroup(ctx, d, footer, rgIdx, proj)
			if err != nil {
				return nil, err
			}
			events, err := FromColumns(cols)
			if err != nil {
				return nil, err
			}
			for _, e := range events {
				if keep(e) {
					out = append(out, e)
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out, nil
}

func skipRowGroup(rg segment.RowGroupMeta, predicates []segment.Predicate) bool {
	for _, p := range predicates {
		if segment.CanSkip(rg, p) {
			return true
		}
	}
	return false
}

// withRequiredColumns ensures ts and seq are always decoded so
// ordering and the keep() filter always have what they need, even
// when a caller projects down to e.g. just "target".
func withRequiredColumns(projection []string) []string {
	if len(projection) == 0 {
		return nil
	}
	has := map[string]bool{}
	out := append([]string(nil), projection...)
	for _, c := range out {
		has[c] = true
	}
	for _, required := range []string{"ts", "seq"} {
		if !has[required] {
			out = append(out, required)
		}
	}
	return out
}

func (r *Reader) readFooter(ctx context.Context, d manifest.SegmentDescriptor) (*segment.Footer, error) {
	footer, err := segment.ReadFooter(ctx, r.store, d.Path, d.SizeBytes)
	if err != nil {
		return nil, err
	}
	observe.EmitIO(r.bus, observe.IOEvent{Dataset: r.dataset, Kind: "footer", Bytes: d.SizeBytes})
	return footer, nil
}

func (r *Reader) readRowGroup(ctx context.Context, d manifest.SegmentDescriptor, footer *segment.Footer, rgIdx int, projection []string) (map[string][]any, error) {
	cols, err := segment.ReadRowGroup(ctx, r.store, d.Path, footer, rgIdx, projection)
	if err != nil {
		return nil, err
	}
	var n int64
	rg := footer.RowGroups[rgIdx]
	wanted := projection
	if len(wanted) == 0 {
		for _, c := range rg.Columns {
			wanted = append(wanted, c.Name)
		}
	}
	for _, name := range wanted {
		if c, ok := rg.ColumnByName(name); ok {
			n += c.Length
		}
	}
	observe.EmitIO(r.bus, observe.IOEvent{Dataset: r.dataset, Kind: "row_group", Bytes: n})
	return cols, nil
}
