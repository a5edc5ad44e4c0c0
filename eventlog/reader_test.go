package eventlog

import (
	"context"
	"testing"

	"github.com/launix-de/chronostore/manifest"
	"github.com/launix-de/chronostore/objectstore"
	"github.com/launix-de/chronostore/observe"
	"github.com/launix-de/chronostore/segment"
)

func seedEvents(t *testing.T, store objectstore.Store, dataset string, batches [][]Event) *manifest.Manager {
	t.Helper()
	mgr := manifest.NewManager(store, dataset)
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	w := NewWriter(store, mgr, dataset, DefaultWriterOptions, nil)
	for _, b := range batches {
		if err := w.Publish(context.Background(), b); err != nil {
			t.Fatalf("publish batch: %v", err)
		}
	}
	return mgr
}

func TestScanReturnsEventsInTimeRangeSortedByTsSeq(t *testing.T) {
	store := objectstore.NewMemoryStore()
	mgr := seedEvents(t, store, "orders", [][]Event{
		{
			{TS: 1000, Op: OpCreate, Target: "a:1"},
			{TS: 3000, Op: OpCreate, Target: "a:3"},
			{TS: 2000, Op: OpCreate, Target: "a:2"},
		},
	})
	r := NewReader(store, mgr, "orders", nil)

	got, err := r.Scan(context.Background(), TimeRange{Lo: 1500, Hi: 2500}, nil, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 1 || got[0].Target != "a:2" {
		t.Fatalf("expected only a:2 in [1500,2500), got %+v", got)
	}

	all, err := r.Scan(context.Background(), TimeRange{Unbounded: true}, nil, nil)
	if err != nil {
		t.Fatalf("unbounded scan: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !Less(all[i-1], all[i]) {
			t.Fatalf("expected strictly increasing (ts,seq) order, got %+v", all)
		}
	}
}

func TestScanAfterSeqReturnsOnlyNewerEvents(t *testing.T) {
	store := objectstore.NewMemoryStore()
	mgr := seedEvents(t, store, "orders", [][]Event{
		{{TS: 1000, Op: OpCreate, Target: "a:1"}, {TS: 1001, Op: OpCreate, Target: "a:2"}},
		{{TS: 1002, Op: OpCreate, Target: "a:3"}},
	})
	r := NewReader(store, mgr, "orders", nil)

	got, err := r.ScanAfterSeq(context.Background(), 1)
	if err != nil {
		t.Fatalf("scan after seq: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events after seq=1, got %d: %+v", len(got), got)
	}
	for _, e := range got {
		if e.Seq <= 1 {
			t.Fatalf("expected every returned event to have seq>1, got %+v", e)
		}
	}
}

// TestRowGroupPruningSkipsUnmatchedSegments: a query whose predicate
// excludes an entire segment via min/max stats must not fetch that
// segment's row-group pages, only its footer.
func TestRowGroupPruningSkipsUnmatchedSegments(t *testing.T) {
	store := objectstore.NewMemoryStore()
	mgr := seedEvents(t, store, "orders", [][]Event{
		{{TS: 1000, Op: OpCreate, Target: "a:1"}},
		{{TS: 9000, Op: OpCreate, Target: "a:2"}},
	})
	rec := observe.NewRecorder()
	r := NewReader(store, mgr, "orders", rec)

	predicates := []segment.Predicate{{Column: "ts", HasMinBound: true, MinInt: 8000, HasMaxBound: true, MaxInt: 9500}}
	got, err := r.Scan(context.Background(), TimeRange{Unbounded: true}, predicates, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 1 || got[0].Target != "a:2" {
		t.Fatalf("expected only a:2 to survive the predicate, got %+v", got)
	}
	var rowGroupFetches int
	for _, ev := range rec.IO {
		if ev.Kind == "row_group" {
			rowGroupFetches++
		}
	}
	if rowGroupFetches != 1 {
		t.Fatalf("expected exactly 1 row-group fetch (the surviving segment), got %d", rowGroupFetches)
	}
}

// TestPruningFetchesAtMostOneRowGroup checks pruning inside a
// segment: many events split into several row groups across two
// segments, with a ts predicate overlapping exactly one group — the
// Reader must fetch only that group's pages beyond the footers.
func TestPruningFetchesAtMostOneRowGroup(t *testing.T) {
	store := objectstore.NewMemoryStore()
	mgr := manifest.NewManager(store, "orders")
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	opts := DefaultWriterOptions
	opts.Segment = segment.WriterOptions{TargetRows: 100, TargetBytes: 1 << 30}
	w := NewWriter(store, mgr, "orders", opts, nil)

	for batch := 0; batch < 2; batch++ {
		events := make([]Event, 500)
		for i := range events {
			events[i] = Event{TS: int64(batch*500 + i), Op: OpCreate, Target: "a:1"}
		}
		if err := w.Publish(context.Background(), events); err != nil {
			t.Fatalf("publish batch %d: %v", batch, err)
		}
	}

	rec := observe.NewRecorder()
	r := NewReader(store, mgr, "orders", rec)
	predicates := []segment.Predicate{{Column: "ts", HasMinBound: true, MinInt: 230, HasMaxBound: true, MaxInt: 270}}
	got, err := r.Scan(context.Background(), TimeRange{Lo: 230, Hi: 271}, predicates, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 41 {
		t.Fatalf("expected 41 events in [230,270], got %d", len(got))
	}
	var rowGroupFetches int
	for _, ev := range rec.IO {
		if ev.Kind == "row_group" {
			rowGroupFetches++
		}
	}
	if rowGroupFetches != 1 {
		t.Fatalf("expected the predicate to prune down to a single row-group fetch, got %d", rowGroupFetches)
	}
}
