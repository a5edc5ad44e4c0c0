package manifest

import (
	"context"
	"errors"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/launix-de/chronostore/objectstore"
)

func newTestManager(t *testing.T) (*Manager, objectstore.Store) {
	t.Helper()
	store := objectstore.NewMemoryStore()
	m := NewManager(store, "orders")
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return m, store
}

func TestLoadSynthesizesEmptyManifest(t *testing.T) {
	m, _ := newTestManager(t)
	snap := m.Snapshot()
	if snap.Version != schemaVersion || snap.Dataset != "orders" {
		t.Fatalf("unexpected synthesized manifest: %+v", snap)
	}
	if snap.NextEventSeq != 1 || snap.NextSegmentSeq != 1 {
		t.Fatalf("expected counters to start at 1, got %+v", snap)
	}
}

func TestAddSegmentUpdatesAggregatesAndOrder(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddSegment(SegmentDescriptor{Seq: 1, MinTS: 1000, MaxTS: 2000, MinSeq: 1, MaxSeq: 3, RowCount: 3})
	m.AddSegment(SegmentDescriptor{Seq: 2, MinTS: 500, MaxTS: 900, MinSeq: 4, MaxSeq: 5, RowCount: 2})

	snap := m.Snapshot()
	if len(snap.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(snap.Segments))
	}
	if snap.Segments[0].Seq != 2 {
		t.Fatalf("expected segment seq 2 (min_ts=500) first, got seq %d", snap.Segments[0].Seq)
	}
	if snap.TotalEvents != 5 {
		t.Fatalf("expected total_events=5, got %d", snap.TotalEvents)
	}
	if snap.NextEventSeq != 6 {
		t.Fatalf("expected next_event_seq=6, got %d", snap.NextEventSeq)
	}
	if snap.NextSegmentSeq != 3 {
		t.Fatalf("expected next_segment_seq=3, got %d", snap.NextSegmentSeq)
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	m, store := newTestManager(t)
	m.AddSegment(SegmentDescriptor{Seq: 1, MinTS: 1000, MaxTS: 2000, MinSeq: 1, MaxSeq: 3, RowCount: 3, Path: "orders/events/seg-0000000001.parquet"})
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded := NewManager(store, "orders")
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	snap := reloaded.Snapshot()
	if len(snap.Segments) != 1 || snap.Segments[0].Path != "orders/events/seg-0000000001.parquet" {
		t.Fatalf("unexpected reloaded manifest: %+v", snap)
	}
}

func TestSaveConflictSurfacesErrManifestConflict(t *testing.T) {
	m, store := newTestManager(t)
	m.AddSegment(SegmentDescriptor{Seq: 1, MinTS: 1000, MaxTS: 2000, RowCount: 1})
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("initial save: %v", err)
	}

	// Simulate a second writer racing in behind our cached etag.
	rival := NewManager(store, "orders")
	if err := rival.Load(context.Background()); err != nil {
		t.Fatalf("rival load: %v", err)
	}
	rival.AddSegment(SegmentDescriptor{Seq: 2, MinTS: 2000, MaxTS: 3000, RowCount: 1})
	if err := rival.Save(context.Background()); err != nil {
		t.Fatalf("rival save: %v", err)
	}

	m.AddSegment(SegmentDescriptor{Seq: 3, MinTS: 3000, MaxTS: 4000, RowCount: 1})
	err := m.Save(context.Background())
	if !errors.Is(err, ErrManifestConflict) {
		t.Fatalf("expected ErrManifestConflict, got %v", err)
	}
	// m has reloaded the latest manifest as part of conflict handling.
	snap := m.Snapshot()
	if len(snap.Segments) != 2 {
		t.Fatalf("expected reload to pick up rival's segment, got %d segments", len(snap.Segments))
	}
}

func TestReserveEventSeqIsDenseAndSequential(t *testing.T) {
	m, _ := newTestManager(t)
	first := m.ReserveEventSeq(3)
	second := m.ReserveEventSeq(2)
	if first != 1 {
		t.Fatalf("expected first reservation to start at 1, got %d", first)
	}
	if second != 4 {
		t.Fatalf("expected second reservation to start at 4, got %d", second)
	}
}

func TestRemoveSegmentsAdjustsAggregates(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddSegment(SegmentDescriptor{Seq: 1, MinTS: 1000, MaxTS: 2000, MinSeq: 1, MaxSeq: 2, RowCount: 2})
	m.AddSegment(SegmentDescriptor{Seq: 2, MinTS: 2000, MaxTS: 3000, MinSeq: 3, MaxSeq: 4, RowCount: 2})

	m.RemoveSegments(mapset.NewThreadUnsafeSet[int64](1))
	snap := m.Snapshot()
	if len(snap.Segments) != 1 || snap.Segments[0].Seq != 2 {
		t.Fatalf("expected only segment 2 to remain, got %+v", snap.Segments)
	}
	if snap.TotalEvents != 2 {
		t.Fatalf("expected total_events=2 after removal, got %d", snap.TotalEvents)
	}
}

func TestSegmentsInRangeAndLookup(t *testing.T) {
	m, _ := newTestManager(t)
	m.AddSegment(SegmentDescriptor{Seq: 1, MinTS: 0, MaxTS: 1000})
	m.AddSegment(SegmentDescriptor{Seq: 2, MinTS: 1000, MaxTS: 2000})
	m.AddSegment(SegmentDescriptor{Seq: 3, MinTS: 5000, MaxTS: 6000})

	got := m.SegmentsInRange(900, 1500)
	if len(got) != 2 {
		t.Fatalf("expected 2 overlapping segments, got %d: %+v", len(got), got)
	}

	d, ok := m.Segment(3)
	if !ok || d.MinTS != 5000 {
		t.Fatalf("expected lock-free lookup to find segment 3, got %+v ok=%v", d, ok)
	}
	if _, ok := m.Segment(99); ok {
		t.Fatalf("expected lookup miss for unknown seq")
	}
}

func TestCompactedThroughIsMonotonic(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetCompactedThrough(1000)
	m.SetCompactedThrough(500)
	snap := m.Snapshot()
	if snap.CompactedThrough == nil || *snap.CompactedThrough != 1000 {
		t.Fatalf("expected watermark to stay at 1000, got %v", snap.CompactedThrough)
	}
}
