package segment

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/launix-de/chronostore/objectstore"
	"github.com/launix-de/chronostore/value"
)

var testSchema = []ColumnDef{
	{Name: "ts", Type: TypeInt64, Compression: Uncompressed},
	{Name: "seq", Type: TypeInt64, Compression: Uncompressed},
	{Name: "target", Type: TypeString, Compression: Snappy},
	{Name: "after", Type: TypeOpaqueMap, Compression: Zstd},
}

func rowsFixture() []map[string]any {
	return []map[string]any{
		{"ts": int64(1000), "seq": int64(1), "target": "u:1", "after": value.Map{"name": "A"}},
		{"ts": int64(1500), "seq": int64(2), "target": "u:2", "after": value.Map{"name": "B"}},
		{"ts": int64(2000), "seq": int64(3), "target": "u:1", "after": nil},
	}
}

func buildSegment(t *testing.T, opts WriterOptions) ([]byte, *Footer) {
	t.Helper()
	w := NewWriter(testSchema, opts)
	for _, r := range rowsFixture() {
		if err := w.WriteRow(r); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	data, footer, err := w.Finish()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return data, footer
}

func TestWriteAndReadFooterRoundTrip(t *testing.T) {
	data, wantFooter := buildSegment(t, DefaultWriterOptions)

	store := objectstore.NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Write(ctx, "seg-0000000001.parquet", data); err != nil {
		t.Fatalf("store write: %v", err)
	}

	footer, err := ReadFooter(ctx, store, "seg-0000000001.parquet", int64(len(data)))
	if err != nil {
		t.Fatalf("read footer: %v", err)
	}
	if len(footer.RowGroups) != len(wantFooter.RowGroups) {
		t.Fatalf("row group count mismatch: got %d want %d", len(footer.RowGroups), len(wantFooter.RowGroups))
	}
	tsStats, ok := footer.ColumnStatsAcross("ts")
	if !ok || tsStats.MinInt != 1000 || tsStats.MaxInt != 2000 {
		t.Fatalf("unexpected ts stats: %+v ok=%v", tsStats, ok)
	}
}

func TestReadRowGroupPreservesOrderAndProjection(t *testing.T) {
	data, footer := buildSegment(t, DefaultWriterOptions)
	store := objectstore.NewMemoryStore()
	ctx := context.Background()
	store.Write(ctx, "k", data)

	cols, err := ReadRowGroup(ctx, store, "k", footer, 0, []string{"target", "ts"})
	if err != nil {
		t.Fatalf("read row group: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected exactly the 2 projected columns, got %d", len(cols))
	}
	want := []any{"u:1", "u:2", "u:1"}
	for i, v := range cols["target"] {
		if v != want[i] {
			t.Fatalf("target[%d] = %v, want %v", i, v, want[i])
		}
	}
	wantTS := []any{int64(1000), int64(1500), int64(2000)}
	for i, v := range cols["ts"] {
		if v != wantTS[i] {
			t.Fatalf("ts[%d] = %v, want %v", i, v, wantTS[i])
		}
	}
}

func TestOpaqueMapNullRoundTrips(t *testing.T) {
	data, footer := buildSegment(t, DefaultWriterOptions)
	store := objectstore.NewMemoryStore()
	ctx := context.Background()
	store.Write(ctx, "k", data)

	cols, err := ReadRowGroup(ctx, store, "k", footer, 0, []string{"after"})
	if err != nil {
		t.Fatalf("read row group: %v", err)
	}
	if cols["after"][2] != nil {
		t.Fatalf("expected third row's after to be nil, got %v", cols["after"][2])
	}
	m, ok := cols["after"][0].(value.Map)
	if !ok || !value.Equal(m, value.Map{"name": "A"}) {
		t.Fatalf("unexpected decoded map: %#v", cols["after"][0])
	}
}

func TestRowGroupPruningSkipsOutOfRangeGroup(t *testing.T) {
	_, footer := buildSegment(t, DefaultWriterOptions)
	if len(footer.RowGroups) != 1 {
		t.Fatalf("expected a single row group, got %d", len(footer.RowGroups))
	}

	tooHigh := Predicate{Column: "ts", HasMinBound: true, MinInt: 2500}
	if !CanSkip(footer.RowGroups[0], tooHigh) {
		t.Fatalf("row group (max ts=2000) should be prunable for ts >= 2500")
	}
	if !CanSkipSegment(footer, []Predicate{tooHigh}) {
		t.Fatalf("segment should be fully prunable when its only row group is prunable")
	}

	overlaps := Predicate{Column: "ts", HasMinBound: true, MinInt: 1500, HasMaxBound: true, MaxInt: 1600}
	if CanSkip(footer.RowGroups[0], overlaps) {
		t.Fatalf("row group overlapping [1500,1600] must not be pruned")
	}
}

func TestMultipleRowGroupsAcrossFlushes(t *testing.T) {
	data, footer := buildSegment(t, WriterOptions{TargetRows: 1, TargetBytes: 1 << 30})
	store := objectstore.NewMemoryStore()
	ctx := context.Background()
	store.Write(ctx, "k", data)

	for i, rg := range footer.RowGroups {
		cols, err := ReadRowGroup(ctx, store, "k", footer, i, nil)
		if err != nil {
			t.Fatalf("read row group %d: %v", i, err)
		}
		if len(cols["ts"]) != 1 {
			t.Fatalf("row group %d: expected 1 row, got %d", i, len(cols["ts"]))
		}
		_ = rg
	}
}

// For random data and random per-column range predicates, a row
// group CanSkip says to skip must contain no matching row.
func TestPruningIsSound(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	schema := []ColumnDef{{Name: "ts", Type: TypeInt64, Compression: Uncompressed}}
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(30)
		values := make([]int64, n)
		w := NewWriter(schema, DefaultWriterOptions)
		for i := range values {
			values[i] = int64(rng.Intn(1000))
			if err := w.WriteRow(map[string]any{"ts": values[i]}); err != nil {
				t.Fatalf("trial %d: write row: %v", trial, err)
			}
		}
		_, footer, err := w.Finish()
		if err != nil {
			t.Fatalf("trial %d: finish: %v", trial, err)
		}

		lo := int64(rng.Intn(1200) - 100)
		hi := lo + int64(rng.Intn(400))
		p := Predicate{Column: "ts", HasMinBound: true, MinInt: lo, HasMaxBound: true, MaxInt: hi}
		for _, rg := range footer.RowGroups {
			if !CanSkip(rg, p) {
				continue
			}
			for _, v := range values {
				if v >= lo && v <= hi {
					t.Fatalf("trial %d: pruned a row group containing matching value %d for [%d,%d]", trial, v, lo, hi)
				}
			}
		}
	}
}

func TestCorruptFooterMagicRejected(t *testing.T) {
	data, _ := buildSegment(t, DefaultWriterOptions)
	corrupted := append([]byte{}, data...)
	corrupted[0] = 'X'
	store := objectstore.NewMemoryStore()
	ctx := context.Background()
	store.Write(ctx, "k", corrupted)

	_, err := ReadFooter(ctx, store, "k", int64(len(corrupted)))
	if err == nil {
		t.Fatalf("expected corrupt segment error")
	}
	var cs *CorruptSegmentError
	if !errors.As(err, &cs) {
		t.Fatalf("expected *CorruptSegmentError, got %T: %v", err, err)
	}
}
