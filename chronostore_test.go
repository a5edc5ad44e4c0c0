package chronostore

import (
	"context"
	"testing"

	"github.com/launix-de/chronostore/config"
	"github.com/launix-de/chronostore/eventlog"
	"github.com/launix-de/chronostore/objectstore"
	"github.com/launix-de/chronostore/observe"
	"github.com/launix-de/chronostore/value"
)

func TestOpenPublishScanCompactRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemoryStore()
	rec := observe.NewRecorder()

	s, err := Open(ctx, store, "orders", config.Default, rec)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close(ctx)

	err = s.Publish(ctx, []eventlog.Event{
		{TS: 1000, Op: eventlog.OpCreate, Target: "order:1", After: value.Map{"status": "new"}},
		{TS: 2000, Op: eventlog.OpUpdate, Target: "order:1", After: value.Map{"status": "shipped"}},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := s.Scan(ctx, eventlog.TimeRange{Unbounded: true}, nil, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events back, got %d", len(got))
	}

	summary, err := s.Compact(ctx, 1500, true, true)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if len(summary.Entities) != 1 || summary.Entities[0].State["status"] != "new" {
		t.Fatalf("expected state as of T=1500 (status=new), got %+v", summary.Entities)
	}

	if s.NeedsCompaction() {
		t.Fatalf("did not expect a freshly compacted tiny dataset to need compaction again")
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(rec.Writes) == 0 || len(rec.Compactions) == 0 {
		t.Fatalf("expected the shared observation bus to have seen write and compaction notifications")
	}
}
