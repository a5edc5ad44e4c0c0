package eventlog

import (
	"github.com/launix-de/chronostore/segment"
	"github.com/launix-de/chronostore/value"
)

// Schema is the fixed column layout an event segment encodes, in the
// order every row group lays its column chunks out. op and target are
// strings; before/after/actor/metadata are opaque-map columns the
// codec never interprets beyond per-column statistics.
// ts/seq/op are pinned uncompressed regardless of compression: they're
// small and dense enough that a codec rarely recovers its own overhead.
func Schema(compression segment.Compression) []segment.ColumnDef {
	return []segment.ColumnDef{
		{Name: "id", Type: segment.TypeString, Compression: compression},
		{Name: "ts", Type: segment.TypeInt64, Compression: segment.Uncompressed},
		{Name: "seq", Type: segment.TypeInt64, Compression: segment.Uncompressed},
		{Name: "op", Type: segment.TypeString, Compression: segment.Uncompressed},
		{Name: "target", Type: segment.TypeString, Compression: compression},
		{Name: "before", Type: segment.TypeOpaqueMap, Compression: compression},
		{Name: "after", Type: segment.TypeOpaqueMap, Compression: compression},
		{Name: "actor", Type: segment.TypeOpaqueMap, Compression: compression},
		{Name: "metadata", Type: segment.TypeOpaqueMap, Compression: compression},
	}
}

// ToRow converts an Event into the map[string]any shape segment.Writer
// expects, one entry per Schema column.
func ToRow(e Event) map[string]any {
	return map[string]any{
		"id":       e.ID,
		"ts":       e.TS,
		"seq":      e.Seq,
		"op":       e.Op.String(),
		"target":   e.Target,
		"before":   mapOrNil(e.Before),
		"after":    mapOrNil(e.After),
		"actor":    mapOrNil(e.Actor),
		"metadata": mapOrNil(e.Metadata),
	}
}

func mapOrNil(m value.Map) any {
	if m == nil {
		return nil
	}
	return m
}

// FromColumns reassembles Events from the column-major output of
// segment.ReadRowGroup, preserving row order (the decoder's
// order-preserving contract). Anchored on the ts column rather than
// id: a caller-narrowed projection always carries ts/seq (the Reader's
// withRequiredColumns guarantees it) but may omit id.
func FromColumns(cols map[string][]any) ([]Event, error) {
	n := len(cols["ts"])
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		op, _ := ParseOp(stringAt(cols["op"], i))
		out[i] = Event{
			ID:       stringAt(cols["id"], i),
			TS:       int64At(cols["ts"], i),
			Seq:      int64At(cols["seq"], i),
			Op:       op,
			Target:   stringAt(cols["target"], i),
			Before:   mapAt(cols["before"], i),
			After:    mapAt(cols["after"], i),
			Actor:    mapAt(cols["actor"], i),
			Metadata: mapAt(cols["metadata"], i),
		}
	}
	return out, nil
}

func stringAt(col []any, i int) string {
	if col == nil || col[i] == nil {
		return ""
	}
	return col[i].(string)
}

func int64At(col []any, i int) int64 {
	if col == nil || col[i] == nil {
		return 0
	}
	return col[i].(int64)
}

func mapAt(col []any, i int) value.Map {
	if col == nil || col[i] == nil {
		return nil
	}
	return col[i].(value.Map)
}
