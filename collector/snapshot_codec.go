package collector

import (
	"github.com/launix-de/chronostore/segment"
	"github.com/launix-de/chronostore/value"
)

// EntitySchema is the column layout a compacted entity snapshot
// segment encodes.
func EntitySchema(compression segment.Compression) []segment.ColumnDef {
	return []segment.ColumnDef{
		{Name: "target", Type: segment.TypeString, Compression: compression},
		{Name: "ns", Type: segment.TypeString, Compression: compression},
		{Name: "id", Type: segment.TypeString, Compression: compression},
		{Name: "state", Type: segment.TypeOpaqueMap, Compression: compression},
		{Name: "exists", Type: segment.TypeBool, Compression: segment.Uncompressed},
		{Name: "last_event_ts", Type: segment.TypeInt64, Compression: segment.Uncompressed},
		{Name: "last_event_seq", Type: segment.TypeInt64, Compression: segment.Uncompressed},
	}
}

// RelationshipSchema is the column layout a compacted relationship
// snapshot segment encodes.
func RelationshipSchema(compression segment.Compression) []segment.ColumnDef {
	return []segment.ColumnDef{
		{Name: "target", Type: segment.TypeString, Compression: compression},
		{Name: "from", Type: segment.TypeString, Compression: compression},
		{Name: "predicate", Type: segment.TypeString, Compression: compression},
		{Name: "to", Type: segment.TypeString, Compression: compression},
		{Name: "data", Type: segment.TypeOpaqueMap, Compression: compression},
		{Name: "exists", Type: segment.TypeBool, Compression: segment.Uncompressed},
		{Name: "last_event_ts", Type: segment.TypeInt64, Compression: segment.Uncompressed},
		{Name: "last_event_seq", Type: segment.TypeInt64, Compression: segment.Uncompressed},
	}
}

func EntityToRow(e EntityState) map[string]any {
	return map[string]any{
		"target":         e.Target,
		"ns":             e.NS,
		"id":             e.ID,
		"state":          mapOrNil(e.State),
		"exists":         e.Exists,
		"last_event_ts":  e.LastEventTS,
		"last_event_seq": e.LastEventSeq,
	}
}

func RelationshipToRow(r RelationshipState) map[string]any {
	return map[string]any{
		"target":         r.Target,
		"from":           r.From,
		"predicate":      r.Predicate,
		"to":             r.To,
		"data":           mapOrNil(r.Data),
		"exists":         r.Exists,
		"last_event_ts":  r.LastEventTS,
		"last_event_seq": r.LastEventSeq,
	}
}

func mapOrNil(m value.Map) any {
	if m == nil {
		return nil
	}
	return m
}

// EntitiesFromColumns reassembles EntityState rows from the
// column-major output of segment.ReadRowGroup.
func EntitiesFromColumns(cols map[string][]any) []EntityState {
	n := colLen(cols, "target")
	out := make([]EntityState, n)
	for i := 0; i < n; i++ {
		out[i] = EntityState{
			Target:       strAt(cols["target"], i),
			NS:           strAt(cols["ns"], i),
			ID:           strAt(cols["id"], i),
			State:        mapAt(cols["state"], i),
			Exists:       boolAt(cols["exists"], i),
			LastEventTS:  intAt(cols["last_event_ts"], i),
			LastEventSeq: intAt(cols["last_event_seq"], i),
		}
	}
	return out
}

// RelationshipsFromColumns reassembles RelationshipState rows from
// the column-major output of segment.ReadRowGroup.
func RelationshipsFromColumns(cols map[string][]any) []RelationshipState {
	n := colLen(cols, "target")
	out := make([]RelationshipState, n)
	for i := 0; i < n; i++ {
		out[i] = RelationshipState{
			Target:       strAt(cols["target"], i),
			From:         strAt(cols["from"], i),
			Predicate:    strAt(cols["predicate"], i),
			To:           strAt(cols["to"], i),
			Data:         mapAt(cols["data"], i),
			Exists:       boolAt(cols["exists"], i),
			LastEventTS:  intAt(cols["last_event_ts"], i),
			LastEventSeq: intAt(cols["last_event_seq"], i),
		}
	}
	return out
}

func colLen(cols map[string][]any, name string) int {
	if c, ok := cols[name]; ok {
		return len(c)
	}
	return 0
}

func strAt(col []any, i int) string {
	if col == nil || col[i] == nil {
		return ""
	}
	return col[i].(string)
}

func intAt(col []any, i int) int64 {
	if col == nil || col[i] == nil {
		return 0
	}
	return col[i].(int64)
}

func boolAt(col []any, i int) bool {
	if col == nil || col[i] == nil {
		return false
	}
	return col[i].(bool)
}

func mapAt(col []any, i int) value.Map {
	if col == nil || col[i] == nil {
		return nil
	}
	return col[i].(value.Map)
}
