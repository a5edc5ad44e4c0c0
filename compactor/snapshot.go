package compactor

import (
	"context"
	"fmt"

	"github.com/launix-de/chronostore/collector"
	"github.com/launix-de/chronostore/objectstore"
	"github.com/launix-de/chronostore/segment"
)

// SnapshotKeys returns the entity and relationship snapshot keys for
// a cutoff: {dataset}/snapshots/{T}/entities.parquet and .../rels.parquet.
func SnapshotKeys(dataset string, cutoffTS int64) (entityKey, relKey string) {
	entityKey = fmt.Sprintf("%s/snapshots/%d/entities.parquet", dataset, cutoffTS)
	relKey = fmt.Sprintf("%s/snapshots/%d/rels.parquet", dataset, cutoffTS)
	return entityKey, relKey
}

// ReadSnapshot loads the state tables a previous Compact run wrote at
// cutoffTS. Callers seed a fresh Collector with the result and replay
// the events after the cutoff to reconstruct current state without
// rescanning the compacted prefix.
func ReadSnapshot(ctx context.Context, store objectstore.Store, dataset string, cutoffTS int64) ([]collector.EntityState, []collector.RelationshipState, error) {
	entityKey, relKey := SnapshotKeys(dataset, cutoffTS)

	entityCols, err := readStateSegment(ctx, store, entityKey)
	if err != nil {
		return nil, nil, err
	}
	relCols, err := readStateSegment(ctx, store, relKey)
	if err != nil {
		return nil, nil, err
	}
	return collector.EntitiesFromColumns(entityCols), collector.RelationshipsFromColumns(relCols), nil
}

// readStateSegment decodes every row group of one snapshot file into a
// single column-major table. Snapshot files are small relative to the
// log, so there is no projection or pruning here.
func readStateSegment(ctx context.Context, store objectstore.Store, key string) (map[string][]any, error) {
	meta, err := store.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	footer, err := segment.ReadFooter(ctx, store, key, meta.Size)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]any)
	for i := range footer.RowGroups {
		cols, err := segment.ReadRowGroup(ctx, store, key, footer, i, nil)
		if err != nil {
			return nil, err
		}
		for name, vals := range cols {
			out[name] = append(out[name], vals...)
		}
	}
	return out, nil
}
