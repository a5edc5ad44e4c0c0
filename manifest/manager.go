package manifest

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/btree"
	nlrm "github.com/launix-de/NonLockingReadMap"

	"github.com/launix-de/chronostore/objectstore"
)

// rangeItem orders segments by (min_ts, seq) inside the btree, the
// same composite ordering the canonical Segments slice is kept in.
type rangeItem struct {
	minTS, seq int64
	desc       SegmentDescriptor
}

func rangeLess(a, b rangeItem) bool {
	if a.minTS != b.minTS {
		return a.minTS < b.minTS
	}
	return a.seq < b.seq
}

// Manager owns the in-memory current Manifest for one dataset and
// serializes it to the object store on demand. It is the dataset's
// single point of mutual exclusion for segment-list and counter
// state; everything else in the process stays reentrant.
type Manager struct {
	store   objectstore.Store
	key     string
	dataset string
	clock   func() time.Time

	mu      sync.Mutex
	current *Manifest
	etag    string
	dirty   bool

	// bySeq gives readers a wait-free point lookup for Segment(seq)
	// without taking mu. It is created once and mutated in place via
	// Set/Remove under mu; its own CAS loop keeps concurrent readers
	// safe during a mutation.
	bySeq nlrm.NonLockingReadMap[SegmentDescriptor, int64]
	// byRange supports segments_in_range/segments_after/segments_before
	// with O(log n + k) instead of a linear scan. Guarded by mu.
	byRange *btree.BTreeG[rangeItem]
}

// NewManager constructs a Manager for dataset, backed by store. It
// does not load anything; call Load first.
func NewManager(store objectstore.Store, dataset string) *Manager {
	m := &Manager{
		store:   store,
		key:     dataset + "/events/_manifest.json",
		dataset: dataset,
		clock:   time.Now,
		bySeq:   nlrm.New[SegmentDescriptor, int64](),
		byRange: btree.NewG[rangeItem](32, rangeLess),
	}
	return m
}

// rebuildIndexes resyncs both indexes to m.current.Segments. Called
// under mu after a wholesale segment-list change (Load's reset); the
// incremental mutators update the indexes directly instead.
func (m *Manager) rebuildIndexes() {
	for _, p := range m.bySeq.GetAll() {
		m.bySeq.Remove((*p).GetKey())
	}
	m.byRange = btree.NewG[rangeItem](32, rangeLess)
	for _, d := range m.current.Segments {
		d := d
		m.bySeq.Set(&d)
		m.byRange.ReplaceOrInsert(rangeItem{minTS: d.MinTS, seq: d.Seq, desc: d})
	}
}

// Load reads the current manifest bytes, synthesizing an empty one
// when the key doesn't exist yet, and caches the etag as the
// compare-and-swap token for the next Save.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := m.store.ReadAll(ctx, m.key)
	if err != nil {
		if objectstore.IsKind(err, objectstore.NotFound) {
			m.current = newEmptyManifest(m.dataset)
			m.etag = ""
			m.dirty = false
			m.rebuildIndexes()
			return nil
		}
		return err
	}
	parsed, err := unmarshal(data)
	if err != nil {
		return err
	}
	stamp, err := m.store.Stat(ctx, m.key)
	if err != nil {
		return err
	}
	m.current = parsed
	m.etag = stamp.ETag
	m.dirty = false
	m.rebuildIndexes()
	return nil
}

// Save serializes the in-memory manifest and writes it conditionally
// on the cached etag. On PreconditionFailed it reloads the latest
// manifest from the store and returns ErrManifestConflict; the caller
// is expected to rebase its pending mutation and retry.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return errNotLoaded
	}
	m.current.UpdatedAt = m.clock().UnixMilli()
	data, err := marshal(m.current)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	key, etag := m.key, m.etag
	m.mu.Unlock()

	stamp, err := m.store.WriteConditional(ctx, key, data, etag)
	if err != nil {
		if objectstore.IsKind(err, objectstore.PreconditionFailed) {
			if rerr := m.Load(ctx); rerr != nil {
				return rerr
			}
			return ErrManifestConflict
		}
		return err
	}

	m.mu.Lock()
	m.etag = stamp.ETag
	m.dirty = false
	m.mu.Unlock()
	return nil
}

// SaveIfDirty is a no-op when nothing has mutated the manifest since
// the last successful Save.
func (m *Manager) SaveIfDirty(ctx context.Context) error {
	m.mu.Lock()
	dirty := m.dirty
	m.mu.Unlock()
	if !dirty {
		return nil
	}
	return m.Save(ctx)
}

// AddSegment appends desc, keeps the canonical ordering, and advances
// the aggregates: total_events for event segments, and next_event_seq
// past desc.MaxSeq when desc carries event rows (MaxSeq > 0).
func (m *Manager) AddSegment(desc SegmentDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Segments = append(m.current.Segments, desc)
	sortSegments(m.current.Segments)
	if desc.MaxSeq > 0 {
		m.current.TotalEvents += desc.RowCount
		if desc.MaxSeq+1 > m.current.NextEventSeq {
			m.current.NextEventSeq = desc.MaxSeq + 1
		}
	}
	if desc.Seq+1 > m.current.NextSegmentSeq {
		m.current.NextSegmentSeq = desc.Seq + 1
	}
	m.dirty = true
	d := desc
	m.bySeq.Set(&d)
	m.byRange.ReplaceOrInsert(rangeItem{minTS: desc.MinTS, seq: desc.Seq, desc: desc})
}

// RemoveSegments drops every descriptor whose seq is in seqs and
// adjusts total_events. It never deletes the underlying object bytes;
// that remains the caller's responsibility.
func (m *Manager) RemoveSegments(seqs mapset.Set[int64]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.current.Segments[:0]
	for _, d := range m.current.Segments {
		if seqs.Contains(d.Seq) {
			if d.MaxSeq > 0 {
				m.current.TotalEvents -= d.RowCount
			}
			m.bySeq.Remove(d.Seq)
			m.byRange.Delete(rangeItem{minTS: d.MinTS, seq: d.Seq})
			continue
		}
		kept = append(kept, d)
	}
	m.current.Segments = kept
	m.dirty = true
}

// ReserveEventSeq atomically reserves n consecutive event seqs and
// returns the first one, so the event Writer can stamp a
// batch with dense seqs before encoding.
func (m *Manager) ReserveEventSeq(n int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := m.current.NextEventSeq
	m.current.NextEventSeq += n
	m.dirty = true
	return first
}

// ReserveSegmentSeq atomically reserves and returns the next segment
// seq, used by the event Writer before allocating an object key for a
// new segment file.
func (m *Manager) ReserveSegmentSeq() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.current.NextSegmentSeq
	m.current.NextSegmentSeq++
	m.dirty = true
	return seq
}

// SetCompactedThrough advances the compaction watermark. It is
// monotonic: a regression is silently ignored, so a stale compactor
// retrying an old cutoff can never move the watermark backward.
func (m *Manager) SetCompactedThrough(ts int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.CompactedThrough != nil && *m.current.CompactedThrough >= ts {
		return
	}
	m.current.CompactedThrough = &ts
	m.dirty = true
}

// Snapshot returns a deep-enough copy of the current manifest state
// for a caller that wants a consistent read without holding the
// Manager's lock across its own work.
func (m *Manager) Snapshot() Manifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.current
	cp.Segments = append([]SegmentDescriptor(nil), m.current.Segments...)
	return cp
}

// Segment looks up one descriptor by segment seq without taking the
// Manager's mutex, via the lock-free by-seq index.
func (m *Manager) Segment(seq int64) (SegmentDescriptor, bool) {
	d := m.bySeq.Get(seq)
	if d == nil {
		return SegmentDescriptor{}, false
	}
	return *d, true
}

// SegmentsInRange returns, in (min_ts, seq) order, every segment
// whose [min_ts, max_ts] could overlap [lo, hi). Segments sorted by
// min_ts can still have max_ts reaching back across lo, so this walks
// the whole btree rather than relying on AscendRange's lower bound —
// correct over an interval index needs the max_ts column too, which a
// single-key btree doesn't carry; a dataset's live segment count is
// small enough that the full ascend is cheap.
func (m *Manager) SegmentsInRange(lo, hi int64) []SegmentDescriptor {
	return m.selectSegments(func(d SegmentDescriptor) bool {
		return d.MinTS < hi && d.MaxTS >= lo
	})
}

// SegmentsAfter returns segments whose max_ts > ts.
func (m *Manager) SegmentsAfter(ts int64) []SegmentDescriptor {
	return m.selectSegments(func(d SegmentDescriptor) bool { return d.MaxTS > ts })
}

// SegmentsBefore returns segments whose max_ts < ts.
func (m *Manager) SegmentsBefore(ts int64) []SegmentDescriptor {
	return m.selectSegments(func(d SegmentDescriptor) bool { return d.MaxTS < ts })
}

func (m *Manager) selectSegments(keep func(SegmentDescriptor) bool) []SegmentDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SegmentDescriptor
	m.byRange.Ascend(func(it rangeItem) bool {
		if keep(it.desc) {
			out = append(out, it.desc)
		}
		return true
	})
	return out
}

// CompactableSegments returns segments whose max_ts <= the manifest's
// current compacted_through watermark (none, if the watermark is unset).
func (m *Manager) CompactableSegments() []SegmentDescriptor {
	m.mu.Lock()
	through := m.current.CompactedThrough
	m.mu.Unlock()
	if through == nil {
		return nil
	}
	return m.SegmentsBefore(*through + 1)
}

// Dataset returns the dataset name this Manager was constructed with.
func (m *Manager) Dataset() string { return m.dataset }

// Key returns the manifest's object-store key.
func (m *Manager) Key() string { return m.key }
