package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data    []byte
	etag    string
	modTime time.Time
}

// MemoryStore is the in-memory backend used for tests and ephemeral
// datasets. It is fully transactional: conditional writes are enforced
// exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	clock   func() time.Time
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]memObject),
		clock:   time.Now,
	}
}

func etagOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *MemoryStore) Capabilities() Capabilities {
	return Capabilities{Streamable: false, Multipart: false, Transactional: true}
}

func (s *MemoryStore) ReadAll(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, newErr(NotFound, "read_all", key, nil)
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (s *MemoryStore) ReadRange(_ context.Context, key string, start, end int64, clamp bool) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, newErr(NotFound, "read_range", key, nil)
	}
	n := int64(len(obj.data))
	if start < 0 || start > n || (end > n && !clamp) || end < start {
		return nil, newErr(IO, "read_range", key, nil)
	}
	if end > n {
		end = n
	}
	out := make([]byte, end-start)
	copy(out, obj.data[start:end])
	return out, nil
}

func (s *MemoryStore) write(key string, data []byte) Stamp {
	cp := make([]byte, len(data))
	copy(cp, data)
	obj := memObject{data: cp, etag: etagOf(cp), modTime: s.clock()}
	s.objects[key] = obj
	return Stamp{ETag: obj.etag, Size: int64(len(cp))}
}

func (s *MemoryStore) Write(_ context.Context, key string, data []byte) (Stamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(key, data), nil
}

// WriteAtomic is identical to Write here: a single map assignment under
// the store's mutex is already all-or-nothing, so there is no
// intermediate state a concurrent reader could observe.
func (s *MemoryStore) WriteAtomic(ctx context.Context, key string, data []byte) (Stamp, error) {
	return s.Write(ctx, key, data)
}

func (s *MemoryStore) WriteConditional(_ context.Context, key string, data []byte, expectedETag string) (Stamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.objects[key]
	if expectedETag == "" {
		if ok {
			return Stamp{}, newErr(PreconditionFailed, "write_conditional", key, nil)
		}
	} else {
		if !ok || cur.etag != expectedETag {
			return Stamp{}, newErr(PreconditionFailed, "write_conditional", key, nil)
		}
	}
	return s.write(key, data), nil
}

func (s *MemoryStore) Append(_ context.Context, key string, data []byte) (Stamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.objects[key]
	combined := append(append([]byte{}, cur.data...), data...)
	return s.write(key, combined), nil
}

func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryStore) Stat(_ context.Context, key string) (ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return ObjectMeta{}, newErr(NotFound, "stat", key, nil)
	}
	return ObjectMeta{Key: key, Size: int64(len(obj.data)), ETag: obj.etag, ModTime: obj.modTime}, nil
}

func (s *MemoryStore) ListPrefix(_ context.Context, prefix string) ([]ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ObjectMeta
	for k, obj := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectMeta{Key: k, Size: int64(len(obj.data)), ETag: obj.etag, ModTime: obj.modTime})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := RejectEmptyPrefix(prefix); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			delete(s.objects, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Copy(_ context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[srcKey]
	if !ok {
		return newErr(NotFound, "copy", srcKey, nil)
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	s.objects[dstKey] = memObject{data: cp, etag: obj.etag, modTime: s.clock()}
	return nil
}

func (s *MemoryStore) Move(_ context.Context, srcKey, dstKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[srcKey]
	if !ok {
		return newErr(NotFound, "move", srcKey, nil)
	}
	obj.modTime = s.clock()
	s.objects[dstKey] = obj
	delete(s.objects, srcKey)
	return nil
}

// MakeDirectory is a no-op on a flat keyspace; the memory backend has
// no directory concept to materialize. RemoveDirectory deletes every
// key under prefix.
func (s *MemoryStore) MakeDirectory(_ context.Context, _ string) error { return nil }

func (s *MemoryStore) RemoveDirectory(ctx context.Context, prefix string) error {
	_, err := s.DeletePrefix(ctx, prefix)
	return err
}

var _ Store = (*MemoryStore)(nil)
