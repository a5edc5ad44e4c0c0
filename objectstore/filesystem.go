/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStore persists keys as files under Basepath, one file per key.
// Conditional writes are enforced with a per-key in-process mutex plus
// a temp-then-rename publish, which is exact for the single-process
// case the local filesystem backend is meant for; it does not protect
// against a second OS process racing the same key (that guarantee is
// reserved for the S3/Ceph backends' native conditional-write support).
type FileStore struct {
	Basepath string

	mu      sync.Mutex // guards keyLock map itself
	keyLock map[string]*sync.Mutex
}

// NewFileStore creates a filesystem-backed store rooted at basepath.
func NewFileStore(basepath string) *FileStore {
	return &FileStore{Basepath: basepath, keyLock: make(map[string]*sync.Mutex)}
}

func (s *FileStore) Capabilities() Capabilities {
	return Capabilities{Streamable: true, Multipart: false, Transactional: true}
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Basepath, filepath.FromSlash(key))
}

func (s *FileStore) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.keyLock[key]
	if !ok {
		l = new(sync.Mutex)
		s.keyLock[key] = l
	}
	return l
}

func (s *FileStore) ReadAll(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(NotFound, "read_all", key, err)
		}
		return nil, newErr(IO, "read_all", key, err)
	}
	return data, nil
}

func (s *FileStore) ReadRange(_ context.Context, key string, start, end int64, clamp bool) ([]byte, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(NotFound, "read_range", key, err)
		}
		return nil, newErr(IO, "read_range", key, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, newErr(IO, "read_range", key, err)
	}
	n := fi.Size()
	if start < 0 || start > n || end < start || (end > n && !clamp) {
		return nil, newErr(IO, "read_range", key, nil)
	}
	if end > n {
		end = n
	}
	buf := make([]byte, end-start)
	if _, err := f.ReadAt(buf, start); err != nil && err != io.EOF {
		return nil, newErr(IO, "read_range", key, err)
	}
	return buf, nil
}

func (s *FileStore) writeAtomic(key string, data []byte) (Stamp, error) {
	full := s.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return Stamp{}, newErr(IO, "write_atomic", key, err)
	}
	tmp := full + ".tmp-" + etagOf(data)[:8]
	if err := os.WriteFile(tmp, data, 0640); err != nil {
		return Stamp{}, newErr(IO, "write_atomic", key, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return Stamp{}, newErr(IO, "write_atomic", key, err)
	}
	return Stamp{ETag: etagOf(data), Size: int64(len(data))}, nil
}

func (s *FileStore) Write(_ context.Context, key string, data []byte) (Stamp, error) {
	return s.writeAtomic(key, data)
}

func (s *FileStore) WriteAtomic(_ context.Context, key string, data []byte) (Stamp, error) {
	return s.writeAtomic(key, data)
}

func (s *FileStore) WriteConditional(_ context.Context, key string, data []byte, expectedETag string) (Stamp, error) {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	cur, err := os.ReadFile(s.path(key))
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return Stamp{}, newErr(IO, "write_conditional", key, err)
	}
	if expectedETag == "" {
		if exists {
			return Stamp{}, newErr(PreconditionFailed, "write_conditional", key, nil)
		}
	} else {
		if !exists || etagOf(cur) != expectedETag {
			return Stamp{}, newErr(PreconditionFailed, "write_conditional", key, nil)
		}
	}
	return s.writeAtomic(key, data)
}

func (s *FileStore) Append(_ context.Context, key string, data []byte) (Stamp, error) {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	full := s.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return Stamp{}, newErr(IO, "append", key, err)
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return Stamp{}, newErr(IO, "append", key, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return Stamp{}, newErr(IO, "append", key, err)
	}
	fi, err := f.Stat()
	if err != nil {
		return Stamp{}, newErr(IO, "append", key, err)
	}
	cur, _ := os.ReadFile(full)
	return Stamp{ETag: etagOf(cur), Size: fi.Size()}, nil
}

func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, newErr(IO, "exists", key, err)
}

func (s *FileStore) Stat(_ context.Context, key string) (ObjectMeta, error) {
	fi, err := os.Stat(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectMeta{}, newErr(NotFound, "stat", key, err)
		}
		return ObjectMeta{}, newErr(IO, "stat", key, err)
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return ObjectMeta{}, newErr(IO, "stat", key, err)
	}
	return ObjectMeta{Key: key, Size: fi.Size(), ETag: etagOf(data), ModTime: fi.ModTime()}, nil
}

func (s *FileStore) ListPrefix(_ context.Context, prefix string) ([]ObjectMeta, error) {
	var out []ObjectMeta
	root := s.Basepath
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if strings.HasSuffix(key, ".tmp") || strings.Contains(key, ".tmp-") {
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			data, rerr := os.ReadFile(p)
			if rerr != nil {
				return nil
			}
			out = append(out, ObjectMeta{Key: key, Size: info.Size(), ETag: etagOf(data), ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, newErr(IO, "list_prefix", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return newErr(IO, "delete", key, err)
	}
	return nil
}

func (s *FileStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := RejectEmptyPrefix(prefix); err != nil {
		return 0, err
	}
	metas, err := s.ListPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range metas {
		if err := s.Delete(ctx, m.Key); err == nil {
			n++
		}
	}
	return n, nil
}

func (s *FileStore) Copy(_ context.Context, srcKey, dstKey string) error {
	data, err := os.ReadFile(s.path(srcKey))
	if err != nil {
		if os.IsNotExist(err) {
			return newErr(NotFound, "copy", srcKey, err)
		}
		return newErr(IO, "copy", srcKey, err)
	}
	_, werr := s.writeAtomic(dstKey, data)
	return werr
}

func (s *FileStore) Move(_ context.Context, srcKey, dstKey string) error {
	srcFull, dstFull := s.path(srcKey), s.path(dstKey)
	if err := os.MkdirAll(filepath.Dir(dstFull), 0750); err != nil {
		return newErr(IO, "move", srcKey, err)
	}
	if err := os.Rename(srcFull, dstFull); err != nil {
		if os.IsNotExist(err) {
			return newErr(NotFound, "move", srcKey, err)
		}
		return newErr(IO, "move", srcKey, err)
	}
	return nil
}

func (s *FileStore) MakeDirectory(_ context.Context, prefix string) error {
	if err := os.MkdirAll(s.path(prefix), 0750); err != nil {
		return newErr(IO, "make_directory", prefix, err)
	}
	return nil
}

func (s *FileStore) RemoveDirectory(_ context.Context, prefix string) error {
	if err := RejectEmptyPrefix(prefix); err != nil {
		return err
	}
	if err := os.RemoveAll(s.path(prefix)); err != nil {
		return newErr(IO, "remove_directory", prefix, err)
	}
	return nil
}

// WatchManifest starts an fsnotify watch on key's containing directory
// and invokes onChange whenever the file at key is written, created or
// renamed into place, by this process or another one, letting a caller
// that holds a manifest snapshot reload it sooner than its next
// scheduled load(); nothing in this module subscribes to it. This is a
// pure optimization: correctness never depends on the watch firing.
func (s *FileStore) WatchManifest(key string, onChange func()) (stop func() error, err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, newErr(IO, "watch_manifest", key, err)
	}
	dir := filepath.Dir(s.path(key))
	if err := os.MkdirAll(dir, 0750); err != nil {
		w.Close()
		return nil, newErr(IO, "watch_manifest", key, err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, newErr(IO, "watch_manifest", key, err)
	}
	target := s.path(key)
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name == target && (ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0) {
					onChange()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w.Close, nil
}

var _ Store = (*FileStore)(nil)
