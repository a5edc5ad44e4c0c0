//go:build ceph

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
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ceph/go-ceph/rados"
)

// CephConfig addresses a RADOS pool: cluster/user identify the
// client, Pool + Prefix pick where under that pool objects live.
type CephConfig struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// CephStore implements Store directly against librados. RADOS has no
// native prefix listing, so ListPrefix (and anything built on it,
// i.e. DeletePrefix/RemoveDirectory) is backed by a small per-prefix
// manifest object.
type CephStore struct {
	cfg CephConfig

	mu     sync.Mutex
	conn   *rados.Conn
	ioctx  *rados.IOContext
	opened bool
}

func NewCephStore(cfg CephConfig) *CephStore {
	return &CephStore{cfg: cfg}
}

func (s *CephStore) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil
	}
	conn, err := rados.NewConnWithClusterAndUser(s.cfg.ClusterName, s.cfg.UserName)
	if err != nil {
		return newErr(IO, "ensure_open", "", err)
	}
	if s.cfg.ConfFile != "" {
		if err := conn.ReadConfigFile(s.cfg.ConfFile); err != nil {
			return newErr(IO, "ensure_open", "", err)
		}
	} else {
		_ = conn.ReadDefaultConfigFile()
	}
	if err := conn.Connect(); err != nil {
		return newErr(IO, "ensure_open", "", err)
	}
	ioctx, err := conn.OpenIOContext(s.cfg.Pool)
	if err != nil {
		conn.Shutdown()
		return newErr(IO, "ensure_open", "", err)
	}
	s.conn = conn
	s.ioctx = ioctx
	s.opened = true
	return nil
}

func (s *CephStore) obj(key string) string {
	return path.Join(strings.TrimSuffix(s.cfg.Prefix, "/"), key)
}

func (s *CephStore) Capabilities() Capabilities {
	return Capabilities{Streamable: false, Multipart: false, Transactional: true}
}

func (s *CephStore) ReadAll(_ context.Context, key string) ([]byte, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	obj := s.obj(key)
	stat, err := s.ioctx.Stat(obj)
	if err != nil {
		return nil, newErr(NotFound, "read_all", key, err)
	}
	data := make([]byte, stat.Size)
	n, err := s.ioctx.Read(obj, data, 0)
	if err != nil {
		return nil, newErr(IO, "read_all", key, err)
	}
	return data[:n], nil
}

func (s *CephStore) ReadRange(_ context.Context, key string, start, end int64, clamp bool) ([]byte, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	obj := s.obj(key)
	stat, err := s.ioctx.Stat(obj)
	if err != nil {
		return nil, newErr(NotFound, "read_range", key, err)
	}
	n := int64(stat.Size)
	if start < 0 || start > n || end < start || (end > n && !clamp) {
		return nil, newErr(IO, "read_range", key, nil)
	}
	if end > n {
		end = n
	}
	buf := make([]byte, end-start)
	read, err := s.ioctx.Read(obj, buf, uint64(start))
	if err != nil {
		return nil, newErr(IO, "read_range", key, err)
	}
	return buf[:read], nil
}

// writeFull writes data to obj and returns the RADOS object version
// used as this backend's ETag.
// RADOS bumps a monotonic per-object version on every write, which
// go-ceph exposes via IOContext.GetLastVersion right after an Operate
// call; we persist nothing extra to track it.
func (s *CephStore) writeFull(obj string, data []byte, exclusive bool, assertVersion uint64, haveAssert bool) (string, error) {
	op := rados.CreateWriteOp()
	defer op.Release()
	if exclusive {
		op.Create(rados.CreateExclusive)
	} else if haveAssert {
		op.AssertVersion(assertVersion)
	}
	op.WriteFull(data)
	if err := op.Operate(s.ioctx, obj, rados.OperationNoFlag); err != nil {
		return "", err
	}
	ver, err := s.ioctx.GetLastVersion()
	if err != nil {
		return "", err
	}
	return strconv.FormatUint(ver, 10), nil
}

func (s *CephStore) Write(_ context.Context, key string, data []byte) (Stamp, error) {
	if err := s.ensureOpen(); err != nil {
		return Stamp{}, err
	}
	etag, err := s.writeFull(s.obj(key), data, false, 0, false)
	if err != nil {
		return Stamp{}, newErr(IO, "write", key, err)
	}
	s.trackInManifest(key)
	return Stamp{ETag: etag, Size: int64(len(data))}, nil
}

func (s *CephStore) WriteAtomic(ctx context.Context, key string, data []byte) (Stamp, error) {
	return s.Write(ctx, key, data)
}

func (s *CephStore) WriteConditional(_ context.Context, key string, data []byte, expectedETag string) (Stamp, error) {
	if err := s.ensureOpen(); err != nil {
		return Stamp{}, err
	}
	obj := s.obj(key)
	var etag string
	var err error
	if expectedETag == "" {
		etag, err = s.writeFull(obj, data, true, 0, false)
	} else {
		ver, perr := strconv.ParseUint(expectedETag, 10, 64)
		if perr != nil {
			return Stamp{}, newErr(PreconditionFailed, "write_conditional", key, perr)
		}
		etag, err = s.writeFull(obj, data, false, ver, true)
	}
	if err != nil {
		return Stamp{}, newErr(PreconditionFailed, "write_conditional", key, err)
	}
	s.trackInManifest(key)
	return Stamp{ETag: etag, Size: int64(len(data))}, nil
}

func (s *CephStore) Append(ctx context.Context, key string, data []byte) (Stamp, error) {
	if err := s.ensureOpen(); err != nil {
		return Stamp{}, err
	}
	obj := s.obj(key)
	stat, err := s.ioctx.Stat(obj)
	offset := uint64(0)
	if err == nil {
		offset = stat.Size
	}
	if err := s.ioctx.Write(obj, data, offset); err != nil {
		return Stamp{}, newErr(IO, "append", key, err)
	}
	s.trackInManifest(key)
	newStat, err := s.ioctx.Stat(obj)
	if err != nil {
		return Stamp{}, newErr(IO, "append", key, err)
	}
	ver, err := s.ioctx.GetLastVersion()
	if err != nil {
		return Stamp{}, newErr(IO, "append", key, err)
	}
	return Stamp{ETag: strconv.FormatUint(ver, 10), Size: int64(newStat.Size)}, nil
}

func (s *CephStore) Exists(_ context.Context, key string) (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if _, err := s.ioctx.Stat(s.obj(key)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *CephStore) Stat(_ context.Context, key string) (ObjectMeta, error) {
	if err := s.ensureOpen(); err != nil {
		return ObjectMeta{}, err
	}
	st, err := s.ioctx.Stat(s.obj(key))
	if err != nil {
		return ObjectMeta{}, newErr(NotFound, "stat", key, err)
	}
	return ObjectMeta{Key: key, Size: int64(st.Size), ModTime: st.ModTime}, nil
}

// manifestKey holds the newline-separated list of keys written under
// Prefix, since plain librados enumeration is pool-wide and far too
// expensive for a ListPrefix call.
func (s *CephStore) manifestKey() string { return s.obj(".manifest") }

func (s *CephStore) trackInManifest(key string) {
	keys := s.readManifest()
	for _, k := range keys {
		if k == key {
			return
		}
	}
	keys = append(keys, key)
	s.writeManifestKeys(keys)
}

func (s *CephStore) readManifest() []string {
	mobj := s.manifestKey()
	stat, err := s.ioctx.Stat(mobj)
	if err != nil || stat.Size == 0 {
		return nil
	}
	raw := make([]byte, stat.Size)
	n, err := s.ioctx.Read(mobj, raw, 0)
	if err != nil {
		return nil
	}
	parts := strings.Split(string(raw[:n]), "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *CephStore) writeManifestKeys(keys []string) {
	_ = s.ioctx.WriteFull(s.manifestKey(), []byte(strings.Join(keys, "\n")+"\n"))
}

func (s *CephStore) ListPrefix(_ context.Context, prefix string) ([]ObjectMeta, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	var out []ObjectMeta
	for _, key := range s.readManifest() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		st, err := s.ioctx.Stat(s.obj(key))
		if err != nil {
			continue
		}
		out = append(out, ObjectMeta{Key: key, Size: int64(st.Size), ModTime: st.ModTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *CephStore) Delete(_ context.Context, key string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_ = s.ioctx.Delete(s.obj(key))
	keys := s.readManifest()
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	s.writeManifestKeys(out)
	return nil
}

func (s *CephStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
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

func (s *CephStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	data, err := s.ReadAll(ctx, srcKey)
	if err != nil {
		return err
	}
	_, err = s.Write(ctx, dstKey, data)
	return err
}

func (s *CephStore) Move(ctx context.Context, srcKey, dstKey string) error {
	if err := s.Copy(ctx, srcKey, dstKey); err != nil {
		return err
	}
	return s.Delete(ctx, srcKey)
}

func (s *CephStore) MakeDirectory(_ context.Context, _ string) error { return nil }

func (s *CephStore) RemoveDirectory(ctx context.Context, prefix string) error {
	_, err := s.DeletePrefix(ctx, prefix)
	return err
}

var _ Store = (*CephStore)(nil)
