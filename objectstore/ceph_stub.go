//go:build !ceph

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
)

// CephConfig is a stub when Ceph support is not compiled in. Build
// with -tags=ceph to enable the real RADOS-backed store.
type CephConfig struct {
	UserName    string
	ClusterName string
	ConfFile    string
	Pool        string
	Prefix      string
}

// CephStore is a stub; every method returns Unsupported. Build with
// -tags=ceph to link against librados via github.com/ceph/go-ceph.
type CephStore struct{}

func NewCephStore(cfg CephConfig) *CephStore { return &CephStore{} }

func (s *CephStore) unsupported(op string) error {
	return &Error{Kind: Unsupported, Op: op, Message: "ceph support not compiled in: build with -tags=ceph"}
}

func (s *CephStore) Capabilities() Capabilities { return Capabilities{} }

func (s *CephStore) ReadAll(_ context.Context, key string) ([]byte, error) {
	return nil, s.unsupported("read_all")
}

func (s *CephStore) ReadRange(_ context.Context, key string, start, end int64, clamp bool) ([]byte, error) {
	return nil, s.unsupported("read_range")
}

func (s *CephStore) Write(_ context.Context, key string, data []byte) (Stamp, error) {
	return Stamp{}, s.unsupported("write")
}

func (s *CephStore) WriteAtomic(_ context.Context, key string, data []byte) (Stamp, error) {
	return Stamp{}, s.unsupported("write_atomic")
}

func (s *CephStore) WriteConditional(_ context.Context, key string, data []byte, expectedETag string) (Stamp, error) {
	return Stamp{}, s.unsupported("write_conditional")
}

func (s *CephStore) Append(_ context.Context, key string, data []byte) (Stamp, error) {
	return Stamp{}, s.unsupported("append")
}

func (s *CephStore) Exists(_ context.Context, key string) (bool, error) {
	return false, s.unsupported("exists")
}

func (s *CephStore) Stat(_ context.Context, key string) (ObjectMeta, error) {
	return ObjectMeta{}, s.unsupported("stat")
}

func (s *CephStore) ListPrefix(_ context.Context, prefix string) ([]ObjectMeta, error) {
	return nil, s.unsupported("list_prefix")
}

func (s *CephStore) Delete(_ context.Context, key string) error {
	return s.unsupported("delete")
}

func (s *CephStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	return 0, s.unsupported("delete_prefix")
}

func (s *CephStore) Copy(_ context.Context, srcKey, dstKey string) error {
	return s.unsupported("copy")
}

func (s *CephStore) Move(_ context.Context, srcKey, dstKey string) error {
	return s.unsupported("move")
}

func (s *CephStore) MakeDirectory(_ context.Context, prefix string) error {
	return s.unsupported("make_directory")
}

func (s *CephStore) RemoveDirectory(_ context.Context, prefix string) error {
	return s.unsupported("remove_directory")
}

var _ Store = (*CephStore)(nil)
