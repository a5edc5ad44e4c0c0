package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// storeFactories enumerates the backends whose contract can be
// exercised without an external service; every contract test runs
// against each of them.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"file": func() Store {
			dir := t.TempDir()
			return NewFileStore(dir)
		},
	}
}

func TestStoreWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			if _, err := s.Write(ctx, "a/b", []byte("hello")); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := s.ReadAll(ctx, "a/b")
			if err != nil {
				t.Fatalf("read_all: %v", err)
			}
			if string(got) != "hello" {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestStoreReadAllNotFound(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			_, err := s.ReadAll(ctx, "missing")
			if !IsKind(err, NotFound) {
				t.Fatalf("expected NotFound, got %v", err)
			}
		})
	}
}

func TestStoreWriteConditionalMustNotExist(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			if _, err := s.WriteConditional(ctx, "k", []byte("v1"), ""); err != nil {
				t.Fatalf("first conditional write: %v", err)
			}
			if _, err := s.WriteConditional(ctx, "k", []byte("v2"), ""); !IsKind(err, PreconditionFailed) {
				t.Fatalf("expected PreconditionFailed on re-create, got %v", err)
			}
		})
	}
}

func TestStoreWriteConditionalETagMismatch(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			stamp, err := s.Write(ctx, "k", []byte("v1"))
			if err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := s.WriteConditional(ctx, "k", []byte("v2"), "stale-etag"); !IsKind(err, PreconditionFailed) {
				t.Fatalf("expected PreconditionFailed, got %v", err)
			}
			if _, err := s.WriteConditional(ctx, "k", []byte("v2"), stamp.ETag); err != nil {
				t.Fatalf("expected conditional write to succeed with correct etag: %v", err)
			}
		})
	}
}

func TestStoreAppend(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			if _, err := s.Append(ctx, "log", []byte("one-")); err != nil {
				t.Fatalf("append 1: %v", err)
			}
			if _, err := s.Append(ctx, "log", []byte("two")); err != nil {
				t.Fatalf("append 2: %v", err)
			}
			got, err := s.ReadAll(ctx, "log")
			if err != nil {
				t.Fatalf("read_all: %v", err)
			}
			if string(got) != "one-two" {
				t.Fatalf("got %q", got)
			}
		})
	}
}

func TestStoreReadRangeClamp(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			if _, err := s.Write(ctx, "k", []byte("0123456789")); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := s.ReadRange(ctx, "k", 5, 100, true)
			if err != nil {
				t.Fatalf("read_range clamp: %v", err)
			}
			if string(got) != "56789" {
				t.Fatalf("got %q", got)
			}
			if _, err := s.ReadRange(ctx, "k", 5, 100, false); err == nil {
				t.Fatalf("expected error without clamp")
			}
		})
	}
}

func TestStoreListPrefixAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			for _, k := range []string{"a/1", "a/2", "b/1"} {
				if _, err := s.Write(ctx, k, []byte("x")); err != nil {
					t.Fatalf("write %s: %v", k, err)
				}
			}
			metas, err := s.ListPrefix(ctx, "a/")
			if err != nil {
				t.Fatalf("list_prefix: %v", err)
			}
			if len(metas) != 2 {
				t.Fatalf("expected 2 keys under a/, got %d", len(metas))
			}
			n, err := s.DeletePrefix(ctx, "a/")
			if err != nil {
				t.Fatalf("delete_prefix: %v", err)
			}
			if n != 2 {
				t.Fatalf("expected 2 deleted, got %d", n)
			}
			if exists, _ := s.Exists(ctx, "a/1"); exists {
				t.Fatalf("a/1 should be gone")
			}
			if exists, _ := s.Exists(ctx, "b/1"); !exists {
				t.Fatalf("b/1 should survive prefix deletion of a/")
			}
		})
	}
}

func TestStoreDeletePrefixRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			if _, err := s.DeletePrefix(ctx, ""); !IsKind(err, Unsupported) {
				t.Fatalf("expected Unsupported for empty prefix, got %v", err)
			}
		})
	}
}

func TestStoreCopyAndMove(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()
			if _, err := s.Write(ctx, "src", []byte("payload")); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := s.Copy(ctx, "src", "dst-copy"); err != nil {
				t.Fatalf("copy: %v", err)
			}
			if got, _ := s.ReadAll(ctx, "dst-copy"); string(got) != "payload" {
				t.Fatalf("copy contents mismatch: %q", got)
			}
			if err := s.Move(ctx, "src", "dst-move"); err != nil {
				t.Fatalf("move: %v", err)
			}
			if exists, _ := s.Exists(ctx, "src"); exists {
				t.Fatalf("src should no longer exist after move")
			}
			if got, _ := s.ReadAll(ctx, "dst-move"); string(got) != "payload" {
				t.Fatalf("move contents mismatch: %q", got)
			}
		})
	}
}

func TestFileStoreWriteAtomicLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)
	if _, err := s.WriteAtomic(ctx, "nested/key", []byte("payload")); err != nil {
		t.Fatalf("write_atomic: %v", err)
	}
	var leftover []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if filepath.Base(p) != "key" {
			leftover = append(leftover, p)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(leftover) != 0 {
		t.Fatalf("expected no temp files left behind, found %v", leftover)
	}
}
