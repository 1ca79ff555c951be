package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"popcatalog/internal/blob/blobtest"
	"popcatalog/internal/blob/core"
)

func TestFilesystemStoreContract(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blobtest.RunStore(t, store)
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "/abs/path", "a/b.json.meta"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestFilesystemWritesSidecar(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Root() != root || store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected store identity %s %s", store.Root(), store.Driver())
	}
	if _, err := store.Put(context.Background(), "nested/dir/doc.cbor", strings.NewReader("abc"), core.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "nested", "dir", "doc.cbor.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "nested", "dir", "doc.cbor.meta"), []byte("{"), 0o644); err != nil {
		t.Fatalf("corrupt sidecar: %v", err)
	}
	if _, err := store.Head(context.Background(), "nested/dir/doc.cbor"); err == nil || errors.Is(err, core.ErrNotFound) {
		t.Fatalf("corrupt sidecar must surface a decode error, got %v", err)
	}
}
