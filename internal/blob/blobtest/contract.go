// Package blobtest holds the behavioural contract shared by the blob backend
// test suites.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"popcatalog/internal/blob/core"
)

// RunStore exercises store; it must start empty.
func RunStore(t *testing.T, store core.Store) {
	t.Helper()
	ctx := context.Background()
	payload := []byte("{\"title\":\"Main\"}\r\n\x00\x01")
	opts := core.PutOptions{ContentType: "application/json", Metadata: map[string]string{"title": "main"}}

	info, err := store.Put(ctx, "projections/a.json", bytes.NewReader(payload), opts)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != "projections/a.json" || info.Size != int64(len(payload)) || info.ETag == "" {
		t.Fatalf("unexpected put info %+v", info)
	}
	if _, err := store.Put(ctx, "projections/a.json", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists on overwrite, got %v", err)
	}

	got, rc, err := store.Get(ctx, "projections/a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || !bytes.Equal(body, payload) {
		t.Fatalf("body mismatch %q (%v)", body, err)
	}
	if got.ContentType != "application/json" || got.Metadata["title"] != "main" {
		t.Fatalf("metadata lost: %+v", got)
	}

	head, err := store.Head(ctx, "projections/a.json")
	if err != nil || head.Size != int64(len(payload)) {
		t.Fatalf("Head = %+v, %v", head, err)
	}
	if _, err := store.Head(ctx, "projections/missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "projections/missing.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}

	for _, key := range []string{"projections/c.json", "projections/b.json", "other/z.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "projections/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var keys []string
	for _, inf := range list {
		keys = append(keys, inf.Key)
	}
	if strings.Join(keys, ",") != "projections/a.json,projections/b.json,projections/c.json" {
		t.Fatalf("unexpected listing %v", keys)
	}

	existed, err := store.Delete(ctx, "projections/a.json")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v", existed, err)
	}
	existed, err = store.Delete(ctx, "projections/a.json")
	if err != nil || existed {
		t.Fatalf("second Delete = %v, %v", existed, err)
	}
}
