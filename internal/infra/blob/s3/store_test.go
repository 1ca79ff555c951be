package s3

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"popcatalog/internal/blob/blobtest"
	"popcatalog/internal/blob/core"
)

func TestMockStoreContract(t *testing.T) {
	store := NewMockForTests()
	if store.Driver() != core.DriverS3 || store.Bucket() == "" {
		t.Fatalf("unexpected store identity %s %q", store.Driver(), store.Bucket())
	}
	blobtest.RunStore(t, store)
}

func TestListFollowsContinuationTokens(t *testing.T) {
	store := newMock(2)
	ctx := context.Background()
	for _, key := range []string{"p/e", "p/d", "p/c", "p/b", "p/a", "q/a"} {
		if _, err := store.Put(ctx, key, strings.NewReader(key), core.PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "p/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var keys []string
	for _, inf := range list {
		keys = append(keys, inf.Key)
	}
	if strings.Join(keys, ",") != "p/a,p/b,p/c,p/d,p/e" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Bucket:          "archive",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if store.Bucket() != "archive" {
		t.Fatalf("unexpected bucket %q", store.Bucket())
	}
}

func TestDecodeChunked(t *testing.T) {
	payload := []byte("ab\r\ncd")
	framed := []byte("3;chunk-signature=x\r\nab\r\r\n3\r\n\ncd\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")
	got, err := decodeChunked(framed)
	if err != nil {
		t.Fatalf("decodeChunked: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
	if _, err := decodeChunked([]byte("zz\r\n")); err == nil {
		t.Fatalf("expected error for invalid size")
	}
	if _, err := decodeChunked([]byte("10\r\nshort")); err == nil {
		t.Fatalf("expected error for truncated chunk")
	}
}
