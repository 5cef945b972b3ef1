package blob

import (
	"bytes"
	"context"
	"io"
	"testing"
)

func TestS3MockPutGetListDelete(t *testing.T) {
	store := NewS3MockForTests()
	ctx := context.Background()
	if store.Driver() != DriverS3 {
		t.Fatalf("driver: %s", store.Driver())
	}
	if _, err := store.Put(ctx, "exports/a.csv", bytes.NewReader([]byte("one")), PutOptions{ContentType: "text/csv"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "exports/a.csv", bytes.NewReader([]byte("dup")), PutOptions{}); err == nil {
		t.Fatalf("expected create-only semantics")
	}
	info, rc, err := store.Get(ctx, "exports/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "one" || info.ContentType != "text/csv" {
		t.Fatalf("round trip mismatch: %q %#v", body, info)
	}
	if _, err := store.Put(ctx, "exports/b.csv", bytes.NewReader([]byte("two")), PutOptions{}); err != nil {
		t.Fatalf("put b: %v", err)
	}
	infos, err := store.List(ctx, "exports/")
	if err != nil || len(infos) != 2 || infos[0].Key != "exports/a.csv" {
		t.Fatalf("list: %v %#v", err, infos)
	}
	if ok, err := store.Delete(ctx, "exports/a.csv"); err != nil || !ok {
		t.Fatalf("delete: %v %v", err, ok)
	}
	if _, err := store.Head(ctx, "exports/a.csv"); err == nil {
		t.Fatalf("expected head miss after delete")
	}
}

func TestS3PresignRejectsNonGet(t *testing.T) {
	store := NewS3MockForTests()
	if _, err := store.PresignURL(context.Background(), "k", SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatalf("expected unsupported method error")
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected bucket requirement")
	}
}
