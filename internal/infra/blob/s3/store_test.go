package s3

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"keepernest/internal/blob/core"
)

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Bucket:          "assets",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.Bucket() != "assets" || store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected store %+v", store)
	}
}

func TestMockRoundTrip(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "exports/assets/a.csv", strings.NewReader("assetId\n"), core.PutOptions{ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("assetId\n")) || info.ContentType != "text/csv" {
		t.Fatalf("unexpected info %+v", info)
	}
	_, rc, err := store.Get(ctx, "exports/assets/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "assetId\n" {
		t.Fatalf("unexpected body %q", body)
	}
	if _, err := store.Put(ctx, "exports/assets/a.csv", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	if ok, err := store.Delete(ctx, "exports/assets/missing.csv"); ok || err != nil {
		t.Fatalf("delete missing: %v %v", ok, err)
	}
}

func TestPresignURL(t *testing.T) {
	store := NewMockForTests()
	raw, err := store.PresignURL(context.Background(), "exports/assets/a.csv", core.SignedURLOptions{Expiry: 5 * time.Minute})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/keepernest-test/exports/assets/a.csv") || u.Query().Get("X-Amz-Expires") != "300" {
		t.Fatalf("unexpected presigned url %s", raw)
	}
	if _, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
