package fs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"keepernest/internal/blob/core"
)

func TestPutGetAndSidecar(t *testing.T) {
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	info, err := store.Put(ctx, "exports/assets/20240601.csv", strings.NewReader("assetId\nLAP-1\n"), core.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"rows": "1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("assetId\nLAP-1\n")) || info.ETag == "" || !strings.HasPrefix(info.URL, "file://") {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "exports", "assets", "20240601.csv.meta")); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	got, rc, err := store.Get(ctx, "exports/assets/20240601.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if string(body) != "assetId\nLAP-1\n" || got.ContentType != "text/csv" || got.Metadata["rows"] != "1" {
		t.Fatalf("unexpected blob %+v %q", got, body)
	}
	url, err := store.PresignURL(ctx, "exports/assets/20240601.csv", core.SignedURLOptions{})
	if err != nil || url != info.URL {
		t.Fatalf("presign: %q %v", url, err)
	}
	if _, err := store.PresignURL(ctx, "exports/assets/20240601.csv", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "  ", "/etc/passwd", "../escape", "a/../../b", "x.meta"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Fatalf("key %q: expected invalid key, got %v", key, err)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestPutReadFailureLeavesNothing(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "outbox/a.json", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read failure")
	}
	if list, _ := store.List(ctx, ""); len(list) != 0 {
		t.Fatalf("partial blob listed: %+v", list)
	}
	if ok, err := store.Delete(ctx, "outbox/a.json"); ok || err != nil {
		t.Fatalf("delete of missing blob: %v %v", ok, err)
	}
}
