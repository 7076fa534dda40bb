package export

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"keepernest/internal/blob"
	"keepernest/pkg/domain"
)

type stubLister struct {
	assets []domain.Asset
	err    error
	filter domain.AssetFilter
}

func (s *stubLister) ListAssets(_ context.Context, _ domain.Actor, filter domain.AssetFilter) ([]domain.Asset, error) {
	s.filter = filter
	return s.assets, s.err
}

var admin = domain.Actor{EmployeeID: "ADM", Role: domain.RoleAdmin}

func sampleAssets(t *testing.T) []domain.Asset {
	t.Helper()
	entry, err := domain.EncodeHistoryEntry(domain.HistoryEntry{
		HistoryID:  "h1",
		EmployeeID: "E1",
		AssignDate: time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return []domain.Asset{
		{AssetID: "LAP-1", AssetName: "ThinkPad, X1", AssetType: domain.AssetTypeLaptop, Status: domain.StatusAssigned, AssignedTo: "E1", HistoryQueue: []string{entry, "garbage"}, Revision: 2},
		{AssetID: "MON-1", AssetName: "Monitor", AssetType: domain.AssetTypeOther, Status: domain.StatusAvailable, AssignedTo: domain.Unassigned, Revision: 1},
	}
}

func TestRender(t *testing.T) {
	raw, err := Render(sampleAssets(t))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "assetId" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][1] != "ThinkPad, X1" || rows[1][7] != "E1" || rows[1][8] != "2024-05-02T08:00:00Z" || rows[1][9] != "2" {
		t.Fatalf("unexpected asset row %v", rows[1])
	}
	if rows[2][7] != "" || rows[2][5] != "" {
		t.Fatalf("expected empty history and date columns %v", rows[2])
	}
}

func TestExportWritesBlob(t *testing.T) {
	store := blob.NewMemory()
	lister := &stubLister{assets: sampleAssets(t)}
	exp := New(lister, store, nil)
	exp.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	res, err := exp.Export(context.Background(), admin, domain.AssetFilter{Status: domain.StatusAssigned})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.Key != "exports/assets/20240601T120000.000Z.csv" || res.Rows != 2 || res.URL != "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if lister.filter.Status != domain.StatusAssigned {
		t.Fatalf("filter not forwarded: %+v", lister.filter)
	}
	info, rc, err := store.Get(context.Background(), res.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if info.ContentType != "text/csv" || info.Metadata["rows"] != "2" || !strings.HasPrefix(string(body), "assetId,") {
		t.Fatalf("unexpected blob %+v %q", info, body)
	}
}

func TestExportPresignsOnFilesystem(t *testing.T) {
	store, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	res, err := New(&stubLister{}, store, nil).Export(context.Background(), admin, domain.AssetFilter{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(res.URL, "file://") || res.Rows != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExportPropagatesListError(t *testing.T) {
	want := errors.New("forbidden")
	if _, err := New(&stubLister{err: want}, blob.NewMemory(), nil).Export(context.Background(), admin, domain.AssetFilter{}); !errors.Is(err, want) {
		t.Fatalf("expected list error, got %v", err)
	}
}
