package testutil

import (
	"context"
	"testing"
)

func TestStubDBUpsertsAndSelects(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	upsert := `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`
	for _, payload := range []string{`{"a":1}`, `{"a":2}`} {
		if _, err := db.ExecContext(ctx, upsert, "assets", []byte(payload)); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	if len(conn.Tables["state"]) != 1 {
		t.Fatalf("expected upsert to replace row, got %v", conn.Tables["state"])
	}
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var bucket string
	var payload []byte
	if !rows.Next() {
		t.Fatalf("expected a row")
	}
	if err := rows.Scan(&bucket, &payload); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if bucket != "assets" || string(payload) != `{"a":2}` {
		t.Fatalf("unexpected row %s %s", bucket, payload)
	}
}

func TestStubDBFailures(t *testing.T) {
	db, conn := NewStubDB()
	conn.FailPing = true
	if err := db.PingContext(context.Background()); err == nil {
		t.Fatalf("expected ping failure")
	}
	conn.FailPing = false
	conn.FailBegin = true
	if _, err := db.Begin(); err == nil {
		t.Fatalf("expected begin failure")
	}
}
