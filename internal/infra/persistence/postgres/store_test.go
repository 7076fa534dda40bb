package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"keepernest/internal/infra/persistence/memory"
	"keepernest/internal/infra/persistence/postgres/testutil"
	"keepernest/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreCreatesStateTableAndLoadsSnapshot(t *testing.T) {
	db, conn := testutil.NewStubDB()
	buckets, err := memory.EncodeBuckets(memory.Snapshot{
		Assets: map[string]domain.Asset{"a1": {AssetID: "A-1", AssetName: "Mouse", AssetType: domain.AssetTypeMouse, Status: "Maintainance"}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	conn.Tables["state"] = []map[string]any{{"bucket": memory.BucketAssets, "payload": buckets[memory.BucketAssets]}}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := NewStore(context.Background(), "postgres://ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, ok := store.FindAssetByKey("A-1")
	if !ok || got.Status != domain.StatusMaintenance || got.AssignedTo != domain.Unassigned {
		t.Fatalf("expected migrated asset, got %+v ok=%v", got, ok)
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got %v", conn.Execs)
	}
}

func TestRunInTransactionPersistsBuckets(t *testing.T) {
	store, conn := openStub(t)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateEmployee(domain.Employee{EmployeeID: "E1", Email: "e1@example.com", Role: domain.RoleEmployee, Status: domain.EmployeeActive})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	rows := conn.Tables["state"]
	if len(rows) != len(memory.Buckets) {
		t.Fatalf("expected %d bucket rows, got %d", len(memory.Buckets), len(rows))
	}
	var snap memory.Snapshot
	for _, row := range rows {
		payload, _ := row["payload"].([]byte)
		if err := memory.DecodeBucket(&snap, row["bucket"].(string), payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	if snap.Employees["E1"].Email != "e1@example.com" {
		t.Fatalf("employee not persisted: %+v", snap.Employees)
	}
}

func TestRunInTransactionExecFailureIsUnavailable(t *testing.T) {
	store, conn := openStub(t)
	conn.FailExec = true
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateAsset(domain.Asset{AssetID: "A-9", AssetName: "Charger", AssetType: domain.AssetTypeCharger, Status: domain.StatusAvailable, AssignedTo: domain.Unassigned})
		return err
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if _, ok := store.FindAssetByKey("A-9"); ok {
		t.Fatalf("asset visible despite failed persist")
	}
}

func TestRunInTransactionCommitFailure(t *testing.T) {
	store, conn := openStub(t)
	conn.FailCommit = true
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateEmployee(domain.Employee{EmployeeID: "E2"})
		return err
	})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected commit failure to classify as unavailable, got %v", err)
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	store, conn := openStub(t)
	before := len(conn.Execs)
	_, err := store.RunInTransaction(context.Background(), func(domain.Transaction) error { return errors.New("user") })
	if err == nil || err.Error() != "user" {
		t.Fatalf("expected user error, got %v", err)
	}
	if len(conn.Execs) != before {
		t.Fatalf("no statements expected after user error")
	}
}

func TestNewStoreOpenAndPingErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("open fail") })
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "open fail") {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "", nil); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ping failure to be unavailable, got %v", err)
	}
}

func TestLoadSnapshotRowsError(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.Tables["state"] = []map[string]any{{"bucket": "assets", "payload": []byte(`{}`)}}
	conn.RowsErr = errors.New("rows broke")
	if _, err := loadSnapshot(context.Background(), db); err == nil {
		t.Fatalf("expected rows error")
	}
}
