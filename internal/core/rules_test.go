package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"keepernest/internal/infra/persistence/memory"
	"keepernest/pkg/domain"
)

func newRuleStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateEmployee(domain.Employee{EmployeeID: "E1", Email: "e1@example.com", Role: domain.RoleEmployee, Status: domain.EmployeeActive}); err != nil {
			return err
		}
		_, err := tx.CreateEmployee(domain.Employee{EmployeeID: "E2", Email: "e2@example.com", Role: domain.RoleEmployee, Status: domain.EmployeeInactive})
		return err
	})
	if err != nil {
		t.Fatalf("seed employees: %v", err)
	}
	return store
}

func validAsset(key string) domain.Asset {
	return domain.Asset{
		AssetID:      key,
		AssetName:    key,
		AssetType:    domain.AssetTypeCharger,
		Status:       domain.StatusAvailable,
		AssignedTo:   domain.Unassigned,
		HistoryQueue: []string{},
	}
}

func expectViolation(t *testing.T, err error, rule string) {
	t.Helper()
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	for _, v := range rv.Result.Violations {
		if v.Rule == rule && v.Severity == domain.SeverityBlock {
			return
		}
	}
	t.Fatalf("no blocking %s violation in %+v", rule, rv.Result.Violations)
}

func TestAssetStateRuleBlocksInconsistentDocuments(t *testing.T) {
	cases := map[string]func(*domain.Asset){
		"unknown status":      func(a *domain.Asset) { a.Status = "Lost" },
		"unknown type":        func(a *domain.Asset) { a.AssetType = "Phone" },
		"holder on available": func(a *domain.Asset) { a.AssignedTo = "E1" },
		"assigned to nobody": func(a *domain.Asset) {
			a.Status = domain.StatusAssigned
			a.AssignedTo = domain.Unassigned
		},
		"history overflow": func(a *domain.Asset) { a.HistoryQueue = []string{"1", "2", "3", "4", "5", "6"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			store := newRuleStore(t)
			asset := validAsset("A-1")
			mutate(&asset)
			_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := tx.CreateAsset(asset)
				return err
			})
			expectViolation(t, err, assetStateRuleName)
		})
	}
}

func TestAssetStateRuleChecksNewHistoryHead(t *testing.T) {
	store := newRuleStore(t)
	ctx := context.Background()
	var created domain.Asset
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateAsset(validAsset("A-2"))
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateAsset(created.ID, created.Revision, func(a *domain.Asset) error {
			a.Status = domain.StatusAssigned
			a.AssignedTo = "E1"
			a.HistoryQueue = []string{"garbage"}
			return nil
		})
		return err
	})
	expectViolation(t, err, assetStateRuleName)

	entry, _ := domain.EncodeHistoryEntry(domain.HistoryEntry{HistoryID: "h", EmployeeID: "E1", AssignDate: time.Now()})
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateAsset(created.ID, created.Revision, func(a *domain.Asset) error {
			a.Status = domain.StatusAssigned
			a.AssignedTo = "E1"
			a.HistoryQueue = []string{entry}
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("well formed assignment rejected: %v", err)
	}
}

func TestAssignmentIntegrityRule(t *testing.T) {
	for _, holder := range []string{"ghost", "E2"} {
		t.Run(holder, func(t *testing.T) {
			store := newRuleStore(t)
			asset := validAsset("A-3")
			asset.Status = domain.StatusAssigned
			asset.AssignedTo = holder
			_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := tx.CreateAsset(asset)
				return err
			})
			expectViolation(t, err, assignmentIntegrityRuleName)
		})
	}
}

func TestAssignmentIntegrityBlocksDeletingHolder(t *testing.T) {
	store := newRuleStore(t)
	ctx := context.Background()
	asset := validAsset("A-4")
	asset.Status = domain.StatusAssigned
	asset.AssignedTo = "E1"
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAsset(asset)
		return err
	}); err != nil {
		t.Fatalf("create assigned asset: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteEmployee("E1")
	})
	expectViolation(t, err, assignmentIntegrityRuleName)
	if _, ok := store.GetEmployee("E1"); !ok {
		t.Fatalf("blocked delete removed the employee")
	}
}

func TestAssignmentIntegrityBlocksDeactivatingHolder(t *testing.T) {
	store := newRuleStore(t)
	ctx := context.Background()
	asset := validAsset("A-5")
	asset.Status = domain.StatusAssigned
	asset.AssignedTo = "E1"
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateAsset(asset)
		return err
	}); err != nil {
		t.Fatalf("create assigned asset: %v", err)
	}
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateEmployee("E1", func(e *domain.Employee) error {
			e.Status = domain.EmployeeInactive
			return nil
		})
		return err
	})
	expectViolation(t, err, assignmentIntegrityRuleName)
	if !holdingsViolation(err) {
		t.Fatalf("violation not recognised as a holdings block: %v", err)
	}
	if e, _ := store.GetEmployee("E1"); !e.Active() {
		t.Fatalf("blocked deactivation was committed")
	}

	// Other updates of a holder, and deactivating an empty-handed employee, pass.
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateEmployee("E1", func(e *domain.Employee) error {
			e.Name = "Renamed"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("rename of holder rejected: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateEmployee("E2", func(e *domain.Employee) error {
			e.Name = "Still inactive"
			return nil
		})
		return err
	}); err != nil {
		t.Fatalf("update of inactive employee without assets rejected: %v", err)
	}
}

func TestDefaultRulesEngineRegistersBuiltins(t *testing.T) {
	names := map[string]bool{}
	for _, r := range NewDefaultRulesEngine().Rules() {
		names[r.Name()] = true
	}
	if !names[assetStateRuleName] || !names[assignmentIntegrityRuleName] {
		t.Fatalf("missing built-in rules: %v", names)
	}
}
