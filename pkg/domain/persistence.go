package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
//
// Asset updates and deletes are conditional: expectedRevision must equal the
// stored revision or the call fails with ErrConcurrentModification.
type Transaction interface {
	Snapshot() TransactionView
	CreateAsset(Asset) (Asset, error)
	UpdateAsset(id string, expectedRevision int64, mutator func(*Asset) error) (Asset, error)
	DeleteAsset(id string, expectedRevision int64) error
	CreateEmployee(Employee) (Employee, error)
	UpdateEmployee(id string, mutator func(*Employee) error) (Employee, error)
	DeleteEmployee(id string) error
	FindAsset(id string) (Asset, bool)
	FindAssetByKey(assetID string) (Asset, bool)
	FindEmployee(id string) (Employee, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	FindAssetByKey(assetID string) (Asset, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetAsset(id string) (Asset, bool)
	FindAssetByKey(assetID string) (Asset, bool)
	ListAssets(filter AssetFilter) []Asset
	GetEmployee(id string) (Employee, bool)
	ListEmployees(filter EmployeeFilter) []Employee
}
