// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. The durable backends embed
// it and persist its snapshot through a commit hook.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"keepernest/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Asset aliases domain.Asset for in-memory persistence operations.
	Asset = domain.Asset
	// Employee aliases domain.Employee.
	Employee = domain.Employee
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	assets    map[string]Asset
	employees map[string]Employee
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Assets    map[string]Asset    `json:"assets"`
	Employees map[string]Employee `json:"employees"`
}

func newMemoryState() memoryState {
	return memoryState{
		assets:    make(map[string]Asset),
		employees: make(map[string]Employee),
	}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		assets:    make(map[string]Asset, len(s.assets)),
		employees: make(map[string]Employee, len(s.employees)),
	}
	for k, v := range s.assets {
		cp.assets[k] = v.Clone()
	}
	for k, v := range s.employees {
		cp.employees[k] = v
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cp := state.clone()
	return Snapshot{Assets: cp.assets, Employees: cp.employees}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	return memoryState{assets: s.Assets, employees: s.Employees}.clone()
}

// migrateSnapshot normalizes documents written by older releases: nil
// buckets, the "Maintainance" spelling, assignedTo sentinels that disagree
// with status, and history queues longer than the cap.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Assets == nil {
		snapshot.Assets = map[string]Asset{}
	}
	if snapshot.Employees == nil {
		snapshot.Employees = map[string]Employee{}
	}
	for id, a := range snapshot.Assets {
		if a.ID == "" {
			a.ID = id
		}
		if status, ok := domain.ParseAssetStatus(string(a.Status)); ok {
			a.Status = status
		} else {
			a.Status = domain.StatusAvailable
		}
		a.AssignedTo = strings.TrimSpace(a.AssignedTo)
		switch {
		case a.Status == domain.StatusAssigned && (a.AssignedTo == "" || a.AssignedTo == domain.Unassigned):
			a.Status = domain.StatusAvailable
			a.AssignedTo = domain.Unassigned
		case a.Status != domain.StatusAssigned:
			a.AssignedTo = domain.Unassigned
		}
		if a.HistoryQueue == nil {
			a.HistoryQueue = []string{}
		}
		if len(a.HistoryQueue) > domain.HistoryCapacity {
			a.HistoryQueue = append([]string(nil), a.HistoryQueue[:domain.HistoryCapacity]...)
		}
		if a.Revision <= 0 {
			a.Revision = 1
		}
		snapshot.Assets[id] = a
	}
	for id, e := range snapshot.Employees {
		if e.ID == "" {
			e.ID = id
		}
		if e.EmployeeID == "" {
			e.EmployeeID = id
		}
		if e.Status == "" {
			e.Status = domain.EmployeeActive
		}
		if e.Role == "" {
			e.Role = domain.RoleEmployee
		}
		snapshot.Employees[id] = e
	}
	return snapshot
}

// CommitHook is invoked with the candidate state before a transaction is
// published. Returning an error aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	hook   CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetCommitHook installs fn as the durability hook for subsequent commits.
func (s *Store) SetCommitHook(fn CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListAssets() []Asset {
	return sortedAssets(v.state.assets, domain.AssetFilter{})
}

func (v transactionView) ListEmployees() []Employee {
	return sortedEmployees(v.state.employees, domain.EmployeeFilter{})
}

func (v transactionView) FindAsset(id string) (Asset, bool) {
	a, ok := v.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return a.Clone(), true
}

func (v transactionView) FindAssetByKey(assetID string) (Asset, bool) {
	return findAssetByKey(v.state, assetID)
}

func (v transactionView) FindEmployee(id string) (Employee, bool) {
	e, ok := v.state.employees[id]
	return e, ok
}

func findAssetByKey(state *memoryState, assetID string) (Asset, bool) {
	for _, a := range state.assets {
		if a.AssetID == assetID {
			return a.Clone(), true
		}
	}
	return Asset{}, false
}

func sortedAssets(assets map[string]Asset, filter domain.AssetFilter) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if filter.Matches(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetID == out[j].AssetID {
			return out[i].ID < out[j].ID
		}
		return out[i].AssetID < out[j].AssetID
	})
	return out
}

func sortedEmployees(employees map[string]Employee, filter domain.EmployeeFilter) []Employee {
	out := make([]Employee, 0, len(employees))
	for _, e := range employees {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules run against the candidate state; the commit hook, when installed,
// must succeed before the state is published.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.hook != nil && len(tx.changes) > 0 {
		if err := s.hook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) FindAsset(id string) (Asset, bool) {
	a, ok := tx.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return a.Clone(), true
}

func (tx *transaction) FindAssetByKey(assetID string) (Asset, bool) {
	return findAssetByKey(&tx.state, assetID)
}

func (tx *transaction) FindEmployee(id string) (Employee, bool) {
	e, ok := tx.state.employees[id]
	return e, ok
}

// CreateAsset stores a new asset. The business key must be unique.
func (tx *transaction) CreateAsset(a Asset) (Asset, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.assets[a.ID]; exists {
		return Asset{}, fmt.Errorf("asset %q: %w", a.ID, domain.ErrDuplicate)
	}
	if _, exists := findAssetByKey(&tx.state, a.AssetID); exists {
		return Asset{}, fmt.Errorf("asset %q: %w", a.AssetID, domain.ErrDuplicate)
	}
	if a.HistoryQueue == nil {
		a.HistoryQueue = []string{}
	}
	a.CreatedAt = tx.now
	a.UpdatedAt = tx.now
	a.Revision = 1
	tx.state.assets[a.ID] = a.Clone()
	tx.recordChange(Change{Entity: domain.EntityAsset, Action: domain.ActionCreate, After: a.Clone()})
	return a.Clone(), nil
}

// UpdateAsset mutates an asset when expectedRevision matches the stored one.
func (tx *transaction) UpdateAsset(id string, expectedRevision int64, mutator func(*Asset) error) (Asset, error) {
	current, ok := tx.state.assets[id]
	if !ok {
		return Asset{}, fmt.Errorf("asset %q: %w", id, domain.ErrNotFound)
	}
	if current.Revision != expectedRevision {
		return Asset{}, fmt.Errorf("asset %q at revision %d, expected %d: %w", current.AssetID, current.Revision, expectedRevision, domain.ErrConcurrentModification)
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return Asset{}, err
	}
	next.ID = id
	next.AssetID = before.AssetID
	next.CreatedAt = before.CreatedAt
	next.UpdatedAt = tx.now
	next.Revision = before.Revision + 1
	tx.state.assets[id] = next.Clone()
	tx.recordChange(Change{Entity: domain.EntityAsset, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// DeleteAsset removes an asset when expectedRevision matches the stored one.
func (tx *transaction) DeleteAsset(id string, expectedRevision int64) error {
	current, ok := tx.state.assets[id]
	if !ok {
		return fmt.Errorf("asset %q: %w", id, domain.ErrNotFound)
	}
	if current.Revision != expectedRevision {
		return fmt.Errorf("asset %q at revision %d, expected %d: %w", current.AssetID, current.Revision, expectedRevision, domain.ErrConcurrentModification)
	}
	delete(tx.state.assets, id)
	tx.recordChange(Change{Entity: domain.EntityAsset, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// CreateEmployee stores a new employee keyed by EmployeeID.
func (tx *transaction) CreateEmployee(e Employee) (Employee, error) {
	if e.EmployeeID == "" {
		return Employee{}, fmt.Errorf("employee id required: %w", domain.ErrValidation)
	}
	e.ID = e.EmployeeID
	if _, exists := tx.state.employees[e.ID]; exists {
		return Employee{}, fmt.Errorf("employee %q: %w", e.ID, domain.ErrDuplicate)
	}
	for _, other := range tx.state.employees {
		if e.Email != "" && strings.EqualFold(other.Email, e.Email) {
			return Employee{}, fmt.Errorf("email %q: %w", e.Email, domain.ErrDuplicate)
		}
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.employees[e.ID] = e
	tx.recordChange(Change{Entity: domain.EntityEmployee, Action: domain.ActionCreate, After: e})
	return e, nil
}

// UpdateEmployee mutates an employee using the provided mutator function.
func (tx *transaction) UpdateEmployee(id string, mutator func(*Employee) error) (Employee, error) {
	current, ok := tx.state.employees[id]
	if !ok {
		return Employee{}, fmt.Errorf("employee %q: %w", id, domain.ErrNotFound)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Employee{}, err
	}
	current.ID = id
	current.EmployeeID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.employees[id] = current
	tx.recordChange(Change{Entity: domain.EntityEmployee, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteEmployee removes an employee from the transaction state.
func (tx *transaction) DeleteEmployee(id string) error {
	current, ok := tx.state.employees[id]
	if !ok {
		return fmt.Errorf("employee %q: %w", id, domain.ErrNotFound)
	}
	delete(tx.state.employees, id)
	tx.recordChange(Change{Entity: domain.EntityEmployee, Action: domain.ActionDelete, Before: current})
	return nil
}

// Read helpers ---------------------------------------------------------------

// GetAsset retrieves an asset by store id from committed state.
func (s *Store) GetAsset(id string) (Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.assets[id]
	if !ok {
		return Asset{}, false
	}
	return a.Clone(), true
}

// FindAssetByKey retrieves an asset by its business key.
func (s *Store) FindAssetByKey(assetID string) (Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findAssetByKey(&s.state, assetID)
}

// ListAssets returns committed assets matching filter ordered by asset id.
func (s *Store) ListAssets(filter domain.AssetFilter) []Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedAssets(s.state.assets, filter)
}

// GetEmployee retrieves an employee by employee id.
func (s *Store) GetEmployee(id string) (Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.state.employees[id]
	return e, ok
}

// ListEmployees returns committed employees matching filter.
func (s *Store) ListEmployees(filter domain.EmployeeFilter) []Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEmployees(s.state.employees, filter)
}
