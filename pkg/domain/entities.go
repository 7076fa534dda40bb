// Package domain defines the persistent asset and employee records, the
// bounded assignment history, and the rule evaluation primitives used by
// keepernest.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityAsset identifies an asset record.
	EntityAsset EntityType = "asset"
	// EntityEmployee identifies an employee record.
	EntityEmployee EntityType = "employee"
)

// AssetStatus is the availability state of an asset. Exactly one holds at any time.
type AssetStatus string

// Canonical asset statuses.
const (
	StatusAvailable   AssetStatus = "Available"
	StatusAssigned    AssetStatus = "Assigned"
	StatusMaintenance AssetStatus = "Maintenance"
	StatusDamaged     AssetStatus = "Damaged"
)

// legacyStatusMaintenance is the misspelled status older documents carry.
const legacyStatusMaintenance = "Maintainance"

// Valid reports whether s is one of the canonical statuses.
func (s AssetStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusAssigned, StatusMaintenance, StatusDamaged:
		return true
	default:
		return false
	}
}

// ParseAssetStatus resolves a status case-insensitively, accepting the legacy
// "Maintainance" spelling.
func ParseAssetStatus(raw string) (AssetStatus, bool) {
	v := strings.TrimSpace(raw)
	if strings.EqualFold(v, legacyStatusMaintenance) {
		return StatusMaintenance, true
	}
	for _, s := range []AssetStatus{StatusAvailable, StatusAssigned, StatusMaintenance, StatusDamaged} {
		if strings.EqualFold(v, string(s)) {
			return s, true
		}
	}
	return "", false
}

// AssetType classifies hardware.
type AssetType string

// Supported asset types.
const (
	AssetTypeLaptop   AssetType = "Laptop"
	AssetTypeKeyboard AssetType = "Keyboard"
	AssetTypeMouse    AssetType = "Mouse"
	AssetTypeCharger  AssetType = "Charger"
	AssetTypeOther    AssetType = "Other"
)

// Valid reports whether t is a supported asset type.
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeLaptop, AssetTypeKeyboard, AssetTypeMouse, AssetTypeCharger, AssetTypeOther:
		return true
	default:
		return false
	}
}

// Unassigned is the assignedTo sentinel for assets not held by anyone.
const Unassigned = "unassigned"

// Role is an employee's authorization role.
type Role string

// Supported roles.
const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleEmployee }

// EmployeeStatus marks whether an account is in use.
type EmployeeStatus string

// Supported employee statuses.
const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Asset is a piece of hardware tracked by the register.
type Asset struct {
	Base
	AssetID      string      `json:"assetId"`
	AssetName    string      `json:"assetName"`
	AssetType    AssetType   `json:"assetType"`
	Description  string      `json:"description,omitempty"`
	Status       AssetStatus `json:"status"`
	AssignedTo   string      `json:"assignedTo"`
	PurchaseDate time.Time   `json:"purchaseDate"`
	ExpiredAt    time.Time   `json:"expiredAt"`
	HistoryQueue []string    `json:"historyQueue"`
	// Revision is bumped by the store on every write and checked by
	// conditional updates.
	Revision int64 `json:"revision"`
}

// Clone returns a deep copy of the asset.
func (a Asset) Clone() Asset {
	cp := a
	if a.HistoryQueue != nil {
		cp.HistoryQueue = append([]string(nil), a.HistoryQueue...)
	}
	return cp
}

// Consistent reports whether the assignedTo sentinel agrees with status.
func (a Asset) Consistent() bool {
	if a.Status == StatusAssigned {
		return a.AssignedTo != "" && a.AssignedTo != Unassigned
	}
	return a.AssignedTo == Unassigned
}

// Employee is a user account that may hold assets.
type Employee struct {
	Base
	EmployeeID   string         `json:"employeeId"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Gender       string         `json:"gender,omitempty"`
	Role         Role           `json:"role"`
	Status       EmployeeStatus `json:"status"`
	CreatorMail  string         `json:"creatorMail,omitempty"`
	PasswordHash string         `json:"passwordHash,omitempty"`
}

// Active reports whether the account may log in and receive assets.
func (e Employee) Active() bool { return e.Status == EmployeeActive }

// AssetFilter selects assets by equality on indexed fields. Empty fields match all.
type AssetFilter struct {
	Status     AssetStatus
	AssetType  AssetType
	AssignedTo string
}

// Matches reports whether a satisfies the filter.
func (f AssetFilter) Matches(a Asset) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.AssetType != "" && a.AssetType != f.AssetType {
		return false
	}
	if f.AssignedTo != "" && a.AssignedTo != f.AssignedTo {
		return false
	}
	return true
}

// Key renders a stable cache qualifier for the filter.
func (f AssetFilter) Key() string {
	return "status=" + string(f.Status) + "&type=" + string(f.AssetType) + "&assignedTo=" + f.AssignedTo
}

// EmployeeFilter selects employees by equality on indexed fields.
type EmployeeFilter struct {
	Role       Role
	Status     EmployeeStatus
	EmployeeID string
}

// Matches reports whether e satisfies the filter.
func (f EmployeeFilter) Matches(e Employee) bool {
	if f.Role != "" && e.Role != f.Role {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.EmployeeID != "" && e.EmployeeID != f.EmployeeID {
		return false
	}
	return true
}

// Key renders a stable cache qualifier for the filter.
func (f EmployeeFilter) Key() string {
	return "role=" + string(f.Role) + "&status=" + string(f.Status) + "&employeeId=" + f.EmployeeID
}

// Change describes a mutation applied to an entity during a transaction.
// Before and After hold Asset or Employee values.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}
