package core

import (
	"fmt"
	"time"

	"keepernest/pkg/domain"
)

// OperationKind names a lifecycle transition requested on an asset.
type OperationKind string

// Supported lifecycle operations.
const (
	OpAssign           OperationKind = "assign"
	OpUnassign         OperationKind = "unassign"
	OpEnterMaintenance OperationKind = "enter_maintenance"
	OpExitMaintenance  OperationKind = "exit_maintenance"
	OpReportDamage     OperationKind = "report_damage"
	OpRemove           OperationKind = "remove"
	OpExpire           OperationKind = "expire"
)

// Operation is an intended transition together with the inputs it needs.
// EmployeeID and HistoryID are only read by OpAssign.
type Operation struct {
	Kind       OperationKind
	EmployeeID string
	HistoryID  string
	Now        time.Time
}

// Cached query view names invalidated after writes.
const (
	ViewAssets          = "assets"
	ViewAvailableAssets = "available-assets"
	ViewDashboard       = "dashboard"
	ViewEmployees       = "employees"
)

// AssetView is the detail view of a single asset.
func AssetView(assetID string) string { return "asset:" + assetID }

// AssignedAssetsView lists the assets held by one employee.
func AssignedAssetsView(employeeID string) string { return "assigned-assets:" + employeeID }

// EmployeeView is the detail view of a single employee.
func EmployeeView(employeeID string) string { return "employee:" + employeeID }

// Patch is the set of field changes a decision applies to an asset. A nil
// HistoryQueue and a zero ExpiredAt leave the stored values untouched.
type Patch struct {
	Status       domain.AssetStatus
	AssignedTo   string
	HistoryQueue []string
	ExpiredAt    time.Time
}

// Apply writes the patch onto a. It matches the mutator signature used by
// domain.Transaction.UpdateAsset.
func (p Patch) Apply(a *domain.Asset) error {
	a.Status = p.Status
	a.AssignedTo = p.AssignedTo
	if p.HistoryQueue != nil {
		a.HistoryQueue = append([]string(nil), p.HistoryQueue...)
	}
	if !p.ExpiredAt.IsZero() {
		a.ExpiredAt = p.ExpiredAt
	}
	return nil
}

// Decision is the outcome of a permitted operation.
type Decision struct {
	Delete     bool
	Patch      Patch
	StaleViews []string
}

const hintUnassignFirst = "unassign first"

// Decide validates op against the current snapshot of asset and returns the
// resulting patch. It performs no I/O.
func Decide(asset domain.Asset, op Operation) (Decision, error) {
	reject := func(kind error, hint string) (Decision, error) {
		return Decision{}, &domain.TransitionError{Op: string(op.Kind), AssetID: asset.AssetID, From: asset.Status, Kind: kind, Hint: hint}
	}
	stale := []string{AssetView(asset.AssetID), ViewAssets, ViewAvailableAssets, ViewDashboard}
	if asset.Status == domain.StatusAssigned {
		stale = append(stale, AssignedAssetsView(asset.AssignedTo))
	}

	switch op.Kind {
	case OpAssign:
		if op.EmployeeID == "" || op.EmployeeID == domain.Unassigned {
			return Decision{}, fmt.Errorf("assign asset %s: employee id required: %w", asset.AssetID, domain.ErrValidation)
		}
		if asset.Status != domain.StatusAvailable {
			hint := "asset must be Available"
			if asset.Status == domain.StatusAssigned {
				hint = hintUnassignFirst
			}
			return reject(domain.ErrInvalidTransition, hint)
		}
		entry, err := domain.EncodeHistoryEntry(domain.HistoryEntry{HistoryID: op.HistoryID, EmployeeID: op.EmployeeID, AssignDate: op.Now})
		if err != nil {
			return Decision{}, fmt.Errorf("encode history entry: %w", err)
		}
		return Decision{
			Patch: Patch{
				Status:       domain.StatusAssigned,
				AssignedTo:   op.EmployeeID,
				HistoryQueue: domain.PushHistory(asset.HistoryQueue, entry),
			},
			StaleViews: append(stale, AssignedAssetsView(op.EmployeeID)),
		}, nil

	case OpUnassign:
		if asset.Status != domain.StatusAssigned {
			return reject(domain.ErrInvalidTransition, "asset is not assigned")
		}
		return Decision{Patch: Patch{Status: domain.StatusAvailable, AssignedTo: domain.Unassigned}, StaleViews: stale}, nil

	case OpEnterMaintenance:
		switch asset.Status {
		case domain.StatusAssigned:
			return reject(domain.ErrAssetInUse, hintUnassignFirst)
		case domain.StatusMaintenance:
			return reject(domain.ErrInvalidTransition, "asset is already in maintenance")
		}
		return Decision{Patch: Patch{Status: domain.StatusMaintenance, AssignedTo: domain.Unassigned}, StaleViews: stale}, nil

	case OpExitMaintenance:
		if asset.Status != domain.StatusMaintenance {
			return reject(domain.ErrInvalidTransition, "asset is not in maintenance")
		}
		return Decision{Patch: Patch{Status: domain.StatusAvailable, AssignedTo: domain.Unassigned}, StaleViews: stale}, nil

	case OpReportDamage:
		switch asset.Status {
		case domain.StatusAssigned:
			return reject(domain.ErrAssetInUse, hintUnassignFirst)
		case domain.StatusDamaged:
			return reject(domain.ErrInvalidTransition, "asset is already marked damaged")
		}
		return Decision{Patch: Patch{Status: domain.StatusDamaged, AssignedTo: domain.Unassigned}, StaleViews: stale}, nil

	case OpRemove:
		if asset.Status == domain.StatusAssigned {
			return reject(domain.ErrAssetInUse, hintUnassignFirst)
		}
		return Decision{Delete: true, StaleViews: stale}, nil

	case OpExpire:
		if op.Now.Before(asset.ExpiredAt) {
			return reject(domain.ErrInvalidTransition, "asset expires "+asset.ExpiredAt.Format(time.DateOnly))
		}
		return Decision{
			Patch: Patch{
				Status:     domain.StatusAvailable,
				AssignedTo: domain.Unassigned,
				ExpiredAt:  asset.ExpiredAt.AddDate(1, 0, 0),
			},
			StaleViews: stale,
		}, nil
	}
	return Decision{}, fmt.Errorf("unknown operation %q: %w", op.Kind, domain.ErrValidation)
}

// InitialExpiry returns the expiry boundary for an asset created at t:
// 31 December of t's year, UTC.
func InitialExpiry(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
}
