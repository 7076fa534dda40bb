package core

import (
	"context"
	"errors"
	"fmt"

	"keepernest/pkg/domain"
)

const assignmentIntegrityRuleName = "assignment_integrity"

// AssignmentIntegrityRule keeps assignedTo references pointing at existing,
// active employees and blocks deleting or deactivating an employee who still
// holds assets.
func AssignmentIntegrityRule() domain.Rule {
	return assignmentIntegrityRule{}
}

type assignmentIntegrityRule struct{}

func (assignmentIntegrityRule) Name() string { return assignmentIntegrityRuleName }

func (assignmentIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var held map[string]int
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityAsset:
			after, ok := changedAsset(change.After)
			if !ok || after.Status != domain.StatusAssigned {
				continue
			}
			if before, ok := changedAsset(change.Before); ok && before.AssignedTo == after.AssignedTo {
				continue
			}
			employee, found := view.FindEmployee(after.AssignedTo)
			switch {
			case !found:
				res.Violations = append(res.Violations, violation(after.ID, fmt.Sprintf("asset %s assigned to unknown employee %s", after.AssetID, after.AssignedTo)))
			case !employee.Active():
				res.Violations = append(res.Violations, violation(after.ID, fmt.Sprintf("asset %s assigned to inactive employee %s", after.AssetID, after.AssignedTo)))
			}
		case domain.EntityEmployee:
			var (
				employee domain.Employee
				ok       bool
			)
			switch change.Action {
			case domain.ActionDelete:
				employee, ok = changedEmployee(change.Before)
			case domain.ActionUpdate:
				employee, ok = changedEmployee(change.After)
				before, known := changedEmployee(change.Before)
				ok = ok && !employee.Active() && (!known || before.Active())
			}
			if !ok {
				continue
			}
			if held == nil {
				held = make(map[string]int)
				for _, a := range view.ListAssets() {
					if a.Status == domain.StatusAssigned {
						held[a.AssignedTo]++
					}
				}
			}
			if n := held[employee.EmployeeID]; n > 0 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     assignmentIntegrityRuleName,
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("employee %s still holds %d assigned assets", employee.EmployeeID, n),
					Entity:   domain.EntityEmployee,
					EntityID: employee.EmployeeID,
				})
			}
		}
	}
	return res, nil
}

// holdingsViolation reports whether err is a commit blocked because an
// employee being retired still holds assets.
func holdingsViolation(err error) bool {
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		return false
	}
	for _, v := range rv.Result.Violations {
		if v.Rule == assignmentIntegrityRuleName && v.Entity == domain.EntityEmployee {
			return true
		}
	}
	return false
}

func violation(assetID, msg string) domain.Violation {
	return domain.Violation{
		Rule:     assignmentIntegrityRuleName,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityAsset,
		EntityID: assetID,
	}
}
