package domain

import "fmt"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	EmployeeID string
	Email      string
	Role       Role
}

// System is the actor used by background jobs such as the expiry sweeper.
var System = Actor{EmployeeID: "system", Role: RoleAdmin}

// IsAdmin reports whether the actor may mutate assets and employees.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// RequireAdmin returns ErrForbidden unless the actor is an admin.
func (a Actor) RequireAdmin(op string) error {
	if a.EmployeeID == "" {
		return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	if !a.IsAdmin() {
		return fmt.Errorf("%s requires admin: %w", op, ErrForbidden)
	}
	return nil
}

// RequireSession returns ErrUnauthenticated for the zero actor.
func (a Actor) RequireSession(op string) error {
	if a.EmployeeID == "" {
		return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	return nil
}
