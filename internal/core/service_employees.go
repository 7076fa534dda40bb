package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"keepernest/pkg/domain"
)

// MinPasswordLength is the shortest password ChangePassword accepts.
const MinPasswordLength = 8

// InitialPassword is the credential provisioned for a new employee.
func InitialPassword(employeeID string) string {
	return "EMPLOYEE_" + employeeID
}

// NewEmployee is the caller-supplied part of an employee record.
type NewEmployee struct {
	EmployeeID string
	Name       string
	Email      string
	Gender     string
	Role       domain.Role
}

// Session is an authenticated login.
type Session struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Actor     domain.Actor    `json:"-"`
	Employee  domain.Employee `json:"employee"`
}

// Dashboard holds register totals. ActiveEmployees counts only accounts
// with the employee role; ActiveAccounts includes admins.
type Dashboard struct {
	ActiveEmployees int                        `json:"activeEmployees"`
	ActiveAccounts  int                        `json:"activeAccounts"`
	TotalAssets     int                        `json:"totalAssets"`
	ByStatus        map[domain.AssetStatus]int `json:"byStatus"`
}

func (in *NewEmployee) normalize() error {
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = domain.RoleEmployee
	}
	switch {
	case in.EmployeeID == "":
		return fmt.Errorf("employeeId required: %w", domain.ErrValidation)
	case in.EmployeeID == domain.Unassigned:
		return fmt.Errorf("employeeId %q is reserved: %w", in.EmployeeID, domain.ErrValidation)
	case in.Name == "":
		return fmt.Errorf("name required: %w", domain.ErrValidation)
	case !in.Role.Valid():
		return fmt.Errorf("role %q unsupported: %w", in.Role, domain.ErrValidation)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("email %q: %w", in.Email, domain.ErrValidation)
	}
	return nil
}

// CreateEmployee provisions an employee with the initial password and sends
// the welcome mail. A failed mail is logged and does not undo the creation.
func (s *Service) CreateEmployee(ctx context.Context, actor domain.Actor, in NewEmployee) (domain.Employee, domain.Result, error) {
	var (
		created domain.Employee
		res     domain.Result
	)
	err := s.run(ctx, "create_employee", actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireAdmin("create employee"); err != nil {
			return in.EmployeeID, err
		}
		if err := in.normalize(); err != nil {
			return in.EmployeeID, err
		}
		var err error
		created, res, err = s.insertEmployee(ctx, in, actor.Email)
		if err != nil {
			return in.EmployeeID, err
		}
		welcome := WelcomeMail{
			To:              created.Email,
			Name:            created.Name,
			EmployeeID:      created.EmployeeID,
			InitialPassword: InitialPassword(created.EmployeeID),
			CreatedBy:       actor.Email,
		}
		if err := s.mailer.SendWelcome(ctx, welcome); err != nil {
			s.logger.Warn("welcome mail not sent", "employee", created.EmployeeID, "error", err)
		}
		return created.EmployeeID, nil
	})
	return created, res, err
}

// BootstrapAdmin creates the first admin account. It fails with ErrDuplicate
// once any admin exists.
func (s *Service) BootstrapAdmin(ctx context.Context, in NewEmployee, password string) (domain.Employee, error) {
	var created domain.Employee
	err := s.run(ctx, "bootstrap_admin", domain.System, func(ctx context.Context) (string, error) {
		in.Role = domain.RoleAdmin
		if err := in.normalize(); err != nil {
			return in.EmployeeID, err
		}
		if len(s.store.ListEmployees(domain.EmployeeFilter{Role: domain.RoleAdmin})) > 0 {
			return in.EmployeeID, fmt.Errorf("admin already exists: %w", domain.ErrDuplicate)
		}
		if password == "" {
			password = InitialPassword(in.EmployeeID)
		}
		if len(password) < MinPasswordLength {
			return in.EmployeeID, fmt.Errorf("password shorter than %d characters: %w", MinPasswordLength, domain.ErrValidation)
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return in.EmployeeID, err
		}
		created, _, err = s.storeEmployee(ctx, in, "", hash)
		return in.EmployeeID, err
	})
	return created, err
}

func (s *Service) insertEmployee(ctx context.Context, in NewEmployee, creator string) (domain.Employee, domain.Result, error) {
	hash, err := s.hasher.Hash(InitialPassword(in.EmployeeID))
	if err != nil {
		return domain.Employee{}, domain.Result{}, err
	}
	return s.storeEmployee(ctx, in, creator, hash)
}

func (s *Service) storeEmployee(ctx context.Context, in NewEmployee, creator, hash string) (domain.Employee, domain.Result, error) {
	var created domain.Employee
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateEmployee(domain.Employee{
			EmployeeID:   in.EmployeeID,
			Name:         in.Name,
			Email:        in.Email,
			Gender:       in.Gender,
			Role:         in.Role,
			Status:       domain.EmployeeActive,
			CreatorMail:  creator,
			PasswordHash: hash,
		})
		return err
	})
	if err != nil {
		return domain.Employee{}, res, storeErr(err)
	}
	s.invalidate(ctx, ViewEmployees, EmployeeView(created.EmployeeID), ViewDashboard)
	return redact(created), res, nil
}

// GetEmployee returns one employee. Employees may read only themselves.
func (s *Service) GetEmployee(ctx context.Context, actor domain.Actor, employeeID string) (domain.Employee, error) {
	var out domain.Employee
	err := s.run(ctx, "get_employee", actor, func(ctx context.Context) (string, error) {
		if err := s.authorizeEmployee(actor, employeeID); err != nil {
			return employeeID, err
		}
		view := EmployeeView(employeeID)
		cached := s.cacheGet(ctx, view, "", &out)
		if cached.hit {
			return employeeID, nil
		}
		employee, ok := s.store.GetEmployee(employeeID)
		if !ok {
			return employeeID, fmt.Errorf("employee %s: %w", employeeID, domain.ErrNotFound)
		}
		out = redact(employee)
		s.cacheSet(ctx, cached, out)
		return employeeID, nil
	})
	if err != nil {
		return domain.Employee{}, err
	}
	return out, nil
}

func (s *Service) authorizeEmployee(actor domain.Actor, employeeID string) error {
	if err := actor.RequireSession("get employee"); err != nil {
		return err
	}
	if actor.IsAdmin() || actor.EmployeeID == employeeID {
		return nil
	}
	return fmt.Errorf("employee %s: %w", employeeID, domain.ErrForbidden)
}

// ListEmployees returns employees matching filter. Admin only.
func (s *Service) ListEmployees(ctx context.Context, actor domain.Actor, filter domain.EmployeeFilter) ([]domain.Employee, error) {
	var out []domain.Employee
	err := s.run(ctx, "list_employees", actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireAdmin("list employees"); err != nil {
			return "", err
		}
		cached := s.cacheGet(ctx, ViewEmployees, filter.Key(), &out)
		if cached.hit {
			return "", nil
		}
		employees := s.store.ListEmployees(filter)
		out = make([]domain.Employee, 0, len(employees))
		for _, e := range employees {
			out = append(out, redact(e))
		}
		s.cacheSet(ctx, cached, out)
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeactivateEmployee marks an employee inactive. Employees still holding
// assets cannot be deactivated.
func (s *Service) DeactivateEmployee(ctx context.Context, actor domain.Actor, employeeID string) (domain.Employee, domain.Result, error) {
	var (
		updated domain.Employee
		res     domain.Result
	)
	err := s.run(ctx, "deactivate_employee", actor, func(ctx context.Context) (string, error) {
		if err := s.checkRetirement(actor, "deactivate employee", employeeID); err != nil {
			return employeeID, err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateEmployee(employeeID, func(e *domain.Employee) error {
				e.Status = domain.EmployeeInactive
				return nil
			})
			return err
		})
		if err != nil {
			return employeeID, retirementErr(employeeID, err)
		}
		updated = redact(updated)
		s.invalidate(ctx, ViewEmployees, EmployeeView(employeeID), ViewDashboard)
		return employeeID, nil
	})
	return updated, res, err
}

// RemoveEmployee hard-deletes an employee who holds no assets.
func (s *Service) RemoveEmployee(ctx context.Context, actor domain.Actor, employeeID string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "remove_employee", actor, func(ctx context.Context) (string, error) {
		if err := s.checkRetirement(actor, "remove employee", employeeID); err != nil {
			return employeeID, err
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteEmployee(employeeID)
		})
		if err != nil {
			return employeeID, retirementErr(employeeID, err)
		}
		s.invalidate(ctx, ViewEmployees, EmployeeView(employeeID), AssignedAssetsView(employeeID), ViewDashboard)
		return employeeID, nil
	})
	return res, err
}

func (s *Service) checkRetirement(actor domain.Actor, op, employeeID string) error {
	if err := actor.RequireAdmin(op); err != nil {
		return err
	}
	if actor.EmployeeID == employeeID {
		return fmt.Errorf("%s: cannot retire own account: %w", op, domain.ErrValidation)
	}
	if _, ok := s.store.GetEmployee(employeeID); !ok {
		return fmt.Errorf("employee %s: %w", employeeID, domain.ErrNotFound)
	}
	held := s.store.ListAssets(domain.AssetFilter{Status: domain.StatusAssigned, AssignedTo: employeeID})
	if len(held) > 0 {
		return fmt.Errorf("%s: %s holds %d assets: %w", op, employeeID, len(held), domain.ErrEmployeeHasAssets)
	}
	return nil
}

// retirementErr maps a commit blocked by assets assigned after the
// pre-check onto ErrEmployeeHasAssets.
func retirementErr(employeeID string, err error) error {
	if holdingsViolation(err) {
		return fmt.Errorf("%s holds assets: %w: %w", employeeID, domain.ErrEmployeeHasAssets, err)
	}
	return storeErr(err)
}

// ChangePassword replaces the caller's password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, actor domain.Actor, current, next string) error {
	return s.run(ctx, "change_password", actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireSession("change password"); err != nil {
			return "", err
		}
		if len(next) < MinPasswordLength {
			return actor.EmployeeID, fmt.Errorf("password shorter than %d characters: %w", MinPasswordLength, domain.ErrValidation)
		}
		employee, ok := s.store.GetEmployee(actor.EmployeeID)
		if !ok {
			return actor.EmployeeID, fmt.Errorf("employee %s: %w", actor.EmployeeID, domain.ErrNotFound)
		}
		if err := s.hasher.Compare(employee.PasswordHash, current); err != nil {
			return actor.EmployeeID, fmt.Errorf("current password mismatch: %w", domain.ErrUnauthenticated)
		}
		hash, err := s.hasher.Hash(next)
		if err != nil {
			return actor.EmployeeID, err
		}
		_, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			_, err := tx.UpdateEmployee(actor.EmployeeID, func(e *domain.Employee) error {
				e.PasswordHash = hash
				return nil
			})
			return err
		})
		return actor.EmployeeID, storeErr(err)
	})
}

// MaxProfileFieldLength bounds the self-service profile fields.
const MaxProfileFieldLength = 128

// UpdateProfile lets the caller change their own display name and gender.
// Role, status and email stay admin-managed.
func (s *Service) UpdateProfile(ctx context.Context, actor domain.Actor, name, gender string) (domain.Employee, domain.Result, error) {
	var (
		updated domain.Employee
		res     domain.Result
	)
	err := s.run(ctx, "update_profile", actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireSession("update profile"); err != nil {
			return "", err
		}
		name, gender = strings.TrimSpace(name), strings.TrimSpace(gender)
		switch {
		case name == "":
			return actor.EmployeeID, fmt.Errorf("name required: %w", domain.ErrValidation)
		case len(name) > MaxProfileFieldLength, len(gender) > MaxProfileFieldLength:
			return actor.EmployeeID, fmt.Errorf("profile fields longer than %d characters: %w", MaxProfileFieldLength, domain.ErrValidation)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateEmployee(actor.EmployeeID, func(e *domain.Employee) error {
				e.Name = name
				e.Gender = gender
				return nil
			})
			return err
		})
		if err != nil {
			return actor.EmployeeID, storeErr(err)
		}
		updated = redact(updated)
		s.invalidate(ctx, EmployeeView(actor.EmployeeID), ViewEmployees)
		return actor.EmployeeID, nil
	})
	return updated, res, err
}

var errBadCredentials = errors.New("invalid email or password")

// Authenticate verifies credentials of an active employee and issues a
// session token.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Session, error) {
	var session Session
	err := s.run(ctx, "authenticate", domain.Actor{}, func(ctx context.Context) (string, error) {
		if s.tokens == nil {
			return "", errors.New("no token issuer configured")
		}
		employee, ok := s.findByEmail(email)
		if !ok || !employee.Active() {
			return "", fmt.Errorf("%w: %w", errBadCredentials, domain.ErrUnauthenticated)
		}
		if err := s.hasher.Compare(employee.PasswordHash, password); err != nil {
			return employee.EmployeeID, fmt.Errorf("%w: %w", errBadCredentials, domain.ErrUnauthenticated)
		}
		actor := domain.Actor{EmployeeID: employee.EmployeeID, Email: employee.Email, Role: employee.Role}
		token, expires, err := s.tokens.Issue(actor)
		if err != nil {
			return employee.EmployeeID, fmt.Errorf("issue token: %w", err)
		}
		session = Session{Token: token, ExpiresAt: expires, Actor: actor, Employee: redact(employee)}
		return employee.EmployeeID, nil
	})
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// ResolveSession verifies a token and confirms its employee is still active.
// The role is reloaded so demotions take effect before the token expires.
func (s *Service) ResolveSession(ctx context.Context, token string) (domain.Actor, error) {
	if s.tokens == nil {
		return domain.Actor{}, fmt.Errorf("no token issuer configured: %w", domain.ErrUnauthenticated)
	}
	claimed, err := s.tokens.Verify(token)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	employee, ok := s.store.GetEmployee(claimed.EmployeeID)
	if !ok || !employee.Active() {
		return domain.Actor{}, fmt.Errorf("session of %s revoked: %w", claimed.EmployeeID, domain.ErrUnauthenticated)
	}
	return domain.Actor{EmployeeID: employee.EmployeeID, Email: employee.Email, Role: employee.Role}, nil
}

func (s *Service) findByEmail(email string) (domain.Employee, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Employee{}, false
	}
	for _, e := range s.store.ListEmployees(domain.EmployeeFilter{}) {
		if strings.EqualFold(e.Email, email) {
			return e, true
		}
	}
	return domain.Employee{}, false
}

// Dashboard returns register totals. Admin only.
func (s *Service) Dashboard(ctx context.Context, actor domain.Actor) (Dashboard, error) {
	var out Dashboard
	err := s.run(ctx, "dashboard", actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireAdmin("dashboard"); err != nil {
			return "", err
		}
		cached := s.cacheGet(ctx, ViewDashboard, "", &out)
		if cached.hit {
			return "", nil
		}
		out = Dashboard{ByStatus: map[domain.AssetStatus]int{
			domain.StatusAvailable:   0,
			domain.StatusAssigned:    0,
			domain.StatusMaintenance: 0,
			domain.StatusDamaged:     0,
		}}
		for _, e := range s.store.ListEmployees(domain.EmployeeFilter{Status: domain.EmployeeActive}) {
			out.ActiveAccounts++
			if e.Role == domain.RoleEmployee {
				out.ActiveEmployees++
			}
		}
		for _, a := range s.store.ListAssets(domain.AssetFilter{}) {
			out.TotalAssets++
			out.ByStatus[a.Status]++
		}
		s.cacheSet(ctx, cached, out)
		return "", nil
	})
	if err != nil {
		return Dashboard{}, err
	}
	return out, nil
}

func redact(e domain.Employee) domain.Employee {
	e.PasswordHash = ""
	return e
}
