package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by stores and the service layer. Callers match
// them with errors.Is.
var (
	ErrInvalidTransition      = errors.New("invalid asset transition")
	ErrAssetInUse             = errors.New("asset is assigned")
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrEmployeeHasAssets      = errors.New("employee holds assigned assets")
	ErrDuplicate              = errors.New("already exists")
	ErrValidation             = errors.New("validation failed")
	ErrUnauthenticated        = errors.New("unauthenticated")
	ErrForbidden              = errors.New("forbidden")
	ErrStoreUnavailable       = errors.New("store unavailable")
)

// TransitionError describes a rejected lifecycle operation.
type TransitionError struct {
	Op      string
	AssetID string
	From    AssetStatus
	Kind    error
	Hint    string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s asset %s: %v (status %s)", e.Op, e.AssetID, e.Kind, e.From)
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// Unwrap exposes the sentinel kind.
func (e *TransitionError) Unwrap() error { return e.Kind }

// ErrorClass groups errors by who has to act on them.
type ErrorClass string

// Error classes.
const (
	ClassNone           ErrorClass = ""
	ClassRejected       ErrorClass = "rejected"
	ClassNotFound       ErrorClass = "not_found"
	ClassAuth           ErrorClass = "auth"
	ClassInfrastructure ErrorClass = "infrastructure"
)

// Classify maps err to the class a caller should react to. Unknown errors
// are treated as infrastructure failures.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var rv RuleViolationError
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		return ClassInfrastructure
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrForbidden):
		return ClassAuth
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAssetInUse),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrEmployeeHasAssets),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrValidation),
		errors.As(err, &rv):
		return ClassRejected
	default:
		return ClassInfrastructure
	}
}

// Hint extracts the actionable hint carried by a TransitionError, if any.
func Hint(err error) string {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Hint
	}
	switch {
	case errors.Is(err, ErrEmployeeHasAssets):
		return "reassign or unassign their assets first"
	case errors.Is(err, ErrConcurrentModification):
		return "reload and retry"
	}
	return ""
}
