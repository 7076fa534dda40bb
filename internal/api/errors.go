package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"keepernest/pkg/domain"
)

type errorDetail struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Hint       string          `json:"hint,omitempty"`
	Violations []violationBody `json:"violations,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type violationBody struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Entity   string `json:"entity,omitempty"`
	EntityID string `json:"entityId,omitempty"`
}

func violations(res domain.Result) []violationBody {
	if len(res.Violations) == 0 {
		return nil
	}
	out := make([]violationBody, 0, len(res.Violations))
	for _, v := range res.Violations {
		out = append(out, violationBody{
			Rule:     v.Rule,
			Severity: string(v.Severity),
			Message:  v.Message,
			Entity:   string(v.Entity),
			EntityID: v.EntityID,
		})
	}
	return out
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) int {
	switch domain.Classify(err) {
	case domain.ClassNotFound:
		return http.StatusNotFound
	case domain.ClassAuth:
		if errors.Is(err, domain.ErrForbidden) {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case domain.ClassRejected:
		if errors.Is(err, domain.ErrValidation) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusConflict
	case domain.ClassInfrastructure:
		if errors.Is(err, domain.ErrStoreUnavailable) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	class := domain.Classify(err)
	detail := errorDetail{Code: string(class), Message: err.Error(), Hint: domain.Hint(err)}
	if class == domain.ClassInfrastructure {
		detail.Message = "service temporarily unavailable"
	}
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		detail.Violations = violations(rv.Result)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: detail})
}

func badRequest(c *gin.Context, err error) {
	abortWith(c, http.StatusBadRequest, "bad_request", err.Error())
}
