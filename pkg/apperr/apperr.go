package apperr

import (
	"errors"
	"net/http"
)

// Error kinds shared by every layer. Wrap them with fmt.Errorf("...: %w", ErrX)
// and test with errors.Is.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrRuleViolation    = errors.New("rule violation")
	ErrCooldownActive   = errors.New("cooldown active")
	ErrDuplicateInQueue = errors.New("track already in queue")
)

// HTTPStatus maps an error onto the status code a handler should respond with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrDuplicateInQueue):
		return http.StatusConflict
	case errors.Is(err, ErrRuleViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCooldownActive):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
