package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrPrecondition = errors.New("precondition failed")
	ErrAdapter      = errors.New("external service failed")
	ErrConflict     = errors.New("concurrent update conflict")
	ErrNotFound     = errors.New("not found")

	ErrAlreadyExists = fmt.Errorf("%w: active workflow already exists for application", ErrPrecondition)
	ErrNotOwner      = fmt.Errorf("%w: actor does not own the job posting", ErrPrecondition)
	ErrWrongStep     = fmt.Errorf("%w: action does not match current step", ErrPrecondition)
	ErrTerminal      = fmt.Errorf("%w: workflow is no longer active", ErrPrecondition)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func wrongStep(action string, want []Step, got Step) error {
	return fmt.Errorf("%w: %s requires step %v, workflow is at %s", ErrWrongStep, action, want, got)
}

// ErrorKind names the taxonomy bucket of err, or "internal" when none matches.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPrecondition):
		return "precondition"
	case errors.Is(err, ErrAdapter):
		return "adapter"
	default:
		return "internal"
	}
}
