package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"offer-workflow-orchestrator/internal/domain"
)

// Error is returned by every adapter call that fails. It matches
// domain.ErrAdapter under errors.Is.
type Error struct {
	Service    string
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == domain.ErrAdapter
}

// IsRetryable reports whether err is an adapter failure worth retrying.
func IsRetryable(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Retryable
}

func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

// transportError classifies a failure that happened before a response arrived.
func transportError(service, op string, err error) *Error {
	retryable := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) {
		retryable = true
	}
	if errors.Is(err, context.Canceled) {
		retryable = false
	}
	return &Error{Service: service, Op: op, Retryable: retryable, Err: err}
}
