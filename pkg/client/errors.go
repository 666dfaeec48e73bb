package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/types"
)

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")

	// ErrRateLimited is returned when the daemon rejects a request with 429
	ErrRateLimited = errors.New("rate limited by daemon")

	// ErrNoSchedule is returned when skipping or postponing while the
	// daemon has no health schedule
	ErrNoSchedule = errors.New("no health schedule")
)

// APIError is a non-2xx answer from the daemon. It unwraps to the matching
// esoh error kind, so errors.Is works the same for local and remote solves.
type APIError struct {
	StatusCode int
	Kind       string
	Step       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("got %d: %s (step %s)", e.StatusCode, e.Message, e.Step)
	}
	return fmt.Sprintf("got %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Kind {
	case types.ErrorKindInvalidInput:
		return esoh.ErrInvalidInput
	case types.ErrorKindInfeasible:
		return esoh.ErrInfeasibleVoltageWindow
	case types.ErrorKindNotConverged:
		return esoh.ErrSolverDidNotConverge
	case types.ErrorKindRateLimited:
		return ErrRateLimited
	case types.ErrorKindNoSchedule:
		return ErrNoSchedule
	}
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}
