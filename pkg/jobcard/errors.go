package jobcard

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotActionable     = errors.New("job card is not actionable")
	ErrQuantityExceeded  = errors.New("completed quantity exceeds allowed quantity")
	ErrQuantityDecreased = errors.New("completed quantity cannot decrease")
	ErrNegativeQuantity  = errors.New("completed quantity cannot be negative")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStageCompleted    = errors.New("job card is already completed")
	ErrUnknownJobCard    = errors.New("unknown job card")
	ErrUnauthenticated   = errors.New("missing or invalid credentials")
	ErrInconsistent      = errors.New("job card data is inconsistent")
	ErrClosed            = errors.New("coordinator is closed")
)

// PreconditionError reports a transition rejected locally before any
// persistence call. Nothing was mutated.
type PreconditionError struct {
	JobCardID string
	Action    Action
	Reason    error
	Detail    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s job card %s: %s", e.Action, e.JobCardID, e.Detail)
}

func (e *PreconditionError) Unwrap() error {
	return e.Reason
}

func rejectf(id string, action Action, reason error, format string, args ...interface{}) *PreconditionError {
	return &PreconditionError{JobCardID: id, Action: action, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// PersistenceError reports that the backend did not confirm a transition.
type PersistenceError struct {
	JobCardID  string
	Action     Action
	RolledBack bool
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.RolledBack {
		return fmt.Sprintf("%s of job card %s was not saved and has been reverted: %v", e.Action, e.JobCardID, e.Err)
	}
	return fmt.Sprintf("%s of job card %s was not confirmed by the server (kept locally, retry to sync): %v", e.Action, e.JobCardID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// InconsistencyError reports a job card whose completed quantity exceeds what
// its predecessor has released.
type InconsistencyError struct {
	JobCardID   string
	Predecessor string
	Completed   decimal.Decimal
	Allowed     decimal.Decimal
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("job card %s reports completed quantity %s but predecessor %s has only released %s",
		e.JobCardID, e.Completed, e.Predecessor, e.Allowed)
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrInconsistent
}
