package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/repository"
)

// Failure kinds returned by the coordinators. Handlers map them to HTTP
// status codes with errors.Is.
var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyMember          = errors.New("already a member of this room")
	ErrCapacityExceeded       = errors.New("room is full or no longer recruiting")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrPersistence            = errors.New("persistence failure")
	ErrLocationUnavailable    = errors.New("location unavailable")
	ErrNotOwner               = errors.New("only the room owner can do this")
	ErrNotMember              = errors.New("not a member of this room")
	ErrNotTracked             = errors.New("location is not being tracked")
	ErrOutOfReach             = errors.New("room start point is out of reach")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidAmount          = errors.New("invalid amount")
)

var domainErrors = []error{
	ErrNotFound, ErrAlreadyMember, ErrCapacityExceeded, ErrInvalidStateTransition,
	ErrInsufficientBalance, ErrPersistence, ErrLocationUnavailable, ErrNotOwner,
	ErrNotMember, ErrNotTracked, ErrOutOfReach, ErrInvalidInput, ErrInvalidAmount,
}

func isDomain(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// InsufficientBalanceError carries the numbers a client needs to tell the
// user how much to top up.
type InsufficientBalanceError struct {
	UserID    string
	Balance   int
	Required  int
	Shortfall int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d, need %d (short %d)", e.Balance, e.Required, e.Shortfall)
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// TransitionError explains why a pipeline or status change was refused.
type TransitionError struct {
	From   string
	To     string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s: %s", e.From, e.To, e.Reason)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidStateTransition }

func phaseError(from, to model.Phase, reason string) error {
	return &TransitionError{From: string(from), To: string(to), Reason: reason}
}

// PersistenceError wraps a store failure. The operation was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string        { return e.Op + ": " + ErrPersistence.Error() + ": " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error        { return e.Err }
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// classify leaves domain errors alone and wraps everything else as a
// persistence failure.
func classify(op string, err error) error {
	if err == nil || isDomain(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// notFound turns repository lookup misses into ErrNotFound and passes
// other errors through.
func notFound(err error, kind, id string) error {
	switch {
	case errors.Is(err, repository.ErrRoomNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrMemberNotFound):
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return err
}

// kindOf names the failure for metrics labels.
func kindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, ErrNotOwner), errors.Is(err, ErrNotMember):
		return "forbidden"
	case errors.Is(err, ErrOutOfReach):
		return "out_of_reach"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidAmount):
		return "invalid_input"
	case errors.Is(err, ErrNotTracked):
		return "not_tracked"
	}
	return "persistence"
}
