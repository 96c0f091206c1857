package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the five error kinds. Concrete error structs match
// their sentinel with errors.Is so callers can branch on kind alone.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrGuardFailed       = errors.New("guard failed")
	ErrCycle             = errors.New("dependency cycle")
	ErrDuplicate         = errors.New("duplicate")
)

// ErrGraphCorrupt is returned when stored dependencies already contain a
// cycle. Insert-time checks make this unreachable in a consistent store.
var ErrGraphCorrupt = errors.New("task graph contains a cycle")

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError with a printf-style message.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity, or one outside the caller's scope.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InvalidTransitionError reports a (from, to) pair absent from the
// entity's transition table, or a concurrent status change that won the race.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot transition from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// GuardFailedError reports an allowed transition whose precondition is unmet.
type GuardFailedError struct {
	Entity    string
	ID        string
	From      string
	To        string
	Condition string
}

func (e *GuardFailedError) Error() string {
	if e.From == "" && e.To == "" {
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Condition)
	}
	return fmt.Sprintf("%s %s: cannot transition from %s to %s: %s", e.Entity, e.ID, e.From, e.To, e.Condition)
}

func (e *GuardFailedError) Is(target error) bool { return target == ErrGuardFailed }

// CycleDetectedError reports a dependency that would close a cycle. Path
// runs from the proposed successor back to the proposed predecessor.
type CycleDetectedError struct {
	PredecessorID string
	SuccessorID   string
	Path          []string
}

func (e *CycleDetectedError) Error() string {
	msg := fmt.Sprintf("adding dependency %s -> %s would create a cycle", e.PredecessorID, e.SuccessorID)
	if len(e.Path) > 0 {
		msg += " (" + strings.Join(e.Path, " -> ") + ")"
	}
	return msg
}

func (e *CycleDetectedError) Is(target error) bool { return target == ErrCycle }

// DuplicateError reports a uniqueness violation.
type DuplicateError struct {
	Entity string
	Key    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// Error kind names used at the HTTP and CLI boundaries.
const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindInvalidTransition = "invalid_transition"
	KindGuardFailed       = "guard_failed"
	KindCycle             = "cycle_detected"
	KindDuplicate         = "duplicate"
	KindInternal          = "internal"
)

// KindOf classifies err into one of the kind names above.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrGuardFailed):
		return KindGuardFailed
	case errors.Is(err, ErrCycle):
		return KindCycle
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	}
	return KindInternal
}
