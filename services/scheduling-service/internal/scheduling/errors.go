package scheduling

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/clinicbook/services/scheduling-service/internal/availability"
)

// Sentinels for errors.Is. Every typed error below matches exactly one.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("time slot conflict")
	ErrUnauthorized = errors.New("not authorized")
	ErrBusinessRule = errors.New("business rule violated")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

// Business rule identifiers carried by BusinessRuleError.
const (
	RuleInsufficientNotice = "insufficient notice"
	RuleAlreadyTerminal    = "appointment already finalized"
	RuleNoOccurrences      = "no occurrence could be scheduled"
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type ConflictError struct {
	Conflict availability.Conflict
}

func (e *ConflictError) Error() string { return "conflict: " + e.Conflict.String() }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

type AuthorizationError struct {
	ActorID string
	Action  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %q may not %s", e.ActorID, e.Action)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrUnauthorized }

type BusinessRuleError struct {
	Rule   string
	Detail string
}

func (e *BusinessRuleError) Error() string {
	if e.Detail == "" {
		return e.Rule
	}
	return e.Rule + ": " + e.Detail
}

func (e *BusinessRuleError) Is(target error) bool { return target == ErrBusinessRule }

// InfraError wraps a collaborator failure (timeout, lost connection,
// serialization failure). It is outside the domain taxonomy and the caller
// decides whether to retry.
type InfraError struct {
	Op        string
	Err       error
	retryable bool
}

func (e *InfraError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InfraError) Unwrap() error { return e.Err }

func (e *InfraError) Is(target error) bool { return target == ErrUnavailable }

func (e *InfraError) Retryable() bool { return e.retryable }

// IsDomainError reports whether err belongs to the five terminal outcomes.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrBusinessRule)
}
