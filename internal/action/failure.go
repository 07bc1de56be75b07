package action

import (
	"context"
	"errors"

	"github.com/labtiva/curator/internal/entity"
)

type FailureKind string

const (
	Transient        FailureKind = "transient"
	NotFound         FailureKind = "not_found"
	PermissionDenied FailureKind = "permission_denied"
	ConflictingState FailureKind = "conflicting_state"
	Unknown          FailureKind = "unknown"
)

// Retryable reports whether a call that failed this way may succeed if
// repeated.
func (k FailureKind) Retryable() bool {
	return k == Transient
}

// Failure is the error a Mutator returns for a classified cluster failure.
type Failure struct {
	Kind FailureKind
	Err  error
}

func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// KindOf classifies err. Unclassified timeouts count as transient.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	case errors.Is(err, entity.ErrEntityNotFound):
		return NotFound
	}
	return Unknown
}
