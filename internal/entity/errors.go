package entity

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

var (
	ErrClusterUnavailable = errors.New("cluster unavailable")
	ErrEmptyClusterState  = errors.New("cluster reports no entities")
	ErrEntityNotFound     = errors.New("entity not found")
)

// ClusterUnavailable wraps a failed listing call so callers can match it
// with errors.Is while keeping the transport error.
func ClusterUnavailable(what string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeUnavailable).
		WithMsg(what).
		WithCause(fmt.Errorf("%w: %w", ErrClusterUnavailable, err))
}

func NotFound(kind Kind, name string) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("%s %q not found", kind, name)).
		WithCause(ErrEntityNotFound)
}

func emptyClusterState(kind Kind) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg(fmt.Sprintf("cluster reports no %s", kind.Plural())).
		WithCause(ErrEmptyClusterState)
}
