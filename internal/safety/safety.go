// Package safety holds the checks that run between filtering and the
// first cluster mutation.
package safety

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/entity"
)

var (
	ErrUnsafeOperation       = errors.New("unsafe operation")
	ErrEmptyResultNotAllowed = errors.New("empty result not allowed")
)

// Validate reports whether spec may run against list. It never contacts
// the cluster and never changes list.
func Validate(list *entity.List, spec action.Spec) error {
	if list.Empty() {
		if spec.RequireMatch {
			return refuse(ErrEmptyResultNotAllowed, "%s: no %s left after filtering", spec.Name(), list.Kind().Plural())
		}
		return nil
	}

	if spec.Action.Destructive() && !spec.AllowWriteTarget {
		if names := writeTargets(list); len(names) > 0 {
			return refuse(ErrUnsafeOperation, "%s would touch write target(s) %s; set allow_write_target to override",
				spec.Name(), strings.Join(names, ", "))
		}
	}

	if spec.Action == action.Delete && list.Kind() == entity.KindSnapshot && !spec.AllowInProgress {
		if names := inProgress(list); len(names) > 0 {
			return refuse(ErrUnsafeOperation, "%s would delete running snapshot(s) %s; set allow_in_progress to override",
				spec.Name(), strings.Join(names, ", "))
		}
	}
	return nil
}

func writeTargets(list *entity.List) []string {
	var names []string
	for _, e := range list.Entities() {
		if e.IsWriteTarget {
			names = append(names, e.Name)
		}
	}
	return names
}

func inProgress(list *entity.List) []string {
	var names []string
	for _, e := range list.Entities() {
		if e.State == entity.StateInProgress {
			names = append(names, e.Name)
		}
	}
	return names
}

func refuse(cause error, format string, args ...any) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf(format, args...)).
		WithCause(cause)
}
