package filter

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

var ErrInvalidFilterSpec = errors.New("invalid filter specification")

func invalid(t Type, format string, args ...any) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("%s filter: %s", t, fmt.Sprintf(format, args...))).
		WithCause(ErrInvalidFilterSpec)
}
