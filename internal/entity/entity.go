// Package entity holds the candidate indices and snapshots a curation run
// works on, and the list type that filters narrow.
package entity

import (
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindIndex    Kind = "index"
	KindSnapshot Kind = "snapshot"
)

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "index", "indices":
		return KindIndex, nil
	case "snapshot", "snapshots":
		return KindSnapshot, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

func (k Kind) Plural() string {
	if k == KindSnapshot {
		return "snapshots"
	}
	return "indices"
}

type State string

const (
	StateOpen       State = "OPEN"
	StateClosed     State = "CLOSED"
	StateInProgress State = "IN_PROGRESS"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
	StatePartial    State = "PARTIAL"
)

// ValidStates lists the states an entity of kind k can be in.
func ValidStates(k Kind) []State {
	if k == KindSnapshot {
		return []State{StateInProgress, StateCompleted, StateFailed, StatePartial}
	}
	return []State{StateOpen, StateClosed}
}

func ParseState(k Kind, s string) (State, error) {
	want := State(strings.ToUpper(strings.TrimSpace(s)))
	if k == KindSnapshot && want == "SUCCESS" {
		return StateCompleted, nil
	}
	if k == KindIndex && want == "CLOSE" {
		return StateClosed, nil
	}
	for _, st := range ValidStates(k) {
		if st == want {
			return st, nil
		}
	}
	return "", fmt.Errorf("state %q is not valid for %s", s, k.Plural())
}

// Entity is one index or snapshot with the attributes filters look at.
type Entity struct {
	Name string
	Kind Kind

	// CreationTime is zero when the cluster did not report it.
	CreationTime time.Time

	// StatsKnown is false for closed indices and snapshots, whose store
	// size and document count the cluster does not report.
	StatsKnown       bool
	SizeBytes        int64
	PrimarySizeBytes int64
	DocCount         int64

	State         State
	IsWriteTarget bool
	Aliases       []string

	// Routing holds index.routing.allocation settings keyed by
	// "<require|include|exclude>.<attribute>". Nil means the settings
	// were not fetched, which differs from an empty map.
	Routing map[string]string

	Repository string
	Indices    []string

	Tags map[string]string
}

func (e Entity) HasCreationTime() bool {
	return !e.CreationTime.IsZero()
}

func (e Entity) HasAlias(alias string) bool {
	for _, a := range e.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// Age is the time elapsed between the entity's creation and ref.
func (e Entity) Age(ref time.Time) (time.Duration, bool) {
	if !e.HasCreationTime() {
		return 0, false
	}
	return ref.Sub(e.CreationTime), true
}
