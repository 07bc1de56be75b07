package entity

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Lister returns the cluster's current entities of one kind.
type Lister interface {
	ListEntities(ctx context.Context, kind Kind) ([]Entity, error)
}

// Inspector fetches a single entity by name.
type Inspector interface {
	GetEntity(ctx context.Context, kind Kind, name string) (Entity, error)
}

// Failure records an entity a filter could not evaluate, such as an index
// whose name carries no parseable date.
type Failure struct {
	Name   string `json:"name"`
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// List is an insertion-ordered set of entities. Lists are never modified
// in place: narrowing returns a new list that shares no slices with the
// old one.
type List struct {
	kind     Kind
	asOf     time.Time
	items    []Entity
	index    map[string]int
	failures []Failure
}

// New builds a list from items, keeping the first entity seen for each name.
func New(kind Kind, asOf time.Time, items []Entity) *List {
	l := &List{
		kind:  kind,
		asOf:  asOf,
		index: make(map[string]int, len(items)),
	}
	for _, e := range items {
		if e.Name == "" {
			continue
		}
		if _, dup := l.index[e.Name]; dup {
			continue
		}
		if e.Kind == "" {
			e.Kind = kind
		}
		l.index[e.Name] = len(l.items)
		l.items = append(l.items, e)
	}
	return l
}

// Build populates a list from the cluster. A listing error is reported as
// ErrClusterUnavailable unless the request itself was invalid. An empty cluster returns the empty list together
// with ErrEmptyClusterState so the caller can decide how serious that is.
func Build(ctx context.Context, src Lister, kind Kind, asOf time.Time) (*List, error) {
	items, err := src.ListEntities(ctx, kind)
	if err != nil {
		if errbuilder.CodeOf(err) == errbuilder.CodeInvalidArgument {
			return nil, err
		}
		return nil, ClusterUnavailable("listing "+kind.Plural(), err)
	}
	l := New(kind, asOf, items)
	if l.Len() == 0 {
		return l, emptyClusterState(kind)
	}
	return l, nil
}

func (l *List) Kind() Kind {
	return l.kind
}

// AsOf is the instant the list was built.
func (l *List) AsOf() time.Time {
	return l.asOf
}

func (l *List) Len() int {
	return len(l.items)
}

func (l *List) Empty() bool {
	return len(l.items) == 0
}

// Entities returns the entities in order of first appearance.
func (l *List) Entities() []Entity {
	out := make([]Entity, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List) Names() []string {
	names := make([]string, len(l.items))
	for i, e := range l.items {
		names[i] = e.Name
	}
	return names
}

func (l *List) Get(name string) (Entity, bool) {
	i, ok := l.index[name]
	if !ok {
		return Entity{}, false
	}
	return l.items[i], true
}

func (l *List) Contains(name string) bool {
	_, ok := l.index[name]
	return ok
}

// Failures returns the resolution failures recorded by every narrowing
// step that produced this list.
func (l *List) Failures() []Failure {
	out := make([]Failure, len(l.failures))
	copy(out, l.failures)
	return out
}

// Narrow keeps the entities whose names are in keep and records the names
// in unresolved as failures of step. Names unknown to the list are ignored,
// so the result is always a subset of l.
func (l *List) Narrow(step string, keep map[string]bool, unresolved map[string]string) *List {
	next := &List{
		kind:     l.kind,
		asOf:     l.asOf,
		index:    make(map[string]int, len(keep)),
		failures: make([]Failure, len(l.failures), len(l.failures)+len(unresolved)),
	}
	copy(next.failures, l.failures)

	for _, e := range l.items {
		if reason, ok := unresolved[e.Name]; ok {
			next.failures = append(next.failures, Failure{Name: e.Name, Step: step, Reason: reason})
			continue
		}
		if !keep[e.Name] {
			continue
		}
		next.index[e.Name] = len(next.items)
		next.items = append(next.items, e)
	}
	return next
}

// Filter narrows the list entity by entity. A non-nil error from fn marks
// the entity unresolved: it is dropped and recorded as a failure of step.
func (l *List) Filter(step string, fn func(Entity) (bool, error)) *List {
	keep := make(map[string]bool, len(l.items))
	unresolved := make(map[string]string)
	for _, e := range l.items {
		ok, err := fn(e)
		if err != nil {
			unresolved[e.Name] = err.Error()
			continue
		}
		if ok {
			keep[e.Name] = true
		}
	}
	return l.Narrow(step, keep, unresolved)
}
