package filter

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/timestring"
)

var (
	errNoCreationTime = errors.New("creation time unknown")
	errNoStats        = errors.New("size statistics unavailable")
	errNoRouting      = errors.New("allocation settings unavailable")
)

// Apply validates spec and narrows list with it. The result is always a
// subset of list; an empty result is not an error.
func Apply(list *entity.List, spec Spec) (*entity.List, error) {
	if spec == nil {
		return nil, invalid("", "nil filter")
	}
	if err := spec.Validate(list.Kind()); err != nil {
		return nil, err
	}
	return dispatch(list, spec)
}

func dispatch(list *entity.List, spec Spec) (*entity.List, error) {
	switch s := spec.(type) {
	case ByAge:
		return applyAge(list, s)
	case ByPattern:
		return applyPattern(list, s)
	case BySize:
		return applySize(list, s), nil
	case BySpace:
		return applySpace(list, s)
	case ByState:
		return applyState(list, s), nil
	case ByCount:
		return applyCount(list, s)
	case ByAllocated:
		return applyAllocated(list, s), nil
	case Explicit:
		return applyExplicit(list, s), nil
	case ByAlias:
		return applyAlias(list, s), nil
	case ByEmpty:
		return applyEmpty(list, s), nil
	}
	return nil, invalid(spec.Type(), "unsupported filter variant %T", spec)
}

type resolver func(entity.Entity) (time.Time, error)

func creationResolver(src Source, ts string) (resolver, error) {
	if src == SourceCreationDate {
		return func(e entity.Entity) (time.Time, error) {
			if !e.HasCreationTime() {
				return time.Time{}, errNoCreationTime
			}
			return e.CreationTime, nil
		}, nil
	}
	tmpl, err := timestring.Compile(ts)
	if err != nil {
		return nil, err
	}
	return func(e entity.Entity) (time.Time, error) {
		return tmpl.Parse(e.Name)
	}, nil
}

func applyAge(list *entity.List, s ByAge) (*entity.List, error) {
	resolve, err := creationResolver(s.Source, s.Timestring)
	if err != nil {
		return nil, invalid(TypeAge, "%v", err)
	}
	ref := s.ReferenceTime
	if ref.IsZero() {
		ref = list.AsOf()
	}
	unit, _ := s.Unit.Duration()
	threshold := time.Duration(s.Threshold) * unit

	return list.Filter(string(TypeAge), func(e entity.Entity) (bool, error) {
		created, err := resolve(e)
		if err != nil {
			return false, err
		}
		age := ref.Sub(created)
		match := age >= threshold
		if s.Direction == DirectionYounger {
			match = age < threshold
		}
		return match != s.Exclude, nil
	}), nil
}

func applyPattern(list *entity.List, s ByPattern) (*entity.List, error) {
	var match func(string) (bool, error)
	switch s.Kind {
	case PatternPrefix:
		match = func(n string) (bool, error) { return strings.HasPrefix(n, s.Value), nil }
	case PatternSuffix:
		match = func(n string) (bool, error) { return strings.HasSuffix(n, s.Value), nil }
	case PatternRegex:
		re, err := regexp.Compile(s.Value)
		if err != nil {
			return nil, invalid(TypePattern, "%v", err)
		}
		match = func(n string) (bool, error) { return re.MatchString(n), nil }
	case PatternTimestring:
		tmpl, err := timestring.Compile(s.Value)
		if err != nil {
			return nil, invalid(TypePattern, "%v", err)
		}
		match = func(n string) (bool, error) {
			if _, err := tmpl.Parse(n); err != nil {
				return false, err
			}
			return true, nil
		}
	}

	return list.Filter(string(TypePattern), func(e entity.Entity) (bool, error) {
		ok, err := match(e.Name)
		if err != nil {
			return false, err
		}
		return ok != s.Exclude, nil
	}), nil
}

func compareInt(c Comparator, a, b int64) bool {
	switch c {
	case GreaterThan:
		return a > b
	case GreaterThanOrEqual:
		return a >= b
	case LessThan:
		return a < b
	case LessThanOrEqual:
		return a <= b
	}
	return false
}

func applySize(list *entity.List, s BySize) *entity.List {
	return list.Filter(string(TypeSize), func(e entity.Entity) (bool, error) {
		if !e.StatsKnown {
			return false, errNoStats
		}
		size := e.SizeBytes
		if s.Behavior == SizePrimary {
			size = e.PrimarySizeBytes
		}
		return compareInt(s.Comparator, size, s.ThresholdBytes) != s.Exclude, nil
	})
}

type ranked struct {
	e       entity.Entity
	created time.Time
}

// sortRanked orders by creation time or name, ascending unless reverse,
// breaking ties on name ascending.
func sortRanked(items []ranked, byAge, reverse bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var cmp int
		if byAge {
			cmp = a.created.Compare(b.created)
		} else {
			cmp = strings.Compare(a.e.Name, b.e.Name)
		}
		if reverse {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
		return a.e.Name < b.e.Name
	})
}

// rank resolves creation times when byAge is set; entities that cannot be
// resolved are returned in unresolved and left out of the ranking.
func rank(list *entity.List, byAge bool, src Source, ts string, need func(entity.Entity) error) ([]ranked, map[string]string, error) {
	var resolve resolver
	if byAge {
		r, err := creationResolver(src, ts)
		if err != nil {
			return nil, nil, err
		}
		resolve = r
	}

	unresolved := make(map[string]string)
	var items []ranked
	for _, e := range list.Entities() {
		if need != nil {
			if err := need(e); err != nil {
				unresolved[e.Name] = err.Error()
				continue
			}
		}
		r := ranked{e: e}
		if resolve != nil {
			created, err := resolve(e)
			if err != nil {
				unresolved[e.Name] = err.Error()
				continue
			}
			r.created = created
		}
		items = append(items, r)
	}
	return items, unresolved, nil
}

func applySpace(list *entity.List, s BySpace) (*entity.List, error) {
	items, unresolved, err := rank(list, s.UseAge, s.Source, s.Timestring, func(e entity.Entity) error {
		if !e.StatsKnown {
			return errNoStats
		}
		return nil
	})
	if err != nil {
		return nil, invalid(TypeSpace, "%v", err)
	}
	sortRanked(items, s.UseAge, s.Reverse)

	limit := s.DiskSpaceGB * s.Base.BytesPerGB()
	cmp := s.ThresholdBehavior
	if cmp == "" {
		cmp = GreaterThan
	}

	keep := make(map[string]bool, len(items))
	var total float64
	for _, r := range items {
		total += float64(r.e.SizeBytes)
		if cmp.Compare(total, limit) != s.Exclude {
			keep[r.e.Name] = true
		}
	}
	return list.Narrow(string(TypeSpace), keep, unresolved), nil
}

func applyState(list *entity.List, s ByState) *entity.List {
	allowed := make(map[entity.State]bool, len(s.States))
	for _, st := range s.States {
		parsed, _ := entity.ParseState(list.Kind(), string(st))
		allowed[parsed] = true
	}
	return list.Filter(string(TypeState), func(e entity.Entity) (bool, error) {
		return allowed[e.State] != s.Exclude, nil
	})
}

func applyCount(list *entity.List, s ByCount) (*entity.List, error) {
	byAge := s.SortBy == SortByAge
	items, unresolved, err := rank(list, byAge, s.Source, s.Timestring, nil)
	if err != nil {
		return nil, invalid(TypeCount, "%v", err)
	}
	sortRanked(items, byAge, s.Reverse)

	keep := make(map[string]bool, len(items))
	for i, r := range items {
		selected := i < s.Count
		if selected != s.Exclude {
			keep[r.e.Name] = true
		}
	}
	return list.Narrow(string(TypeCount), keep, unresolved), nil
}

func applyAllocated(list *entity.List, s ByAllocated) *entity.List {
	key := s.routingKey()
	return list.Filter(string(TypeAllocated), func(e entity.Entity) (bool, error) {
		if e.Routing == nil {
			return false, errNoRouting
		}
		return (e.Routing[key] == s.Value) != s.Exclude, nil
	})
}

func applyExplicit(list *entity.List, s Explicit) *entity.List {
	names := make(map[string]bool, len(s.Names))
	for _, n := range s.Names {
		names[n] = true
	}
	return list.Filter(string(TypeExplicit), func(e entity.Entity) (bool, error) {
		return names[e.Name] != s.Exclude, nil
	})
}

func applyAlias(list *entity.List, s ByAlias) *entity.List {
	return list.Filter(string(TypeAlias), func(e entity.Entity) (bool, error) {
		match := false
		for _, a := range s.Aliases {
			if e.HasAlias(a) {
				match = true
				break
			}
		}
		return match != s.Exclude, nil
	})
}

func applyEmpty(list *entity.List, s ByEmpty) *entity.List {
	return list.Filter(string(TypeEmpty), func(e entity.Entity) (bool, error) {
		if !e.StatsKnown {
			return false, errNoStats
		}
		return (e.DocCount == 0) != s.Exclude, nil
	})
}

// Describe renders a spec as a short human readable string for logs and
// reports.
func Describe(spec Spec) string {
	switch s := spec.(type) {
	case ByAge:
		src := string(s.Source)
		if s.Source == SourceName {
			src = fmt.Sprintf("name %q", s.Timestring)
		}
		return fmt.Sprintf("age %s than %d %s (%s)", s.Direction, s.Threshold, s.Unit, src)
	case ByPattern:
		return fmt.Sprintf("pattern %s %q", s.Kind, s.Value)
	case BySize:
		return fmt.Sprintf("size %s %d bytes", s.Comparator, s.ThresholdBytes)
	case BySpace:
		return fmt.Sprintf("space %.2f GB", s.DiskSpaceGB)
	case ByState:
		return fmt.Sprintf("state in %v", s.States)
	case ByCount:
		return fmt.Sprintf("count %d by %s", s.Count, s.SortBy)
	case ByAllocated:
		return fmt.Sprintf("allocated %s=%s", s.routingKey(), s.Value)
	case Explicit:
		return fmt.Sprintf("explicit %d names", len(s.Names))
	case ByAlias:
		return fmt.Sprintf("alias in %v", s.Aliases)
	case ByEmpty:
		return "empty"
	}
	return string(spec.Type())
}
