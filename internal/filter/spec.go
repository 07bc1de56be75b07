// Package filter narrows an entity list through an ordered chain of
// filter specifications.
//
// Each specification is one variant of a closed set (ByAge, ByPattern,
// BySize, BySpace, ByState, ByCount, ByAllocated, Explicit, ByAlias,
// ByEmpty). Apply dispatches on the variant; nothing outside this package
// can add one.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/timestring"
)

type Type string

const (
	TypeAge       Type = "age"
	TypePattern   Type = "pattern"
	TypeSize      Type = "size"
	TypeSpace     Type = "space"
	TypeState     Type = "state"
	TypeCount     Type = "count"
	TypeAllocated Type = "allocated"
	TypeExplicit  Type = "explicit"
	TypeAlias     Type = "alias"
	TypeEmpty     Type = "empty"
)

// Spec is one filter step.
type Spec interface {
	Type() Type
	// Validate checks the parameters against the kind of list the
	// filter will run on.
	Validate(kind entity.Kind) error
	isSpec()
}

type Direction string

const (
	DirectionOlder   Direction = "older"
	DirectionYounger Direction = "younger"
)

// Source says where an entity's creation time comes from.
type Source string

const (
	SourceName         Source = "name"
	SourceCreationDate Source = "creation_date"
)

type Unit string

const (
	UnitSeconds Unit = "seconds"
	UnitMinutes Unit = "minutes"
	UnitHours   Unit = "hours"
	UnitDays    Unit = "days"
	UnitWeeks   Unit = "weeks"
	UnitMonths  Unit = "months"
	UnitYears   Unit = "years"
)

// Duration of one unit. Months are 30 days and years 365 days.
func (u Unit) Duration() (time.Duration, bool) {
	switch u {
	case UnitSeconds:
		return time.Second, true
	case UnitMinutes:
		return time.Minute, true
	case UnitHours:
		return time.Hour, true
	case UnitDays:
		return 24 * time.Hour, true
	case UnitWeeks:
		return 7 * 24 * time.Hour, true
	case UnitMonths:
		return 30 * 24 * time.Hour, true
	case UnitYears:
		return 365 * 24 * time.Hour, true
	}
	return 0, false
}

type Comparator string

const (
	GreaterThan        Comparator = ">"
	GreaterThanOrEqual Comparator = ">="
	LessThan           Comparator = "<"
	LessThanOrEqual    Comparator = "<="
)

func ParseComparator(s string) (Comparator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ">", "gt", "greater_than":
		return GreaterThan, nil
	case ">=", "gte", "greater_than_or_equal":
		return GreaterThanOrEqual, nil
	case "<", "lt", "less_than":
		return LessThan, nil
	case "<=", "lte", "less_than_or_equal":
		return LessThanOrEqual, nil
	}
	return "", fmt.Errorf("unknown comparator %q", s)
}

func (c Comparator) valid() bool {
	switch c {
	case GreaterThan, GreaterThanOrEqual, LessThan, LessThanOrEqual:
		return true
	}
	return false
}

func (c Comparator) Compare(a, b float64) bool {
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

// UnitBase selects how many bytes a gigabyte holds.
type UnitBase string

const (
	Decimal UnitBase = "decimal"
	Binary  UnitBase = "binary"
)

func (b UnitBase) BytesPerGB() float64 {
	if b == Decimal {
		return 1e9
	}
	return 1 << 30
}

type ByAge struct {
	Source     Source
	Timestring string
	Direction  Direction
	Unit       Unit
	Threshold  int
	// ReferenceTime defaults to the list's build time when zero.
	ReferenceTime time.Time
	Exclude       bool
}

func (ByAge) Type() Type { return TypeAge }
func (ByAge) isSpec()    {}

func (s ByAge) Validate(entity.Kind) error {
	if err := validateSource(TypeAge, s.Source, s.Timestring); err != nil {
		return err
	}
	if s.Direction != DirectionOlder && s.Direction != DirectionYounger {
		return invalid(TypeAge, "direction must be older or younger, got %q", s.Direction)
	}
	if _, ok := s.Unit.Duration(); !ok {
		return invalid(TypeAge, "unknown unit %q", s.Unit)
	}
	return nil
}

type PatternKind string

const (
	PatternPrefix     PatternKind = "prefix"
	PatternSuffix     PatternKind = "suffix"
	PatternRegex      PatternKind = "regex"
	PatternTimestring PatternKind = "timestring"
)

type ByPattern struct {
	Kind    PatternKind
	Value   string
	Exclude bool
}

func (ByPattern) Type() Type { return TypePattern }
func (ByPattern) isSpec()    {}

func (s ByPattern) Validate(entity.Kind) error {
	if s.Value == "" {
		return invalid(TypePattern, "value is required")
	}
	switch s.Kind {
	case PatternPrefix, PatternSuffix:
	case PatternRegex:
		if _, err := regexp.Compile(s.Value); err != nil {
			return invalid(TypePattern, "bad regex %q: %v", s.Value, err)
		}
	case PatternTimestring:
		if _, err := timestring.Compile(s.Value); err != nil {
			return invalid(TypePattern, "%v", err)
		}
		if s.Exclude {
			return invalid(TypePattern, "exclude is not supported with kind timestring")
		}
	default:
		return invalid(TypePattern, "unknown kind %q", s.Kind)
	}
	return nil
}

type SizeBehavior string

const (
	SizeTotal   SizeBehavior = "total"
	SizePrimary SizeBehavior = "primary"
)

type BySize struct {
	ThresholdBytes int64
	Comparator     Comparator
	Behavior       SizeBehavior
	Exclude        bool
}

func (BySize) Type() Type { return TypeSize }
func (BySize) isSpec()    {}

func (s BySize) Validate(kind entity.Kind) error {
	if err := indicesOnly(TypeSize, kind); err != nil {
		return err
	}
	if s.ThresholdBytes < 0 {
		return invalid(TypeSize, "threshold must not be negative")
	}
	if !s.Comparator.valid() {
		return invalid(TypeSize, "unknown comparator %q", s.Comparator)
	}
	switch s.Behavior {
	case "", SizeTotal, SizePrimary:
	default:
		return invalid(TypeSize, "size behavior must be total or primary, got %q", s.Behavior)
	}
	return nil
}

// BySpace keeps the entities that push the cumulative store size past a
// disk budget, walking the list newest first when Reverse is set. The
// running total covers only the list it is given.
type BySpace struct {
	DiskSpaceGB float64
	// Base defaults to binary.
	Base       UnitBase
	UseAge     bool
	Source     Source
	Timestring string
	Reverse    bool
	// ThresholdBehavior compares the running total to the budget;
	// defaults to GreaterThan.
	ThresholdBehavior Comparator
	Exclude           bool
}

func (BySpace) Type() Type { return TypeSpace }
func (BySpace) isSpec()    {}

func (s BySpace) Validate(kind entity.Kind) error {
	if err := indicesOnly(TypeSpace, kind); err != nil {
		return err
	}
	if s.DiskSpaceGB <= 0 {
		return invalid(TypeSpace, "disk_space must be positive")
	}
	switch s.Base {
	case "", Decimal, Binary:
	default:
		return invalid(TypeSpace, "unit base must be decimal or binary, got %q", s.Base)
	}
	if s.ThresholdBehavior != "" && !s.ThresholdBehavior.valid() {
		return invalid(TypeSpace, "unknown threshold behavior %q", s.ThresholdBehavior)
	}
	if s.UseAge {
		return validateSource(TypeSpace, s.Source, s.Timestring)
	}
	return nil
}

type ByState struct {
	States  []entity.State
	Exclude bool
}

func (ByState) Type() Type { return TypeState }
func (ByState) isSpec()    {}

func (s ByState) Validate(kind entity.Kind) error {
	if len(s.States) == 0 {
		return invalid(TypeState, "at least one state is required")
	}
	for _, st := range s.States {
		if _, err := entity.ParseState(kind, string(st)); err != nil {
			return invalid(TypeState, "%v", err)
		}
	}
	return nil
}

type SortKey string

const (
	SortByName SortKey = "name"
	SortByAge  SortKey = "age"
)

// ByCount sorts the list and selects its first Count entities: oldest
// first when sorting by age, ascending when sorting by name. Reverse flips
// the sort key; ties always break on name ascending. Selected entities are
// kept, or removed when Exclude is set. With Exclude each application
// removes Count more, so applying it twice narrows the list twice.
type ByCount struct {
	Count      int
	SortBy     SortKey
	Reverse    bool
	Source     Source
	Timestring string
	Exclude    bool
}

func (ByCount) Type() Type { return TypeCount }
func (ByCount) isSpec()    {}

func (s ByCount) Validate(entity.Kind) error {
	if s.Count < 1 {
		return invalid(TypeCount, "count must be at least 1, got %d", s.Count)
	}
	switch s.SortBy {
	case "", SortByName:
	case SortByAge:
		return validateSource(TypeCount, s.Source, s.Timestring)
	default:
		return invalid(TypeCount, "sort_by must be name or age, got %q", s.SortBy)
	}
	return nil
}

type AllocationType string

const (
	AllocationRequire AllocationType = "require"
	AllocationInclude AllocationType = "include"
	AllocationExclude AllocationType = "exclude"
)

type ByAllocated struct {
	Key            string
	Value          string
	AllocationType AllocationType
	Exclude        bool
}

func (ByAllocated) Type() Type { return TypeAllocated }
func (ByAllocated) isSpec()    {}

func (s ByAllocated) Validate(kind entity.Kind) error {
	if err := indicesOnly(TypeAllocated, kind); err != nil {
		return err
	}
	if s.Key == "" || s.Value == "" {
		return invalid(TypeAllocated, "key and value are required")
	}
	switch s.AllocationType {
	case "", AllocationRequire, AllocationInclude, AllocationExclude:
	default:
		return invalid(TypeAllocated, "allocation_type must be require, include or exclude, got %q", s.AllocationType)
	}
	return nil
}

func (s ByAllocated) routingKey() string {
	t := s.AllocationType
	if t == "" {
		t = AllocationRequire
	}
	return string(t) + "." + s.Key
}

type Explicit struct {
	Names   []string
	Exclude bool
}

func (Explicit) Type() Type { return TypeExplicit }
func (Explicit) isSpec()    {}

func (s Explicit) Validate(entity.Kind) error {
	if len(s.Names) == 0 {
		return invalid(TypeExplicit, "names must not be empty")
	}
	return nil
}

type ByAlias struct {
	Aliases []string
	Exclude bool
}

func (ByAlias) Type() Type { return TypeAlias }
func (ByAlias) isSpec()    {}

func (s ByAlias) Validate(kind entity.Kind) error {
	if err := indicesOnly(TypeAlias, kind); err != nil {
		return err
	}
	if len(s.Aliases) == 0 {
		return invalid(TypeAlias, "aliases must not be empty")
	}
	return nil
}

// ByEmpty matches indices holding no documents.
type ByEmpty struct {
	Exclude bool
}

func (ByEmpty) Type() Type { return TypeEmpty }
func (ByEmpty) isSpec()    {}

func (ByEmpty) Validate(kind entity.Kind) error {
	return indicesOnly(TypeEmpty, kind)
}

func validateSource(t Type, src Source, ts string) error {
	switch src {
	case SourceCreationDate:
		return nil
	case SourceName:
		if ts == "" {
			return invalid(t, "timestring is required with source name")
		}
		if _, err := timestring.Compile(ts); err != nil {
			return invalid(t, "%v", err)
		}
		return nil
	}
	return invalid(t, "source must be name or creation_date, got %q", src)
}

func indicesOnly(t Type, kind entity.Kind) error {
	if kind != entity.KindIndex {
		return invalid(t, "only applies to indices, not %s", kind.Plural())
	}
	return nil
}
