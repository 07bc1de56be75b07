package filter

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtiva/curator/internal/entity"
)

var refTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return refTime.AddDate(0, 0, -n)
}

func indexList(items ...entity.Entity) *entity.List {
	for i := range items {
		items[i].Kind = entity.KindIndex
	}
	return entity.New(entity.KindIndex, refTime, items)
}

func sampleIndices() *entity.List {
	return indexList(
		entity.Entity{Name: "logs-2024.06.01", CreationTime: daysAgo(14), StatsKnown: true, SizeBytes: 4e9, PrimarySizeBytes: 2e9, DocCount: 10, State: entity.StateOpen, Routing: map[string]string{"require.box_type": "warm"}, Aliases: []string{"logs"}},
		entity.Entity{Name: "logs-2024.06.10", CreationTime: daysAgo(5), StatsKnown: true, SizeBytes: 3e9, PrimarySizeBytes: 1.5e9, DocCount: 5, State: entity.StateOpen, Routing: map[string]string{}, Aliases: []string{"logs"}, IsWriteTarget: true},
		entity.Entity{Name: "logs-2024.05.20", CreationTime: daysAgo(26), State: entity.StateClosed},
		entity.Entity{Name: "metrics-2024.06.12", CreationTime: daysAgo(3), StatsKnown: true, SizeBytes: 1e9, PrimarySizeBytes: 5e8, DocCount: 0, State: entity.StateOpen, Routing: map[string]string{"require.box_type": "hot"}},
		entity.Entity{Name: ".kibana", StatsKnown: true, SizeBytes: 1e6, DocCount: 3, State: entity.StateOpen},
	)
}

func allSpecs() []Spec {
	return []Spec{
		ByAge{Source: SourceCreationDate, Direction: DirectionOlder, Unit: UnitDays, Threshold: 7},
		ByAge{Source: SourceName, Timestring: "%Y.%m.%d", Direction: DirectionYounger, Unit: UnitDays, Threshold: 20},
		ByPattern{Kind: PatternPrefix, Value: "logs-"},
		ByPattern{Kind: PatternSuffix, Value: ".01", Exclude: true},
		ByPattern{Kind: PatternRegex, Value: `^(logs|metrics)-`},
		ByPattern{Kind: PatternTimestring, Value: "%Y.%m.%d"},
		BySize{ThresholdBytes: 2e9, Comparator: GreaterThanOrEqual},
		BySpace{DiskSpaceGB: 5, Base: Decimal, Reverse: true},
		ByState{States: []entity.State{entity.StateOpen}},
		ByCount{Count: 10, SortBy: SortByName},
		ByCount{Count: 2, SortBy: SortByName, Exclude: true},
		ByAllocated{Key: "box_type", Value: "warm"},
		Explicit{Names: []string{"logs-2024.06.01", ".kibana"}},
		ByAlias{Aliases: []string{"logs"}},
		ByEmpty{Exclude: true},
	}
}

func TestApplyNeverIntroducesEntities(t *testing.T) {
	for _, spec := range allSpecs() {
		t.Run(Describe(spec), func(t *testing.T) {
			in := sampleIndices()
			out, err := Apply(in, spec)
			require.NoError(t, err)
			for _, n := range out.Names() {
				assert.True(t, in.Contains(n), "%s introduced by %s", n, Describe(spec))
			}
		})
	}
}

// rankRelative reports whether spec selects by position in the list it is
// given rather than by a property of each entity.
func rankRelative(spec Spec) bool {
	switch s := spec.(type) {
	case BySpace:
		return true
	case ByCount:
		return s.Exclude
	}
	return false
}

func TestApplyTwiceIsIdempotent(t *testing.T) {
	for _, spec := range allSpecs() {
		t.Run(Describe(spec), func(t *testing.T) {
			once, err := Apply(sampleIndices(), spec)
			require.NoError(t, err)
			twice, err := Apply(once, spec)
			require.NoError(t, err)
			if rankRelative(spec) {
				for _, n := range twice.Names() {
					assert.True(t, once.Contains(n), "%s reappeared on the second application", n)
				}
				return
			}
			if diff := cmp.Diff(once.Names(), twice.Names()); diff != "" {
				t.Errorf("second application changed the list (-once +twice):\n%s", diff)
			}
		})
	}
}

func TestRankRelativeFiltersNarrowAgainOnSecondApplication(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "logs-2024.06.01", StatsKnown: true, SizeBytes: 2e9},
		entity.Entity{Name: "logs-2024.06.02", StatsKnown: true, SizeBytes: 2e9},
		entity.Entity{Name: "logs-2024.06.03", StatsKnown: true, SizeBytes: 2e9},
		entity.Entity{Name: "logs-2024.06.04", StatsKnown: true, SizeBytes: 2e9},
	)

	count := ByCount{Count: 1, SortBy: SortByName, Reverse: true, Exclude: true}
	once, err := Apply(l, count)
	require.NoError(t, err)
	assert.Equal(t, []string{"logs-2024.06.01", "logs-2024.06.02", "logs-2024.06.03"}, once.Names())
	twice, err := Apply(once, count)
	require.NoError(t, err)
	assert.Equal(t, []string{"logs-2024.06.01", "logs-2024.06.02"}, twice.Names(), "exclude drops the newest of what remains")

	// Totals restart on the smaller list: 2 and 4 GB stay under the budget.
	space := BySpace{DiskSpaceGB: 5, Base: Decimal, Reverse: true}
	once, err = Apply(l, space)
	require.NoError(t, err)
	assert.Equal(t, []string{"logs-2024.06.01", "logs-2024.06.02"}, once.Names())
	twice, err = Apply(once, space)
	require.NoError(t, err)
	assert.Empty(t, twice.Names())

	// Keeping the first count entities is stable.
	keep := ByCount{Count: 2, SortBy: SortByName}
	once, err = Apply(l, keep)
	require.NoError(t, err)
	twice, err = Apply(once, keep)
	require.NoError(t, err)
	assert.Equal(t, once.Names(), twice.Names())
}

func TestByAgeOlder(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "ten-days", CreationTime: daysAgo(10)},
		entity.Entity{Name: "three-days", CreationTime: daysAgo(3)},
		entity.Entity{Name: "unknown"},
		entity.Entity{Name: "exactly-seven", CreationTime: daysAgo(7)},
	)

	out, err := Apply(l, ByAge{
		Source:        SourceCreationDate,
		Direction:     DirectionOlder,
		Unit:          UnitDays,
		Threshold:     7,
		ReferenceTime: refTime,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ten-days", "exactly-seven"}, out.Names())
	require.Len(t, out.Failures(), 1)
	assert.Equal(t, "unknown", out.Failures()[0].Name)
	assert.Equal(t, "age", out.Failures()[0].Step)
}

func TestByAgeYoungerFromName(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "logs-2024.06.14"},
		entity.Entity{Name: "logs-2024.05.01"},
		entity.Entity{Name: "logs-2024.13.01"},
		entity.Entity{Name: "no-date"},
	)

	out, err := Apply(l, ByAge{
		Source:     SourceName,
		Timestring: "%Y.%m.%d",
		Direction:  DirectionYounger,
		Unit:       UnitWeeks,
		Threshold:  1,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"logs-2024.06.14"}, out.Names())
	failed := make([]string, 0)
	for _, f := range out.Failures() {
		failed = append(failed, f.Name)
	}
	assert.ElementsMatch(t, []string{"logs-2024.13.01", "no-date"}, failed)
}

func TestByAgeExcludeKeepsUnresolvedOut(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "old", CreationTime: daysAgo(30)},
		entity.Entity{Name: "new", CreationTime: daysAgo(1)},
		entity.Entity{Name: "unknown"},
	)

	out, err := Apply(l, ByAge{Source: SourceCreationDate, Direction: DirectionOlder, Unit: UnitDays, Threshold: 7, Exclude: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, out.Names())
}

func TestByPatternTimestringRecordsFailures(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "logs-2024.06.01"},
		entity.Entity{Name: ".tasks"},
	)

	out, err := Apply(l, ByPattern{Kind: PatternTimestring, Value: "%Y.%m.%d"})
	require.NoError(t, err)
	assert.Equal(t, []string{"logs-2024.06.01"}, out.Names())
	require.Len(t, out.Failures(), 1)
	assert.Equal(t, ".tasks", out.Failures()[0].Name)
}

func TestByCountKeepsOldestTieBrokenByName(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "e", CreationTime: daysAgo(1)},
		entity.Entity{Name: "d", CreationTime: daysAgo(5)},
		entity.Entity{Name: "c", CreationTime: daysAgo(9)},
		entity.Entity{Name: "b", CreationTime: daysAgo(5)},
		entity.Entity{Name: "a", CreationTime: daysAgo(2)},
	)

	out, err := Apply(l, ByCount{Count: 3, SortBy: SortByAge, Source: SourceCreationDate})
	require.NoError(t, err)

	// c is oldest, b and d tie; the list keeps its original order.
	assert.Equal(t, []string{"d", "c", "b"}, out.Names())
}

func TestByCountTieBreakChoosesNameAscending(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "z", CreationTime: daysAgo(5)},
		entity.Entity{Name: "y", CreationTime: daysAgo(5)},
		entity.Entity{Name: "x", CreationTime: daysAgo(5)},
	)

	out, err := Apply(l, ByCount{Count: 2, SortBy: SortByAge, Source: SourceCreationDate})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, out.Names())

	rev, err := Apply(l, ByCount{Count: 2, SortBy: SortByAge, Source: SourceCreationDate, Reverse: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, rev.Names(), "reverse does not flip the name tie-break")
}

func TestByCountExcludeKeepsAllButNewest(t *testing.T) {
	var items []entity.Entity
	for i := 1; i <= 6; i++ {
		items = append(items, entity.Entity{Name: fmt.Sprintf("snap-2024.06.%02d", i)})
	}
	l := indexList(items...)

	out, err := Apply(l, ByCount{Count: 2, SortBy: SortByName, Reverse: true, Exclude: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"snap-2024.06.01", "snap-2024.06.02", "snap-2024.06.03", "snap-2024.06.04"}, out.Names())
}

func TestByCountLargerThanList(t *testing.T) {
	l := indexList(entity.Entity{Name: "a"}, entity.Entity{Name: "b"})
	out, err := Apply(l, ByCount{Count: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Names())
}

func TestBySizeUnitBases(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "decimal-gb", StatsKnown: true, SizeBytes: 1_000_000_000},
		entity.Entity{Name: "binary-gb", StatsKnown: true, SizeBytes: 1 << 30},
		entity.Entity{Name: "closed"},
	)

	out, err := Apply(l, BySize{ThresholdBytes: 1 << 30, Comparator: GreaterThanOrEqual})
	require.NoError(t, err)
	assert.Equal(t, []string{"binary-gb"}, out.Names())

	out, err = Apply(l, BySize{ThresholdBytes: 1 << 30, Comparator: GreaterThan})
	require.NoError(t, err)
	assert.Empty(t, out.Names())

	out, err = Apply(l, BySize{ThresholdBytes: 1_000_000_000, Comparator: LessThanOrEqual})
	require.NoError(t, err)
	assert.Equal(t, []string{"decimal-gb"}, out.Names())
	assert.Len(t, out.Failures(), 1)
}

func TestBySizePrimary(t *testing.T) {
	l := indexList(entity.Entity{Name: "a", StatsKnown: true, SizeBytes: 10, PrimarySizeBytes: 5})
	out, err := Apply(l, BySize{ThresholdBytes: 6, Comparator: LessThan, Behavior: SizePrimary})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, out.Names())
}

func TestBySpaceKeepsOverflowNewestFirst(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "logs-2024.06.01", StatsKnown: true, SizeBytes: 2e9},
		entity.Entity{Name: "logs-2024.06.02", StatsKnown: true, SizeBytes: 2e9},
		entity.Entity{Name: "logs-2024.06.03", StatsKnown: true, SizeBytes: 2e9},
		entity.Entity{Name: "logs-2024.06.04", StatsKnown: true, SizeBytes: 2e9},
		entity.Entity{Name: "logs-2024.06.05"},
	)

	out, err := Apply(l, BySpace{DiskSpaceGB: 5, Base: Decimal, Reverse: true})
	require.NoError(t, err)

	// Newest first: 2, 4, 6 (> 5), 8 (> 5).
	assert.Equal(t, []string{"logs-2024.06.01", "logs-2024.06.02"}, out.Names())
	require.Len(t, out.Failures(), 1)
	assert.Equal(t, "logs-2024.06.05", out.Failures()[0].Name)
}

func TestBySpaceBinaryBase(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "a", StatsKnown: true, SizeBytes: 1e9},
		entity.Entity{Name: "b", StatsKnown: true, SizeBytes: 1e9},
	)

	// 2e9 bytes stay under 2 binary GB.
	out, err := Apply(l, BySpace{DiskSpaceGB: 2, Base: Binary})
	require.NoError(t, err)
	assert.Empty(t, out.Names())

	out, err = Apply(l, BySpace{DiskSpaceGB: 1.5, Base: Decimal})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, out.Names())
}

func TestBySpaceUseAge(t *testing.T) {
	l := indexList(
		entity.Entity{Name: "young", CreationTime: daysAgo(1), StatsKnown: true, SizeBytes: 3e9},
		entity.Entity{Name: "old", CreationTime: daysAgo(10), StatsKnown: true, SizeBytes: 3e9},
		entity.Entity{Name: "undated", StatsKnown: true, SizeBytes: 3e9},
	)

	out, err := Apply(l, BySpace{DiskSpaceGB: 4, Base: Decimal, UseAge: true, Source: SourceCreationDate, Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, out.Names())
	assert.Len(t, out.Failures(), 1)
}

func TestByAllocatedMissingRouting(t *testing.T) {
	out, err := Apply(sampleIndices(), ByAllocated{Key: "box_type", Value: "warm"})
	require.NoError(t, err)
	assert.Equal(t, []string{"logs-2024.06.01"}, out.Names())

	var failed []string
	for _, f := range out.Failures() {
		failed = append(failed, f.Name)
	}
	assert.ElementsMatch(t, []string{"logs-2024.05.20", ".kibana"}, failed)
}

func TestByStateAndExplicitAndAlias(t *testing.T) {
	closed, err := Apply(sampleIndices(), ByState{States: []entity.State{entity.StateClosed}})
	require.NoError(t, err)
	assert.Equal(t, []string{"logs-2024.05.20"}, closed.Names())

	explicit, err := Apply(sampleIndices(), Explicit{Names: []string{".kibana", "absent"}, Exclude: true})
	require.NoError(t, err)
	assert.NotContains(t, explicit.Names(), ".kibana")
	assert.Equal(t, 4, explicit.Len())

	aliased, err := Apply(sampleIndices(), ByAlias{Aliases: []string{"logs"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"logs-2024.06.01", "logs-2024.06.10"}, aliased.Names())

	empty, err := Apply(sampleIndices(), ByEmpty{})
	require.NoError(t, err)
	assert.Equal(t, []string{"metrics-2024.06.12"}, empty.Names())
}

func TestEmptyResultIsNotAnError(t *testing.T) {
	out, err := Apply(sampleIndices(), ByPattern{Kind: PatternPrefix, Value: "nothing-"})
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestValidateRejectsMalformedSpecs(t *testing.T) {
	tests := []struct {
		name string
		kind entity.Kind
		spec Spec
	}{
		{"age without direction", entity.KindIndex, ByAge{Source: SourceCreationDate, Unit: UnitDays, Threshold: 1}},
		{"age unknown unit", entity.KindIndex, ByAge{Source: SourceCreationDate, Direction: DirectionOlder, Unit: "fortnights"}},
		{"age name without timestring", entity.KindIndex, ByAge{Source: SourceName, Direction: DirectionOlder, Unit: UnitDays}},
		{"age bad source", entity.KindIndex, ByAge{Source: "field_stats", Direction: DirectionOlder, Unit: UnitDays}},
		{"pattern empty value", entity.KindIndex, ByPattern{Kind: PatternPrefix}},
		{"pattern bad regex", entity.KindIndex, ByPattern{Kind: PatternRegex, Value: "("}},
		{"pattern timestring exclude", entity.KindIndex, ByPattern{Kind: PatternTimestring, Value: "%Y", Exclude: true}},
		{"pattern unknown kind", entity.KindIndex, ByPattern{Kind: "glob", Value: "*"}},
		{"size bad comparator", entity.KindIndex, BySize{ThresholdBytes: 1, Comparator: "=="}},
		{"size on snapshots", entity.KindSnapshot, BySize{ThresholdBytes: 1, Comparator: GreaterThan}},
		{"space zero", entity.KindIndex, BySpace{}},
		{"state empty", entity.KindIndex, ByState{}},
		{"state wrong kind", entity.KindIndex, ByState{States: []entity.State{entity.StateCompleted}}},
		{"count zero", entity.KindIndex, ByCount{}},
		{"count bad sort", entity.KindIndex, ByCount{Count: 1, SortBy: "size"}},
		{"allocated missing key", entity.KindIndex, ByAllocated{Value: "warm"}},
		{"allocated on snapshots", entity.KindSnapshot, ByAllocated{Key: "box_type", Value: "warm"}},
		{"explicit empty", entity.KindIndex, Explicit{}},
		{"alias empty", entity.KindIndex, ByAlias{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate(tt.kind)
			assert.ErrorIs(t, err, ErrInvalidFilterSpec)
		})
	}
}

func TestChainIsSequential(t *testing.T) {
	chain := NewChain([]Spec{
		ByPattern{Kind: PatternPrefix, Value: "logs-"},
		ByAge{Source: SourceName, Timestring: "%Y.%m.%d", Direction: DirectionOlder, Unit: UnitDays, Threshold: 7},
		ByCount{Count: 1, SortBy: SortByAge, Source: SourceName, Timestring: "%Y.%m.%d"},
	}, zerolog.Nop())

	out, err := chain.Apply(sampleIndices())
	require.NoError(t, err)

	// The count only sees the two old logs indices and keeps the oldest.
	assert.Equal(t, []string{"logs-2024.05.20"}, out.Names())
}

func TestChainValidatesEagerly(t *testing.T) {
	chain := NewChain([]Spec{
		ByPattern{Kind: PatternPrefix, Value: "logs-"},
		ByCount{Count: 0},
	}, zerolog.Nop())

	in := sampleIndices()
	out, err := chain.Apply(in)
	require.ErrorIs(t, err, ErrInvalidFilterSpec)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "step 2")
}

func TestChainRejectsNilStep(t *testing.T) {
	chain := NewChain([]Spec{nil}, zerolog.Nop())
	_, err := chain.Apply(sampleIndices())
	assert.ErrorIs(t, err, ErrInvalidFilterSpec)
}
