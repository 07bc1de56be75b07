package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/filter"
)

// Action is one numbered entry of an action file, already validated.
type Action struct {
	ID      int
	Spec    action.Spec
	Filters []filter.Spec
}

type actionFile struct {
	Actions map[int]rawAction `yaml:"actions"`
}

type rawAction struct {
	Action      string      `yaml:"action"`
	Description string      `yaml:"description"`
	Options     rawOptions  `yaml:"options"`
	Filters     []rawFilter `yaml:"filters"`
}

type rawConditions struct {
	MaxAge  string `yaml:"max_age"`
	MaxDocs int64  `yaml:"max_docs"`
	MaxSize string `yaml:"max_size"`
}

type rawOptions struct {
	IgnoreEmptyList     *bool `yaml:"ignore_empty_list"`
	ContinueIfException bool  `yaml:"continue_if_exception"`
	DisableAction       bool  `yaml:"disable_action"`
	TimeoutOverride     *int  `yaml:"timeout_override"`
	AllowWriteTarget    bool  `yaml:"allow_write_target"`
	AllowInProgress     bool  `yaml:"allow_in_progress"`

	Repository string `yaml:"repository"`
	Name       string `yaml:"name"`

	DeleteAliases  bool    `yaml:"delete_aliases"`
	MaxNumSegments int     `yaml:"max_num_segments"`
	Delay          float64 `yaml:"delay"`

	Key            string `yaml:"key"`
	Value          string `yaml:"value"`
	AllocationType string `yaml:"allocation_type"`

	Count *int `yaml:"count"`

	IgnoreUnavailable  bool  `yaml:"ignore_unavailable"`
	IncludeGlobalState *bool `yaml:"include_global_state"`
	Partial            bool  `yaml:"partial"`
	WaitForCompletion  *bool `yaml:"wait_for_completion"`

	Indices           []string `yaml:"indices"`
	RenamePattern     string   `yaml:"rename_pattern"`
	RenameReplacement string   `yaml:"rename_replacement"`

	ShrinkNode     string  `yaml:"shrink_node"`
	NumberOfShards int     `yaml:"number_of_shards"`
	ShrinkPrefix   string  `yaml:"shrink_prefix"`
	ShrinkSuffix   *string `yaml:"shrink_suffix"`
	DeleteAfter    *bool   `yaml:"delete_after"`

	Conditions rawConditions `yaml:"conditions"`

	Dest       string `yaml:"dest"`
	DestPrefix string `yaml:"dest_prefix"`
	DestSuffix string `yaml:"dest_suffix"`
}

// rawFilter holds every key any filter type accepts; Curator action files
// spell filters as flat maps keyed by filtertype.
type rawFilter struct {
	FilterType string `yaml:"filtertype"`
	Exclude    *bool  `yaml:"exclude"`

	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`

	Source     string `yaml:"source"`
	Direction  string `yaml:"direction"`
	Timestring string `yaml:"timestring"`
	Unit       string `yaml:"unit"`
	UnitCount  *int   `yaml:"unit_count"`
	Epoch      *int64 `yaml:"epoch"`

	SizeThreshold     string  `yaml:"size_threshold"`
	ThresholdBehavior string  `yaml:"threshold_behavior"`
	SizeBehavior      string  `yaml:"size_behavior"`
	UnitBase          string  `yaml:"unit_base"`
	DiskSpace         float64 `yaml:"disk_space"`
	UseAge            bool    `yaml:"use_age"`
	Reverse           *bool   `yaml:"reverse"`

	Count  int    `yaml:"count"`
	SortBy string `yaml:"sort_by"`

	State  string   `yaml:"state"`
	States []string `yaml:"states"`

	Key            string `yaml:"key"`
	AllocationType string `yaml:"allocation_type"`

	Names   []string `yaml:"names"`
	Aliases []string `yaml:"aliases"`
}

// LoadActions reads an action file. Actions are returned in ascending key
// order.
func LoadActions(path string) ([]Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("action file not found").
			WithCause(err)
	}
	return ParseActions(data)
}

func ParseActions(data []byte) ([]Action, error) {
	var file actionFile
	if err := decodeStrict(data, &file); err != nil {
		return nil, invalidConfig("parsing action file", err)
	}
	if len(file.Actions) == 0 {
		return nil, invalidConfig("action file defines no actions", nil)
	}

	ids := make([]int, 0, len(file.Actions))
	for id := range file.Actions {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	actions := make([]Action, 0, len(ids))
	for _, id := range ids {
		a, err := buildAction(file.Actions[id])
		if err != nil {
			return nil, invalidConfig(fmt.Sprintf("action %d", id), err)
		}
		a.ID = id
		actions = append(actions, a)
	}
	return actions, nil
}

// ParseSingleton builds one action from its name, an options object and a
// filter list, as given on the command line. Both documents may be JSON.
func ParseSingleton(name, options, filters string) (Action, error) {
	raw := rawAction{Action: name}
	if strings.TrimSpace(options) != "" {
		if err := decodeStrict([]byte(options), &raw.Options); err != nil {
			return Action{}, invalidConfig("parsing options", err)
		}
	}
	if strings.TrimSpace(filters) != "" {
		if err := decodeStrict([]byte(filters), &raw.Filters); err != nil {
			return Action{}, invalidConfig("parsing filter list", err)
		}
	}
	a, err := buildAction(raw)
	if err != nil {
		return Action{}, invalidConfig(name, err)
	}
	return a, nil
}

// ParseFilterList decodes a filter list for entities of kind.
func ParseFilterList(data string, kind entity.Kind) ([]filter.Spec, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var raws []rawFilter
	if err := decodeStrict([]byte(data), &raws); err != nil {
		return nil, invalidConfig("parsing filter list", err)
	}
	specs, err := buildFilters(raws, kind)
	if err != nil {
		return nil, invalidConfig("filter list", err)
	}
	return specs, nil
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func buildAction(raw rawAction) (Action, error) {
	kind, target, err := action.ParseName(raw.Action)
	if err != nil {
		return Action{}, err
	}
	o := raw.Options

	spec := action.Spec{
		Action:            kind,
		Target:            target,
		Description:       raw.Description,
		ContinueOnFailure: o.ContinueIfException,
		DisableAction:     o.DisableAction,
		RequireMatch:      o.IgnoreEmptyList != nil && !*o.IgnoreEmptyList,
		AllowWriteTarget:  o.AllowWriteTarget,
		AllowInProgress:   o.AllowInProgress,
		Options: action.Options{
			Repository:         o.Repository,
			Name:               o.Name,
			DeleteAliases:      o.DeleteAliases,
			MaxNumSegments:     o.MaxNumSegments,
			Delay:              time.Duration(o.Delay * float64(time.Second)),
			Key:                o.Key,
			Value:              o.Value,
			AllocationType:     o.AllocationType,
			IgnoreUnavailable:  o.IgnoreUnavailable,
			IncludeGlobalState: boolOr(o.IncludeGlobalState, true),
			Partial:            o.Partial,
			WaitForCompletion:  boolOr(o.WaitForCompletion, true),
			Indices:            o.Indices,
			RenamePattern:      o.RenamePattern,
			RenameReplacement:  o.RenameReplacement,
			ShrinkNode:         o.ShrinkNode,
			NumberOfShards:     o.NumberOfShards,
			ShrinkPrefix:       o.ShrinkPrefix,
			ShrinkSuffix:       stringOr(o.ShrinkSuffix, "-shrink"),
			DeleteAfter:        boolOr(o.DeleteAfter, true),
			Conditions: action.RolloverConditions{
				MaxAge:  o.Conditions.MaxAge,
				MaxDocs: o.Conditions.MaxDocs,
				MaxSize: o.Conditions.MaxSize,
			},
			Dest:       o.Dest,
			DestPrefix: o.DestPrefix,
			DestSuffix: o.DestSuffix,
		},
	}
	switch {
	case o.TimeoutOverride != nil:
		spec.TimeoutOverride = time.Duration(*o.TimeoutOverride) * time.Second
	case spec.Waits():
		spec.TimeoutOverride = action.LongCallTimeout
	}
	if o.Count != nil {
		spec.Options.ReplicaCount = *o.Count
	} else if kind == action.Replicas {
		return Action{}, fmt.Errorf("replicas requires count")
	}
	if kind == action.Shrink && spec.Options.NumberOfShards == 0 {
		spec.Options.NumberOfShards = 1
	}
	if err := spec.Validate(); err != nil {
		return Action{}, err
	}

	filters, err := buildFilters(raw.Filters, target)
	if err != nil {
		return Action{}, err
	}
	return Action{Spec: spec, Filters: filters}, nil
}

func buildFilters(raws []rawFilter, kind entity.Kind) ([]filter.Spec, error) {
	specs := make([]filter.Spec, 0, len(raws))
	for i, r := range raws {
		s, err := buildFilter(r)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i+1, err)
		}
		if s == nil {
			continue
		}
		if err := s.Validate(kind); err != nil {
			return nil, fmt.Errorf("filter %d: %w", i+1, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func buildFilter(r rawFilter) (filter.Spec, error) {
	exclude := boolOr(r.Exclude, false)

	switch strings.ToLower(r.FilterType) {
	case "none":
		return nil, nil

	case "age":
		s := filter.ByAge{
			Source:     filter.Source(r.Source),
			Timestring: r.Timestring,
			Direction:  filter.Direction(r.Direction),
			Unit:       filter.Unit(r.Unit),
			Exclude:    exclude,
		}
		if r.UnitCount == nil {
			return nil, fmt.Errorf("age filter requires unit_count")
		}
		s.Threshold = *r.UnitCount
		if r.Epoch != nil {
			s.ReferenceTime = time.Unix(*r.Epoch, 0).UTC()
		}
		return s, nil

	case "pattern":
		return filter.ByPattern{Kind: filter.PatternKind(r.Kind), Value: r.Value, Exclude: exclude}, nil

	case "size":
		base := filter.UnitBase(r.UnitBase)
		threshold, err := parseSize(r.SizeThreshold, base)
		if err != nil {
			return nil, err
		}
		cmp, err := filter.ParseComparator(stringDefault(r.ThresholdBehavior, "greater_than"))
		if err != nil {
			return nil, err
		}
		return filter.BySize{
			ThresholdBytes: threshold,
			Comparator:     cmp,
			Behavior:       filter.SizeBehavior(r.SizeBehavior),
			Exclude:        exclude,
		}, nil

	case "space":
		cmp, err := filter.ParseComparator(stringDefault(r.ThresholdBehavior, "greater_than"))
		if err != nil {
			return nil, err
		}
		return filter.BySpace{
			DiskSpaceGB:       r.DiskSpace,
			Base:              filter.UnitBase(r.UnitBase),
			UseAge:            r.UseAge,
			Source:            filter.Source(r.Source),
			Timestring:        r.Timestring,
			Reverse:           boolOr(r.Reverse, true),
			ThresholdBehavior: cmp,
			Exclude:           exclude,
		}, nil

	case "count":
		s := filter.ByCount{
			Count:      r.Count,
			SortBy:     filter.SortKey(r.SortBy),
			Reverse:    boolOr(r.Reverse, false),
			Source:     filter.Source(r.Source),
			Timestring: r.Timestring,
			Exclude:    exclude,
		}
		if r.UseAge {
			s.SortBy = filter.SortByAge
		}
		return s, nil

	case "state":
		names := r.States
		if r.State != "" {
			names = append(names, r.State)
		}
		states := make([]entity.State, len(names))
		for i, n := range names {
			states[i] = entity.State(n)
		}
		return filter.ByState{States: states, Exclude: exclude}, nil

	case "closed":
		return filter.ByState{States: []entity.State{entity.StateClosed}, Exclude: exclude}, nil

	case "opened":
		return filter.ByState{States: []entity.State{entity.StateOpen}, Exclude: exclude}, nil

	case "allocated":
		return filter.ByAllocated{
			Key:            r.Key,
			Value:          r.Value,
			AllocationType: filter.AllocationType(r.AllocationType),
			Exclude:        exclude,
		}, nil

	case "explicit":
		return filter.Explicit{Names: r.Names, Exclude: exclude}, nil

	case "alias":
		aliases := r.Aliases
		if r.Value != "" {
			aliases = append(aliases, r.Value)
		}
		return filter.ByAlias{Aliases: aliases, Exclude: exclude}, nil

	case "empty":
		return filter.ByEmpty{Exclude: exclude}, nil

	case "":
		return nil, fmt.Errorf("filtertype is required")
	}
	return nil, fmt.Errorf("unknown filtertype %q", r.FilterType)
}

// parseSize reads a threshold such as "50GB", "50GiB" or a bare number of
// gigabytes in the given base. Decimal and binary suffixes are honoured
// exactly as written, and a unit_base that names the other one is an error.
func parseSize(raw string, base filter.UnitBase) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("size filter requires size_threshold")
	}
	if gb, err := strconv.ParseFloat(raw, 64); err == nil {
		if gb < 0 {
			return 0, fmt.Errorf("size_threshold must not be negative")
		}
		return int64(gb * base.BytesPerGB()), nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing size_threshold %q: %w", raw, err)
	}
	if suffix := suffixBase(raw); base != "" && suffix != "" && suffix != base {
		return 0, fmt.Errorf("size_threshold %q is %s but unit_base is %s", raw, suffix, base)
	}
	return int64(n), nil
}

// suffixBase tells which base the unit suffix of raw belongs to. Plain
// bytes belong to neither.
func suffixBase(raw string) filter.UnitBase {
	unit := strings.ToLower(strings.TrimLeft(raw, "0123456789. "))
	switch {
	case strings.HasSuffix(unit, "ib"):
		return filter.Binary
	case unit == "", unit == "b", unit == "byte", unit == "bytes":
		return ""
	}
	return filter.Decimal
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func stringOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func stringDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
