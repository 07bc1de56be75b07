// Package action runs one cluster operation against a filtered entity list.
//
// The executor turns an Action Specification and an entity list into calls
// on a Mutator, retrying transient failures and isolating per-entity
// failures into a Result.
package action

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"github.com/labtiva/curator/internal/entity"
)

var ErrInvalidActionSpec = errors.New("invalid action specification")

type Kind string

const (
	Delete     Kind = "delete"
	Close      Kind = "close"
	Snapshot   Kind = "snapshot"
	Restore    Kind = "restore"
	Shrink     Kind = "shrink"
	Rollover   Kind = "rollover"
	Reindex    Kind = "reindex"
	ForceMerge Kind = "forcemerge"
	Open       Kind = "open"
	Allocation Kind = "allocation"
	Replicas   Kind = "replicas"
)

// ParseName maps an action file name such as delete_indices to its kind
// and the entity kind it works on.
func ParseName(name string) (Kind, entity.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "delete_indices":
		return Delete, entity.KindIndex, nil
	case "delete_snapshots":
		return Delete, entity.KindSnapshot, nil
	case "close":
		return Close, entity.KindIndex, nil
	case "open":
		return Open, entity.KindIndex, nil
	case "snapshot":
		return Snapshot, entity.KindIndex, nil
	case "restore":
		return Restore, entity.KindSnapshot, nil
	case "shrink":
		return Shrink, entity.KindIndex, nil
	case "rollover":
		return Rollover, entity.KindIndex, nil
	case "reindex":
		return Reindex, entity.KindIndex, nil
	case "forcemerge":
		return ForceMerge, entity.KindIndex, nil
	case "allocation":
		return Allocation, entity.KindIndex, nil
	case "replicas":
		return Replicas, entity.KindIndex, nil
	}
	return "", "", fmt.Errorf("unknown action %q", name)
}

// Name is the inverse of ParseName.
func Name(k Kind, target entity.Kind) string {
	if k == Delete {
		return "delete_" + target.Plural()
	}
	return string(k)
}

// Destructive kinds lose data or availability and are subject to the
// write target check.
func (k Kind) Destructive() bool {
	switch k {
	case Delete, Close, Shrink:
		return true
	}
	return false
}

// Batched kinds issue one cluster call for the whole selection.
func (k Kind) Batched() bool {
	switch k {
	case Snapshot, Restore, Rollover:
		return true
	}
	return false
}

// absentIsDone reports whether a missing entity already satisfies k.
func (k Kind) absentIsDone() bool {
	return k == Delete || k == Close
}

func (k Kind) validTarget(t entity.Kind) bool {
	switch k {
	case Delete:
		return t == entity.KindIndex || t == entity.KindSnapshot
	case Restore:
		return t == entity.KindSnapshot
	case "":
		return false
	}
	return t == entity.KindIndex
}

type RolloverConditions struct {
	MaxAge  string
	MaxDocs int64
	MaxSize string
}

func (c RolloverConditions) Empty() bool {
	return c.MaxAge == "" && c.MaxDocs == 0 && c.MaxSize == ""
}

// Options carries the per-action parameters. Only the fields the action
// kind uses are read.
type Options struct {
	// Repository for snapshot, restore and delete_snapshots.
	Repository string
	// Name is the snapshot name template for snapshot, the snapshot to
	// restore, or the alias to roll over.
	Name string

	DeleteAliases bool

	MaxNumSegments int
	// Delay is the pause between forcemerge calls.
	Delay time.Duration

	Key            string
	Value          string
	AllocationType string

	ReplicaCount int

	IgnoreUnavailable  bool
	IncludeGlobalState bool
	Partial            bool
	WaitForCompletion  bool

	Indices           []string
	RenamePattern     string
	RenameReplacement string

	ShrinkNode     string
	NumberOfShards int
	ShrinkPrefix   string
	ShrinkSuffix   string
	DeleteAfter    bool

	Conditions RolloverConditions

	Dest       string
	DestPrefix string
	DestSuffix string
}

const DefaultSnapshotName = "curator-%Y%m%d%H%M%S"

// LongCallTimeout is the call timeout of actions that wait for the cluster
// to finish, when no timeout_override is given.
const LongCallTimeout = 6 * time.Hour

// Spec is an Action Specification. It is passed by value and never
// modified once a run starts.
type Spec struct {
	Action      Kind
	Target      entity.Kind
	Description string
	Options     Options

	ContinueOnFailure bool
	// DisableAction turns the run into a dry run.
	DisableAction bool
	// TimeoutOverride replaces the per-call timeout when positive.
	TimeoutOverride time.Duration

	// RequireMatch makes an empty filtered list a failure instead of a
	// no-op.
	RequireMatch     bool
	AllowWriteTarget bool
	AllowInProgress  bool
}

func (s Spec) Name() string {
	return Name(s.Action, s.Target)
}

// Waits reports whether one call of the action lasts until the cluster has
// finished the operation.
func (s Spec) Waits() bool {
	switch s.Action {
	case ForceMerge:
		return true
	case Snapshot, Restore, Reindex:
		return s.Options.WaitForCompletion
	}
	return false
}

func (s Spec) Validate() error {
	if !s.Action.validTarget(s.Target) {
		return invalidSpec("action %q cannot run on %s", s.Action, s.Target.Plural())
	}
	if s.TimeoutOverride < 0 {
		return invalidSpec("timeout_override must not be negative")
	}
	o := s.Options
	switch s.Action {
	case Delete:
		if s.Target == entity.KindSnapshot && o.Repository == "" {
			return invalidSpec("delete_snapshots requires repository")
		}
	case Snapshot, Restore:
		if o.Repository == "" {
			return invalidSpec("%s requires repository", s.Action)
		}
	case ForceMerge:
		if o.MaxNumSegments < 1 {
			return invalidSpec("forcemerge requires max_num_segments >= 1")
		}
		if o.Delay < 0 {
			return invalidSpec("forcemerge delay must not be negative")
		}
	case Allocation:
		if o.Key == "" {
			return invalidSpec("allocation requires key")
		}
		switch o.AllocationType {
		case "", "require", "include", "exclude":
		default:
			return invalidSpec("allocation_type must be require, include or exclude, got %q", o.AllocationType)
		}
	case Replicas:
		if o.ReplicaCount < 0 {
			return invalidSpec("replicas count must not be negative")
		}
	case Rollover:
		if o.Name == "" {
			return invalidSpec("rollover requires name (the alias)")
		}
		if o.Conditions.Empty() {
			return invalidSpec("rollover requires at least one condition")
		}
	case Reindex:
		if o.Dest == "" && o.DestPrefix == "" && o.DestSuffix == "" {
			return invalidSpec("reindex requires dest, dest_prefix or dest_suffix")
		}
	case Shrink:
		if o.NumberOfShards < 0 {
			return invalidSpec("shrink number_of_shards must not be negative")
		}
	}
	return nil
}

func invalidSpec(format string, args ...any) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf(format, args...)).
		WithCause(ErrInvalidActionSpec)
}
