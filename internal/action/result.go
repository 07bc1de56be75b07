package action

import (
	"time"

	"github.com/labtiva/curator/internal/entity"
)

type EntityFailure struct {
	Name    string      `json:"name"`
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Result is the outcome of one action run. Attempted is in dispatch order;
// Succeeded and Failed are in completion order.
type Result struct {
	Action      Kind            `json:"action"`
	Target      entity.Kind     `json:"target"`
	Description string          `json:"description,omitempty"`
	Attempted   []string        `json:"entities_attempted"`
	Succeeded   []string        `json:"entities_succeeded"`
	Failed      []EntityFailure `json:"entities_failed"`
	// Skipped entities were never dispatched, either because an earlier
	// failure or a cancellation stopped the run, or because a batched
	// action did not select them.
	Skipped   []string      `json:"entities_skipped"`
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (r Result) Name() string {
	return Name(r.Action, r.Target)
}

// Partial reports whether some entities failed.
func (r Result) Partial() bool {
	return len(r.Failed) > 0
}

func (r Result) FailedNames() []string {
	names := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		names[i] = f.Name
	}
	return names
}

func (r Result) FailureFor(name string) (EntityFailure, bool) {
	for _, f := range r.Failed {
		if f.Name == name {
			return f, true
		}
	}
	return EntityFailure{}, false
}
