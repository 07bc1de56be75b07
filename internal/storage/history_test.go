package storage

import (
	"fmt"
	"testing"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/entity"
)

func run(kind action.Kind, target entity.Kind, names ...string) RunRecord {
	return RunRecord{
		Source: "actions.yml",
		Result: action.Result{Action: kind, Target: target, Attempted: names, Succeeded: names},
	}
}

func TestHistoryAdd(t *testing.T) {
	h := &History{}

	if h.Add(RunRecord{}) {
		t.Error("record without an action should be rejected")
	}
	if !h.Add(run(action.Delete, entity.KindIndex, "a")) {
		t.Error("Add() = false, want true")
	}
	if len(h.Runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(h.Runs))
	}
}

func TestHistoryIsBounded(t *testing.T) {
	h := &History{}
	for i := 0; i < MaxRuns+10; i++ {
		h.Add(run(action.Delete, entity.KindIndex, fmt.Sprintf("idx-%d", i)))
	}

	if len(h.Runs) != MaxRuns {
		t.Fatalf("got %d runs, want %d", len(h.Runs), MaxRuns)
	}
	if got := h.Runs[0].Result.Attempted[0]; got != "idx-10" {
		t.Errorf("oldest kept run = %q, want idx-10", got)
	}
}

func TestHistoryLast(t *testing.T) {
	h := &History{}
	h.Add(run(action.Delete, entity.KindIndex, "a"))
	h.Add(run(action.Close, entity.KindIndex, "b"))
	h.Add(run(action.Delete, entity.KindSnapshot, "c"))

	last := h.Last(2)
	if len(last) != 2 {
		t.Fatalf("Last(2) returned %d runs", len(last))
	}
	if last[0].Result.Attempted[0] != "c" || last[1].Result.Attempted[0] != "b" {
		t.Errorf("Last(2) = %v, want newest first", last)
	}
	if got := len(h.Last(0)); got != 3 {
		t.Errorf("Last(0) returned %d runs, want 3", got)
	}

	rec := h.LastByAction("delete_indices")
	if rec == nil || rec.Result.Attempted[0] != "a" {
		t.Errorf("LastByAction(delete_indices) = %v, want run of a", rec)
	}
	if h.LastByAction("rollover") != nil {
		t.Error("LastByAction(rollover) should be nil")
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	empty, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(empty.Runs) != 0 {
		t.Fatalf("fresh history has %d runs", len(empty.Runs))
	}

	if err := AppendRun(run(action.Delete, entity.KindIndex, "logs-1")); err != nil {
		t.Fatalf("AppendRun() error = %v", err)
	}
	if err := AppendRun(run(action.Close, entity.KindIndex, "logs-2")); err != nil {
		t.Fatalf("AppendRun() error = %v", err)
	}

	loaded, err := LoadHistory()
	if err != nil {
		t.Fatalf("LoadHistory() error = %v", err)
	}
	if len(loaded.Runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(loaded.Runs))
	}
	if loaded.Runs[1].Result.Action != action.Close {
		t.Errorf("second run action = %q, want close", loaded.Runs[1].Result.Action)
	}
}
