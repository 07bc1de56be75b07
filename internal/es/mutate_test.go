package es

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/config"
	"github.com/labtiva/curator/internal/entity"
)

func decodeBody(t *testing.T, r recordedRequest) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("request body %q is not JSON: %v", r.Body, err)
	}
	return body
}

func TestMutateDeleteIndices(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"DELETE /logs-1,logs-2": {body: `{"acknowledged":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action: action.Delete,
		Target: entity.KindIndex,
		Names:  []string{"logs-1", "logs-2"},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if got := len(fc.recorded()); got != 1 {
		t.Errorf("got %d requests, want 1", got)
	}
}

func TestMutateDeleteMissingIndexIsNotFound(t *testing.T) {
	_, client := newFakeCluster(t, nil)

	err := client.Mutate(context.Background(), action.Request{
		Action: action.Delete,
		Target: entity.KindIndex,
		Names:  []string{"gone"},
	})
	if got := action.KindOf(err); got != action.NotFound {
		t.Errorf("KindOf() = %q, want %q", got, action.NotFound)
	}
}

func TestMutateDeleteSnapshots(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"DELETE /_snapshot/backups/old-1": {body: `{"acknowledged":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action:  action.Delete,
		Target:  entity.KindSnapshot,
		Names:   []string{"old-1"},
		Options: action.Options{Repository: "backups"},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if got := fc.recorded()[0].Method; got != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", got)
	}
}

func TestMutateCloseRemovesAliases(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		// No alias route: the 404 for an index without aliases is ignored.
		"POST /logs-1/_close": {body: `{"acknowledged":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action:  action.Close,
		Target:  entity.KindIndex,
		Names:   []string{"logs-1"},
		Options: action.Options{DeleteAliases: true},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	reqs := fc.recorded()
	if len(reqs) != 2 {
		t.Fatalf("got %d requests, want 2", len(reqs))
	}
	if reqs[0].Method != http.MethodDelete || reqs[0].Path != "/logs-1/_alias/_all" {
		t.Errorf("first request = %s %s, want DELETE /logs-1/_alias/_all", reqs[0].Method, reqs[0].Path)
	}
}

func TestMutateAllocation(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"PUT /logs-1/_settings": {body: `{"acknowledged":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action: action.Allocation,
		Target: entity.KindIndex,
		Names:  []string{"logs-1"},
		Options: action.Options{
			Key:            "box_type",
			Value:          "warm",
			AllocationType: "include",
		},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	body := decodeBody(t, fc.recorded()[0])
	if body["index.routing.allocation.include.box_type"] != "warm" {
		t.Errorf("body = %v, want include.box_type=warm", body)
	}
}

func TestMutateAllocationEmptyValueClearsSetting(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"PUT /logs-1/_settings": {body: `{"acknowledged":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action:  action.Allocation,
		Target:  entity.KindIndex,
		Names:   []string{"logs-1"},
		Options: action.Options{Key: "box_type"},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	body := decodeBody(t, fc.recorded()[0])
	v, ok := body["index.routing.allocation.require.box_type"]
	if !ok || v != nil {
		t.Errorf("body = %v, want require.box_type=null", body)
	}
}

func TestMutateReplicas(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"PUT /logs-1/_settings": {body: `{"acknowledged":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action:  action.Replicas,
		Target:  entity.KindIndex,
		Names:   []string{"logs-1"},
		Options: action.Options{ReplicaCount: 0},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	body := decodeBody(t, fc.recorded()[0])
	if body["index.number_of_replicas"] != float64(0) {
		t.Errorf("body = %v, want number_of_replicas=0", body)
	}
}

func TestMutateForceMerge(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"POST /logs-1/_forcemerge": {body: `{"_shards":{}}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action:  action.ForceMerge,
		Target:  entity.KindIndex,
		Names:   []string{"logs-1"},
		Options: action.Options{MaxNumSegments: 1},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if q := fc.recorded()[0].Query; !strings.Contains(q, "max_num_segments=1") {
		t.Errorf("query = %q, want max_num_segments=1", q)
	}
}

func TestMutateSnapshot(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"PUT /_snapshot/backups/nightly-2024.06.15": {body: `{"accepted":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action: action.Snapshot,
		Target: entity.KindIndex,
		Names:  []string{"logs-1", "logs-2"},
		Options: action.Options{
			Repository:        "backups",
			Name:              "nightly-2024.06.15",
			IgnoreUnavailable: true,
			WaitForCompletion: true,
		},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	req := fc.recorded()[0]
	if !strings.Contains(req.Query, "wait_for_completion=true") {
		t.Errorf("query = %q, want wait_for_completion=true", req.Query)
	}
	body := decodeBody(t, req)
	if body["indices"] != "logs-1,logs-2" || body["ignore_unavailable"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestMutateRestore(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"POST /_snapshot/backups/nightly-1/_restore": {body: `{"accepted":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action: action.Restore,
		Target: entity.KindSnapshot,
		Names:  []string{"nightly-1"},
		Options: action.Options{
			Repository:        "backups",
			Indices:           []string{"logs-1"},
			RenamePattern:     "(.+)",
			RenameReplacement: "restored-$1",
		},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	body := decodeBody(t, fc.recorded()[0])
	if body["indices"] != "logs-1" || body["rename_replacement"] != "restored-$1" {
		t.Errorf("body = %v", body)
	}
}

func TestMutateShrink(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"PUT /logs-1/_settings":              {body: `{"acknowledged":true}`},
		"GET /_cluster/health/logs-1":        {body: `{"status":"green"}`},
		"PUT /logs-1/_shrink/logs-1-shrink":  {body: `{"acknowledged":true}`},
		"GET /_cluster/health/logs-1-shrink": {body: `{"status":"green"}`},
		"DELETE /logs-1":                     {body: `{"acknowledged":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action: action.Shrink,
		Target: entity.KindIndex,
		Names:  []string{"logs-1"},
		Options: action.Options{
			ShrinkNode:     "node-1",
			NumberOfShards: 1,
			ShrinkSuffix:   "-shrink",
			DeleteAfter:    true,
		},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	reqs := fc.recorded()
	want := []string{
		"GET /logs-1-shrink/_settings/index.resize.source.name",
		"PUT /logs-1/_settings",
		"GET /_cluster/health/logs-1",
		"PUT /logs-1/_shrink/logs-1-shrink",
		"GET /_cluster/health/logs-1-shrink",
		"DELETE /logs-1",
	}
	if len(reqs) != len(want) {
		t.Fatalf("got %d requests, want %d", len(reqs), len(want))
	}
	for i, w := range want {
		if got := reqs[i].Method + " " + reqs[i].Path; got != w {
			t.Errorf("request %d = %s, want %s", i, got, w)
		}
	}
	prep := decodeBody(t, reqs[1])
	if prep["index.routing.allocation.require._name"] != "node-1" || prep["index.blocks.write"] != true {
		t.Errorf("prepare body = %v", prep)
	}
}

func TestMutateShrinkStopsOnFailure(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"PUT /logs-1/_settings":       {body: `{"acknowledged":true}`},
		"GET /_cluster/health/logs-1": {status: http.StatusRequestTimeout, body: `{"timed_out":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action:  action.Shrink,
		Target:  entity.KindIndex,
		Names:   []string{"logs-1"},
		Options: action.Options{DeleteAfter: true},
	})
	if got := action.KindOf(err); got != action.Transient {
		t.Errorf("KindOf() = %q, want %q", got, action.Transient)
	}
	if got := len(fc.recorded()); got != 3 {
		t.Errorf("got %d requests, want 3", got)
	}
}

func TestMutateShrinkResumesExistingTarget(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"GET /logs-1-shrink/_settings/index.resize.source.name": {
			body: `{"logs-1-shrink":{"settings":{"index.resize.source.name":"logs-1"}}}`,
		},
		"GET /_cluster/health/logs-1-shrink": {body: `{"status":"green"}`},
		"DELETE /logs-1":                     {body: `{"acknowledged":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action:  action.Shrink,
		Target:  entity.KindIndex,
		Names:   []string{"logs-1"},
		Options: action.Options{ShrinkSuffix: "-shrink", DeleteAfter: true},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}

	want := []string{
		"GET /logs-1-shrink/_settings/index.resize.source.name",
		"GET /_cluster/health/logs-1-shrink",
		"DELETE /logs-1",
	}
	reqs := fc.recorded()
	if len(reqs) != len(want) {
		t.Fatalf("got %d requests, want %d", len(reqs), len(want))
	}
	for i, w := range want {
		if got := reqs[i].Method + " " + reqs[i].Path; got != w {
			t.Errorf("request %d = %s, want %s", i, got, w)
		}
	}
}

func TestMutateShrinkRefusesUnrelatedTarget(t *testing.T) {
	tests := []struct {
		name   string
		suffix string
		route  string
		body   string
	}{
		{"plain index", "-shrink", "GET /logs-1-shrink/_settings/index.resize.source.name", `{"logs-1-shrink":{"settings":{}}}`},
		{"shrink of another index", "-shrink", "GET /logs-1-shrink/_settings/index.resize.source.name", `{"logs-1-shrink":{"settings":{"index.resize.source.name":"logs-0"}}}`},
		{"target is the source", "", "GET /logs-1/_settings/index.resize.source.name", `{"logs-1":{"settings":{}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, client := newFakeCluster(t, map[string]fakeResponse{tt.route: {body: tt.body}})

			err := client.Mutate(context.Background(), action.Request{
				Action:  action.Shrink,
				Target:  entity.KindIndex,
				Names:   []string{"logs-1"},
				Options: action.Options{ShrinkSuffix: tt.suffix, DeleteAfter: true},
			})
			if got := action.KindOf(err); got != action.ConflictingState {
				t.Errorf("KindOf() = %q, want %q", got, action.ConflictingState)
			}
			if got := len(fc.recorded()); got != 1 {
				t.Errorf("got %d requests, want 1", got)
			}
		})
	}
}

// shrinkCluster creates the shrink target when asked to and times out the
// first wait for it to turn green.
type shrinkCluster struct {
	mu         sync.Mutex
	created    bool
	greenWaits int
	requests   []string
}

func (sc *shrinkCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	sc.mu.Lock()
	sc.requests = append(sc.requests, key)
	status, body := http.StatusOK, `{"acknowledged":true}`
	switch key {
	case "GET /big-shrink/_settings/index.resize.source.name":
		if sc.created {
			body = `{"big-shrink":{"settings":{"index.resize.source.name":"big"}}}`
		} else {
			status, body = http.StatusNotFound, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`
		}
	case "PUT /big/_shrink/big-shrink":
		if sc.created {
			status, body = http.StatusBadRequest, `{"error":{"type":"resource_already_exists_exception","reason":"index [big-shrink] already exists"},"status":400}`
		}
		sc.created = true
	case "GET /_cluster/health/big-shrink":
		sc.greenWaits++
		if sc.greenWaits == 1 {
			status, body = http.StatusRequestTimeout, `{"timed_out":true}`
		} else {
			body = `{"status":"green"}`
		}
	case "GET /_cluster/health/big":
		body = `{"status":"green"}`
	}
	sc.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestShrinkRetryResumesAfterTargetCreated(t *testing.T) {
	sc := &shrinkCluster{}
	server := httptest.NewServer(sc)
	t.Cleanup(server.Close)
	client, err := NewClient(&config.Config{Host: server.URL}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	exec := action.NewExecutor(client, action.Config{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Logger:     zerolog.Nop(),
	})
	spec := action.Spec{
		Action:  action.Shrink,
		Target:  entity.KindIndex,
		Options: action.Options{NumberOfShards: 1, ShrinkSuffix: "-shrink", DeleteAfter: true},
	}
	list := entity.New(entity.KindIndex, time.Now(), []entity.Entity{{Name: "big", Kind: entity.KindIndex}})

	res, err := exec.Run(context.Background(), spec, list)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Failed) != 0 || len(res.Succeeded) != 1 {
		t.Fatalf("succeeded = %v, failed = %v", res.Succeeded, res.Failed)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	shrinks := 0
	for _, r := range sc.requests {
		if r == "PUT /big/_shrink/big-shrink" {
			shrinks++
		}
	}
	if shrinks != 1 {
		t.Errorf("shrink issued %d times, want 1", shrinks)
	}
	if last := sc.requests[len(sc.requests)-1]; last != "DELETE /big" {
		t.Errorf("last request = %s, want DELETE /big", last)
	}
}

func TestMutateRollover(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"POST /logs/_rollover": {body: `{"rolled_over":true}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action: action.Rollover,
		Target: entity.KindIndex,
		Names:  []string{"logs-000001"},
		Options: action.Options{
			Name:       "logs",
			Conditions: action.RolloverConditions{MaxAge: "7d", MaxDocs: 1000},
		},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	body := decodeBody(t, fc.recorded()[0])
	cond, _ := body["conditions"].(map[string]any)
	if cond["max_age"] != "7d" || cond["max_docs"] != float64(1000) {
		t.Errorf("conditions = %v", cond)
	}
	if _, ok := cond["max_size"]; ok {
		t.Error("unset max_size should not be sent")
	}
}

func TestMutateReindex(t *testing.T) {
	fc, client := newFakeCluster(t, map[string]fakeResponse{
		"POST /_reindex": {body: `{"took":1}`},
	})

	err := client.Mutate(context.Background(), action.Request{
		Action:  action.Reindex,
		Target:  entity.KindIndex,
		Names:   []string{"logs-1"},
		Options: action.Options{DestPrefix: "archive-"},
	})
	if err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	body := decodeBody(t, fc.recorded()[0])
	dest, _ := body["dest"].(map[string]any)
	if dest["index"] != "archive-logs-1" {
		t.Errorf("dest = %v, want archive-logs-1", dest)
	}
}

func TestMutateEmptyNamesIsNoOp(t *testing.T) {
	fc, client := newFakeCluster(t, nil)

	if err := client.Mutate(context.Background(), action.Request{Action: action.Delete, Target: entity.KindIndex}); err != nil {
		t.Fatalf("Mutate() error = %v", err)
	}
	if got := len(fc.recorded()); got != 0 {
		t.Errorf("got %d requests, want 0", got)
	}
}
