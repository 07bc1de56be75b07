package es

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Health is the part of the cluster health response shown before a run.
type Health struct {
	ClusterName      string `json:"cluster_name"`
	Status           string `json:"status"`
	NumberOfNodes    int    `json:"number_of_nodes"`
	ActiveShards     int    `json:"active_shards"`
	RelocatingShards int    `json:"relocating_shards"`
	UnassignedShards int    `json:"unassigned_shards"`
}

// TaskInfo is a running cluster task started by one of the long-running
// actions: reindex, force merge, snapshot, restore or shrink.
type TaskInfo struct {
	ID            string `json:"id"`
	Action        string `json:"action"`
	Node          string `json:"node"`
	RunningTime   string `json:"-"`
	RunningTimeMs int64  `json:"running_time_ms"`
	Description   string `json:"description,omitempty"`
}

var taskActionPrefixes = []string{
	"indices:data/write/reindex",
	"indices:admin/forcemerge",
	"indices:admin/resize",
	"indices:admin/rollover",
	"cluster:admin/snapshot",
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return nil, transportError(err, "fetching cluster health")
	}
	var h Health
	if err := decode(res, "cluster health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) Tasks(ctx context.Context) ([]TaskInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	patterns := make([]string, 0, len(taskActionPrefixes))
	for _, p := range taskActionPrefixes {
		patterns = append(patterns, p+"*")
	}
	res, err := c.es.Tasks.List(
		c.es.Tasks.List.WithContext(ctx),
		c.es.Tasks.List.WithDetailed(true),
		c.es.Tasks.List.WithActions(patterns...),
	)
	if err != nil {
		return nil, transportError(err, "fetching tasks")
	}
	var raw json.RawMessage
	if err := decode(res, "tasks", &raw); err != nil {
		return nil, err
	}
	return parseTasksResponse(raw)
}

func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	res, err := c.es.Tasks.Cancel(
		c.es.Tasks.Cancel.WithContext(ctx),
		c.es.Tasks.Cancel.WithTaskID(taskID),
	)
	return done(res, err, "cancelling task "+taskID)
}

func parseTasksResponse(data []byte) ([]TaskInfo, error) {
	var response struct {
		Nodes map[string]struct {
			Name  string `json:"name"`
			Tasks map[string]struct {
				Action           string `json:"action"`
				Description      string `json:"description"`
				RunningTimeNanos int64  `json:"running_time_in_nanos"`
				ParentTaskID     string `json:"parent_task_id"`
			} `json:"tasks"`
		} `json:"nodes"`
	}

	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("parsing tasks response: %w", err)
	}

	var tasks []TaskInfo
	for _, node := range response.Nodes {
		for id, task := range node.Tasks {
			// Child tasks repeat their parent.
			if task.ParentTaskID != "" || !isTrackedAction(task.Action) {
				continue
			}
			runningMs := task.RunningTimeNanos / 1_000_000
			tasks = append(tasks, TaskInfo{
				ID:            id,
				Action:        task.Action,
				Node:          node.Name,
				Description:   task.Description,
				RunningTime:   formatDuration(runningMs),
				RunningTimeMs: runningMs,
			})
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].RunningTimeMs != tasks[j].RunningTimeMs {
			return tasks[i].RunningTimeMs > tasks[j].RunningTimeMs
		}
		return tasks[i].ID < tasks[j].ID
	})

	return tasks, nil
}

func isTrackedAction(action string) bool {
	for _, prefix := range taskActionPrefixes {
		if strings.HasPrefix(action, prefix) {
			return true
		}
	}
	return false
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
