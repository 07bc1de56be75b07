// Package storage keeps local state under the curator config directory:
// the history of past runs and saved filter presets.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/labtiva/curator/internal/action"
	"github.com/labtiva/curator/internal/config"
)

// MaxRuns bounds the history file. Older runs are dropped first.
const MaxRuns = 500

// RunRecord is one action run as it was reported.
type RunRecord struct {
	// Source is the action file the run came from, or "singleton".
	Source   string        `json:"source"`
	ActionID int           `json:"action_id,omitempty"`
	Result   action.Result `json:"result"`
}

type History struct {
	Runs []RunRecord `json:"runs"`
}

func historyPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// LoadHistory reads the history file. A missing or unreadable file yields
// an empty history.
func LoadHistory() (*History, error) {
	path, err := historyPath()
	if err != nil {
		return &History{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &History{}, nil
		}
		return nil, err
	}

	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return &History{}, nil
	}

	return &history, nil
}

func SaveHistory(history *History) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	path, err := historyPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// AppendRun loads the history, adds rec and writes it back.
func AppendRun(rec RunRecord) error {
	history, err := LoadHistory()
	if err != nil {
		return err
	}
	if !history.Add(rec) {
		return nil
	}
	return SaveHistory(history)
}

func (h *History) Add(rec RunRecord) bool {
	if rec.Result.Action == "" {
		return false
	}
	h.Runs = append(h.Runs, rec)
	if over := len(h.Runs) - MaxRuns; over > 0 {
		h.Runs = append([]RunRecord(nil), h.Runs[over:]...)
	}
	return true
}

// Last returns up to n runs, newest first. n <= 0 returns every run.
func (h *History) Last(n int) []RunRecord {
	if n <= 0 || n > len(h.Runs) {
		n = len(h.Runs)
	}
	out := make([]RunRecord, 0, n)
	for i := len(h.Runs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.Runs[i])
	}
	return out
}

// LastByAction returns the most recent run of the named action, such as
// "delete_indices".
func (h *History) LastByAction(name string) *RunRecord {
	for i := len(h.Runs) - 1; i >= 0; i-- {
		if h.Runs[i].Result.Name() == name {
			return &h.Runs[i]
		}
	}
	return nil
}
