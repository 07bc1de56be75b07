package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/labtiva/curator/internal/config"
	"github.com/labtiva/curator/internal/entity"
)

// Preset is a named filter list saved for reuse with --preset.
type Preset struct {
	Name   string      `json:"name"`
	Target entity.Kind `json:"target"`
	// Filters is the filter list as JSON, in action file syntax.
	Filters string `json:"filters"`
}

type Presets struct {
	Items []Preset `json:"presets"`
}

func presetsPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "presets.json"), nil
}

func LoadPresets() (*Presets, error) {
	path, err := presetsPath()
	if err != nil {
		return &Presets{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Presets{}, nil
		}
		return nil, err
	}

	var presets Presets
	if err := json.Unmarshal(data, &presets); err != nil {
		return &Presets{}, nil
	}

	return &presets, nil
}

func SavePresets(presets *Presets) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	path, err := presetsPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(presets, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Add stores preset, replacing one with the same name.
func (p *Presets) Add(preset Preset) bool {
	if preset.Name == "" || preset.Filters == "" {
		return false
	}
	for i, existing := range p.Items {
		if existing.Name == preset.Name {
			p.Items[i] = preset
			return true
		}
	}
	p.Items = append(p.Items, preset)
	sort.Slice(p.Items, func(i, j int) bool {
		return p.Items[i].Name < p.Items[j].Name
	})
	return true
}

func (p *Presets) Delete(name string) bool {
	for i, existing := range p.Items {
		if existing.Name == name {
			p.Items = append(p.Items[:i], p.Items[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Presets) Get(name string) *Preset {
	for _, item := range p.Items {
		if item.Name == name {
			return &item
		}
	}
	return nil
}
