package storage

import (
	"testing"

	"github.com/labtiva/curator/internal/entity"
)

const oldLogs = `[{"filtertype":"pattern","kind":"prefix","value":"logs-"}]`

func TestPresetsAdd(t *testing.T) {
	p := &Presets{}

	if p.Add(Preset{Name: "", Filters: oldLogs}) {
		t.Error("preset without a name should be rejected")
	}
	if p.Add(Preset{Name: "x"}) {
		t.Error("preset without filters should be rejected")
	}

	p.Add(Preset{Name: "zeta", Target: entity.KindIndex, Filters: oldLogs})
	p.Add(Preset{Name: "alpha", Target: entity.KindIndex, Filters: oldLogs})
	if p.Items[0].Name != "alpha" {
		t.Errorf("Items[0] = %q, want presets sorted by name", p.Items[0].Name)
	}

	p.Add(Preset{Name: "alpha", Target: entity.KindSnapshot, Filters: oldLogs})
	if len(p.Items) != 2 {
		t.Fatalf("got %d presets, want 2 after replacing alpha", len(p.Items))
	}
	if got := p.Get("alpha"); got == nil || got.Target != entity.KindSnapshot {
		t.Errorf("Get(alpha) = %v, want the replaced preset", got)
	}
}

func TestPresetsDelete(t *testing.T) {
	p := &Presets{}
	p.Add(Preset{Name: "a", Filters: oldLogs})

	if !p.Delete("a") {
		t.Error("Delete(a) = false")
	}
	if p.Delete("a") {
		t.Error("second Delete(a) = true")
	}
	if p.Get("a") != nil {
		t.Error("deleted preset still returned")
	}
}

func TestPresetsRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	p, err := LoadPresets()
	if err != nil {
		t.Fatalf("LoadPresets() error = %v", err)
	}
	p.Add(Preset{Name: "old-logs", Target: entity.KindIndex, Filters: oldLogs})
	if err := SavePresets(p); err != nil {
		t.Fatalf("SavePresets() error = %v", err)
	}

	loaded, err := LoadPresets()
	if err != nil {
		t.Fatalf("LoadPresets() error = %v", err)
	}
	got := loaded.Get("old-logs")
	if got == nil || got.Filters != oldLogs {
		t.Errorf("Get(old-logs) = %v", got)
	}
}
