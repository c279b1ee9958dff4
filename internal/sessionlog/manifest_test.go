package sessionlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func samplePlan() []PlanEntry {
	return []PlanEntry{
		{Trial: 1, Condition: "tonal", File: "tonal/t3.wav"},
		{Trial: 2, Condition: "atonal", File: "atonal/a1.ogg"},
	}
}

func TestPlanDigestStable(t *testing.T) {
	a, err := PlanDigest(samplePlan())
	if err != nil {
		t.Fatal(err)
	}
	b, err := PlanDigest(samplePlan())
	if err != nil {
		t.Fatal(err)
	}
	if a != b || len(a) != 64 {
		t.Errorf("digest not stable or wrong length: %q vs %q", a, b)
	}

	swapped := samplePlan()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	c, _ := PlanDigest(swapped)
	if c == a {
		t.Error("different order should produce a different digest")
	}
}

func TestManifestSaveLoadFinish(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestName("participant_3"))
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	m, err := NewManifest("participant_3", "participant_3_data.csv", MinimalSchema(), samplePlan(), start)
	if err != nil {
		t.Fatal(err)
	}
	if m.SessionID == "" || m.Status != StatusRunning {
		t.Errorf("new manifest = %+v", m)
	}
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	m.Finish(StatusFailed, 1, errors.New("disk full"), start.Add(5*time.Minute))
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.TrialsLogged != 1 || got.Error != "disk full" {
		t.Errorf("loaded manifest = %+v", got)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(start.Add(5*time.Minute)) {
		t.Errorf("EndedAt = %v", got.EndedAt)
	}
	if got.SessionID != m.SessionID || got.PlanDigest != m.PlanDigest {
		t.Error("identity fields changed across save/load")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}
