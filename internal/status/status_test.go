package status

import (
	"os"
	"path/filepath"
	"testing"
)

func seedFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func depthOf(t *testing.T, stages []StageStatus, name string) int {
	t.Helper()
	for _, s := range stages {
		if s.Name == name {
			return s.Depth
		}
	}
	t.Fatalf("stage %s not reported", name)
	return 0
}

func TestStageDepths_EmptyRoot(t *testing.T) {
	dir := t.TempDir()

	stages := stageDepths(dir)
	if len(stages) != 6 {
		t.Fatalf("expected 6 stages, got %d", len(stages))
	}
	for _, s := range stages {
		if s.Depth != 0 {
			t.Errorf("stage %s: expected depth 0, got %d", s.Name, s.Depth)
		}
	}
}

func TestStageDepths_CountsMatchingEntries(t *testing.T) {
	dir := t.TempDir()
	seedFiles(t, filepath.Join(dir, "incoming"),
		"todo_20250314_092653_01ARZ3NDEKTSV4RRFFQ69G5FAV.yaml",
		"note_20250314_092654_01ARZ3NDEKTSV4RRFFQ69G5FAV.yaml")
	// Audio assets count toward voices; metadata companions do not.
	seedFiles(t, filepath.Join(dir, "voices"),
		"voice_20250314_092653_01ARZ3NDEKTSV4RRFFQ69G5FAV.ogg",
		"voice_20250314_092653_01ARZ3NDEKTSV4RRFFQ69G5FAV.yaml")
	seedFiles(t, filepath.Join(dir, "ready"),
		"idea_20250314_092653_01ARZ3NDEKTSV4RRFFQ69G5FAV.md")
	seedFiles(t, filepath.Join(dir, "quarantine"),
		"bad.yaml.20250314T092653.corrupt")

	stages := stageDepths(dir)

	if got := depthOf(t, stages, "incoming"); got != 2 {
		t.Errorf("incoming: got %d, want 2", got)
	}
	if got := depthOf(t, stages, "voices"); got != 1 {
		t.Errorf("voices: got %d, want 1", got)
	}
	if got := depthOf(t, stages, "ready"); got != 1 {
		t.Errorf("ready: got %d, want 1", got)
	}
	if got := depthOf(t, stages, "quarantine"); got != 1 {
		t.Errorf("quarantine: got %d, want 1", got)
	}
}

func TestCheckDaemon_NotRunning(t *testing.T) {
	dir := t.TempDir()

	st := Collect(dir)
	if st.Daemon.Running {
		t.Error("daemon should be reported as stopped")
	}
}
