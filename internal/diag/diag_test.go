package diag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/amidaware/patchcore/internal/handlerenv"
	"github.com/amidaware/patchcore/internal/orchestrator"
)

func TestTakeWithNoStateIsGraceful(t *testing.T) {
	root := t.TempDir()
	env := &handlerenv.Environment{
		ConfigFolder:       filepath.Join(root, "config"),
		StatusFolder:       filepath.Join(root, "status"),
		HandlerStateFolder: filepath.Join(root, "state"),
	}
	if err := env.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}

	snap := Take(env)
	if snap.HasSettingsFile {
		t.Error("expected HasSettingsFile=false with an empty config directory")
	}
	if snap.PersistedMode != nil {
		t.Error("expected no persisted mode when nothing was written")
	}
	if snap.PendingCoreState != nil {
		t.Error("expected no pending core state when nothing was written")
	}

	report := snap.String()
	if report == "" {
		t.Error("expected a non-empty report")
	}
}

func TestTakeFindsPendingCoreState(t *testing.T) {
	root := t.TempDir()
	env := &handlerenv.Environment{
		ConfigFolder:       filepath.Join(root, "config"),
		StatusFolder:       filepath.Join(root, "status"),
		HandlerStateFolder: filepath.Join(root, "state"),
	}
	if err := env.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	if err := orchestrator.WriteCoreState(env.HandlerStateFolder, "activity-1", 2); err != nil {
		t.Fatalf("WriteCoreState: %v", err)
	}

	snap := Take(env)
	if snap.PendingCoreState == nil || snap.PendingCoreState.ActivityID != "activity-1" || snap.PendingCoreState.LastCompletedIndex != 2 {
		t.Errorf("got %+v", snap.PendingCoreState)
	}
}

func TestTakeFindsHighestSequence(t *testing.T) {
	root := t.TempDir()
	env := &handlerenv.Environment{
		ConfigFolder:       filepath.Join(root, "config"),
		StatusFolder:       filepath.Join(root, "status"),
		HandlerStateFolder: filepath.Join(root, "state"),
	}
	if err := env.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	if err := os.WriteFile(filepath.Join(env.ConfigFolder, "3.settings"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	snap := Take(env)
	if !snap.HasSettingsFile || snap.HighestSequence != 3 {
		t.Errorf("expected highest sequence 3, got %+v", snap)
	}
}
