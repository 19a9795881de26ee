package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWatcherCheckOnceDetectsNewerSequence(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1.settings"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	w := NewWatcher(dir, 0, nil)
	w.checkOnce()

	select {
	case seq := <-w.Changed:
		if seq != 1 {
			t.Errorf("expected sequence 1, got %d", seq)
		}
	default:
		t.Fatal("expected a Changed signal")
	}
	if w.Baseline != 1 {
		t.Errorf("expected baseline advanced to 1, got %d", w.Baseline)
	}
}

func TestWatcherCheckOnceIgnoresSameOrLowerSequence(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "2.settings"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	w := NewWatcher(dir, 2, nil)
	w.checkOnce()

	select {
	case seq := <-w.Changed:
		t.Fatalf("expected no signal, got %d", seq)
	default:
	}
}

func TestWatcherCheckOnceEmptyDirIsNoop(t *testing.T) {
	w := NewWatcher(t.TempDir(), 0, nil)
	w.checkOnce()

	select {
	case seq := <-w.Changed:
		t.Fatalf("expected no signal, got %d", seq)
	default:
	}
}
