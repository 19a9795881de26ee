package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amidaware/patchcore/internal/model"
)

func newTestRun(t *testing.T) *model.Run {
	t.Helper()
	req := &model.Request{Operation: model.OperationInstallation, ActivityID: "act-1"}
	run := model.NewRun(req, time.Now())
	run.UpsertPatch(model.Patch{Name: "openssl", Version: "1.1.1", Classification: model.ClassificationSecurity, SelectedState: model.SelectedStateSelected, InstallState: model.InstallStateInstalled})
	return run
}

func TestTerminalWriteFlushesImmediately(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, 7, logrus.NewEntry(logrus.New()))

	go func() {
		w.Enqueue(newTestRun(t), true)
		w.Close()
	}()

	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "7.status"))
	if err != nil {
		t.Fatalf("expected status file to exist: %v", err)
	}

	var docs []document
	if err := json.Unmarshal(data, &docs); err != nil {
		t.Fatalf("status file is not valid JSON array: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected exactly one document, got %d", len(docs))
	}
	if docs[0].Status.FormattedMessage.Message == "" {
		t.Error("expected a non-empty nested message payload")
	}

	var pl payload
	if err := json.Unmarshal([]byte(docs[0].Status.FormattedMessage.Message), &pl); err != nil {
		t.Fatalf("nested message is not valid JSON: %v", err)
	}
	if len(pl.Patches) != 1 || pl.Patches[0].Name != "openssl" {
		t.Errorf("unexpected patches in payload: %+v", pl.Patches)
	}
}

func TestNoTmpFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, 3, logrus.NewEntry(logrus.New()))

	go func() {
		w.Enqueue(newTestRun(t), true)
		w.Close()
	}()
	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "3.status.tmp")); !os.IsNotExist(err) {
		t.Errorf("expected tmp file to be renamed away, stat err = %v", err)
	}
}

func TestNonTerminalUpdatesWrittenOnClose(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, 9, logrus.NewEntry(logrus.New()))

	go func() {
		for i := 0; i < 5; i++ {
			w.Enqueue(newTestRun(t), false)
		}
		w.Close()
	}()

	if err := w.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Even though 5 updates were enqueued with no terminal flush, the
	// drain-on-close path must still write once at the end.
	if _, err := os.Stat(filepath.Join(dir, "9.status")); err != nil {
		t.Errorf("expected a final status file to exist after drain, got %v", err)
	}
}

func TestHostStatusStringMapping(t *testing.T) {
	cases := map[model.RunStatus]string{
		model.RunInProgress:        "transitioning",
		model.RunSucceeded:         "success",
		model.RunCompletedWithErrs: "error",
		model.RunFailed:            "error",
		model.RunAborted:           "error",
	}
	for in, want := range cases {
		if got := hostStatusString(in); got != want {
			t.Errorf("hostStatusString(%v) = %q, want %q", in, got, want)
		}
	}
}
