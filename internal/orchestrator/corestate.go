package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const coreStateFileName = "core-state.json"

// CoreState is SPEC_FULL.md module addition 3: a small, purely informational
// record of in-progress Execute work, written alongside the reboot marker so
// a crash (not just a planned reboot) mid-Execute can be told apart from a
// clean exit on the next invocation. It is never read back to resume
// mid-stream — Ingest always starts a fresh Run.
type CoreState struct {
	ActivityID         string    `json:"activityId"`
	LastCompletedIndex int       `json:"lastCompletedIndex"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func coreStatePath(stateDir string) string {
	return filepath.Join(stateDir, coreStateFileName)
}

// WriteCoreState persists progress atomically (tmp-then-rename), mirroring
// the Status Writer's and Reboot Manager's write discipline.
func WriteCoreState(stateDir, activityID string, lastCompletedIndex int) error {
	cs := CoreState{ActivityID: activityID, LastCompletedIndex: lastCompletedIndex, UpdatedAt: time.Now()}
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal core state")
	}
	path := coreStatePath(stateDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write core state temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename core state into place")
}

// ReadCoreState reads back the last-written progress record, for
// diagnostics only (internal/diag). Returns nil, nil if absent.
func ReadCoreState(stateDir string) (*CoreState, error) {
	data, err := os.ReadFile(coreStatePath(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read core state")
	}
	var cs CoreState
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, errors.Wrap(err, "parse core state")
	}
	return &cs, nil
}

// ClearCoreState removes the record after a clean Finalize.
func ClearCoreState(stateDir string) error {
	err := os.Remove(coreStatePath(stateDir))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove core state")
	}
	return nil
}
