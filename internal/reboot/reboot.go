// Package reboot implements the Reboot Manager (spec §4.D): it decides,
// from rebootSetting and the post-install reboot-required signal, whether a
// reboot is owed, persists a marker before invoking one, and lets the next
// invocation read and clear that marker after the machine comes back up.
package reboot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/amidaware/patchcore/internal/model"
)

const markerFileName = "reboot.marker.json"

// Marker is the persisted record written to the handler-state directory
// before invoking the OS reboot, and read and cleared on the next
// invocation (spec §4.D "persists a marker ... the Orchestrator ... checks
// for this marker").
type Marker struct {
	ActivityID     string          `json:"activityId"`
	IntendedStatus model.RunStatus `json:"intendedStatus"`
	WrittenAt      time.Time       `json:"writtenAt"`
}

// Action is the decision the Reboot Manager's policy table produces.
type Action int

const (
	ActionNone Action = iota
	ActionMarkRequiredOnly
	ActionReboot
)

// Decide implements spec §4.D's policy table.
func Decide(setting model.RebootSetting, rebootRequired bool) Action {
	switch setting {
	case model.RebootNever:
		if rebootRequired {
			return ActionMarkRequiredOnly
		}
		return ActionNone
	case model.RebootAlways:
		return ActionReboot
	case model.RebootIfRequired:
		if rebootRequired {
			return ActionReboot
		}
		return ActionNone
	default:
		return ActionNone
	}
}

// Manager owns the reboot marker and the actual OS reboot invocation for one
// handler-state directory.
type Manager struct {
	StateDir string
	Log      *logrus.Entry

	// rebootFn performs the actual OS reboot; overridable in tests.
	rebootFn func() error
}

func New(stateDir string, log *logrus.Entry) *Manager {
	return &Manager{
		StateDir: stateDir,
		Log:      log,
		rebootFn: systemReboot,
	}
}

func (m *Manager) markerPath() string {
	return filepath.Join(m.StateDir, markerFileName)
}

// WriteMarker persists the Run's identity and intended terminal outcome
// before a reboot is invoked, per spec §4.D.
func (m *Manager) WriteMarker(run *model.Run, intended model.RunStatus) error {
	marker := Marker{
		ActivityID:     run.ActivityID,
		IntendedStatus: intended,
		WrittenAt:      time.Now(),
	}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal reboot marker")
	}
	tmp := m.markerPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write reboot marker temp file")
	}
	if err := os.Rename(tmp, m.markerPath()); err != nil {
		return errors.Wrap(err, "rename reboot marker into place")
	}
	return nil
}

// ReadMarker returns the pending marker, if any. A missing marker is not an
// error — it is the common case (no reboot was pending).
func (m *Manager) ReadMarker() (*Marker, error) {
	data, err := os.ReadFile(m.markerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read reboot marker")
	}
	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, errors.Wrap(err, "parse reboot marker")
	}
	return &marker, nil
}

// ClearMarker deletes the marker once the next invocation has read it.
func (m *Manager) ClearMarker() error {
	err := os.Remove(m.markerPath())
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove reboot marker")
	}
	return nil
}

// Invoke writes the marker and then triggers the OS reboot. A reboot command
// that "succeeds" typically never returns to the caller — the process is
// killed by SIGTERM as the system goes down, which spec §4.D directs the
// controller to treat as expected completion, not failure. Invoke therefore
// does not treat ctx cancellation during the reboot call as an error.
func (m *Manager) Invoke(ctx context.Context, run *model.Run, intended model.RunStatus) error {
	if err := m.WriteMarker(run, intended); err != nil {
		return err
	}
	m.Log.WithField("activityId", run.ActivityID).Info("reboot marker written, invoking OS reboot")

	err := m.rebootFn()
	if err != nil && ctx.Err() != nil {
		// A SIGTERM arrived mid-reboot-call: expected, per spec §4.D.
		return nil
	}
	return err
}

// systemReboot issues a reboot via the unix syscall, grounded on the same
// golang.org/x/sys/unix package the teacher uses for signal delivery
// (agent/system/system.go), generalized here from SIGTERM/SIGKILL delivery
// to the LINUX_REBOOT syscall family.
func systemReboot() error {
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
