// Package diag implements SPEC_FULL.md module addition 4: a small local
// troubleshooting snapshot analogous to the original implementation's
// updatecenter_troubleshooter.py. It is not part of the host contract —
// nothing in the Orchestrator's normal path reads it back.
package diag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amidaware/patchcore/internal/config"
	"github.com/amidaware/patchcore/internal/distro"
	"github.com/amidaware/patchcore/internal/handlerenv"
	"github.com/amidaware/patchcore/internal/orchestrator"
)

// Snapshot is the resolved local diagnostic picture at one instant.
type Snapshot struct {
	TakenAt            time.Time
	DistroID           string
	DistroVersion      string
	AdapterFamily      string
	DistroError        string
	HighestSequence    int
	HasSettingsFile    bool
	LastStatusTerminal string
	PersistedMode      *config.PersistedMode
	PendingCoreState   *orchestrator.CoreState
}

// Take gathers a Snapshot from the live environment: the resolved distro,
// the highest-sequence settings file present, and the terminal status (if
// any) of the most recent status document.
func Take(env *handlerenv.Environment) Snapshot {
	s := Snapshot{TakenAt: time.Now()}

	if info, err := distro.Resolve(); err != nil {
		s.DistroError = err.Error()
	} else {
		s.DistroID = info.ID
		s.DistroVersion = info.VersionID
		s.AdapterFamily = string(info.Family)
	}

	if highest, ok, err := config.Highest(env.ConfigFolder); err == nil && ok {
		s.HighestSequence = highest.SequenceNumber
		s.HasSettingsFile = true
	}

	s.LastStatusTerminal = lastStatusTerminal(env.StatusFolder, s.HighestSequence)

	if pm, err := config.ReadMode(env.HandlerStateFolder); err == nil {
		s.PersistedMode = pm
	}

	if cs, err := orchestrator.ReadCoreState(env.HandlerStateFolder); err == nil {
		s.PendingCoreState = cs
	}

	return s
}

// lastStatusTerminal reads back the top-level host-contract status string
// ("success"/"error"/"transitioning") of the highest-sequence status
// document, without importing internal/status (diag is read-only and
// parses the on-disk envelope directly to avoid a dependency on the
// writer's internal types).
func lastStatusTerminal(statusDir string, sequenceNumber int) string {
	path := filepath.Join(statusDir, fmt.Sprintf("%d.status", sequenceNumber))
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var docs []struct {
		Status struct {
			Status string `json:"status"`
		} `json:"status"`
	}
	if err := json.Unmarshal(data, &docs); err != nil || len(docs) == 0 {
		return ""
	}
	return docs[0].Status.Status
}

// String renders the Snapshot as a short human-readable report, the -diag
// flag's entire output surface.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "taken at:       %s\n", s.TakenAt.Format(time.RFC3339))
	if s.DistroError != "" {
		fmt.Fprintf(&b, "distro:         unresolved (%s)\n", s.DistroError)
	} else {
		fmt.Fprintf(&b, "distro:         %s %s (adapter=%s)\n", s.DistroID, s.DistroVersion, s.AdapterFamily)
	}
	fmt.Fprintf(&b, "settings file:  present=%v highestSequence=%d\n", s.HasSettingsFile, s.HighestSequence)
	fmt.Fprintf(&b, "last status:    %s\n", valueOrNone(s.LastStatusTerminal))
	if s.PersistedMode != nil {
		fmt.Fprintf(&b, "patch mode:     patchMode=%s assessmentMode=%s\n", s.PersistedMode.PatchMode, s.PersistedMode.AssessmentMode)
	} else {
		fmt.Fprintf(&b, "patch mode:     (none persisted)\n")
	}
	if s.PendingCoreState != nil {
		fmt.Fprintf(&b, "core state:     activityId=%s lastCompletedIndex=%d updatedAt=%s (crash or unclean exit suspected)\n",
			s.PendingCoreState.ActivityID, s.PendingCoreState.LastCompletedIndex, s.PendingCoreState.UpdatedAt.Format(time.RFC3339))
	} else {
		fmt.Fprintf(&b, "core state:     (none pending)\n")
	}
	return b.String()
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
