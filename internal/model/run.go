package model

import "time"

// RunStatus is the Run record's terminal/non-terminal status (spec §3).
type RunStatus string

const (
	RunInProgress        RunStatus = "InProgress"
	RunSucceeded         RunStatus = "Succeeded"
	RunCompletedWithErrs RunStatus = "CompletedWithErrors"
	RunFailed            RunStatus = "Failed"
	RunAborted           RunStatus = "Aborted"
)

// IsTerminal reports whether the Run status is one of the four terminal
// values. Once terminal, spec invariant 3 requires it never changes again.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunSucceeded, RunCompletedWithErrs, RunFailed, RunAborted:
		return true
	default:
		return false
	}
}

// RebootStatus tracks the Reboot Manager's progress (spec §4.D).
type RebootStatus string

const (
	RebootStatusNotStarted RebootStatus = "NotStarted"
	RebootStatusRequired   RebootStatus = "Required"
	RebootStatusStarted    RebootStatus = "Started"
	RebootStatusCompleted  RebootStatus = "Completed"
	RebootStatusFailed     RebootStatus = "Failed"
)

// Run is the mutable record of one execution of an Operation against one
// Request (spec §3). It is created when the Orchestrator begins and sealed
// at its exit; only the Orchestrator mutates it.
type Run struct {
	ActivityID   string       `json:"activityId"`
	Operation    Operation    `json:"operation"`
	StartedAt    time.Time    `json:"startedAt"`
	CompletedAt  *time.Time   `json:"completedAt,omitempty"`
	Status       RunStatus    `json:"status"`
	Patches      []Patch      `json:"patches"`
	RebootStatus RebootStatus `json:"rebootStatus"`
	Substatus    []string     `json:"substatusMessages,omitempty"`
}

// NewRun creates an InProgress Run for the given Request.
func NewRun(req *Request, now time.Time) *Run {
	return &Run{
		ActivityID:   req.ActivityID,
		Operation:    req.Operation,
		StartedAt:    now,
		Status:       RunInProgress,
		Patches:      make([]Patch, 0),
		RebootStatus: RebootStatusNotStarted,
	}
}

// SetTerminal enforces invariant 3: the status is monotone once terminal.
func (r *Run) SetTerminal(status RunStatus, now time.Time) {
	if r.Status.IsTerminal() {
		return
	}
	r.Status = status
	r.CompletedAt = &now
}

// AddSubstatus appends a diagnostic message (e.g. the error that ended a
// Run early) without affecting the Run's terminal status.
func (r *Run) AddSubstatus(msg string) {
	r.Substatus = append(r.Substatus, msg)
}

// UpsertPatch inserts or replaces the patch row matching (name, version),
// preserving arrival order for new rows (spec §5 "writer preserves arrival
// order").
func (r *Run) UpsertPatch(p Patch) {
	for i := range r.Patches {
		if r.Patches[i].Name == p.Name && r.Patches[i].Version == p.Version {
			r.Patches[i] = p
			return
		}
	}
	r.Patches = append(r.Patches, p)
}

// Finalize computes the terminal Run status from the final patch rows, per
// spec §4.G Finalize rules. cancelled indicates termination was caused by
// cancellation (SIGTERM or a NoOperation sequence), which takes precedence
// and yields Aborted.
func (r *Run) Finalize(cancelled bool, now time.Time) {
	if r.Status.IsTerminal() {
		return
	}

	if cancelled {
		r.SetTerminal(RunAborted, now)
		return
	}

	var installed, failed int
	for _, p := range r.Patches {
		switch p.InstallState {
		case InstallStateInstalled:
			installed++
		case InstallStateFailed, InstallStateExcluded:
			failed++
		}
	}

	switch {
	case installed == 0 && failed == 0:
		r.SetTerminal(RunSucceeded, now)
	case installed > 0 && failed == 0:
		r.SetTerminal(RunSucceeded, now)
	case installed > 0 && failed > 0:
		r.SetTerminal(RunCompletedWithErrs, now)
	default:
		r.SetTerminal(RunFailed, now)
	}
}
