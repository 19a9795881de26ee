package model

import "github.com/google/uuid"

// SelectedState and InstallState form the lattice described in spec §3
// invariant 1.
type SelectedState string

const (
	SelectedStateSelected    SelectedState = "Selected"
	SelectedStateNotSelected SelectedState = "NotSelected"
	SelectedStateExcluded    SelectedState = "Excluded"
	SelectedStatePending     SelectedState = "Pending"
)

type InstallState string

const (
	InstallStatePending    InstallState = "Pending"
	InstallStateInstalling InstallState = "Installing"
	InstallStateInstalled  InstallState = "Installed"
	InstallStateFailed     InstallState = "Failed"
	InstallStateNotStarted InstallState = "NotStarted"
	InstallStateExcluded   InstallState = "Excluded"
)

// IsTerminal reports whether the InstallState is one of the terminal states
// named in the GLOSSARY.
func (s InstallState) IsTerminal() bool {
	switch s {
	case InstallStateInstalled, InstallStateFailed, InstallStateExcluded:
		return true
	default:
		return false
	}
}

// Patch is one candidate/selected package, identified by (Name, Version)
// per spec §3.
type Patch struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Version        string         `json:"version"`
	Classification Classification `json:"classification"`
	SelectedState  SelectedState  `json:"selectedState"`
	InstallState   InstallState   `json:"installState"`
	ErrorMessage   string         `json:"errorMessage,omitempty"`
}

// NewPatchID synthesizes the run-scoped correlation id mentioned in spec §3
// ("id (stable within a run)"), distinct from the (name, version) identity
// pair that two different runs would reuse.
func NewPatchID() string {
	return uuid.NewString()
}

// Identity returns the (name, version) pair spec §3 calls the Patch's
// identity.
func (p Patch) Identity() (string, string) {
	return p.Name, p.Version
}

// SetTerminalInstall enforces invariant 2: a Patch never regresses from
// Installed to a non-terminal state.
func (p *Patch) SetTerminalInstall(state InstallState, errMsg string) {
	if p.InstallState == InstallStateInstalled {
		return
	}
	p.InstallState = state
	p.ErrorMessage = errMsg
}

// Exclude marks a patch (and, per invariant 1, its install state) excluded.
func (p *Patch) Exclude() {
	p.SelectedState = SelectedStateExcluded
	if !p.InstallState.IsTerminal() {
		p.InstallState = InstallStateExcluded
	}
}
