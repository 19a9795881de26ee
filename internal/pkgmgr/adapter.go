// Package pkgmgr defines the capability-uniform Package Manager Adapter
// contract (spec §4.B); the registry that resolves a distro.Family to its
// concrete implementation lives in the pkgmgr/registry subpackage. Each
// family's parser lives in its own
// subpackage, e.g. pkgmgr/apt, mirroring the teacher's one-adapter-per-
// capability style (agent/patching for WUA) generalized to four Linux
// families instead of one Windows facility.
package pkgmgr

import (
	"context"

	"github.com/amidaware/patchcore/internal/model"
)

// Candidate is a single package the adapter reports as available for
// installation (before classification/filtering).
type Candidate struct {
	Name           string
	Version        string
	Classification model.Classification // Unknown when the tool doesn't expose one
}

// Installed is a single currently-installed package.
type Installed struct {
	Name    string
	Version string
}

// SimulateResult is the outcome of a dry-run install used to discover the
// dependency closure (spec §4.C.4).
type SimulateResult struct {
	Requested             []string
	AdditionalDependencies []string
	Conflicts             []string
}

// InstallOutcome is the result of installing exactly one package (spec
// §4.B "bulk install is decomposed by the orchestrator so per-patch status
// is attributable").
type InstallOutcome struct {
	ExitCode       int
	RebootRequired bool
	Stdout         string
	Stderr         string
}

// Adapter is the capability contract every package-manager family
// implements uniformly; internal differences (apt vs dnf vs zypper syntax)
// are hidden behind it. Spec §9 "model the adapter as a capability set
// (interface) with one implementation per family; avoid inheritance".
type Adapter interface {
	// Name identifies the family, e.g. "apt".
	Name() string

	// ListAvailableUpdates enumerates patches currently available.
	ListAvailableUpdates(ctx context.Context) ([]Candidate, error)

	// ListInstalled enumerates currently installed packages.
	ListInstalled(ctx context.Context) ([]Installed, error)

	// Classify resolves classification for the given package names.
	Classify(ctx context.Context, names []string) (map[string]model.Classification, error)

	// SimulateInstall dry-runs installing names to discover the
	// transitive dependency closure.
	SimulateInstall(ctx context.Context, names []string) (SimulateResult, error)

	// InstallOne installs a single package, optionally pinned to version.
	InstallOne(ctx context.Context, name, version string) (InstallOutcome, error)

	// RebootRequired checks tool-specific reboot signals.
	RebootRequired(ctx context.Context) (bool, error)
}

// Classify errors never escape an Adapter method as a raw error; every
// exported method returns a *model.Error (via Go's error interface) so
// callers can always inspect .Kind per spec §4.B/§7. NewUnsupported is a
// convenience for family registration failures.
func NewUnsupported(family string) error {
	return model.New(model.KindUnsupportedDistro, "no adapter for family: "+family)
}
