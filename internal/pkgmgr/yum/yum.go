package yum

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
	"github.com/amidaware/patchcore/internal/runner"
)

// commandGrace is the SIGTERM→SIGKILL grace the watchdog gives a yum/dnf
// invocation once its context is cancelled (spec §4.E "fixed grace (e.g.
// 15s)").
const commandGrace = 15 * time.Second

// Adapter drives either yum or dnf, selected by Bin ("yum" or "dnf").
type Adapter struct {
	Bin   string
	RunFn func(ctx context.Context, opts runner.Options) (runner.Result, error)
}

// New returns an Adapter for the given binary ("yum" or "dnf").
func New(bin string) *Adapter {
	return &Adapter{Bin: bin, RunFn: runner.Run}
}

func (a *Adapter) run(ctx context.Context, args ...string) (runner.Result, error) {
	return a.RunFn(ctx, runner.Options{Name: a.Bin, Args: args, GraceOnKill: commandGrace})
}

func (a *Adapter) Name() string { return a.Bin }

func (a *Adapter) ListAvailableUpdates(ctx context.Context) ([]pkgmgr.Candidate, error) {
	res, err := a.run(ctx, "-q", "check-update")
	if err != nil {
		return nil, model.Wrap(model.KindPackageManagerTransient, err, "failed to start "+a.Bin+" check-update")
	}
	candidates, parseErr := ParseCheckUpdate(res.Stdout, res.ExitCode)
	if parseErr != nil {
		return nil, parseErr
	}

	// Classify via the security-only check-update, matching original_source
	// YumPackageManager.get_security_updates's diff-based approach (spec
	// §4.B "for yum/dnf, from the updateinfo advisory type").
	secRes, secErr := a.run(ctx, "-q", "--security", "check-update")
	if secErr == nil {
		if secCandidates, err := ParseCheckUpdate(secRes.Stdout, secRes.ExitCode); err == nil {
			secSet := make(map[string]bool, len(secCandidates))
			for _, c := range secCandidates {
				secSet[c.Name] = true
			}
			for i := range candidates {
				if secSet[candidates[i].Name] {
					candidates[i].Classification = model.ClassificationSecurity
				} else {
					candidates[i].Classification = model.ClassificationOther
				}
			}
		}
	}

	return candidates, nil
}

func (a *Adapter) ListInstalled(ctx context.Context) ([]pkgmgr.Installed, error) {
	res, err := a.run(ctx, "list", "installed")
	if err != nil {
		return nil, model.Wrap(model.KindPackageManagerTransient, err, "failed to start "+a.Bin+" list installed")
	}
	// yum/dnf "list installed" shares the same NEVRA-per-line shape as
	// check-update, minus the repo column semantics we don't need here.
	candidates, _ := ParseCheckUpdate(res.Stdout, 0)
	installed := make([]pkgmgr.Installed, 0, len(candidates))
	for _, c := range candidates {
		installed = append(installed, pkgmgr.Installed{Name: c.Name, Version: c.Version})
	}
	return installed, nil
}

func (a *Adapter) Classify(ctx context.Context, names []string) (map[string]model.Classification, error) {
	updates, err := a.ListAvailableUpdates(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make(map[string]model.Classification)
	for _, u := range updates {
		if want[u.Name] {
			out[u.Name] = u.Classification
		}
	}
	for _, n := range names {
		if _, ok := out[n]; !ok {
			out[n] = model.ClassificationUnknown
		}
	}
	return out, nil
}

func (a *Adapter) SimulateInstall(ctx context.Context, names []string) (pkgmgr.SimulateResult, error) {
	args := append([]string{"-y", "--assumeno", "install"}, names...)
	res, err := a.run(ctx, args...)
	if err != nil {
		return pkgmgr.SimulateResult{}, model.Wrap(model.KindPackageManagerTransient, err, "failed to start "+a.Bin+" simulate install")
	}
	return ParseSimulate(res.Stdout, res.Stderr, res.ExitCode, names)
}

func (a *Adapter) InstallOne(ctx context.Context, name, version string) (pkgmgr.InstallOutcome, error) {
	target := name
	if version != "" {
		target = fmt.Sprintf("%s-%s", name, version)
	}
	res, err := a.run(ctx, "-y", "install", target)
	if err != nil {
		return pkgmgr.InstallOutcome{}, model.Wrap(model.KindPackageManagerTransient, err, "failed to start "+a.Bin+" install")
	}

	outcome := pkgmgr.InstallOutcome{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}

	if res.ExitCode != 0 {
		if isTransient(res.Stderr) {
			return outcome, model.New(model.KindPackageManagerTransient, "repo metadata lock or network blip")
		}
		if isFatal(res.Stderr) {
			return outcome, model.New(model.KindPackageManagerFatal, "rpm database corrupt or package manager unusable")
		}
		return outcome, model.New(model.KindPackageManagerFailed, strings.TrimSpace(res.Stderr))
	}

	rebootRequired, _ := a.RebootRequired(ctx)
	outcome.RebootRequired = rebootRequired
	return outcome, nil
}

func (a *Adapter) RebootRequired(ctx context.Context) (bool, error) {
	// https://man7.org/linux/man-pages/man1/needs-restarting.1.html
	// -r: exit 1 means reboot required, 0 means not required.
	res, err := runner.Quick(ctx, "needs-restarting", "-r")
	if err != nil {
		if exitErr, ok := runner.ExitCode(err); ok {
			return exitErr == 1, nil
		}
		return false, nil
	}
	_ = res
	return false, nil
}

func isTransient(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "could not be locked") ||
		strings.Contains(lower, "temporary failure") ||
		strings.Contains(lower, "cannot retrieve repository metadata")
}

func isFatal(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "rpmdb") && strings.Contains(lower, "corrupt")
}

var _ pkgmgr.Adapter = (*Adapter)(nil)
