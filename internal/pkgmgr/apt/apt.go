package apt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
	"github.com/amidaware/patchcore/internal/runner"
)

// commandGrace is the SIGTERM→SIGKILL grace the watchdog gives an
// apt-get/dpkg invocation once its context is cancelled (spec §4.E
// "fixed grace (e.g. 15s)").
const commandGrace = 15 * time.Second

// Adapter drives apt-get/dpkg-query for Debian/Ubuntu hosts.
type Adapter struct {
	// RunFn is overridable for tests; defaults to runner.Run.
	RunFn func(ctx context.Context, opts runner.Options) (runner.Result, error)
}

// New returns an apt Adapter wired to the real runner.
func New() *Adapter {
	return &Adapter{RunFn: runner.Run}
}

func (a *Adapter) run(ctx context.Context, name string, args ...string) (runner.Result, error) {
	return a.RunFn(ctx, runner.Options{Name: name, Args: args, GraceOnKill: commandGrace})
}

func (a *Adapter) Name() string { return "apt" }

func (a *Adapter) ListAvailableUpdates(ctx context.Context) ([]pkgmgr.Candidate, error) {
	res, err := a.run(ctx, "apt", "list", "--upgradable")
	if err != nil {
		return nil, model.Wrap(model.KindPackageManagerTransient, err, "failed to start apt list")
	}
	return ParseUpgradable(res.Stdout, res.Stderr, res.ExitCode)
}

func (a *Adapter) ListInstalled(ctx context.Context) ([]pkgmgr.Installed, error) {
	res, err := a.run(ctx, "dpkg-query", "-W", "-f=${Package} ${Version}\n")
	if err != nil {
		return nil, model.Wrap(model.KindPackageManagerTransient, err, "failed to start dpkg-query")
	}
	return ParseInstalled(res.Stdout), nil
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
	args := append([]string{"install", "--assume-no", "-s"}, names...)
	res, err := a.run(ctx, "apt-get", args...)
	if err != nil {
		return pkgmgr.SimulateResult{}, model.Wrap(model.KindPackageManagerTransient, err, "failed to start apt-get simulate")
	}
	return ParseSimulate(res.Stdout, res.Stderr, res.ExitCode, names)
}

func (a *Adapter) InstallOne(ctx context.Context, name, version string) (pkgmgr.InstallOutcome, error) {
	target := name
	if version != "" {
		target = fmt.Sprintf("%s=%s", name, version)
	}
	res, err := a.run(ctx, "apt-get", "install", "-y", "--no-install-recommends", target)
	if err != nil {
		return pkgmgr.InstallOutcome{}, model.Wrap(model.KindPackageManagerTransient, err, "failed to start apt-get install")
	}

	outcome := pkgmgr.InstallOutcome{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}

	if res.ExitCode != 0 {
		if isTransientAptFailure(res.Stderr) {
			return outcome, model.New(model.KindPackageManagerTransient, "apt lock contention or transient network error")
		}
		if isFatalAptFailure(res.Stderr) {
			return outcome, model.New(model.KindPackageManagerFatal, "apt cache corrupt or package manager unusable")
		}
		return outcome, model.New(model.KindPackageManagerFailed, strings.TrimSpace(res.Stderr))
	}

	rebootRequired, _ := a.RebootRequired(ctx)
	outcome.RebootRequired = rebootRequired
	return outcome, nil
}

func (a *Adapter) RebootRequired(ctx context.Context) (bool, error) {
	for _, p := range []string{"/var/run/reboot-required", "/run/reboot-required"} {
		if res, err := a.run(ctx, "test", "-e", p); err == nil && res.ExitCode == 0 {
			return true, nil
		}
	}
	return false, nil
}

func isTransientAptFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "could not get lock") ||
		strings.Contains(lower, "unable to lock") ||
		strings.Contains(lower, "resource temporarily unavailable")
}

func isFatalAptFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "dpkg was interrupted") ||
		strings.Contains(lower, "unrecoverable fatal error") ||
		strings.Contains(lower, "e: unable to locate package apt-get")
}

var _ pkgmgr.Adapter = (*Adapter)(nil)
