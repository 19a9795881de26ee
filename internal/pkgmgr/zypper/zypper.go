package zypper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
	"github.com/amidaware/patchcore/internal/runner"
)

// commandGrace is the SIGTERM→SIGKILL grace the watchdog gives a zypper/rpm
// invocation once its context is cancelled (spec §4.E "fixed grace (e.g.
// 15s)").
const commandGrace = 15 * time.Second

// Adapter drives zypper for SUSE/openSUSE hosts.
type Adapter struct {
	RunFn func(ctx context.Context, opts runner.Options) (runner.Result, error)
}

func New() *Adapter {
	return &Adapter{RunFn: runner.Run}
}

func (a *Adapter) run(ctx context.Context, args ...string) (runner.Result, error) {
	return a.RunFn(ctx, runner.Options{Name: "zypper", Args: args, GraceOnKill: commandGrace})
}

func (a *Adapter) Name() string { return "zypper" }

func (a *Adapter) ListAvailableUpdates(ctx context.Context) ([]pkgmgr.Candidate, error) {
	res, err := a.run(ctx, "--non-interactive", "list-patches")
	if err != nil {
		return nil, model.Wrap(model.KindPackageManagerTransient, err, "failed to start zypper list-patches")
	}
	return ParseListPatches(res.Stdout)
}

func (a *Adapter) ListInstalled(ctx context.Context) ([]pkgmgr.Installed, error) {
	out, err := a.RunFn(ctx, runner.Options{Name: "rpm", Args: []string{"-qa", "--qf", "%{NAME} %{VERSION}-%{RELEASE}\n"}})
	if err != nil {
		return nil, model.Wrap(model.KindPackageManagerTransient, err, "failed to start rpm -qa")
	}
	return ParseInstalled(out.Stdout), nil
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
	args := append([]string{"--non-interactive", "install", "--dry-run"}, names...)
	res, err := a.run(ctx, args...)
	if err != nil {
		return pkgmgr.SimulateResult{}, model.Wrap(model.KindPackageManagerTransient, err, "failed to start zypper simulate install")
	}
	return ParseSimulate(res.Stdout, res.Stderr, res.ExitCode, names)
}

func (a *Adapter) InstallOne(ctx context.Context, name, version string) (pkgmgr.InstallOutcome, error) {
	target := name
	if version != "" {
		target = fmt.Sprintf("%s=%s", name, version)
	}
	res, err := a.run(ctx, "--non-interactive", "install", target)
	if err != nil {
		return pkgmgr.InstallOutcome{}, model.Wrap(model.KindPackageManagerTransient, err, "failed to start zypper install")
	}

	outcome := pkgmgr.InstallOutcome{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}

	// zypper exit code 106: "signature check failed/repos stale" is
	// transient; 104: "not found" is permanent per-patch; others bucket
	// into fatal only when the rpm database itself is implicated.
	if res.ExitCode != 0 {
		if res.ExitCode == 106 {
			return outcome, model.New(model.KindPackageManagerTransient, "zypper repository signature/refresh issue")
		}
		if strings.Contains(strings.ToLower(res.Stderr), "rpm database") {
			return outcome, model.New(model.KindPackageManagerFatal, "rpm database corrupt or package manager unusable")
		}
		return outcome, model.New(model.KindPackageManagerFailed, strings.TrimSpace(res.Stderr))
	}

	rebootRequired, _ := a.RebootRequired(ctx)
	outcome.RebootRequired = rebootRequired
	return outcome, nil
}

func (a *Adapter) RebootRequired(ctx context.Context) (bool, error) {
	res, err := a.run(ctx, "ps", "-s")
	if err != nil {
		return false, nil
	}
	return ParsePsRebootHint(res.Stdout), nil
}

var _ pkgmgr.Adapter = (*Adapter)(nil)
