// Package orchestrator implements the Orchestrator state machine (spec
// §4.G): Ingest → Plan → Execute → Finalize, gluing the distro resolver,
// package manager adapter, filter engine, deadline controller, status
// writer, and reboot manager together, with single-instance discipline and
// ConfigurePatching/NoOperation side-handling.
package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sirupsen/logrus"

	"github.com/amidaware/patchcore/internal/config"
	"github.com/amidaware/patchcore/internal/deadline"
	"github.com/amidaware/patchcore/internal/distro"
	"github.com/amidaware/patchcore/internal/filter"
	"github.com/amidaware/patchcore/internal/handlerenv"
	"github.com/amidaware/patchcore/internal/model"
	"github.com/amidaware/patchcore/internal/pkgmgr"
	"github.com/amidaware/patchcore/internal/pkgmgr/registry"
	"github.com/amidaware/patchcore/internal/reboot"
	"github.com/amidaware/patchcore/internal/status"
)

const lockPollInterval = 500 * time.Millisecond

// Orchestrator owns one invocation's worth of state-machine execution.
type Orchestrator struct {
	Env *handlerenv.Environment
	Log *logrus.Entry

	// resolveDistro/adapterFor are overridable seams for tests.
	resolveDistro func() (*distro.Info, error)
	adapterFor    func(distro.Family) (pkgmgr.Adapter, error)
}

func New(env *handlerenv.Environment, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		Env:           env,
		Log:           log,
		resolveDistro: distro.Resolve,
		adapterFor:    registry.For,
	}
}

// Execute runs one full pass of the state machine: it clears any reboot
// marker left by a previous invocation, then ingests the highest-sequence settings file
// and drives it through Plan/Execute/Finalize (or the ConfigurePatching/
// NoOperation side paths).
func (o *Orchestrator) Execute(ctx context.Context) error {
	if err := o.Env.EnsureDirs(); err != nil {
		return model.Wrap(model.KindConfigurationError, err, "failed to prepare handler directories")
	}

	rebootMgr := reboot.New(o.Env.HandlerStateFolder, o.Log)
	if err := o.resumeAfterReboot(rebootMgr); err != nil {
		o.Log.WithError(err).Warn("failed to resume Run after reboot marker")
	}

	lock, acquired, err := TryAcquire(o.Env.HandlerStateFolder)
	if err != nil {
		return err
	}
	if !acquired {
		o.Log.Info("another Orchestrator instance is executing, waiting for the lock")
		lock, err = WaitAcquire(ctx, o.Env.HandlerStateFolder, lockPollInterval)
		if err != nil {
			return err
		}
	}
	defer lock.Release()

	highest, ok, err := config.Highest(o.Env.ConfigFolder)
	if err != nil {
		return err
	}
	if !ok {
		return model.New(model.KindConfigurationError, "no settings file found in config directory")
	}

	req, err := config.Ingest(highest.Path, highest.SequenceNumber, time.Now())
	if err != nil {
		return o.finalizeConfigurationError(highest.SequenceNumber, err)
	}

	switch req.Operation {
	case model.OperationConfigurePatching:
		return o.handleConfigurePatching(req)
	case model.OperationNoOperation:
		return o.handleNoOperation(ctx, req)
	default:
		return o.handleAssessmentOrInstallation(ctx, req)
	}
}

// resumeAfterReboot runs before a fresh request is read. If a reboot marker
// from a previous invocation is present, it logs the resumption and deletes
// the marker.
func (o *Orchestrator) resumeAfterReboot(rebootMgr *reboot.Manager) error {
	marker, err := rebootMgr.ReadMarker()
	if err != nil {
		return err
	}
	if marker == nil {
		return nil
	}
	o.Log.WithField("activityId", marker.ActivityID).Info("resuming Run after reboot")
	// The prior Run's status document is not rewritten: it keeps the
	// terminal status and rebootStatus=Started flushed just before the
	// reboot was invoked, and rebootStatus=Completed is not recorded
	// anywhere. The Run record itself is not persisted across process
	// restarts.
	return rebootMgr.ClearMarker()
}

func (o *Orchestrator) finalizeConfigurationError(sequenceNumber int, cause error) error {
	run := &model.Run{
		Operation: model.OperationInstallation,
		StartedAt: time.Now(),
		Status:    model.RunInProgress,
	}
	run.AddSubstatus(cause.Error())
	run.SetTerminal(model.RunFailed, time.Now())

	writer := status.New(o.Env.StatusFolder, sequenceNumber, o.Log)
	go writer.Run()
	writer.Enqueue(run, true)
	writer.Close()
	<-writer.Done()
	return cause
}

func (o *Orchestrator) handleConfigurePatching(req *model.Request) error {
	if err := config.WriteMode(o.Env.HandlerStateFolder, req); err != nil {
		return o.finalizeConfigurationError(req.SequenceNumber, err)
	}

	run := model.NewRun(req, time.Now())
	run.Finalize(false, time.Now())

	writer := status.New(o.Env.StatusFolder, req.SequenceNumber, o.Log)
	go writer.Run()
	writer.Enqueue(run, true)
	writer.Close()
	<-writer.Done()
	return nil
}

// handleNoOperation reports success for a NoOperation request. Execute has
// already waited for and taken the advisory lock before dispatching here, so
// any concurrently executing Orchestrator has observed the cancellation and
// exited by the time this runs.
func (o *Orchestrator) handleNoOperation(ctx context.Context, req *model.Request) error {
	run := model.NewRun(req, time.Now())
	run.Finalize(false, time.Now())

	writer := status.New(o.Env.StatusFolder, req.SequenceNumber, o.Log)
	go writer.Run()
	writer.Enqueue(run, true)
	writer.Close()
	<-writer.Done()
	return nil
}

func (o *Orchestrator) handleAssessmentOrInstallation(ctx context.Context, req *model.Request) error {
	run := model.NewRun(req, time.Now())

	writer := status.New(o.Env.StatusFolder, req.SequenceNumber, o.Log)
	rebootMgr := reboot.New(o.Env.HandlerStateFolder, o.Log)
	dl := deadline.New(req.StartTime, req.MaximumDuration, config.HardCeilingInstallation)

	// A dedicated cancellable context (not errgroup's own derived context,
	// which only cancels on the first returned error) bounds the lifetime
	// of the supervised watcher goroutines below: they run until explicitly
	// told to stop once the state machine completes, not until one of them
	// fails.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	group, _ := errgroup.WithContext(workerCtx)
	group.Go(writer.Run)

	dl.WatchSignals(workerCtx)

	watcher := config.NewWatcher(o.Env.ConfigFolder, req.SequenceNumber, o.Log)
	group.Go(func() error {
		watcher.Run(workerCtx)
		return nil
	})
	group.Go(func() error {
		o.watchForNoOperation(workerCtx, watcher, req, dl)
		return nil
	})

	runErr := o.runStateMachine(workerCtx, req, run, writer, dl, rebootMgr)

	writer.Close()
	stopWorkers()
	_ = group.Wait()

	return runErr
}

// watchForNoOperation consumes watcher.Changed and, for each newer sequence
// number observed, checks whether it is a NoOperation for the same
// activityId (spec §4.E cancellation form (ii)).
func (o *Orchestrator) watchForNoOperation(ctx context.Context, watcher *config.Watcher, req *model.Request, dl *deadline.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case seq, ok := <-watcher.Changed:
			if !ok {
				return
			}
			candidates, err := config.Discover(o.Env.ConfigFolder)
			if err != nil {
				continue
			}
			for _, c := range candidates {
				if c.SequenceNumber < seq {
					continue
				}
				other, err := config.Ingest(c.Path, c.SequenceNumber, time.Now())
				if err != nil {
					continue
				}
				if other.Operation == model.OperationNoOperation && other.ActivityID == req.ActivityID {
					dl.MarkCancelled("no-operation")
				}
			}
		}
	}
}

func (o *Orchestrator) runStateMachine(ctx context.Context, req *model.Request, run *model.Run, writer *status.Writer, dl *deadline.Controller, rebootMgr *reboot.Manager) error {
	distroInfo, err := o.resolveDistro()
	if err != nil {
		run.AddSubstatus(err.Error())
		run.Finalize(false, time.Now())
		writer.Enqueue(run, true)
		return err
	}

	adapter, err := o.adapterFor(distroInfo.Family)
	if err != nil {
		run.AddSubstatus(err.Error())
		run.Finalize(false, time.Now())
		writer.Enqueue(run, true)
		return err
	}

	candidates, err := adapter.ListAvailableUpdates(ctx)
	if err != nil {
		run.AddSubstatus(err.Error())
		run.Finalize(false, time.Now())
		writer.Enqueue(run, true)
		return err
	}

	assessmentOnly := req.Operation == model.OperationAssessment
	eng := filter.New(adapter)
	patches, err := eng.Select(ctx, req, candidates, assessmentOnly)
	if err != nil {
		run.AddSubstatus(err.Error())
		run.Finalize(false, time.Now())
		writer.Enqueue(run, true)
		return err
	}
	for _, p := range patches {
		run.UpsertPatch(p)
	}
	writer.Enqueue(run, false)

	if assessmentOnly {
		run.Finalize(false, time.Now())
		writer.Enqueue(run, true)
		return nil
	}

	o.executeInstallLoop(ctx, run, writer, dl, adapter)

	cancelled, _ := dl.Cancelled()
	run.Finalize(cancelled, time.Now())

	o.applyRebootDecision(ctx, req, run, writer, rebootMgr, cancelled)

	writer.Enqueue(run, true)
	_ = ClearCoreState(o.Env.HandlerStateFolder)
	return nil
}

// executeInstallLoop processes selected patches one at a time, per spec
// §4.G "Execute → Execute per patch ... continue on per-patch failure
// ... unless the adapter returns PackageManagerFatal".
func (o *Orchestrator) executeInstallLoop(ctx context.Context, run *model.Run, writer *status.Writer, dl *deadline.Controller, adapter pkgmgr.Adapter) {
	for i := range run.Patches {
		p := &run.Patches[i]
		if p.SelectedState != model.SelectedStateSelected {
			continue
		}

		if cancelled, _ := dl.Cancelled(); cancelled {
			break
		}
		if dl.Checkpoint(time.Now(), "install") != deadline.Continue {
			break
		}

		p.InstallState = model.InstallStateInstalling
		writer.Enqueue(run, false)

		installCtx, cancelInstall := dl.WithCommandContext(ctx)
		start := time.Now()
		outcome, err := adapter.InstallOne(installCtx, p.Name, p.Version)
		cancelInstall()
		dl.RecordInstallDuration(time.Since(start))

		if err != nil {
			p.SetTerminalInstall(model.InstallStateFailed, err.Error())
			writer.Enqueue(run, false)
			_ = WriteCoreState(o.Env.HandlerStateFolder, run.ActivityID, i)
			if model.AsKind(err, model.KindPackageManagerFatal) {
				break
			}
			continue
		}

		p.SetTerminalInstall(model.InstallStateInstalled, "")
		if outcome.RebootRequired {
			run.RebootStatus = model.RebootStatusRequired
		}
		writer.Enqueue(run, false)
		_ = WriteCoreState(o.Env.HandlerStateFolder, run.ActivityID, i)
	}
}

// applyRebootDecision implements spec §4.D's policy table and reboot
// invocation, after the install loop has exited. cancelled short-circuits
// reboot.Decide's verdict regardless of rebootSetting: spec §8 Invariant 7
// reads "Always ⇒ reboot attempted iff Execute completed without Cancelled",
// so a cancelled Run never reboots even under rebootSetting=Always — it only
// records that one is owed, for the next Run to pick up via rebootRequired.
func (o *Orchestrator) applyRebootDecision(ctx context.Context, req *model.Request, run *model.Run, writer *status.Writer, rebootMgr *reboot.Manager, cancelled bool) {
	rebootRequired := run.RebootStatus == model.RebootStatusRequired

	if cancelled {
		if rebootRequired {
			run.RebootStatus = model.RebootStatusRequired
		}
		return
	}

	action := reboot.Decide(req.RebootSetting, rebootRequired)

	switch action {
	case reboot.ActionMarkRequiredOnly:
		run.RebootStatus = model.RebootStatusRequired
	case reboot.ActionReboot:
		run.RebootStatus = model.RebootStatusStarted
		writer.Enqueue(run, true)
		if err := rebootMgr.Invoke(ctx, run, run.Status); err != nil {
			run.RebootStatus = model.RebootStatusFailed
			run.AddSubstatus("reboot invocation failed: " + err.Error())
		}
	case reboot.ActionNone:
	}
}
