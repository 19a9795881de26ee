// Package deadline implements the Deadline & Cancellation Controller (spec
// §4.E): a monotonic wall-clock budget, a checkpoint decision between
// stages, and observation of the two cancellation signals (SIGTERM, and a
// newer NoOperation .settings sequence for the same activity).
package deadline

import (
	"context"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Decision is the outcome of a checkpoint call.
type Decision int

const (
	// Continue means there is enough remaining budget for another stage.
	Continue Decision = iota
	// StopWithPartial means the deadline is close but a graceful wrap-up
	// (status flush, no reboot) still fits within 60s.
	StopWithPartial
	// StopNow means the deadline has already been exceeded.
	StopNow
)

func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case StopWithPartial:
		return "stopWithPartial"
	case StopNow:
		return "stopNow"
	default:
		return "unknown"
	}
}

// wrapUpWindow is the graceful-exit budget the spec names explicitly
// ("a graceful wrap-up ... is possible within 60 s").
const wrapUpWindow = 60 * time.Second

// estimateWindow is how many recent single-patch install durations the
// rolling estimate considers (SPEC_FULL.md module addition 2, grounded on
// original_source's MaintenanceWindow adaptive duration tracking).
const estimateWindow = 3

// defaultEstimate seeds the rolling estimate before any install has
// completed, matching the spec's "median install time" fallback language.
const defaultEstimate = 90 * time.Second

// Controller owns the deadline for one Run and the rolling per-install
// duration estimate used to size the checkpoint decision.
type Controller struct {
	deadline time.Time

	mu         sync.Mutex
	durations  []time.Duration
	cancelled  bool
	cancelKind string // "sigterm" or "no-operation"

	sigCh chan struct{}
}

// New creates a Controller whose deadline is start+maxDuration, capped by
// hardCeiling (the per-operation hard ceiling applied at config ingest).
func New(start time.Time, maxDuration, hardCeiling time.Duration) *Controller {
	d := maxDuration
	if hardCeiling > 0 && d > hardCeiling {
		d = hardCeiling
	}
	return &Controller{
		deadline: start.Add(d),
		sigCh:    make(chan struct{}),
	}
}

// Remaining returns the time left until the deadline, which may be
// negative once exceeded.
func (c *Controller) Remaining(now time.Time) time.Duration {
	return c.deadline.Sub(now)
}

// RecordInstallDuration feeds one completed single-patch install's duration
// into the rolling estimate, keeping only the most recent estimateWindow
// samples.
func (c *Controller) RecordInstallDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.durations = append(c.durations, d)
	if len(c.durations) > estimateWindow {
		c.durations = c.durations[len(c.durations)-estimateWindow:]
	}
}

// estimate returns the rolling average of the last estimateWindow install
// durations, or defaultEstimate before any sample exists.
func (c *Controller) estimate() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.durations) == 0 {
		return defaultEstimate
	}
	var sum time.Duration
	for _, d := range c.durations {
		sum += d
	}
	return sum / time.Duration(len(c.durations))
}

// Checkpoint implements spec §4.E's decision rule. stage is accepted for
// callers that want to log it but does not affect the decision itself — the
// estimate is always "a single-patch install", the only stage granularity
// the Execute loop checkpoints at.
func (c *Controller) Checkpoint(now time.Time, stage string) Decision {
	remaining := c.Remaining(now)
	if remaining <= 0 {
		return StopNow
	}
	est := c.estimate()
	threshold := time.Duration(float64(est) * 1.5)
	if remaining > threshold {
		return Continue
	}
	if remaining >= wrapUpWindow {
		return StopWithPartial
	}
	return StopNow
}

// Cancelled reports whether external cancellation (SIGTERM or a NoOperation
// sequence) has been observed, and what triggered it.
func (c *Controller) Cancelled() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled, c.cancelKind
}

// MarkCancelled records an external cancellation signal. kind is "sigterm"
// or "no-operation". Safe to call more than once; the first call wins.
func (c *Controller) MarkCancelled(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	c.cancelKind = kind
	close(c.sigCh)
}

// Done returns a channel that closes the moment cancellation is observed,
// for goroutines that want to select on it alongside a context deadline.
func (c *Controller) Done() <-chan struct{} {
	return c.sigCh
}

// Deadline returns the wall-clock time this Controller's budget expires.
func (c *Controller) Deadline() time.Time {
	return c.deadline
}

// WithCommandContext derives a context for one external command invocation
// that the watchdog (spec §5 "while it blocks, the watchdog task observes
// the deadline and the cancellation signal and, on trigger, sends
// SIGTERM→SIGKILL") can cancel while the command is already running: the
// returned context is bounded by c's deadline and is also cancelled the
// moment MarkCancelled fires, even mid-command. runner.Run reacts to ctx
// cancellation by sending SIGTERM then SIGKILL after its grace period, so
// deriving the command's context from here is what actually arms that path
// (spec §4.E "the controller sends SIGTERM then SIGKILL to the child after a
// fixed grace"). Callers must call the returned cancel func once the command
// completes to release the watcher goroutine.
func (c *Controller) WithCommandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithDeadline(parent, c.deadline)
	go func() {
		select {
		case <-c.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// WatchSignals observes process-level SIGTERM (spec §4.E cancellation form
// (i)) for the lifetime of ctx and calls MarkCancelled("sigterm") on
// receipt. It mirrors the teacher's pattern of wrapping
// golang.org/x/sys/unix signal constants rather than the numeric raw
// values, generalized here from the command-runner's kill path to a
// top-level process signal notification.
func (c *Controller) WatchSignals(ctx context.Context) {
	notifyCtx, stop := signal.NotifyContext(ctx, unix.SIGTERM)
	go func() {
		defer stop()
		select {
		case <-notifyCtx.Done():
			if ctx.Err() == nil {
				c.MarkCancelled("sigterm")
			}
		case <-ctx.Done():
		}
	}()
}
