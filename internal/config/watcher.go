package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// pollInterval is the fallback cadence when fsnotify is unavailable or
// silent, satisfying spec §5's "polls the config directory at ≥1 Hz" even
// on filesystems (NFS-style mounts) where inotify events are unreliable.
const pollInterval = 500 * time.Millisecond

// Watcher observes dir for newly-appearing `.settings` files with a
// sequence number higher than baseline, notifying the Orchestrator so it
// can detect a NoOperation/cancel request for the current activity.
type Watcher struct {
	Dir      string
	Baseline int
	Log      *logrus.Entry

	// Changed receives the sequence number of each newly observed file
	// higher than the last one seen. Buffered so a fast producer never
	// blocks on a slow consumer losing intermediate signals (only the
	// latest sequence number matters).
	Changed chan int
}

// NewWatcher creates a Watcher seeded with the sequence number already
// being processed.
func NewWatcher(dir string, baseline int, log *logrus.Entry) *Watcher {
	return &Watcher{
		Dir:      dir,
		Baseline: baseline,
		Log:      log,
		Changed:  make(chan int, 1),
	}
}

// Run polls dir at pollInterval and additionally reacts to fsnotify events
// when available, until ctx is done. fsnotify only accelerates detection;
// the poll loop remains authoritative so behavior is identical on mounts
// where inotify doesn't fire (grounded on jinterlante1206-AleutianLocal's
// fsnotify+ticker combination).
func (w *Watcher) Run(ctx context.Context) {
	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		defer fsw.Close()
		_ = fsw.Add(w.Dir)
	} else if w.Log != nil {
		w.Log.WithError(err).Debug("fsnotify watcher unavailable, relying on poll loop only")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce()
		case ev, ok := <-fsnotifyEvents(fsw):
			if !ok {
				continue
			}
			_ = ev
			w.checkOnce()
		}
	}
}

func (w *Watcher) checkOnce() {
	highest, ok, err := Highest(w.Dir)
	if err != nil {
		if w.Log != nil {
			w.Log.WithError(err).Debug("config watcher failed to enumerate settings files")
		}
		return
	}
	if !ok || highest.SequenceNumber <= w.Baseline {
		return
	}
	w.Baseline = highest.SequenceNumber
	select {
	case w.Changed <- highest.SequenceNumber:
	default:
		// A signal is already pending; the consumer examines every
		// settings file at or above the signalled sequence number, so
		// dropping this wakeup loses no information.
	}
}

// fsnotifyEvents returns w's event channel, or nil if fsw is nil (a nil
// channel blocks forever in a select, which is exactly the no-op behavior
// wanted when fsnotify failed to initialize).
func fsnotifyEvents(fsw *fsnotify.Watcher) chan fsnotify.Event {
	if fsw == nil {
		return nil
	}
	return fsw.Events
}
