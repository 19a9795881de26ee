// Package status implements the Status Writer (spec §4.F): a single
// document per sequence number, written atomically (tmp-then-rename),
// coalesced to at most one write per 500ms during steady progress, with a
// guaranteed final write on terminal transitions.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/amidaware/patchcore/internal/model"
)

// coalesceInterval is the spec's "at most one write per 500ms" bound.
const coalesceInterval = 500 * time.Millisecond

const retryBackoffBase = 200 * time.Millisecond

const maxWriteAttempts = 3

// document is the top-level host-contract envelope: a one-element JSON
// array (spec §6 "Status file").
type document struct {
	Version      string    `json:"version"`
	TimestampUTC string    `json:"timestampUTC"`
	Status       docStatus `json:"status"`
}

type docStatus struct {
	Name             string           `json:"name"`
	Operation        model.Operation  `json:"operation"`
	Status           string           `json:"status"`
	Code             int              `json:"code"`
	FormattedMessage formattedMessage `json:"formattedMessage"`
	Substatus        []string         `json:"substatus,omitempty"`
}

type formattedMessage struct {
	Lang    string `json:"lang"`
	Message string `json:"message"`
}

// payload is the nested JSON object carried inside formattedMessage.message
// (spec §3/§4.F: "patches, errors, code, status").
type payload struct {
	Patches []model.Patch   `json:"patches"`
	Errors  []string        `json:"errors,omitempty"`
	Code    int             `json:"code"`
	Status  model.RunStatus `json:"status"`
}

// hostStatusString maps a Run's internal status to the three-valued
// host-contract status string used at the envelope level.
func hostStatusString(s model.RunStatus) string {
	switch s {
	case model.RunSucceeded:
		return "success"
	case model.RunCompletedWithErrs, model.RunFailed, model.RunAborted:
		return "error"
	default:
		return "transitioning"
	}
}

// update is one enqueued snapshot of the Run, submitted by any of the
// cross-cutting consumers named in spec §4.F (C, D, G).
type update struct {
	run      model.Run
	terminal bool
}

// Writer owns the single writer goroutine for one sequence number's status
// file. Construct with New and call Run in a supervised goroutine (the
// orchestrator wires this into its errgroup, grounded on bottlerocket
// dogswatch's supervised-goroutine pattern).
type Writer struct {
	Dir            string
	SequenceNumber int
	Log            *logrus.Entry

	updates chan update
	done    chan struct{}
}

func New(dir string, sequenceNumber int, log *logrus.Entry) *Writer {
	return &Writer{
		Dir:            dir,
		SequenceNumber: sequenceNumber,
		Log:            log,
		updates:        make(chan update, 64),
		done:           make(chan struct{}),
	}
}

// Enqueue submits a new Run snapshot. terminal forces an immediate flush
// bypassing coalescing, per spec §4.F "a final write is always issued on
// terminal transitions". Enqueue never blocks the caller on disk I/O; it
// only blocks if the bounded channel is full, which backpressures a runaway
// producer rather than growing memory without bound.
func (w *Writer) Enqueue(run *model.Run, terminal bool) {
	w.updates <- update{run: *run, terminal: terminal}
}

// Close signals the writer goroutine to stop after draining pending
// updates. Call after the final terminal Enqueue.
func (w *Writer) Close() {
	close(w.updates)
}

// Run drains the update channel, coalescing non-terminal writes to
// coalesceInterval and always flushing terminal ones immediately. It
// returns when the channel is closed and drained.
func (w *Writer) Run() error {
	var pending *update
	timer := time.NewTimer(coalesceInterval)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	flush := func(u update) {
		if err := w.writeWithRetry(u.run); err != nil {
			w.Log.WithError(err).Warn("status write failed after retries")
		}
	}

	for {
		select {
		case u, ok := <-w.updates:
			if !ok {
				if pending != nil {
					flush(*pending)
				}
				close(w.done)
				return nil
			}
			if u.terminal {
				if timerActive {
					timer.Stop()
					timerActive = false
				}
				pending = nil
				flush(u)
				continue
			}
			pending = &u
			if !timerActive {
				timer.Reset(coalesceInterval)
				timerActive = true
			}
		case <-timer.C:
			timerActive = false
			if pending != nil {
				flush(*pending)
				pending = nil
			}
		}
	}
}

// Done returns a channel that closes once Run has drained and returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) path() string {
	return filepath.Join(w.Dir, fmt.Sprintf("%d.status", w.SequenceNumber))
}

// writeWithRetry attempts the atomic write up to maxWriteAttempts times
// with linear backoff, per spec §4.F "retried with backoff". Repeated
// failure is returned to the caller, which logs it as a warning and goes
// on without aborting the Run; the failure is not added to the Run's
// substatus.
func (w *Writer) writeWithRetry(run model.Run) error {
	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		if err := w.writeOnce(run); err != nil {
			lastErr = err
			time.Sleep(time.Duration(attempt) * retryBackoffBase)
			continue
		}
		return nil
	}
	return errors.Wrap(lastErr, "status write failed after retries")
}

func (w *Writer) writeOnce(run model.Run) error {
	var errs []string
	for _, p := range run.Patches {
		if p.ErrorMessage != "" {
			errs = append(errs, fmt.Sprintf("%s: %s", p.Name, p.ErrorMessage))
		}
	}

	pl := payload{
		Patches: run.Patches,
		Errors:  errs,
		Code:    0,
		Status:  run.Status,
	}
	msgBytes, err := json.Marshal(pl)
	if err != nil {
		return errors.Wrap(err, "marshal status payload")
	}

	doc := []document{{
		Version:      "1.0",
		TimestampUTC: time.Now().UTC().Format(time.RFC3339),
		Status: docStatus{
			Name:      "patchcore",
			Operation: run.Operation,
			Status:    hostStatusString(run.Status),
			Code:      0,
			FormattedMessage: formattedMessage{
				Lang:    "en",
				Message: string(msgBytes),
			},
			Substatus: run.Substatus,
		},
	}}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal status document")
	}

	finalPath := w.path()
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return errors.Wrap(err, "write status temp file")
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return errors.Wrap(err, "rename status file into place")
	}
	return nil
}
