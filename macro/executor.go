package macro

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rkolbi/simple-sender/gate"
	"github.com/rkolbi/simple-sender/modal"
	"github.com/rkolbi/simple-sender/status"
	"github.com/rkolbi/simple-sender/stream"
)

// waitTimeout bounds how long %wait waits for a fresh status sample;
// waitPollInterval bounds %update's single wait. %wait does not poll on an
// interval of its own: it waits for the next sample the status poller
// delivers.
const (
	waitPollInterval = 100 * time.Millisecond
	waitTimeout      = 30 * time.Second
)

// lineAckTimeout bounds how long Run waits for a dispatched macro line's
// own ok plus a following Idle sample before giving up (spec §4.G: "each
// macro line waits for its own ok + an Idle status sample before next").
const lineAckTimeout = 30 * time.Second

// Notifier lets the executor surface a %msg line to whatever UI is
// attached, without the macro package depending on one.
type Notifier func(msg string)

// Executor runs one macro body against a Gate, coordinating with the
// Controller's ack callback and the status Tracker (spec §9's design
// note on the macro executor).
type Executor struct {
	gate    *gate.Gate
	tracker *status.Tracker
	vars    *Vars
	log     *logrus.Entry
	notify  Notifier

	ackCh chan stream.PendingEntry
}

// NewExecutor returns an Executor. notify may be nil to discard %msg
// output. log may be nil to use the standard logger.
func NewExecutor(g *gate.Gate, tracker *status.Tracker, log *logrus.Entry, notify Notifier) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if notify == nil {
		notify = func(string) {}
	}
	return &Executor{
		gate:    g,
		tracker: tracker,
		vars:    NewVars(),
		log:     log.WithField("component", "macro"),
		notify:  notify,
		ackCh:   make(chan stream.PendingEntry, 1),
	}
}

// Vars exposes the executor's variable map, so a caller can seed it
// (e.g. with machine position) before Run.
func (e *Executor) Vars() *Vars { return e.vars }

// OnAck is wired into stream.Options.OnAck so the executor learns when
// its own dispatched MacroLine was popped by an inbound "ok".
func (e *Executor) OnAck(entry stream.PendingEntry) {
	if entry.Class != stream.MacroLine {
		return
	}
	select {
	case e.ackCh <- entry:
	default:
		// A prior ack wasn't consumed (the executor isn't waiting, or
		// already saw one); drop rather than block the controller.
	}
}

// Run executes body (a macro's lines, after its header has been
// stripped by ParseFile) against ctrl. It snapshots ctrl.CurrentModal()
// before starting and restores that snapshot only when the body contains a
// %state_return directive; normal completion does not restore it.
func (e *Executor) Run(ctx context.Context, ctrl *stream.Controller, body string) error {
	release := e.gate.AcquireMacro()
	defer release()

	e.log.Debug("macro run starting")
	defer e.log.Debug("macro run finished")

	preRun := ctrl.CurrentModal()

	// skipNext holds whether the line immediately following a %if should
	// be skipped. %if guards exactly the single next non-directive line
	// (an Open Question resolution, recorded in DESIGN.md).
	skipNext := false

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		if d, ok := parseDirective(line); ok {
			switch d.Kind {
			case DirectiveIf:
				skipNext = !e.evalIf(ctrl, d.If)
			case DirectiveWait:
				if err := e.wait(ctx); err != nil {
					return err
				}
			case DirectiveUpdate:
				e.update(ctx)
			case DirectiveMsg:
				e.notify(d.Msg)
			case DirectiveStateReturn:
				if err := e.restoreModal(preRun); err != nil {
					return err
				}
			}
			continue
		}

		if skipNext {
			skipNext = false
			continue
		}

		if isAssignmentLine(line) {
			if err := e.vars.Assign(line); err != nil {
				return err
			}
			continue
		}

		if err := e.dispatchLine(ctx, line); err != nil {
			return err
		}
	}

	return nil
}

func (e *Executor) evalIf(ctrl *stream.Controller, cond IfCondition) bool {
	st := ctrl.State()
	switch cond {
	case IfRunning:
		return st == stream.Running
	case IfPaused:
		return st == stream.Paused
	case IfNotRunning:
		return st != stream.Running
	default:
		return false
	}
}

func (e *Executor) dispatchLine(ctx context.Context, line string) error {
	substituted, err := Substitute(e.vars, line)
	if err != nil {
		return fmt.Errorf("macro: substituting %q: %w", line, err)
	}

	if err := e.gate.SubmitMacroLineHeld(substituted); err != nil {
		return err
	}

	return e.awaitAckAndIdle(ctx)
}

// awaitAckAndIdle blocks for the dispatched line's own "ok" (via OnAck)
// and a following Idle status sample, spec §4.G.
func (e *Executor) awaitAckAndIdle(ctx context.Context) error {
	ackCtx, cancel := context.WithTimeout(ctx, lineAckTimeout)
	defer cancel()

	select {
	case <-e.ackCh:
	case <-ackCtx.Done():
		return fmt.Errorf("macro: timed out waiting for line ack: %w", ackCtx.Err())
	}

	_, since := e.tracker.Current()
	for {
		s, freshness, err := e.tracker.Wait(ackCtx, since)
		if err != nil {
			return fmt.Errorf("macro: timed out waiting for idle status: %w", err)
		}
		if s.State == "Idle" {
			return nil
		}
		since = freshness
	}
}

// wait is %wait: poll status until the next sample arrives, bounded by
// waitTimeout, without requiring Idle specifically.
func (e *Executor) wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	_, since := e.tracker.Current()
	_, _, err := e.tracker.Wait(waitCtx, since)
	if err != nil {
		return fmt.Errorf("macro: %%wait timed out: %w", err)
	}
	return nil
}

// update is %update: wait at most waitPollInterval for a fresh status
// sample, then continue whether or not one arrived.
func (e *Executor) update(ctx context.Context) {
	immediate, cancel := context.WithTimeout(ctx, waitPollInterval)
	defer cancel()
	_, since := e.tracker.Current()
	e.tracker.Wait(immediate, since)
}

// restoreModal replays snap as preamble-style lines through the macro
// channel, restoring the modal state captured before the macro ran.
func (e *Executor) restoreModal(snap modal.Snapshot) error {
	for _, line := range modal.BuildPreamble(snap) {
		if err := e.gate.SubmitMacroLineHeld(line); err != nil {
			return err
		}
	}
	return nil
}
