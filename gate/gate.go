// Package gate implements the macro/manual gate (spec §4.G): a single
// mutex serializing streaming dispatch, manual sends, and macro sends,
// enforcing the alarm-lockout allow-list and streaming mutual exclusion.
package gate

import (
	"fmt"
	"sync"

	"github.com/rkolbi/simple-sender/stream"
)

// Source classifies who is asking to send, for the policy checks below.
type Source int

const (
	Manual Source = iota
	Macro
)

func (s Source) String() string {
	if s == Macro {
		return "Macro"
	}
	return "Manual"
}

// Kind distinguishes a real-time byte request from a text line request.
type Kind int

const (
	Line Kind = iota
	Realtime
)

// ErrorKind enumerates spec §7's GateError kinds.
type ErrorKind int

const (
	BlockedByStreaming ErrorKind = iota
	BlockedByAlarm
	BlockedByDisconnect
)

func (k ErrorKind) String() string {
	switch k {
	case BlockedByStreaming:
		return "BlockedByStreaming"
	case BlockedByAlarm:
		return "BlockedByAlarm"
	case BlockedByDisconnect:
		return "BlockedByDisconnect"
	default:
		return "Unknown"
	}
}

// Error is the Gate's rejection, following the Controller.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Detail) }

// alarmAllowList are the only text lines permitted while AlarmLocked
// (spec §4.D/§4.G).
var alarmAllowList = map[string]bool{"$X": true, "$H": true}

var alarmAllowedRealtime = map[byte]bool{
	stream.RealtimeSoftReset: true,
	stream.RealtimeStatus:    true,
}

// Connected reports whether the underlying link is currently connected;
// Gate consults it to produce BlockedByDisconnect without importing the
// connection package (avoiding an import cycle risk and keeping Gate
// link-agnostic).
type Connected func() bool

// Gate serializes access to a stream.Controller per spec §4.G.
type Gate struct {
	mu         sync.Mutex
	controller *stream.Controller
	connected  Connected
}

// New returns a Gate guarding controller. connected may be nil, meaning
// "always connected" (used in tests and when no Connection Manager is
// wired yet).
func New(controller *stream.Controller, connected Connected) *Gate {
	if connected == nil {
		connected = func() bool { return true }
	}
	return &Gate{controller: controller, connected: connected}
}

// SubmitLine requests sending a text line from src. It enforces:
//   - BlockedByDisconnect if the link is down.
//   - BlockedByAlarm if AlarmLocked and text isn't in the allow-list.
//   - BlockedByStreaming if streaming is Running/Paused and src is Manual
//     (macro lines are not checked against the streaming state; holding
//     the gate via AcquireMacro does not stop a job the Controller is
//     already streaming).
func (g *Gate) SubmitLine(src Source, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitLineLocked(src, text)
}

// submitLineLocked is SubmitLine's policy logic, factored out so
// SubmitMacroLineHeld can reuse it without re-locking g.mu (the caller
// already holds it via AcquireMacro).
func (g *Gate) submitLineLocked(src Source, text string) error {
	if !g.connected() {
		return &Error{Kind: BlockedByDisconnect, Detail: text}
	}

	state := g.controller.State()
	if state == stream.AlarmLocked {
		if !alarmAllowList[text] {
			return &Error{Kind: BlockedByAlarm, Detail: text}
		}
		return g.controller.SendManual(text)
	}

	if src == Manual && (state == stream.Running || state == stream.Paused) {
		return &Error{Kind: BlockedByStreaming, Detail: text}
	}

	if src == Macro {
		return g.controller.SendMacroLine(text)
	}
	return g.controller.SendManual(text)
}

// SubmitMacroLineHeld sends a macro line while the caller already holds
// the gate's lock via AcquireMacro. It applies the same disconnect/alarm
// policy as SubmitLine(Macro, text) without re-locking g.mu, which would
// deadlock (sync.Mutex is not reentrant): the macro executor calls this
// between AcquireMacro and its deferred release for every line it
// dispatches, including modal-restore lines.
func (g *Gate) SubmitMacroLineHeld(text string) error {
	return g.submitLineLocked(Macro, text)
}

// SubmitRealtime requests sending a single real-time byte. Real-time
// bytes and (while Paused) overrides are always permitted regardless of
// streaming state, per spec §4.G; only the alarm-lockout allow-list can
// block them.
func (g *Gate) SubmitRealtime(b byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.connected() {
		return &Error{Kind: BlockedByDisconnect}
	}

	state := g.controller.State()
	if state == stream.AlarmLocked && !alarmAllowedRealtime[b] {
		return &Error{Kind: BlockedByAlarm}
	}
	return g.controller.SendRealtime(b)
}

// AcquireMacro locks the gate for the duration of one macro execution,
// returning a release function the caller must defer. While held,
// SubmitLine, SubmitRealtime and ValidateJobSubmission block on g.mu.
// Controller methods called directly, such as Arm and Run, are not
// blocked by the gate.
func (g *Gate) AcquireMacro() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// ValidateJobSubmission is a convenience check for the arm/run path,
// surfacing the same disconnect/alarm policy job submissions are subject
// to before a caller bothers loading a file (cheap pre-check; Arm itself
// still enforces state correctness).
func (g *Gate) ValidateJobSubmission() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected() {
		return &Error{Kind: BlockedByDisconnect}
	}
	if g.controller.State() == stream.AlarmLocked {
		return &Error{Kind: BlockedByAlarm}
	}
	return nil
}
