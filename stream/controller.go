package stream

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rkolbi/simple-sender/gcode"
	"github.com/rkolbi/simple-sender/modal"
)

// Real-time bytes, spec §6.
const (
	RealtimeStatus     byte = 0x3F // '?'
	RealtimeFeedHold   byte = 0x21 // '!'
	RealtimeCycleStart byte = 0x7E // '~'
	RealtimeSoftReset  byte = 0x18
	RealtimeJogCancel  byte = 0x85

	OverrideFeedReset     byte = 0x90
	OverrideFeedPlus10    byte = 0x91
	OverrideFeedMinus10   byte = 0x92
	OverrideRapidFull     byte = 0x95
	OverrideRapidHalf     byte = 0x96
	OverrideRapidQuarter  byte = 0x97
	OverrideSpindleReset  byte = 0x99
	OverrideSpindlePlus10 byte = 0x9A
	OverrideSpindleMinus  byte = 0x9B
)

// Default window bounds, spec §4.D.
const (
	DefaultRXWindow = 128
	MinRXWindow     = 64
	MaxRXWindowCap  = 128
)

// LineWriter is the Link's outbound surface the controller drives.
// link.PortWriter adapts serialport.Port to it by fixing WriteLine's
// timeout argument.
type LineWriter interface {
	WriteLine(data []byte) error
	WriteRealtimeByte(b byte) error
}

// Options configures a Controller. The zero value is usable.
type Options struct {
	StopMode   StopMode
	MinWindow  int // defaults to MinRXWindow
	MaxWindow  int // defaults to MaxRXWindowCap
	Logger     *logrus.Entry
	// OnStateChange, if set, is invoked (outside the controller's lock)
	// whenever the state machine transitions.
	OnStateChange func(from, to State)
	// OnAck, if set, is invoked (outside the controller's lock, on its own
	// goroutine) with every PendingEntry popped by an inbound "ok". The
	// macro executor uses this to wait for its own dispatched line's ack
	// plus a subsequent Idle status sample before advancing (spec §4.G).
	OnAck func(PendingEntry)
}

// Controller is the single-threaded (mutex-guarded) owner of StreamState
// and the pending FIFO, per spec §5's concurrency model: other goroutines
// (reader, status-poll, UI/macro producers) only ever mutate it through
// its exported methods.
type Controller struct {
	mu sync.Mutex

	writer LineWriter
	log    *logrus.Entry
	onStateChange func(from, to State)

	state     State
	stopMode  StopMode
	minWindow int
	maxWindow int
	rxWindow  int

	source       gcode.JobSource
	nextDispatch int // 1-based index into source of the next JobLine to send
	preamble     []string

	pending      []PendingEntry
	pendingBytes int

	modalState modal.Snapshot

	lastError   error
	erroredLine *ErroredLine

	overrideFeed    int
	overrideSpindle int
	overrideRapid   int

	onAck func(PendingEntry)
}

// New returns an Idle Controller writing through w.
func New(w LineWriter, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	minW := opts.MinWindow
	if minW == 0 {
		minW = MinRXWindow
	}
	maxW := opts.MaxWindow
	if maxW == 0 {
		maxW = MaxRXWindowCap
	}
	return &Controller{
		writer:          w,
		log:             log.WithField("component", "stream"),
		onStateChange:   opts.OnStateChange,
		onAck:           opts.OnAck,
		state:           Idle,
		stopMode:        opts.StopMode,
		minWindow:       minW,
		maxWindow:       maxW,
		rxWindow:        DefaultRXWindow,
		modalState:      modal.NewSnapshot(),
		overrideFeed:    100,
		overrideSpindle: 100,
		overrideRapid:   100,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the latched last-error fact, per spec §7.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// ErroredLine returns the job line that caused the last Errored
// transition, if any.
func (c *Controller) ErroredLine() (ErroredLine, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.erroredLine == nil {
		return ErroredLine{}, false
	}
	return *c.erroredLine, true
}

// CurrentModal returns a copy of the modal state tracked from dispatched
// job lines, for the macro executor's pre-run snapshot (spec §9).
func (c *Controller) CurrentModal() modal.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modalState
}

// Overrides returns the controller's last-known feed/spindle/rapid
// override percents (tracked locally from issued bytes, not yet
// corrected against the firmware's own Ov: report — see RestoreOverrides).
func (c *Controller) Overrides() (feed, spindle, rapid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overrideFeed, c.overrideSpindle, c.overrideRapid
}

// RestoreOverrides replaces the locally tracked override percents with
// values observed in a status report's Ov: field, correcting for drift
// (e.g. a firmware-side limit the controller's own step counting doesn't
// know about).
func (c *Controller) RestoreOverrides(feed, spindle, rapid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrideFeed = feed
	c.overrideSpindle = spindle
	c.overrideRapid = rapid
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	from := c.state
	c.state = s
	c.log.WithFields(logrus.Fields{"from": from, "to": s}).Info("state transition")
	if c.onStateChange != nil {
		cb := c.onStateChange
		go cb(from, s)
	}
}

// Arm loads source as the active job, state Idle -> Armed, dispatch index
// reset to the start of the file.
func (c *Controller) Arm(source gcode.JobSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return &ErrInvalidTransition{From: c.state, Verb: "arm"}
	}
	c.source = source
	c.nextDispatch = 1
	c.preamble = nil
	c.pending = nil
	c.pendingBytes = 0
	c.erroredLine = nil
	c.lastError = nil
	c.modalState = modal.NewSnapshot()
	c.setStateLocked(Armed)
	return nil
}

// ArmResume loads source starting at target, having first run the modal
// pre-scanner (spec §4.C) and queued its preamble lines as ManualLine
// entries dispatched ahead of the resumed body (spec §4.D supplement).
func (c *Controller) ArmResume(source gcode.JobSource, target int) error {
	snap, preamble, err := modal.Scan(source, target)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return &ErrInvalidTransition{From: c.state, Verb: "arm"}
	}
	c.source = source
	c.nextDispatch = target
	c.preamble = append([]string(nil), preamble...)
	c.pending = nil
	c.pendingBytes = 0
	c.erroredLine = nil
	c.lastError = nil
	c.modalState = snap
	c.setStateLocked(Armed)
	return nil
}

// Run transitions Armed -> Running and starts dispatch.
func (c *Controller) Run() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Armed {
		return &ErrInvalidTransition{From: c.state, Verb: "run"}
	}
	c.setStateLocked(Running)
	c.dispatchLocked()
	return nil
}

// Pause sends feed hold and transitions Running -> Paused.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return &ErrInvalidTransition{From: c.state, Verb: "pause"}
	}
	if err := c.writer.WriteRealtimeByte(RealtimeFeedHold); err != nil {
		return err
	}
	c.setStateLocked(Paused)
	return nil
}

// Resume sends cycle start and transitions Paused -> Running.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return &ErrInvalidTransition{From: c.state, Verb: "resume"}
	}
	if err := c.writer.WriteRealtimeByte(RealtimeCycleStart); err != nil {
		return err
	}
	c.setStateLocked(Running)
	c.dispatchLocked()
	return nil
}

// Stop halts the job per the configured StopMode; in both modes pending
// is cleared, state ends Idle, and the dispatch index is left at the last
// sent line for the Resume-From default (spec §4.D).
//
// The jog-cancel/soft-reset ordering open question (spec §9) is resolved
// here by scope, not timing: Stop never emits 0x85 itself. A jog in
// flight is canceled by the caller issuing RealtimeJogCancel directly
// before calling Stop, since jogging is a manual real-time action outside
// the job dispatch this controller owns.

// drainer is the optional capability serialport.Port.Drain satisfies;
// Stop uses it to flush already-queued bytes before resetting in
// StopStreamThenReset mode, so 0x18 is never reordered ahead of G-code
// bytes the OS write buffer hasn't transmitted yet.
type drainer interface {
	Drain() error
}

func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running && c.state != Paused {
		return &ErrInvalidTransition{From: c.state, Verb: "stop"}
	}
	c.setStateLocked(Stopping)

	if c.stopMode == StopStreamThenReset {
		// Halt dispatch and discard in-flight pending before the reset
		// (spec §4.D), draining the port first if it supports it.
		if d, ok := c.writer.(drainer); ok {
			if err := d.Drain(); err != nil {
				return err
			}
		}
		c.pending = nil
		c.pendingBytes = 0
		if err := c.writer.WriteRealtimeByte(RealtimeSoftReset); err != nil {
			return err
		}
	} else {
		if err := c.writer.WriteRealtimeByte(RealtimeSoftReset); err != nil {
			return err
		}
		c.pending = nil
		c.pendingBytes = 0
	}

	c.setStateLocked(Idle)
	return nil
}

// HandleOk processes an inbound "ok", popping the pending FIFO head.
func (c *Controller) HandleOk() {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.popPendingLocked()
	if !ok {
		c.log.Warn("received ok with empty pending queue")
		return
	}
	if c.onAck != nil {
		cb := c.onAck
		go cb(entry)
	}
	if entry.PauseAfterAck {
		c.setStateLocked(Paused)
		return
	}
	if c.state == Running && c.jobComplete() {
		c.setStateLocked(Idle)
		return
	}
	c.dispatchLocked()
}

// HandleGrblError processes an inbound "error:N".
func (c *Controller) HandleGrblError(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.popPendingLocked()
	if ok && entry.Class == JobLine {
		c.erroredLine = &ErroredLine{Number: entry.LineNumber, Text: entry.Text}
	}
	c.lastError = &ProtocolError{Kind: GrblError, Code: code}
	c.pending = nil
	c.pendingBytes = 0
	c.setStateLocked(Errored)
}

// HandleAlarm processes an ALARM:N report or the [MSG:Reset to continue]
// literal (spec §4.D alarm protocol). A status report with State=Alarm
// makes the same transition inside HandleStatus instead.
func (c *Controller) HandleAlarm(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = &ProtocolError{Kind: GrblAlarm, Code: code}
	c.pending = nil
	c.pendingBytes = 0
	c.setStateLocked(AlarmLocked)
}

// ClearError transitions Errored -> Idle (operator-issued; spec §4.D's
// state diagram "Errored --clear--> Idle").
func (c *Controller) ClearError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Errored {
		return &ErrInvalidTransition{From: c.state, Verb: "clear"}
	}
	c.setStateLocked(Idle)
	return nil
}

// HandleStatus applies a parsed status report: refines RX_WINDOW from its
// Bf field, and clears AlarmLocked on the first Idle report; it does not
// check that a $X/$H was sent or acknowledged first. Accepts the report's
// fields directly rather than importing the status package, so stream
// has no compile-time dependency on it; callers (link wiring) pass
// status.ControllerStatus's fields through.
func (c *Controller) HandleStatus(rxAvail, plannerAvail int, hasBf bool, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hasBf {
		w := rxAvail + c.pendingBytes
		if w > c.maxWindow {
			w = c.maxWindow
		}
		if w < c.minWindow {
			w = c.minWindow
		}
		c.rxWindow = w
	}
	if state == "Alarm" && c.state != AlarmLocked {
		c.lastError = &ProtocolError{Kind: GrblAlarm}
		c.pending = nil
		c.pendingBytes = 0
		c.setStateLocked(AlarmLocked)
		return
	}
	if c.state == AlarmLocked && state == "Idle" {
		c.setStateLocked(Idle)
		return
	}
	if c.state == Running {
		c.dispatchLocked()
	}
}

func (c *Controller) jobComplete() bool {
	return len(c.preamble) == 0 && c.source != nil && c.nextDispatch > c.source.Len() && len(c.pending) == 0
}

func (c *Controller) popPendingLocked() (PendingEntry, bool) {
	if len(c.pending) == 0 {
		return PendingEntry{}, false
	}
	e := c.pending[0]
	c.pending = c.pending[1:]
	c.pendingBytes -= e.ByteLen
	return e, true
}

// dispatchLocked sends as many queued lines (preamble first, then job
// body) as the RX window allows while state is Running. Caller holds mu.
func (c *Controller) dispatchLocked() {
	for c.state == Running {
		var text string
		var lineNum int
		var class EntryClass
		fromPreamble := false

		switch {
		case len(c.preamble) > 0:
			text = c.preamble[0]
			class = ManualLine
			fromPreamble = true
		case c.source != nil && c.nextDispatch <= c.source.Len():
			line, err := c.source.Get(c.nextDispatch)
			if err != nil {
				c.lastError = err
				c.setStateLocked(Errored)
				return
			}
			text = line.Text()
			lineNum = line.Number
			class = JobLine
		default:
			if len(c.pending) == 0 {
				c.setStateLocked(Idle)
			}
			return
		}

		full := text + "\n"
		if c.pendingBytes+len(full) > c.rxWindow {
			return
		}
		if err := c.writer.WriteLine([]byte(full)); err != nil {
			c.lastError = &ProtocolError{Kind: UnexpectedClose, Err: err}
			c.setStateLocked(Errored)
			return
		}

		entry := PendingEntry{LineNumber: lineNum, Text: text, ByteLen: len(full), Class: class, SentAt: time.Now()}
		if class == JobLine {
			entry.PauseAfterAck = isAutoPauseLine(text)
			modal.Observe(&c.modalState, text)
			c.nextDispatch++
		}
		c.pending = append(c.pending, entry)
		c.pendingBytes += len(full)

		if fromPreamble {
			c.preamble = c.preamble[1:]
		}
	}
}

// SendManual validates and dispatches a manual line outside the job
// stream (spec §4.D send-time validation). Access-control policy — e.g.
// the alarm-lockout allow-list, mutual exclusion with streaming — is the
// Gate package's responsibility (spec §4.G); Controller only enforces
// format here.
func (c *Controller) SendManual(text string) error {
	return c.sendOutOfBand(text, ManualLine)
}

// SendMacroLine is SendManual's counterpart for macro-originated lines
// (spec §3's MacroLine classification).
func (c *Controller) SendMacroLine(text string) error {
	return c.sendOutOfBand(text, MacroLine)
}

func (c *Controller) sendOutOfBand(text string, class EntryClass) error {
	if err := validateLine(text); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	full := text + "\n"
	if err := c.writer.WriteLine([]byte(full)); err != nil {
		return &ProtocolError{Kind: UnexpectedClose, Err: err}
	}
	c.pending = append(c.pending, PendingEntry{Text: text, ByteLen: len(full), Class: class, SentAt: time.Now()})
	c.pendingBytes += len(full)
	return nil
}

// SendRealtime writes a bare real-time byte, bypassing the pending FIFO
// and RX_WINDOW entirely (spec §4.D: overrides "do not consume
// RX_WINDOW").
func (c *Controller) SendRealtime(b byte) error {
	return c.writer.WriteRealtimeByte(b)
}
