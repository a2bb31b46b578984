// Package stream implements the streaming controller (spec §4.D): the
// character-counting flow-control state machine that drives a loaded
// G-code job into GRBL's small RX buffer, handling acks, errors, alarms,
// pause/resume/stop, auto-pause, and real-time overrides.
package stream

import "time"

// State is one of the controller's state machine positions (spec §4.D).
type State int

const (
	Idle State = iota
	Armed
	Running
	Paused
	Stopping
	Errored
	AlarmLocked
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Armed:
		return "Armed"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Stopping:
		return "Stopping"
	case Errored:
		return "Errored"
	case AlarmLocked:
		return "AlarmLocked"
	default:
		return "Unknown"
	}
}

// EntryClass tags why a PendingEntry was sent, per spec §3.
type EntryClass int

const (
	JobLine EntryClass = iota
	ManualLine
	MacroLine
)

func (c EntryClass) String() string {
	switch c {
	case JobLine:
		return "JobLine"
	case ManualLine:
		return "ManualLine"
	case MacroLine:
		return "MacroLine"
	default:
		return "Unknown"
	}
}

// PendingEntry is one outbound line awaiting its ack, per spec §3.
type PendingEntry struct {
	LineNumber    int
	Text          string
	ByteLen       int
	SentAt        time.Time
	Class         EntryClass
	PauseAfterAck bool
}

// StopMode selects how Stop behaves, per spec §4.D.
type StopMode int

const (
	// SoftResetOnly sends 0x18 immediately.
	SoftResetOnly StopMode = iota
	// StopStreamThenReset halts dispatch and discards in-flight pending
	// entries before sending 0x18.
	StopStreamThenReset
)

// ErroredLine records the job line that caused an Errored transition, for
// UI display and as the Resume-From default target (spec §7).
type ErroredLine struct {
	Number int
	Text   string
}
