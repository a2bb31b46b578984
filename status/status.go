// Package status parses GRBL 1.1h status reports and tracks the
// controller's live state (spec §4.E), including the freshness-stamp
// cooperative-wait used by the macro executor's %wait/%update directives.
package status

import (
	"fmt"
	"strconv"
	"strings"
)

// PinFlags mirrors GRBL's Pn: field, one bool per reported pin.
type PinFlags struct {
	X, Y, Z bool // limit pins
	P       bool // probe
	D, H    bool // door, hold
	R       bool // soft reset
	S       bool // cycle start
}

// OverridePercents mirrors GRBL's Ov: field, in report order (feed, rapid,
// spindle).
type OverridePercents struct {
	Feed, Rapid, Spindle int
}

// ControllerStatus is one parsed `<...>` report, per spec §3's
// ControllerStatus data model.
type ControllerStatus struct {
	State string // Idle, Run, Hold, Alarm, Door, Check, Home, Sleep, Jog

	MPos [3]float64

	WPos    [3]float64
	HasWPos bool

	WCO    [3]float64
	HasWCO bool

	RxAvail      int
	PlannerAvail int
	HasBf        bool

	Pins PinFlags

	Feed, Speed float64
	HasFS       bool

	Overrides    OverridePercents
	HasOverrides bool
}

// ResolvedWPos returns the work position: the reported WPos field if
// present, else MPos - WCO if an offset is known, else MPos unmodified.
func (s ControllerStatus) ResolvedWPos() [3]float64 {
	if s.HasWPos {
		return s.WPos
	}
	if s.HasWCO {
		return [3]float64{s.MPos[0] - s.WCO[0], s.MPos[1] - s.WCO[1], s.MPos[2] - s.WCO[2]}
	}
	return s.MPos
}

// IsAlarm reports whether this report itself signals the Alarm state,
// one of the three ways a controller can enter AlarmLocked (spec §4.D).
func (s ControllerStatus) IsAlarm() bool { return s.State == "Alarm" }

// ErrMalformedReport is returned by Parse for input that isn't a
// well-formed `<...>` report.
type ErrMalformedReport struct {
	Raw string
}

func (e *ErrMalformedReport) Error() string {
	return fmt.Sprintf("malformed status report: %q", e.Raw)
}

// Parse decodes one GRBL status report line, e.g.
// "<Run|MPos:1.000,2.000,3.000|Bf:15,128|WCO:0.000,0.000,0.000|Pn:XYZ|FS:500,1000|Ov:100,100,100>".
// The caller passes the line with or without its surrounding angle
// brackets and line terminator; both are tolerated.
func Parse(line string) (ControllerStatus, error) {
	trimmed := strings.TrimRight(line, "\r\n")
	trimmed = strings.TrimPrefix(trimmed, "<")
	trimmed = strings.TrimSuffix(trimmed, ">")
	if trimmed == "" {
		return ControllerStatus{}, &ErrMalformedReport{Raw: line}
	}
	fields := strings.Split(trimmed, "|")
	var s ControllerStatus
	s.State = fields[0]
	if s.State == "" {
		return ControllerStatus{}, &ErrMalformedReport{Raw: line}
	}
	for _, f := range fields[1:] {
		key, val, ok := strings.Cut(f, ":")
		if !ok {
			continue
		}
		switch key {
		case "MPos":
			if v, err := parseFloat3(val); err == nil {
				s.MPos = v
			}
		case "WPos":
			if v, err := parseFloat3(val); err == nil {
				s.WPos = v
				s.HasWPos = true
			}
		case "WCO":
			if v, err := parseFloat3(val); err == nil {
				s.WCO = v
				s.HasWCO = true
			}
		case "Bf":
			parts := strings.Split(val, ",")
			if len(parts) == 2 {
				rx, err1 := strconv.Atoi(parts[0])
				pl, err2 := strconv.Atoi(parts[1])
				if err1 == nil && err2 == nil {
					s.RxAvail = rx
					s.PlannerAvail = pl
					s.HasBf = true
				}
			}
		case "Pn":
			s.Pins = parsePins(val)
		case "FS":
			parts := strings.Split(val, ",")
			if len(parts) == 2 {
				feed, err1 := strconv.ParseFloat(parts[0], 64)
				speed, err2 := strconv.ParseFloat(parts[1], 64)
				if err1 == nil && err2 == nil {
					s.Feed = feed
					s.Speed = speed
					s.HasFS = true
				}
			}
		case "Ov":
			parts := strings.Split(val, ",")
			if len(parts) == 3 {
				f, err1 := strconv.Atoi(parts[0])
				r, err2 := strconv.Atoi(parts[1])
				sp, err3 := strconv.Atoi(parts[2])
				if err1 == nil && err2 == nil && err3 == nil {
					s.Overrides = OverridePercents{Feed: f, Rapid: r, Spindle: sp}
					s.HasOverrides = true
				}
			}
		}
	}
	return s, nil
}

func parseFloat3(val string) ([3]float64, error) {
	parts := strings.Split(val, ",")
	if len(parts) != 3 {
		return [3]float64{}, fmt.Errorf("expected 3 comma-separated values, got %d", len(parts))
	}
	var out [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return [3]float64{}, err
		}
		out[i] = v
	}
	return out, nil
}

func parsePins(val string) PinFlags {
	var p PinFlags
	for _, c := range val {
		switch c {
		case 'X':
			p.X = true
		case 'Y':
			p.Y = true
		case 'Z':
			p.Z = true
		case 'P':
			p.P = true
		case 'D':
			p.D = true
		case 'H':
			p.H = true
		case 'R':
			p.R = true
		case 'S':
			p.S = true
		}
	}
	return p
}
