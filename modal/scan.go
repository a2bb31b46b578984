package modal

import (
	"fmt"

	"github.com/rkolbi/simple-sender/gcode"
)

var motionWords = map[string]bool{
	"0": true, "1": true, "2": true, "3": true, "80": true,
	"38.2": true, "38.3": true, "38.4": true, "38.5": true,
}

var planeWords = map[string]bool{"17": true, "18": true, "19": true}
var unitsWords = map[string]bool{"20": true, "21": true}
var distanceWords = map[string]bool{"90": true, "91": true}
var arcWords = map[string]bool{"90.1": true, "91.1": true}
var feedModeWords = map[string]bool{"93": true, "94": true, "95": true}
var wcsWords = map[string]bool{"54": true, "55": true, "56": true, "57": true, "58": true, "59": true}

// Scan walks lines [1, target) of source, accumulating a Snapshot, and
// returns that snapshot together with the preamble lines (each ≤80 bytes,
// one modal category per line) that restore it before dispatching line
// target.
func Scan(source gcode.JobSource, target int) (Snapshot, []string, error) {
	snap := NewSnapshot()
	if target < 1 {
		return snap, nil, fmt.Errorf("resume target must be >= 1, got %d", target)
	}
	err := source.IterFrom(1, func(line gcode.Line) bool {
		if line.Number >= target {
			return false
		}
		observe(&snap, gcode.ParseWords(line.Text()))
		return true
	})
	if err != nil {
		return snap, nil, err
	}
	return snap, BuildPreamble(snap), nil
}

// Observe updates snap in place from a single already-compacted line of
// text, for callers (the streaming controller) that track modal state
// live as lines are dispatched rather than via a batch Scan.
func Observe(snap *Snapshot, text string) {
	observe(snap, gcode.ParseWords(text))
}

func observe(snap *Snapshot, words []gcode.Word) {
	for _, w := range words {
		switch w.Letter {
		case 'G':
			switch {
			case w.Raw == "92":
				snap.SawG92BeforeTarget = true
			case motionWords[w.Raw]:
				snap.Motion = w.Raw
			case planeWords[w.Raw]:
				snap.Plane = w.Raw
			case unitsWords[w.Raw]:
				snap.Units = w.Raw
			case distanceWords[w.Raw]:
				snap.Distance = w.Raw
			case arcWords[w.Raw]:
				snap.Arc = w.Raw
			case feedModeWords[w.Raw]:
				snap.FeedMode = w.Raw
			case wcsWords[w.Raw]:
				snap.WCS = w.Raw
			}
		case 'M':
			switch w.Raw {
			case "3", "4", "5":
				snap.Spindle = w.Raw
			case "7", "8":
				snap.Coolant[w.Raw] = true
			case "9":
				snap.Coolant = map[string]bool{}
			}
		case 'F':
			snap.Feed = w.Raw
		case 'S':
			snap.Speed = w.Raw
		case 'T':
			snap.Tool = w.Raw
		}
	}
}

// BuildPreamble renders snap into the ordered, one-category-per-line
// preamble the controller dispatches before the resumed body, matching
// spec §4.C example (units, distance, plane, arc, feed-mode, WCS, spindle
// grouped with its speed, coolant, motion grouped with its feedrate).
func BuildPreamble(snap Snapshot) []string {
	var lines []string
	lines = append(lines, "G"+snap.Units)
	lines = append(lines, "G"+snap.Distance)
	lines = append(lines, "G"+snap.Plane)
	lines = append(lines, "G"+snap.Arc)
	lines = append(lines, "G"+snap.FeedMode)
	lines = append(lines, "G"+snap.WCS)

	spindleLine := "M" + snap.Spindle
	if snap.Spindle != "5" && snap.Speed != "" {
		spindleLine += "S" + snap.Speed
	}
	lines = append(lines, spindleLine)

	if len(snap.Coolant) > 0 {
		coolantLine := ""
		if snap.Coolant["7"] {
			coolantLine += "M7"
		}
		if snap.Coolant["8"] {
			coolantLine += "M8"
		}
		lines = append(lines, coolantLine)
	}

	motionLine := "G" + snap.Motion
	if snap.Feed != "" {
		motionLine += "F" + snap.Feed
	}
	lines = append(lines, motionLine)

	return lines
}
