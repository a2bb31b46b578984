package gcode

import (
	"fmt"
	"strings"
)

// splitState is the minimal modal context the split pass needs, carried
// forward across the lines the loader has already compacted. It is
// intentionally narrower than modal.Snapshot (component C's resume-time
// scanner): the split pass only ever needs to know the line's own starting
// point, distance mode, and units, since splittable lines are restricted to
// G0/G1 in G94 feed mode with only X/Y/Z/F/S words.
type splitState struct {
	posMM      [3]float64 // canonical position in millimeters
	haveAxis   [3]bool
	absolute   bool // G90 (true) vs G91 (false); starts absolute per GRBL default
	inchUnits  bool // G20 (true) vs G21 (false, mm)
	feedMode94 bool // G94 (true, default) vs G93/G95 (false)
	lastFeed   string
	lastSpeed  string
	haveFeed   bool
	haveSpeed  bool
}

func newSplitState() *splitState {
	return &splitState{absolute: true, feedMode94: true}
}

// observe updates modal state from a compacted (already-emitted) line,
// independent of whether that line went through the split pass.
func (s *splitState) observe(words []Word) {
	for _, w := range words {
		switch {
		case w.Letter == 'G' && w.Raw == "90":
			s.absolute = true
		case w.Letter == 'G' && w.Raw == "91":
			s.absolute = false
		case w.Letter == 'G' && w.Raw == "20":
			s.inchUnits = true
		case w.Letter == 'G' && w.Raw == "21":
			s.inchUnits = false
		case w.Letter == 'G' && w.Raw == "94":
			s.feedMode94 = true
		case w.Letter == 'G' && (w.Raw == "93" || w.Raw == "95"):
			s.feedMode94 = false
		}
	}
	s.applyAxes(words)
	if f, ok := FindWord(words, 'F'); ok {
		s.lastFeed = f.Raw
		s.haveFeed = true
	}
	if sp, ok := FindWord(words, 'S'); ok {
		s.lastSpeed = sp.Raw
		s.haveSpeed = true
	}
}

func (s *splitState) applyAxes(words []Word) {
	scale := 1.0
	if s.inchUnits {
		scale = 25.4
	}
	for axis, letter := range [3]byte{'X', 'Y', 'Z'} {
		w, ok := FindWord(words, letter)
		if !ok {
			continue
		}
		v := w.Value() * scale
		if s.absolute {
			s.posMM[axis] = v
		} else {
			s.posMM[axis] += v
		}
		s.haveAxis[axis] = true
	}
}

// motionWord reports whether words contains G0 or G1 and returns which.
func motionWord(words []Word) (string, bool) {
	for _, w := range words {
		if w.Letter == 'G' && (w.Raw == "0" || w.Raw == "1") {
			return w.Raw, true
		}
	}
	return "", false
}

// splittable reports whether a compacted, overlong line qualifies for the
// linear-segment split pass: motion G0/G1, feed mode G94 (per state, since
// G93/G95 may have been set on an earlier line), and only X/Y/Z/F/S words
// present, with no stray G word besides the motion itself.
func splittable(words []Word, state *splitState) (motion string, ok bool) {
	if !state.feedMode94 {
		return "", false
	}
	motion, isMotion := motionWord(words)
	if !isMotion {
		return "", false
	}
	if !HasOnlyWords(words, "GXYZFS") {
		return "", false
	}
	for _, w := range words {
		if w.Letter == 'G' && w.Raw != motion {
			return "", false // e.g. a stray G2/G3/G93 word on the same line
		}
	}
	return motion, true
}

// splitLine splits an overlong splittable line into N linear sub-segments,
// each re-encoded to fit within MaxLineBytes. state is mutated to reflect
// the line's own ending position/modal effect once splitLine returns, the
// same as observe() would have done for an unsplit line.
func splitLine(motion string, words []Word, state *splitState) ([]string, error) {
	start := state.posMM
	end := start
	scale := 1.0
	if state.inchUnits {
		scale = 25.4
	}
	targetAbs := state.absolute
	for axis, letter := range [3]byte{'X', 'Y', 'Z'} {
		w, ok := FindWord(words, letter)
		if !ok {
			continue
		}
		v := w.Value() * scale
		if targetAbs {
			end[axis] = v
		} else {
			end[axis] += v
		}
	}
	feed, haveFeed := FindWord(words, 'F')
	speed, haveSpeed := FindWord(words, 'S')
	var presentAxis [3]bool
	for axis, letter := range [3]byte{'X', 'Y', 'Z'} {
		_, presentAxis[axis] = FindWord(words, letter)
	}

	for n := 2; n <= 256; n++ {
		lines := renderSegments(motion, start, end, n, presentAxis, state.inchUnits, state.absolute,
			feed.Raw, haveFeed, speed.Raw, haveSpeed)
		if maxLen(lines) <= MaxLineBytes-1 { // -1 for the '\n' added by the caller
			state.posMM = end
			for axis := range end {
				if _, ok := FindWord(words, [3]byte{'X', 'Y', 'Z'}[axis]); ok {
					state.haveAxis[axis] = true
				}
			}
			if haveFeed {
				state.lastFeed, state.haveFeed = feed.Raw, true
			}
			if haveSpeed {
				state.lastSpeed, state.haveSpeed = speed.Raw, true
			}
			return lines, nil
		}
	}
	return nil, fmt.Errorf("could not split line into segments under %d bytes", MaxLineBytes)
}

func maxLen(lines []string) int {
	m := 0
	for _, l := range lines {
		if len(l) > m {
			m = len(l)
		}
	}
	return m
}

// renderSegments linearly interpolates start->end into n points and formats
// each as a sub-line. Only the first sub-line repeats the G-word, F, and S:
// GRBL retains all three as modal state, so later sub-lines need only the
// axis words that actually changed.
func renderSegments(motion string, start, end [3]float64, n int, presentAxis [3]bool, inchUnits, absolute bool, feedRaw string, haveFeed bool, speedRaw string, haveSpeed bool) []string {
	out := make([]string, 0, n)
	scale := 1.0
	if inchUnits {
		scale = 25.4
	}
	prev := start
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		var point [3]float64
		for a := 0; a < 3; a++ {
			point[a] = start[a] + (end[a]-start[a])*t
		}
		var b strings.Builder
		if i == 1 {
			b.WriteByte('G')
			b.WriteString(motion)
		}
		for a, letter := range [3]byte{'X', 'Y', 'Z'} {
			if !presentAxis[a] {
				continue // axis wasn't in the original line: never synthesize it
			}
			if point[a] == prev[a] && i > 1 {
				continue // unchanged axis on this sub-segment: omit, GRBL keeps the prior value
			}
			var v float64
			if absolute {
				v = point[a] / scale
			} else {
				v = (point[a] - prev[a]) / scale
			}
			b.WriteByte(letter)
			b.WriteString(normalizeNumber(fmt.Sprintf("%.6f", v)))
		}
		if i == 1 {
			if haveFeed {
				b.WriteByte('F')
				b.WriteString(normalizeNumber(feedRaw))
			}
			if haveSpeed {
				b.WriteByte('S')
				b.WriteString(normalizeNumber(speedRaw))
			}
		}
		out = append(out, b.String())
		prev = point
	}
	return out
}
