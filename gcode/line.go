// Package gcode implements the G-code source pipeline: loading a job file,
// stripping comments and framing, enforcing the 80-byte line policy,
// splitting overlong linear moves, and materializing a streaming temp file
// for large jobs. Grounded on the teacher's (daedaluz/goserial) style of
// small, allocation-light buffer scanning, generalized from raw bytes to
// G-code text.
package gcode

// MaxLineBytes is the wire contract: a line handed to the Link must never
// exceed this many bytes including its trailing LF.
const MaxLineBytes = 80

// Line is one immutable, already-validated line ready to send to the
// controller.
type Line struct {
	// Raw is the exact bytes to write, including the trailing '\n'.
	Raw []byte
	// Number is the 1-based position of this line within the processed job.
	Number int
	// SourceLine is the 1-based line number in the original input file this
	// line was produced from. Splits and compaction preserve it so error
	// reports can point at the file the user edited.
	SourceLine int
}

// Len returns the number of bytes Raw would occupy on the wire.
func (l Line) Len() int { return len(l.Raw) }

// Text returns Raw without its trailing terminator, for display/logging.
func (l Line) Text() string {
	n := len(l.Raw)
	for n > 0 && (l.Raw[n-1] == '\n' || l.Raw[n-1] == '\r') {
		n--
	}
	return string(l.Raw[:n])
}
