package serialport

import "time"

// LineReader frames an inbound byte stream from a Port into discrete
// records, one per LF or CR terminator. GRBL 1.1h never splits a record
// across multiple underlying reads by design, but the host's read() can
// still return partial lines (short reads, USB-serial chunking), so this
// buffers across calls. Adapted from the accumulate-then-scan pattern
// kylelemons/goat/term uses for its line buffer, specialized to GRBL's
// terminator set instead of a TTY's editing keys.
type LineReader struct {
	port *Port
	buf  []byte
	read []byte
}

func NewLineReader(port *Port, bufSize int) *LineReader {
	if bufSize <= 0 {
		bufSize = 4096
	}
	return &LineReader{port: port, read: make([]byte, bufSize)}
}

// Next blocks until a full record is available, the port is closed, or
// timeout elapses (timeout<=0 blocks indefinitely). The returned slice is
// only valid until the next call to Next.
func (lr *LineReader) Next(timeout time.Duration) ([]byte, error) {
	for {
		if line, ok := lr.takeLine(); ok {
			return line, nil
		}
		var n int
		var err error
		if timeout > 0 {
			n, err = lr.port.ReadTimeout(lr.read, timeout)
		} else {
			n, err = lr.port.Read(lr.read)
		}
		if err != nil {
			return nil, err
		}
		if n > 0 {
			lr.buf = append(lr.buf, lr.read[:n]...)
		}
	}
}

func (lr *LineReader) takeLine() ([]byte, bool) {
	for i, b := range lr.buf {
		if b == '\n' || b == '\r' {
			line := make([]byte, i)
			copy(line, lr.buf[:i])
			rest := i + 1
			for rest < len(lr.buf) && (lr.buf[rest] == '\n' || lr.buf[rest] == '\r') {
				rest++
			}
			lr.buf = append(lr.buf[:0], lr.buf[rest:]...)
			if len(line) == 0 {
				return lr.takeLine()
			}
			return line, true
		}
	}
	return nil, false
}
