package serialport

import (
	"time"

	"github.com/daedaluz/fdev/poll"
)

// ErrWriteTimeout is returned by WriteLine when the write did not complete
// within the configured deadline. The link worker surfaces this as
// ProtocolError.WriteTimeout and hands the connection to the Connection
// Manager for a reconnect decision.
var ErrWriteTimeout = Error{msg: "write timed out"}

// ReadTimeout reads with a bounded wait for input readiness, grounded on the
// teacher's Port.readTimeout (poll.WaitInput before syscall.Read).
func (p *Port) ReadTimeout(data []byte, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if err := poll.WaitInput(p.f, timeout); err != nil {
		return 0, wrapErr("poll", err)
	}
	return p.Read(data)
}

// WriteLine writes a single already-terminated G-code/system line. It
// enforces a write deadline: GRBL sender host stacks block on write only
// when the OS write buffer backs up (e.g. a wedged USB-serial adapter), and
// must not hang the writer worker forever when that happens.
func (p *Port) WriteLine(data []byte, timeout time.Duration) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if timeout <= 0 {
		_, err := p.Write(data)
		return err
	}
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.Write(data)
		done <- result{n, err}
	}()
	select {
	case r := <-done:
		return r.err
	case <-time.After(timeout):
		return ErrWriteTimeout
	}
}

// WriteRealtimeByte sends a single real-time command byte (?, !, ~, 0x18,
// 0x85, override bytes) with no terminator and without going through the
// outbound line queue.
func (p *Port) WriteRealtimeByte(b byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	_, err := p.Write([]byte{b})
	return err
}
