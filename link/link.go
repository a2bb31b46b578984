// Package link wires a serialport.Port to the streaming Controller,
// the Connection Manager, and the status Tracker: it owns the one
// goroutine that reads inbound lines and classifies each into the
// event it represents (spec §5's reader-worker/writer-worker
// topology).
package link

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rkolbi/simple-sender/connection"
	"github.com/rkolbi/simple-sender/serialport"
	"github.com/rkolbi/simple-sender/status"
	"github.com/rkolbi/simple-sender/stream"
)

// writeTimeout bounds a single outbound write, grounded on
// serialport.Port.WriteLine's own deadline parameter.
const writeTimeout = 2 * time.Second

// readPollInterval bounds how long the reader worker blocks waiting for
// input readiness before checking for shutdown.
const readPollInterval = 250 * time.Millisecond

// resetToContinueMsg is the literal GRBL emits to request a reset while
// alarmed, one of the three AlarmLocked triggers alongside ALARM:N and a
// status report's State=Alarm (spec §4.D).
const resetToContinueMsg = "[MSG:Reset to continue]"

// PortWriter adapts *serialport.Port to stream.LineWriter, fixing the
// write deadline so Controller's call sites don't each need to know
// about serial write timeouts.
type PortWriter struct {
	Port *serialport.Port
}

func (w PortWriter) WriteLine(data []byte) error {
	return w.Port.WriteLine(data, writeTimeout)
}

func (w PortWriter) WriteRealtimeByte(b byte) error {
	return w.Port.WriteRealtimeByte(b)
}

// Drain lets stream.Controller.Stop's StopStreamThenReset mode flush
// already-queued bytes before resetting (spec §4.D).
func (w PortWriter) Drain() error {
	return w.Port.Drain()
}

// LineSource is the framed-line input Worker reads from, satisfied by
// *serialport.LineReader. Kept as an interface so Worker can be driven
// by a fake reader in tests, without a real serial port or pty.
type LineSource interface {
	Next(timeout time.Duration) ([]byte, error)
}

// Worker owns the read loop, dispatching classified lines to ctrl,
// tracker, and a BannerOrStatus channel the Connection Manager's
// handshake consumes.
type Worker struct {
	reader  LineSource
	ctrl    *stream.Controller
	tracker *status.Tracker
	recv    chan connection.BannerOrStatus
	log     *logrus.Entry

	stop chan struct{}
	done chan struct{}
	err  error
}

// NewWorker returns a Worker reading from source. recv is buffered so the
// handshake loop in connection.Connect never stalls the reader.
func NewWorker(source LineSource, ctrl *stream.Controller, tracker *status.Tracker, log *logrus.Entry) *Worker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		reader:  source,
		ctrl:    ctrl,
		tracker: tracker,
		recv:    make(chan connection.BannerOrStatus, 16),
		log:     log.WithField("component", "link"),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Recv is the channel connection.Manager.Connect polls during handshake.
func (w *Worker) Recv() <-chan connection.BannerOrStatus { return w.recv }

// Run reads lines until Stop is called or a read fails with an error
// other than a timeout, classifying each and dispatching it. It is meant to run on its
// own goroutine.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		line, err := w.reader.Next(readPollInterval)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			w.log.WithError(err).Warn("read failed, handing off to reconnect")
			w.err = err
			w.signal(connection.BannerOrStatus{})
			return
		}
		w.dispatch(strings.TrimSpace(string(line)))
	}
}

// Stop signals Run to exit and blocks until it has.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Err returns the read failure that ended Run, or nil if Run returned
// via Stop. The owning wiring layer uses this to decide whether to drive
// connection.Manager.Reconnect (spec §4.F: unexpected close triggers
// reconnect, a user-initiated Stop does not).
func (w *Worker) Err() error { return w.err }

func (w *Worker) dispatch(text string) {
	if text == "" {
		return
	}

	switch {
	case text == "ok":
		w.ctrl.HandleOk()
		w.signal(connection.BannerOrStatus{})

	case strings.HasPrefix(text, "error:"):
		code := atoiSafe(strings.TrimPrefix(text, "error:"))
		w.ctrl.HandleGrblError(code)
		w.signal(connection.BannerOrStatus{})

	case strings.HasPrefix(text, "ALARM:"):
		code := atoiSafe(strings.TrimPrefix(text, "ALARM:"))
		w.ctrl.HandleAlarm(code)
		w.signal(connection.BannerOrStatus{})

	case text == resetToContinueMsg:
		// No numeric code accompanies this literal; HandleAlarm's Code
		// is informational (ALARM:N's code) and unknown here.
		w.ctrl.HandleAlarm(0)
		w.signal(connection.BannerOrStatus{})

	case strings.HasPrefix(text, "<") && strings.HasSuffix(text, ">"):
		st, err := status.Parse(text)
		if err != nil {
			w.log.WithError(err).WithField("line", text).Warn("malformed status report")
			return
		}
		w.tracker.Update(st)
		w.ctrl.HandleStatus(st.RxAvail, st.PlannerAvail, st.HasBf, st.State)
		w.signal(connection.BannerOrStatus{IsStatus: true})

	case strings.HasPrefix(text, "Grbl ") || strings.HasPrefix(text, "[MSG:") || strings.HasPrefix(text, "["):
		w.log.WithField("line", text).Info("banner or message")
		w.signal(connection.BannerOrStatus{IsBanner: strings.HasPrefix(text, "Grbl ")})

	default:
		w.log.WithField("line", text).Debug("unrecognized line")
	}
}

func (w *Worker) signal(ev connection.BannerOrStatus) {
	select {
	case w.recv <- ev:
	default:
		// recv is only drained during handshake; once Ready, nobody
		// reads it and it's fine to drop events rather than block the
		// reader loop.
	}
}

// isTimeout reports whether err represents a read-readiness timeout
// rather than a real I/O failure. poll.WaitInput's errors satisfy the
// standard net.Error-style Timeout() bool convention; anything else is
// treated as a genuine failure.
func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	if errors.As(err, &te) {
		return te.Timeout()
	}
	return false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
