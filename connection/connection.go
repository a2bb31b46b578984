// Package connection implements the connection manager (spec §4.F):
// handshake, auto-reconnect with exponential backoff, status-poll
// watchdog, and the homing-watchdog grace period.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Phase is the connection manager's own lifecycle state, separate from
// (and layered above) the streaming controller's State.
type Phase int

const (
	Disconnected Phase = iota
	Handshaking
	Ready
	Reconnecting
	Lost
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "Disconnected"
	case Handshaking:
		return "Handshaking"
	case Ready:
		return "Ready"
	case Reconnecting:
		return "Reconnecting"
	case Lost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// Opener opens a fresh connection to the last-used port, returning a
// handle the caller uses for the handshake probes. The caller supplies it
// (typically wrapping serialport.OpenGRBL); kept as a func type here so
// Manager has no compile-time dependency on serialport.
type Opener func(port string) (Handle, error)

// Handle is the minimal surface the connection manager needs from an
// open port during handshake and afterward.
type Handle interface {
	WriteLine(data []byte) error
	WriteRealtimeByte(b byte) error
	Close() error
}

// Clock abstracts time for tests; DefaultClock uses the real clock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time      { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Options configures a Manager. The zero value is usable with defaults.
type Options struct {
	HandshakeTimeout     time.Duration // default 10s
	PollInterval         time.Duration // default 200ms
	FailureThreshold     int           // default 3
	InitialBackoff       time.Duration // default 1s
	BackoffFactor        float64       // default 2
	MaxBackoff           time.Duration // default 30s
	HomingGracePeriod     time.Duration // default 30s, matches typical $H duration
	Logger               *logrus.Entry
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.PollInterval == 0 {
		o.PollInterval = 200 * time.Millisecond
	}
	if o.FailureThreshold == 0 {
		o.FailureThreshold = 3
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = time.Second
	}
	if o.BackoffFactor == 0 {
		o.BackoffFactor = 2
	}
	if o.MaxBackoff == 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.HomingGracePeriod == 0 {
		o.HomingGracePeriod = 30 * time.Second
	}
	return o
}

// ErrHandshakeTimeout is returned when neither a banner nor a status
// report arrives within HandshakeTimeout.
var ErrHandshakeTimeout = errors.New("connection: handshake timed out waiting for banner or status")

// Manager drives the connection lifecycle for one serial port across
// reconnects.
type Manager struct {
	mu     sync.Mutex
	opts   Options
	clock  Clock
	opener Opener
	log    *logrus.Entry

	phase            Phase
	port             string
	handle           Handle
	userDisconnected bool
	consecutiveMiss  int
	homingUntil      time.Time
}

// New returns a Disconnected Manager.
func New(opener Opener, opts Options) *Manager {
	opts = opts.withDefaults()
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		opts:   opts,
		clock:  realClock{},
		opener: opener,
		log:    log.WithField("component", "connection"),
		phase:  Disconnected,
	}
}

// Phase returns the manager's current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

func (m *Manager) setPhase(p Phase) {
	from := m.phase
	m.phase = p
	if from != p {
		m.log.WithFields(logrus.Fields{"from": from, "to": p}).Info("phase transition")
	}
}

// BannerOrStatus is satisfied by the reader worker's classification of an
// inbound line: true,false for a GRBL banner, false,true for a parsed
// status report, false,false for neither.
type BannerOrStatus struct {
	IsBanner bool
	IsStatus bool
}

// Connect opens port, then waits up to HandshakeTimeout for recv to
// report a banner or status, issuing '?' and waiting for the first
// status before returning Ready (spec §4.F).
func (m *Manager) Connect(ctx context.Context, port string, recv <-chan BannerOrStatus) error {
	m.mu.Lock()
	m.port = port
	m.userDisconnected = false
	m.consecutiveMiss = 0
	m.setPhase(Handshaking)
	m.mu.Unlock()

	h, err := m.opener(port)
	if err != nil {
		m.mu.Lock()
		m.setPhase(Disconnected)
		m.mu.Unlock()
		return fmt.Errorf("connection: open %s: %w", port, err)
	}
	m.mu.Lock()
	m.handle = h
	m.mu.Unlock()

	hctx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	sawBannerOrStatus := false
	for !sawBannerOrStatus {
		select {
		case ev := <-recv:
			if ev.IsBanner || ev.IsStatus {
				sawBannerOrStatus = true
			}
		case <-hctx.Done():
			h.Close()
			m.mu.Lock()
			m.setPhase(Disconnected)
			m.mu.Unlock()
			return ErrHandshakeTimeout
		}
	}

	if err := h.WriteRealtimeByte('?'); err != nil {
		h.Close()
		m.mu.Lock()
		m.setPhase(Disconnected)
		m.mu.Unlock()
		return fmt.Errorf("connection: requesting first status: %w", err)
	}
	gotStatus := false
	for !gotStatus {
		select {
		case ev := <-recv:
			if ev.IsStatus {
				gotStatus = true
			}
		case <-hctx.Done():
			h.Close()
			m.mu.Lock()
			m.setPhase(Disconnected)
			m.mu.Unlock()
			return ErrHandshakeTimeout
		}
	}

	m.mu.Lock()
	m.setPhase(Ready)
	m.mu.Unlock()
	return nil
}

// Disconnect marks the connection as user-intentionally closed, so
// unexpected-close handling does not trigger auto-reconnect.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userDisconnected = true
	var err error
	if m.handle != nil {
		err = m.handle.Close()
		m.handle = nil
	}
	m.setPhase(Disconnected)
	return err
}

// BeginHoming suspends loss-detection (status-poll watchdog failures are
// ignored) for HomingGracePeriod, per spec §4.F's homing watchdog.
func (m *Manager) BeginHoming() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.homingUntil = m.clock.Now().Add(m.opts.HomingGracePeriod)
}

func (m *Manager) inHomingGrace() bool {
	return !m.homingUntil.IsZero() && m.clock.Now().Before(m.homingUntil)
}

// PollMissed records one failed status-poll round-trip. Once
// FailureThreshold consecutive misses accumulate (outside any homing
// grace period), the connection is treated as lost: it closes the handle,
// moves to Lost, and returns true. It does not start reconnecting itself;
// the caller decides whether to call Reconnect.
func (m *Manager) PollMissed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inHomingGrace() {
		return false
	}
	m.consecutiveMiss++
	if m.consecutiveMiss < m.opts.FailureThreshold {
		return false
	}
	if m.handle != nil {
		m.handle.Close()
		m.handle = nil
	}
	m.setPhase(Lost)
	return true
}

// PollOk resets the consecutive-failure counter on a successful poll.
func (m *Manager) PollOk() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveMiss = 0
}

// Reconnect retries opening the last-used port with exponential backoff
// (spec §4.F: initial 1s, factor 2, cap 30s), stopping early if ctx is
// canceled or the user has since called Disconnect. It does not perform
// the handshake itself — call Connect again once Reconnect succeeds.
func (m *Manager) Reconnect(ctx context.Context) (Handle, error) {
	m.mu.Lock()
	if m.userDisconnected {
		m.mu.Unlock()
		return nil, errors.New("connection: user disconnected, not reconnecting")
	}
	port := m.port
	m.setPhase(Reconnecting)
	m.mu.Unlock()

	backoff := m.opts.InitialBackoff
	for {
		h, err := m.opener(port)
		if err == nil {
			m.mu.Lock()
			m.handle = h
			m.consecutiveMiss = 0
			m.mu.Unlock()
			return h, nil
		}
		m.log.WithError(err).Warn("reconnect attempt failed")

		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.setPhase(Disconnected)
			m.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		m.clock.Sleep(backoff)
		backoff = time.Duration(float64(backoff) * m.opts.BackoffFactor)
		if backoff > m.opts.MaxBackoff {
			backoff = m.opts.MaxBackoff
		}

		m.mu.Lock()
		disconnected := m.userDisconnected
		m.mu.Unlock()
		if disconnected {
			return nil, errors.New("connection: user disconnected during reconnect")
		}
	}
}
