package gate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rkolbi/simple-sender/gcode"
	"github.com/rkolbi/simple-sender/stream"
)

type nullWriter struct{}

func (nullWriter) WriteLine(data []byte) error    { return nil }
func (nullWriter) WriteRealtimeByte(b byte) error { return nil }

func armedRunningController(t *testing.T) *stream.Controller {
	t.Helper()
	src, err := gcode.LoadReader(strings.NewReader(strings.Repeat("G1 X1 F100\n", 20)), gcode.LoadOptions{})
	require.NoError(t, err)
	c := stream.New(nullWriter{}, stream.Options{})
	require.NoError(t, c.Arm(src))
	require.NoError(t, c.Run())
	return c
}

func TestManualBlockedWhileStreaming(t *testing.T) {
	c := armedRunningController(t)
	g := New(c, nil)

	err := g.SubmitLine(Manual, "G1 X5")
	require.Error(t, err)
	var ge *Error
	require.ErrorAs(t, err, &ge)
	require.Equal(t, BlockedByStreaming, ge.Kind)
}

func TestRealtimeAlwaysAllowedWhileStreaming(t *testing.T) {
	c := armedRunningController(t)
	g := New(c, nil)
	require.NoError(t, g.SubmitRealtime(stream.RealtimeFeedHold))
}

func TestAlarmLockoutAllowList(t *testing.T) {
	c := stream.New(nullWriter{}, stream.Options{})
	src, err := gcode.LoadReader(strings.NewReader("G1 X1\n"), gcode.LoadOptions{})
	require.NoError(t, err)
	require.NoError(t, c.Arm(src))
	require.NoError(t, c.Run())
	c.HandleAlarm(1)
	require.Equal(t, stream.AlarmLocked, c.State())

	g := New(c, nil)

	err = g.SubmitLine(Manual, "G1 X5")
	require.Error(t, err)
	var ge *Error
	require.ErrorAs(t, err, &ge)
	require.Equal(t, BlockedByAlarm, ge.Kind)

	require.NoError(t, g.SubmitLine(Manual, "$X"))

	err = g.SubmitRealtime(stream.RealtimeCycleStart)
	require.Error(t, err)
	require.NoError(t, g.SubmitRealtime(stream.RealtimeStatus))
}

func TestDisconnectedBlocksEverything(t *testing.T) {
	c := stream.New(nullWriter{}, stream.Options{})
	g := New(c, func() bool { return false })

	err := g.SubmitLine(Manual, "$X")
	require.Error(t, err)
	var ge *Error
	require.ErrorAs(t, err, &ge)
	require.Equal(t, BlockedByDisconnect, ge.Kind)

	err = g.SubmitRealtime(stream.RealtimeStatus)
	require.Error(t, err)
}

func TestMacroLineAllowedWhileIdle(t *testing.T) {
	c := stream.New(nullWriter{}, stream.Options{})
	g := New(c, nil)
	require.NoError(t, g.SubmitLine(Macro, "G1 X1"))
}

// TestSubmitMacroLineHeldDoesNotDeadlockUnderAcquiredLock is the
// regression test for the macro executor's held-lock dispatch path: it
// must not re-lock g.mu itself.
func TestSubmitMacroLineHeldDoesNotDeadlockUnderAcquiredLock(t *testing.T) {
	c := stream.New(nullWriter{}, stream.Options{})
	g := New(c, nil)

	release := g.AcquireMacro()
	defer release()

	require.NoError(t, g.SubmitMacroLineHeld("G1 X1"))
}

func TestSubmitMacroLineHeldRespectsAlarmLockout(t *testing.T) {
	src, err := gcode.LoadReader(strings.NewReader("G1 X1\n"), gcode.LoadOptions{})
	require.NoError(t, err)
	c := stream.New(nullWriter{}, stream.Options{})
	require.NoError(t, c.Arm(src))
	require.NoError(t, c.Run())
	c.HandleAlarm(1)

	g := New(c, nil)
	release := g.AcquireMacro()
	defer release()

	err = g.SubmitMacroLineHeld("G1 X5")
	require.Error(t, err)
	var ge *Error
	require.ErrorAs(t, err, &ge)
	require.Equal(t, BlockedByAlarm, ge.Kind)
}
