package macro

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rkolbi/simple-sender/gate"
	"github.com/rkolbi/simple-sender/modal"
	"github.com/rkolbi/simple-sender/status"
	"github.com/rkolbi/simple-sender/stream"
)

type recordingWriter struct {
	lines [][]byte
}

func (w *recordingWriter) WriteLine(data []byte) error {
	w.lines = append(w.lines, append([]byte(nil), data...))
	return nil
}
func (w *recordingWriter) WriteRealtimeByte(b byte) error { return nil }

// driveToCompletion acks every dispatched macro line and keeps refreshing
// the tracker with an Idle sample until run returns, so the executor's
// ack+idle wait is satisfied regardless of goroutine scheduling.
func driveToCompletion(t *testing.T, ctrl *stream.Controller, tracker *status.Tracker, done <-chan error) {
	t.Helper()
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			return
		case <-ticker.C:
			ctrl.HandleOk()
			tracker.Update(status.ControllerStatus{State: "Idle"})
		case <-deadline:
			t.Fatal("macro run did not complete in time")
		}
	}
}

func newTestExecutor(t *testing.T) (*Executor, *stream.Controller, *status.Tracker) {
	t.Helper()
	tracker := status.NewTracker(nil)
	var ctrl *stream.Controller
	exec := NewExecutor(nil, tracker, nil, nil)
	ctrl = stream.New(&recordingWriter{}, stream.Options{OnAck: exec.OnAck})
	g := gate.New(ctrl, nil)
	exec.gate = g
	return exec, ctrl, tracker
}

func TestExecutorRunDispatchesPlainLine(t *testing.T) {
	exec, ctrl, tracker := newTestExecutor(t)

	done := make(chan error, 1)
	go func() { done <- exec.Run(context.Background(), ctrl, "G1 X1 F100\n") }()

	driveToCompletion(t, ctrl, tracker, done)
}

func TestExecutorSubstitutesExpressionBeforeSend(t *testing.T) {
	writer := &recordingWriter{}
	tracker := status.NewTracker(nil)
	exec := NewExecutor(nil, tracker, nil, nil)
	ctrl := stream.New(writer, stream.Options{OnAck: exec.OnAck})
	exec.gate = gate.New(ctrl, nil)
	exec.Vars().SetFloat("zSafe", 5)

	done := make(chan error, 1)
	go func() { done <- exec.Run(context.Background(), ctrl, "G0 Z[zSafe + 1]\n") }()

	driveToCompletion(t, ctrl, tracker, done)
	require.Len(t, writer.lines, 1)
	require.Equal(t, "G0 Z6\n", string(writer.lines[0]))
}

func TestExecutorAssignmentLineDoesNotDispatch(t *testing.T) {
	exec, ctrl, tracker := newTestExecutor(t)

	done := make(chan error, 1)
	go func() { done <- exec.Run(context.Background(), ctrl, "retries = 3\nG1 X1\n") }()

	driveToCompletion(t, ctrl, tracker, done)

	out, err := exec.Vars().EvalString("retries")
	require.NoError(t, err)
	require.Equal(t, "3", out)
}

func TestExecutorIfFalseSkipsGuardedLine(t *testing.T) {
	writer := &recordingWriter{}
	tracker := status.NewTracker(nil)
	exec := NewExecutor(nil, tracker, nil, nil)
	ctrl := stream.New(writer, stream.Options{OnAck: exec.OnAck})
	exec.gate = gate.New(ctrl, nil)
	// The controller is never armed, so it stays Idle and "%if running"
	// is false.

	done := make(chan error, 1)
	go func() {
		done <- exec.Run(context.Background(), ctrl, "%if running\nG1 X999\nG1 X1\n")
	}()

	driveToCompletion(t, ctrl, tracker, done)
	require.Len(t, writer.lines, 1)
	require.Equal(t, "G1 X1\n", string(writer.lines[0]))
}

func TestExecutorMsgDirectiveNotifies(t *testing.T) {
	tracker := status.NewTracker(nil)
	var captured string
	exec := NewExecutor(nil, tracker, nil, func(msg string) { captured = msg })
	ctrl := stream.New(&recordingWriter{}, stream.Options{OnAck: exec.OnAck})
	exec.gate = gate.New(ctrl, nil)

	done := make(chan error, 1)
	go func() { done <- exec.Run(context.Background(), ctrl, "%msg probe complete\n") }()
	driveToCompletion(t, ctrl, tracker, done)

	require.Equal(t, "probe complete", captured)
}

func TestExecutorStateReturnReplaysPreamble(t *testing.T) {
	writer := &recordingWriter{}
	tracker := status.NewTracker(nil)
	exec := NewExecutor(nil, tracker, nil, nil)
	ctrl := stream.New(writer, stream.Options{OnAck: exec.OnAck})
	exec.gate = gate.New(ctrl, nil)

	done := make(chan error, 1)
	go func() { done <- exec.Run(context.Background(), ctrl, "%state_return\n") }()
	driveToCompletion(t, ctrl, tracker, done)

	want := modal.BuildPreamble(ctrl.CurrentModal())
	require.Len(t, writer.lines, len(want))
	for i, l := range want {
		require.Equal(t, l+"\n", string(writer.lines[i]))
	}
}
