package status

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFullReport(t *testing.T) {
	s, err := Parse("<Run|MPos:1.000,2.000,3.000|Bf:15,128|WCO:0.100,0.200,0.300|Pn:XH|FS:500,1000|Ov:100,100,100>\r\n")
	require.NoError(t, err)
	require.Equal(t, "Run", s.State)
	require.Equal(t, [3]float64{1, 2, 3}, s.MPos)
	require.True(t, s.HasBf)
	require.Equal(t, 15, s.RxAvail)
	require.Equal(t, 128, s.PlannerAvail)
	require.True(t, s.HasWCO)
	require.True(t, s.Pins.X)
	require.True(t, s.Pins.H)
	require.False(t, s.Pins.Y)
	require.True(t, s.HasFS)
	require.Equal(t, 500.0, s.Feed)
	require.True(t, s.HasOverrides)
	require.Equal(t, OverridePercents{Feed: 100, Rapid: 100, Spindle: 100}, s.Overrides)

	wpos := s.ResolvedWPos()
	require.InDelta(t, 0.9, wpos[0], 1e-9)
	require.InDelta(t, 1.8, wpos[1], 1e-9)
	require.InDelta(t, 2.7, wpos[2], 1e-9)
}

func TestParseMinimalReport(t *testing.T) {
	s, err := Parse("<Idle|MPos:0.000,0.000,0.000>")
	require.NoError(t, err)
	require.Equal(t, "Idle", s.State)
	require.False(t, s.HasBf)
	require.False(t, s.HasWCO)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("<>")
	require.Error(t, err)
}

func TestParseAlarmState(t *testing.T) {
	s, err := Parse("<Alarm|MPos:0.000,0.000,0.000>")
	require.NoError(t, err)
	require.True(t, s.IsAlarm())
}

func TestTrackerWaitAdvancesOnUpdate(t *testing.T) {
	tr := NewTracker(nil)
	_, since := tr.Current()

	go func() {
		time.Sleep(20 * time.Millisecond)
		s, _ := Parse("<Idle|MPos:0.000,0.000,0.000>")
		tr.Update(s)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, f, err := tr.Wait(ctx, since)
	require.NoError(t, err)
	require.Greater(t, f, since)
	require.Equal(t, "Idle", s.State)
}

func TestTrackerWaitTimesOut(t *testing.T) {
	tr := NewTracker(nil)
	_, since := tr.Current()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := tr.Wait(ctx, since)
	require.Error(t, err)
}
