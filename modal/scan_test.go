package modal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rkolbi/simple-sender/gcode"
)

func TestScanDefaultsWhenNothingSeen(t *testing.T) {
	input := "G1 X1 Y1 F500\nG1 X2 Y2\nG1 X3 Y3\n"
	src, err := gcode.LoadReader(strings.NewReader(input), gcode.LoadOptions{})
	require.NoError(t, err)
	defer src.Close()

	snap, preamble, err := Scan(src, 3)
	require.NoError(t, err)
	require.Equal(t, "21", snap.Units)
	require.Equal(t, "90", snap.Distance)
	require.Equal(t, "1", snap.Motion)
	require.Equal(t, "500", snap.Feed)
	require.False(t, snap.SawG92BeforeTarget)
	require.NotEmpty(t, preamble)
}

func TestScanRestoresSpindleCoolantAndWCS(t *testing.T) {
	// Matches spec §4.C's worked example: by the time line 500 is reached,
	// units=mm, distance=absolute, WCS=G54, spindle on at 12000, feed 800.
	input := "G21\nG90\nG54\nM3 S12000\nG1 F800 X1 Y1\n" + strings.Repeat("G1 X1 Y1\n", 495) + "G1 X99 Y99\n"
	src, err := gcode.LoadReader(strings.NewReader(input), gcode.LoadOptions{})
	require.NoError(t, err)
	defer src.Close()

	snap, preamble, err := Scan(src, 500)
	require.NoError(t, err)
	require.Equal(t, "21", snap.Units)
	require.Equal(t, "90", snap.Distance)
	require.Equal(t, "54", snap.WCS)
	require.Equal(t, "3", snap.Spindle)
	require.Equal(t, "12000", snap.Speed)
	require.Equal(t, "800", snap.Feed)

	joined := strings.Join(preamble, "\n")
	require.Contains(t, joined, "G21")
	require.Contains(t, joined, "G90")
	require.Contains(t, joined, "G54")
	require.Contains(t, joined, "M3S12000")
	require.Contains(t, joined, "G1F800")

	for _, l := range preamble {
		require.LessOrEqual(t, len(l)+1, gcode.MaxLineBytes)
	}
}

func TestScanTracksG92Seen(t *testing.T) {
	input := "G92 X0 Y0\nG1 X1 Y1\nG1 X2 Y2\n"
	src, err := gcode.LoadReader(strings.NewReader(input), gcode.LoadOptions{})
	require.NoError(t, err)
	defer src.Close()

	snap, _, err := Scan(src, 3)
	require.NoError(t, err)
	require.True(t, snap.SawG92BeforeTarget)
}

func TestScanRejectsTargetBelowOne(t *testing.T) {
	src, err := gcode.LoadReader(strings.NewReader("G1 X1\n"), gcode.LoadOptions{})
	require.NoError(t, err)
	defer src.Close()

	_, _, err = Scan(src, 0)
	require.Error(t, err)
}

func TestScanCoolantOffAfterM9(t *testing.T) {
	input := "M8\nG1 X1\nM9\nG1 X2\n"
	src, err := gcode.LoadReader(strings.NewReader(input), gcode.LoadOptions{})
	require.NoError(t, err)
	defer src.Close()

	snap, preamble, err := Scan(src, 4)
	require.NoError(t, err)
	require.Empty(t, snap.Coolant)
	for _, l := range preamble {
		require.NotContains(t, l, "M8")
	}
}
