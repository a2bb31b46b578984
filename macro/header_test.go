package macro

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFileReadsFullFourLineHeader(t *testing.T) {
	content := "Probe Z\nTouch off the Z axis\n#ff0000\n#ffffff\nG38.2 Z-10 F50\nG10 L20 P1 Z0\n"
	h, body, err := ParseFile(content)
	require.NoError(t, err)
	require.Equal(t, Header{Label: "Probe Z", Tooltip: "Touch off the Z axis", Color: "#ff0000", TextColor: "#ffffff"}, h)
	require.Equal(t, "G38.2 Z-10 F50\nG10 L20 P1 Z0\n", body)
}

func TestParseFileAllowsOmittedColors(t *testing.T) {
	// Blank lines hold the place of the optional color fields; the body
	// always starts after the fixed four header lines.
	content := "Home\nRun the homing cycle\n\n\n$H\n"
	h, body, err := ParseFile(content)
	require.NoError(t, err)
	require.Equal(t, Header{Label: "Home", Tooltip: "Run the homing cycle"}, h)
	require.Equal(t, "$H\n", body)
}

func TestParseFileShortFileOmitsTrailingHeaderLines(t *testing.T) {
	// A file with fewer than four lines and no body at all: label and
	// tooltip only.
	h, body, err := ParseFile("Home\nRun the homing cycle")
	require.NoError(t, err)
	require.Equal(t, Header{Label: "Home", Tooltip: "Run the homing cycle"}, h)
	require.Equal(t, "", body)
}

func TestParseFileRejectsMissingTooltip(t *testing.T) {
	_, _, err := ParseFile("Home\n")
	require.Error(t, err)
}

func TestParseFileHandlesEmptyBody(t *testing.T) {
	h, body, err := ParseFile("Home\nRun the homing cycle\n")
	require.NoError(t, err)
	require.Equal(t, "Home", h.Label)
	require.Equal(t, "", body)
}
