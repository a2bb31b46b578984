package macro

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDirectiveRecognizesEachKind(t *testing.T) {
	cases := []struct {
		line string
		kind DirectiveKind
	}{
		{"%wait", DirectiveWait},
		{"%msg hello there", DirectiveMsg},
		{"%update", DirectiveUpdate},
		{"%state_return", DirectiveStateReturn},
		{"%if running", DirectiveIf},
	}
	for _, c := range cases {
		d, ok := parseDirective(c.line)
		require.True(t, ok, c.line)
		require.Equal(t, c.kind, d.Kind, c.line)
	}
}

func TestParseDirectiveMsgCapturesArgument(t *testing.T) {
	d, ok := parseDirective("%msg probing complete")
	require.True(t, ok)
	require.Equal(t, "probing complete", d.Msg)
}

func TestParseDirectiveIfConditions(t *testing.T) {
	cases := []struct {
		line string
		want IfCondition
	}{
		{"%if running", IfRunning},
		{"%if paused", IfPaused},
		{"%if not running", IfNotRunning},
	}
	for _, c := range cases {
		d, ok := parseDirective(c.line)
		require.True(t, ok, c.line)
		require.Equal(t, c.want, d.If, c.line)
	}
}

func TestParseDirectiveRejectsNonDirectiveLine(t *testing.T) {
	_, ok := parseDirective("G1 X1 F100")
	require.False(t, ok)
}

func TestSubstituteReplacesExpressions(t *testing.T) {
	v := NewVars()
	v.SetFloat("zSafe", 5)
	out, err := Substitute(v, "G0 Z[zSafe + 1]")
	require.NoError(t, err)
	require.Equal(t, "G0 Z6", out)
}

func TestSubstituteLeavesPlainLineUnchanged(t *testing.T) {
	v := NewVars()
	out, err := Substitute(v, "G1 X1 Y2 F500")
	require.NoError(t, err)
	require.Equal(t, "G1 X1 Y2 F500", out)
}

func TestSubstitutePropagatesEvalError(t *testing.T) {
	v := NewVars()
	_, err := Substitute(v, "G0 Z[(]")
	require.Error(t, err)
}

func TestIsAssignmentLineDetectsKeyEquals(t *testing.T) {
	require.True(t, isAssignmentLine("retries = 3"))
	require.True(t, isAssignmentLine("probeZ=-1.25"))
	require.False(t, isAssignmentLine("G1 X1 F100"))
	require.False(t, isAssignmentLine("%wait"))
}
