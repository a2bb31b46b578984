package macro

import (
	"regexp"
	"strings"
)

// DirectiveKind enumerates spec §9's plain-directive set, line-prefix
// dispatched without invoking the evaluator.
type DirectiveKind int

const (
	NotDirective DirectiveKind = iota
	DirectiveWait
	DirectiveMsg
	DirectiveUpdate
	DirectiveIf
	DirectiveStateReturn
)

// IfCondition is %if's argument, spec §9: "running|paused|not running".
type IfCondition int

const (
	IfRunning IfCondition = iota
	IfPaused
	IfNotRunning
)

// Directive is one parsed directive line.
type Directive struct {
	Kind DirectiveKind
	// Msg holds %msg's text argument.
	Msg string
	// If holds %if's parsed condition.
	If IfCondition
}

// parseDirective recognizes a leading '%' directive line. Lines that
// don't start with '%' are not directives (ok=false).
func parseDirective(line string) (Directive, bool) {
	if !strings.HasPrefix(line, "%") {
		return Directive{}, false
	}
	body := strings.TrimSpace(strings.TrimPrefix(line, "%"))
	verb, rest, _ := strings.Cut(body, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "wait":
		return Directive{Kind: DirectiveWait}, true
	case "msg":
		return Directive{Kind: DirectiveMsg, Msg: rest}, true
	case "update":
		return Directive{Kind: DirectiveUpdate}, true
	case "state_return":
		return Directive{Kind: DirectiveStateReturn}, true
	case "if":
		cond := IfRunning
		switch strings.TrimSpace(rest) {
		case "running":
			cond = IfRunning
		case "paused":
			cond = IfPaused
		case "not running":
			cond = IfNotRunning
		}
		return Directive{Kind: DirectiveIf, If: cond}, true
	default:
		return Directive{}, false
	}
}

// substitutionPattern matches a [...] expression substitution (spec §9:
// "Only expression evaluation within [...] ... go through goja").
var substitutionPattern = regexp.MustCompile(`\[([^\[\]]+)\]`)

// Substitute replaces every [...] expression in line with its evaluated
// result, via vars.
func Substitute(vars *Vars, line string) (string, error) {
	var firstErr error
	out := substitutionPattern.ReplaceAllStringFunc(line, func(match string) string {
		if firstErr != nil {
			return match
		}
		expr := match[1 : len(match)-1]
		val, err := vars.EvalString(expr)
		if err != nil {
			firstErr = err
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// isAssignmentLine reports whether line looks like a bare "key=value"
// (or "key = expr") statement rather than G-code, per spec §9's
// "comment-only key=value metadata" / scripting-enabled assignment
// lines. G-code words are a single letter followed directly by a
// number (no '='), so the presence of a top-level '=' outside any
// [...]  substitution is the discriminator.
var assignmentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*\s*=\s*\S.*$`)

func isAssignmentLine(line string) bool {
	return assignmentPattern.MatchString(strings.TrimSpace(line))
}
