// Package macro implements the macro executor's protocol-facing parts
// (spec §9 design note, expanded by SPEC_FULL.md): directive dispatch,
// the embedded expression evaluator backing MacroVars, idle-wait/modal
// snapshot-restore, and macro header parsing.
package macro

import (
	"fmt"

	"github.com/dop251/goja"
)

// Vars is the typed variable map macros read and write, backed by a
// sandboxed goja.Runtime (spec §9: "a small embedded expression
// evaluator over a typed variable map MacroVars"). Only [...] expression
// substitutions and bare key=value assignment lines touch the
// evaluator; plain directives never do.
type Vars struct {
	vm    *goja.Runtime
	state map[string]interface{}
}

// NewVars returns an empty Vars with its nested macro.state record
// initialized, and no Go objects exposed beyond the variables themselves
// (no require, no filesystem, no network — spec §9's sandboxing).
func NewVars() *Vars {
	v := &Vars{vm: goja.New(), state: map[string]interface{}{}}
	v.vm.Set("macro", map[string]interface{}{"state": v.state})
	return v
}

// SetFloat, SetBool, and SetString expose one top-level variable to
// macro expressions.
func (v *Vars) SetFloat(name string, f float64) { v.vm.Set(name, f) }
func (v *Vars) SetBool(name string, b bool)      { v.vm.Set(name, b) }
func (v *Vars) SetString(name string, s string)  { v.vm.Set(name, s) }

// SetState sets a field under the nested macro.state record (spec §3's
// "nested record for macro.state"), visible to expressions as
// macro.state.field.
func (v *Vars) SetState(field string, value interface{}) {
	v.state[field] = value
	v.vm.Set("macro", map[string]interface{}{"state": v.state})
}

// GetState reads back a field previously set via SetState.
func (v *Vars) GetState(field string) (interface{}, bool) {
	val, ok := v.state[field]
	return val, ok
}

// Eval runs expr and returns its goja.Value, for callers that need the
// raw value (e.g. to branch on truthiness in %if).
func (v *Vars) Eval(expr string) (goja.Value, error) {
	return v.vm.RunString(expr)
}

// EvalString evaluates expr and renders the result as it should appear
// substituted into G-code text.
func (v *Vars) EvalString(expr string) (string, error) {
	val, err := v.vm.RunString(expr)
	if err != nil {
		return "", fmt.Errorf("macro: evaluating %q: %w", expr, err)
	}
	return val.String(), nil
}

// Assign runs stmt (a bare "key=value" or "key = expr" line) as a
// statement, letting the evaluator create or update the corresponding
// top-level variable.
func (v *Vars) Assign(stmt string) error {
	_, err := v.vm.RunString(stmt)
	if err != nil {
		return fmt.Errorf("macro: assignment %q: %w", stmt, err)
	}
	return nil
}
