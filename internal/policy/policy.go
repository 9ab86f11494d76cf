// Package policy loads CUE policy files that supply per-action safety
// defaults (effect-scope limits, auto-snapshot, diff verbosity).
//
// A policy file declares a top-level "policy" field:
//
//	policy: {
//		default: effectScope: maxCellsAffected: 5000
//		actions: delete_rows: {
//			effectScope: maxRowsAffected: 50
//			autoSnapshot: true
//		}
//	}
//
// The value is unified with an embedded schema, so unknown action kinds,
// negative limits and misspelled fields are rejected with their source
// position. Defaults only fill what the request left unset; an explicit
// request option always wins.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/khill1269/servalsheets-sub001/internal/diff"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
)

//go:embed schema.cue
var schemaSrc string

// Rule is the set of defaults for one action kind.
type Rule struct {
	EffectScope  *engine.EffectScope `json:"effectScope,omitempty"`
	AutoSnapshot bool                `json:"autoSnapshot"`
	Verbosity    diff.Verbosity      `json:"verbosity,omitempty"`
}

// Policy is a decoded, schema-checked policy.
type Policy struct {
	Default *Rule           `json:"default,omitempty"`
	Actions map[string]Rule `json:"actions"`
}

// Error is a policy load or validation failure with its source position.
type Error struct {
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Load reads every .cue file in dir as one instance.
func Load(dir string) (*Policy, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("policy directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &Error{Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("scanning %s: %v", dir, err)}
	}
	if len(files) == 0 {
		return nil, &Error{Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, positioned(inst.Err)
	}
	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, positioned(err)
	}
	return decode(ctx, v)
}

// Parse compiles a single policy source. filename is used in positions.
func Parse(filename, src string) (*Policy, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, positioned(err)
	}
	return decode(ctx, v)
}

func decode(ctx *cue.Context, v cue.Value) (*Policy, error) {
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("policy schema: %w", err)
	}

	body := v.LookupPath(cue.ParsePath("policy"))
	if !body.Exists() {
		return nil, &Error{Message: "missing top-level policy field", Pos: v.Pos()}
	}

	unified := schema.LookupPath(cue.ParsePath("#Policy")).Unify(body)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, positioned(err)
	}

	var p Policy
	if err := unified.Decode(&p); err != nil {
		return nil, positioned(err)
	}
	if p.Actions == nil {
		p.Actions = map[string]Rule{}
	}
	return &p, nil
}

// positioned converts the first CUE error into an Error carrying its
// position, if it has one.
func positioned(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	out := &Error{Message: first.Error()}
	if ps := errors.Positions(first); len(ps) > 0 {
		out.Pos = ps[0]
	}
	return out
}

// Rule resolves the defaults for kind. Fields the action rule leaves unset
// fall back to the default rule; autoSnapshot is on if either sets it.
func (p *Policy) Rule(kind string) Rule {
	var r Rule
	if p == nil {
		return r
	}
	if p.Default != nil {
		r = *p.Default
	}
	a, ok := p.Actions[kind]
	if !ok {
		return r
	}
	if a.EffectScope != nil {
		r.EffectScope = a.EffectScope
	}
	if a.Verbosity != "" {
		r.Verbosity = a.Verbosity
	}
	r.AutoSnapshot = r.AutoSnapshot || a.AutoSnapshot
	return r
}

// Apply fills the request options left unset with kind's defaults.
func (p *Policy) Apply(kind string, opts engine.SafetyOptions) engine.SafetyOptions {
	r := p.Rule(kind)
	if opts.EffectScope == nil && r.EffectScope != nil {
		es := *r.EffectScope
		opts.EffectScope = &es
	}
	if opts.Verbosity == "" {
		opts.Verbosity = r.Verbosity
	}
	opts.AutoSnapshot = opts.AutoSnapshot || r.AutoSnapshot
	return opts
}
