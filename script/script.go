package script

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Param is one parameter declared by a script, exposed to the graph as
// a named, range-bounded node parameter.
type Param struct {
	Name    string
	Min     float64
	Max     float64
	Default float64
}

// Script is an immutable compiled script: validated source plus the
// processing expression. A Script is safe to share; per-node execution
// state lives in Proc.
type Script struct {
	source  string
	params  []Param
	process hclsyntax.Expression
}

// Error is a compile-time script failure carrying the underlying HCL
// diagnostics.
type Error struct {
	Diags hcl.Diagnostics
}

func (e *Error) Error() string {
	return "script: " + e.Diags.Error()
}

// inputVars are the built-in per-sample variables. Parameter names may
// not shadow them.
var inputVars = map[string]bool{
	"x":  true, // current input sample
	"x1": true, // previous input sample
	"y1": true, // previous output sample
	"t":  true, // sample index since reset
	"sr": true, // sample rate
}

var scriptSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "process", Required: true},
		{Name: "desc"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "param", LabelNames: []string{"name"}},
	},
}

var paramSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "min"},
		{Name: "max"},
		{Name: "default"},
	},
}

// Compile parses and statically validates script source. It fails with
// *Error on syntax errors, malformed parameter declarations, calls to
// functions outside the sandbox allowlist, or references to undeclared
// variables. No part of the script is executed.
func Compile(source string) (*Script, error) {
	file, diags := hclsyntax.ParseConfig([]byte(source), "script.hcl", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, &Error{Diags: diags}
	}

	content, diags := file.Body.Content(scriptSchema)
	if diags.HasErrors() {
		return nil, &Error{Diags: diags}
	}

	s := &Script{source: source}

	for _, block := range content.Blocks {
		p, diags := parseParam(block)
		if diags.HasErrors() {
			return nil, &Error{Diags: diags}
		}
		for _, existing := range s.params {
			if existing.Name == p.Name {
				return nil, compileErrorf(block.DefRange, "duplicate param %q", p.Name)
			}
		}
		s.params = append(s.params, p)
	}

	process, ok := content.Attributes["process"].Expr.(hclsyntax.Expression)
	if !ok {
		return nil, compileErrorf(content.Attributes["process"].Range, "unsupported expression form")
	}

	if err := s.validate(process); err != nil {
		return nil, err
	}

	s.process = process
	return s, nil
}

// Source returns the original script text.
func (s *Script) Source() string { return s.source }

// Params returns the declared parameters in declaration order.
func (s *Script) Params() []Param {
	out := make([]Param, len(s.params))
	copy(out, s.params)
	return out
}

func parseParam(block *hcl.Block) (Param, hcl.Diagnostics) {
	name := block.Labels[0]

	p := Param{Name: name, Min: 0, Max: 1}

	if name == "" || inputVars[name] {
		return p, errDiags(block.DefRange, fmt.Sprintf("param name %q is reserved", name))
	}
	if _, clash := sandboxFuncs[name]; clash {
		return p, errDiags(block.DefRange, fmt.Sprintf("param name %q shadows a function", name))
	}

	content, diags := block.Body.Content(paramSchema)
	if diags.HasErrors() {
		return p, diags
	}

	read := func(name string, dst *float64) hcl.Diagnostics {
		attr, ok := content.Attributes[name]
		if !ok {
			return nil
		}
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return diags
		}
		if v.Type() != cty.Number {
			return errDiags(attr.Range, fmt.Sprintf("param %s must be a number", name))
		}
		f, _ := v.AsBigFloat().Float64()
		*dst = f
		return nil
	}

	if diags := read("min", &p.Min); diags.HasErrors() {
		return p, diags
	}
	if diags := read("max", &p.Max); diags.HasErrors() {
		return p, diags
	}
	p.Default = p.Min
	if diags := read("default", &p.Default); diags.HasErrors() {
		return p, diags
	}

	if p.Min > p.Max {
		return p, errDiags(block.DefRange, fmt.Sprintf("param %q: min %v > max %v", name, p.Min, p.Max))
	}
	if p.Default < p.Min || p.Default > p.Max {
		return p, errDiags(block.DefRange, fmt.Sprintf("param %q: default %v outside [%v, %v]", name, p.Default, p.Min, p.Max))
	}

	return p, nil
}

// validate walks the processing expression and rejects references to
// anything outside the sandbox surface: unknown variables, multi-step
// traversals, and function calls off the allowlist. This is a
// defense-in-depth layer on top of the empty evaluation context.
func (s *Script) validate(expr hclsyntax.Expression) error {
	allowed := make(map[string]bool, len(inputVars)+len(s.params))
	for v := range inputVars {
		allowed[v] = true
	}
	for _, p := range s.params {
		allowed[p.Name] = true
	}

	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if !allowed[root] {
			return compileErrorf(traversal.SourceRange(), "unknown variable %q", root)
		}
		if len(traversal) > 1 {
			return compileErrorf(traversal.SourceRange(), "variable %q has no attributes", root)
		}
	}

	w := &callWalker{}
	diags := hclsyntax.Walk(expr, w)
	if diags.HasErrors() {
		return &Error{Diags: diags}
	}

	return nil
}

// callWalker rejects calls to functions outside the allowlist.
type callWalker struct{}

func (w *callWalker) Enter(node hclsyntax.Node) hcl.Diagnostics {
	call, ok := node.(*hclsyntax.FunctionCallExpr)
	if !ok {
		return nil
	}
	if _, ok := sandboxFuncs[call.Name]; !ok {
		return errDiags(call.NameRange, fmt.Sprintf("function %q is not available in scripts", call.Name))
	}
	return nil
}

func (w *callWalker) Exit(node hclsyntax.Node) hcl.Diagnostics { return nil }

func compileErrorf(rng hcl.Range, format string, args ...any) error {
	return &Error{Diags: errDiags(rng, fmt.Sprintf(format, args...))}
}

func errDiags(rng hcl.Range, summary string) hcl.Diagnostics {
	return hcl.Diagnostics{
		&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  summary,
			Subject:  &rng,
		},
	}
}
