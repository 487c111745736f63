package lang

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// VarsFileSuffix marks files that carry variable settings rather than
// declarations.
const VarsFileSuffix = ".sfvars.hcl"

// Variable is a typed input. Values are immutable once bound for a run.
type Variable struct {
	Name        string
	Type        cty.Type
	Default     cty.Value
	HasDefault  bool
	Validations []*Validation
	DeclRange   hcl.Range
}

// Validation is one declared constraint on a variable value.
type Validation struct {
	Condition    hcl.Expression
	ErrorMessage string
}

// ValidationError aggregates every declaration and variable constraint
// violation found in one pass, so a run reports the full set rather than
// stopping at the first.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid configuration: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid configuration (%d problems):\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

func decodeVariable(block *hcl.Block) (*Variable, error) {
	body, ok := block.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("%s: variable body is not native syntax", block.DefRange)
	}

	v := &Variable{
		Name:      block.Labels[0],
		Type:      cty.String,
		DeclRange: block.DefRange,
	}

	if attr, ok := body.Attributes["type"]; ok {
		t, err := typeFromExpr(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("%s: variable %q: %w", attr.SrcRange, v.Name, err)
		}
		v.Type = t
	}

	if attr, ok := body.Attributes["default"]; ok {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: variable %q default must be constant: %s", attr.SrcRange, v.Name, diags.Error())
		}
		converted, err := convert.Convert(val, v.Type)
		if err != nil {
			return nil, fmt.Errorf("%s: variable %q default does not match declared type: %w", attr.SrcRange, v.Name, err)
		}
		v.Default = converted
		v.HasDefault = true
	}

	for _, inner := range body.Blocks {
		if inner.Type != "validation" {
			return nil, fmt.Errorf("%s: unsupported block %q in variable %q", inner.DefRange(), inner.Type, v.Name)
		}
		cond, ok := inner.Body.Attributes["condition"]
		if !ok {
			return nil, fmt.Errorf("%s: validation block is missing condition", inner.DefRange())
		}
		msg := fmt.Sprintf("variable %q validation failed", v.Name)
		if msgAttr, ok := inner.Body.Attributes["error_message"]; ok {
			s, err := stringAttr(msgAttr)
			if err != nil {
				return nil, err
			}
			msg = s
		}
		v.Validations = append(v.Validations, &Validation{
			Condition:    cond.Expr,
			ErrorMessage: msg,
		})
	}

	return v, nil
}

// typeFromExpr maps a bare type keyword (string, number, bool, map) to a
// cty type.
func typeFromExpr(expr hcl.Expression) (cty.Type, error) {
	trav, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() || len(trav) != 1 {
		return cty.NilType, fmt.Errorf("type must be one of: string, number, bool, map")
	}
	switch trav.RootName() {
	case "string":
		return cty.String, nil
	case "number":
		return cty.Number, nil
	case "bool":
		return cty.Bool, nil
	case "map":
		return cty.Map(cty.String), nil
	default:
		return cty.NilType, fmt.Errorf("unsupported type %q (want string, number, bool, or map)", trav.RootName())
	}
}

// BindVariables resolves final values for every declared variable from
// explicit CLI settings and defaults, then runs every validation predicate.
// All violations are reported together in a single ValidationError.
func BindVariables(decls []*Variable, set map[string]string) (map[string]cty.Value, error) {
	values := make(map[string]cty.Value, len(decls))
	var problems []string

	declared := make(map[string]*Variable, len(decls))
	for _, v := range decls {
		declared[v.Name] = v
	}
	for name := range set {
		if _, ok := declared[name]; !ok {
			problems = append(problems, fmt.Sprintf("value supplied for undeclared variable %q", name))
		}
	}

	for _, v := range decls {
		raw, supplied := set[v.Name]
		switch {
		case supplied:
			val, err := parseVariableValue(raw, v.Type)
			if err != nil {
				problems = append(problems, fmt.Sprintf("variable %q: %s", v.Name, err))
				continue
			}
			values[v.Name] = val
		case v.HasDefault:
			values[v.Name] = v.Default
		default:
			problems = append(problems, fmt.Sprintf("variable %q has no value and no default", v.Name))
		}
	}

	// Validation predicates see the full variable set (a condition may
	// relate two variables), so they only run once binding succeeded.
	if len(problems) == 0 {
		ctx := VariableContext(values)
		for _, v := range decls {
			for _, check := range v.Validations {
				ok, err := EvalBool(check.Condition, ctx)
				if err != nil {
					problems = append(problems, fmt.Sprintf("variable %q: validation condition: %s", v.Name, err))
					continue
				}
				if !ok {
					problems = append(problems, check.ErrorMessage)
				}
			}
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return values, nil
}

// LoadVarsDir reads every *.sfvars.hcl file in dir, in lexical filename
// order, and returns the variable settings found there in the same string
// form a --var flag carries. Later files override earlier ones. A directory
// with no vars files yields an empty set.
func LoadVarsDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	parser := hclparse.NewParser()
	set := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), VarsFileSuffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
		}
		attrs, diags := file.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("%s: only top-level assignments are allowed in a vars file: %s", path, diags.Error())
		}
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			val, diags := attrs[name].Expr.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("%s: variable %q must be a constant value: %s", path, name, diags.Error())
			}
			raw, err := renderVarValue(val)
			if err != nil {
				return nil, fmt.Errorf("%s: variable %q: %w", path, name, err)
			}
			set[name] = raw
		}
	}
	return set, nil
}

// renderVarValue renders a constant value back to the literal form
// parseVariableValue accepts, so file and flag settings share one binding
// path.
func renderVarValue(val cty.Value) (string, error) {
	if val.IsNull() || !val.IsKnown() {
		return "", fmt.Errorf("value must be a known, non-null constant")
	}
	t := val.Type()
	switch {
	case t == cty.String:
		return val.AsString(), nil
	case t.IsMapType() || t.IsObjectType():
		var parts []string
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			elem, err := convert.Convert(v, cty.String)
			if err != nil {
				return "", fmt.Errorf("map element %s: %w", k.AsString(), err)
			}
			parts = append(parts, fmt.Sprintf("%s = %q", k.AsString(), elem.AsString()))
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	default:
		s, err := convert.Convert(val, cty.String)
		if err != nil {
			return "", fmt.Errorf("unsupported value type %s", t.FriendlyName())
		}
		return s.AsString(), nil
	}
}

// parseVariableValue converts a raw CLI string into a typed cty value.
func parseVariableValue(raw string, t cty.Type) (cty.Value, error) {
	if t == cty.String {
		return cty.StringVal(raw), nil
	}
	// Non-string scalars accept their literal HCL form ("true", "8080").
	expr, diags := hclsyntax.ParseExpression([]byte(raw), "<value>", hcl.InitialPos)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("invalid value %q: %s", raw, diags.Error())
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("invalid value %q: %s", raw, diags.Error())
	}
	converted, err := convert.Convert(val, t)
	if err != nil {
		return cty.NilVal, fmt.Errorf("value %q does not match declared type: %w", raw, err)
	}
	return converted, nil
}

func EvalBool(expr hcl.Expression, ctx *hcl.EvalContext) (bool, error) {
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return false, fmt.Errorf("%s", diags.Error())
	}
	val, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("condition is not boolean: %w", err)
	}
	if !val.IsKnown() || val.IsNull() {
		return false, fmt.Errorf("condition value is not known")
	}
	return val.True(), nil
}
