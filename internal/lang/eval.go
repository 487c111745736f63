package lang

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Reserved expression roots that never name a resource type.
const (
	RootVar      = "var"
	RootStep     = "step"
	RootRevision = "revision"
)

// VariableContext builds an EvalContext exposing only the bound variables
// under the "var" root. Used for condition and validation evaluation.
func VariableContext(vars map[string]cty.Value) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			RootVar: cty.ObjectVal(vars),
		},
	}
}

// ResourceContext extends a variable context with resource attribute values
// keyed by address ("aws_vpc.main" → attribute object). Expressions then
// resolve references of the form <type>.<name>.<field>.
func ResourceContext(vars map[string]cty.Value, resources map[string]map[string]any) (*hcl.EvalContext, error) {
	byType := make(map[string]map[string]cty.Value)
	for addr, attrs := range resources {
		typ, name, err := SplitAddr(addr)
		if err != nil {
			return nil, err
		}
		obj, err := GoToCty(attrs)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", addr, err)
		}
		if byType[typ] == nil {
			byType[typ] = make(map[string]cty.Value)
		}
		byType[typ][name] = obj
	}

	variables := map[string]cty.Value{
		RootVar: cty.ObjectVal(vars),
	}
	for typ, names := range byType {
		variables[typ] = cty.ObjectVal(names)
	}
	return &hcl.EvalContext{Variables: variables}, nil
}

// StepContext builds the pipeline evaluation context: bound variables, the
// source revision, and every published artifact under step.<id>.<name>.
func StepContext(vars map[string]cty.Value, revision string, artifacts map[string]map[string]string) *hcl.EvalContext {
	steps := make(map[string]cty.Value, len(artifacts))
	for id, arts := range artifacts {
		vals := make(map[string]cty.Value, len(arts))
		for k, v := range arts {
			vals[k] = cty.StringVal(v)
		}
		if len(vals) == 0 {
			steps[id] = cty.EmptyObjectVal
			continue
		}
		steps[id] = cty.ObjectVal(vals)
	}

	variables := map[string]cty.Value{
		RootVar:      cty.ObjectVal(vars),
		RootRevision: cty.StringVal(revision),
	}
	if len(steps) > 0 {
		variables[RootStep] = cty.ObjectVal(steps)
	}
	return &hcl.EvalContext{Variables: variables}
}

// ResourceRefs extracts every resource address referenced by an expression.
// A traversal whose root is not a reserved word is read as
// <type>.<name>[.<field>...]; shorter traversals are reported to the caller
// as malformed.
func ResourceRefs(expr hcl.Expression) ([]string, error) {
	var refs []string
	seen := make(map[string]bool)
	for _, trav := range expr.Variables() {
		root := trav.RootName()
		if root == RootVar || root == RootStep || root == RootRevision {
			continue
		}
		addr, err := traversalAddr(trav)
		if err != nil {
			return nil, err
		}
		if !seen[addr] {
			seen[addr] = true
			refs = append(refs, addr)
		}
	}
	return refs, nil
}

// StepRefs extracts every step id referenced via step.<id>.<artifact>.
func StepRefs(expr hcl.Expression) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, trav := range expr.Variables() {
		if trav.RootName() != RootStep || len(trav) < 2 {
			continue
		}
		attr, ok := trav[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		if !seen[attr.Name] {
			seen[attr.Name] = true
			refs = append(refs, attr.Name)
		}
	}
	return refs
}

// traversalAddr converts a <type>.<name>... traversal into a resource
// address.
func traversalAddr(trav hcl.Traversal) (string, error) {
	if len(trav) < 2 {
		return "", fmt.Errorf("reference %q must name a resource as <type>.<name>", trav.RootName())
	}
	attr, ok := trav[1].(hcl.TraverseAttr)
	if !ok {
		return "", fmt.Errorf("reference %q must name a resource as <type>.<name>", trav.RootName())
	}
	return trav.RootName() + "." + attr.Name, nil
}

// SplitAddr splits a resource address into type and name.
func SplitAddr(addr string) (typ, name string, err error) {
	i := strings.LastIndex(addr, ".")
	if i <= 0 || i == len(addr)-1 {
		return "", "", fmt.Errorf("malformed resource address %q (want type.name)", addr)
	}
	return addr[:i], addr[i+1:], nil
}

// EvalAttrs evaluates a resource's attribute expressions against ctx,
// returning plain Go values ready for JSON encoding toward a provider.
func EvalAttrs(attrs map[string]hcl.Expression, ctx *hcl.EvalContext) (map[string]any, error) {
	out := make(map[string]any, len(attrs))
	for name, expr := range attrs {
		val, diags := expr.Value(ctx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("attribute %q: %s", name, diags.Error())
		}
		gv, err := CtyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = gv
	}
	return out, nil
}

// GoToCty converts a JSON-shaped Go value into a cty value.
func GoToCty(v any) (cty.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, fmt.Errorf("value is not JSON-encodable: %w", err)
	}
	t, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot type value: %w", err)
	}
	val, err := ctyjson.Unmarshal(raw, t)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot decode value: %w", err)
	}
	return val, nil
}

// CtyToGo converts a cty value into the equivalent JSON-shaped Go value.
func CtyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	raw, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return nil, fmt.Errorf("cannot encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cannot decode value: %w", err)
	}
	return out, nil
}
