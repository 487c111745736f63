package lang

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "expr.sf.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestResourceRefs(t *testing.T) {
	expr := parseExpr(t, `"${aws_vpc.main.id}-${aws_subnet.web.id}-${var.region}"`)

	refs, err := ResourceRefs(expr)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aws_vpc.main", "aws_subnet.web"}, refs)
}

func TestResourceRefs_Malformed(t *testing.T) {
	expr := parseExpr(t, `aws_vpc`)
	_, err := ResourceRefs(expr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type.name")
}

func TestStepRefs(t *testing.T) {
	expr := parseExpr(t, `"${step.build.image}:${step.build.tag}-${revision}"`)
	assert.Equal(t, []string{"build"}, StepRefs(expr))
}

func TestSplitAddr(t *testing.T) {
	typ, name, err := SplitAddr("aws_vpc.main")
	require.NoError(t, err)
	assert.Equal(t, "aws_vpc", typ)
	assert.Equal(t, "main", name)

	_, _, err = SplitAddr("nodot")
	assert.Error(t, err)
}

func TestResourceContext_Eval(t *testing.T) {
	vars := map[string]cty.Value{"region": cty.StringVal("eu-west-1")}
	resources := map[string]map[string]any{
		"aws_vpc.main": {"id": "vpc-123", "cidr_block": "10.0.0.0/16"},
	}

	ctx, err := ResourceContext(vars, resources)
	require.NoError(t, err)

	attrs := map[string]hcl.Expression{
		"vpc_id": parseExpr(t, `aws_vpc.main.id`),
		"name":   parseExpr(t, `"web-${var.region}"`),
		"count":  parseExpr(t, `3`),
	}
	out, err := EvalAttrs(attrs, ctx)
	require.NoError(t, err)

	assert.Equal(t, "vpc-123", out["vpc_id"])
	assert.Equal(t, "web-eu-west-1", out["name"])
	assert.Equal(t, float64(3), out["count"])
}

func TestEvalAttrs_UnknownReference(t *testing.T) {
	ctx, err := ResourceContext(map[string]cty.Value{}, nil)
	require.NoError(t, err)

	attrs := map[string]hcl.Expression{
		"vpc_id": parseExpr(t, `aws_vpc.missing.id`),
	}
	_, err = EvalAttrs(attrs, ctx)
	require.Error(t, err)
}

func TestStepContext_Eval(t *testing.T) {
	artifacts := map[string]map[string]string{
		"build": {"image": "registry/app", "tag": "abc123"},
	}
	ctx := StepContext(map[string]cty.Value{}, "abc123def", artifacts)

	args := map[string]hcl.Expression{
		"image": parseExpr(t, `"${step.build.image}:${step.build.tag}"`),
		"rev":   parseExpr(t, `revision`),
	}
	out, err := EvalAttrs(args, ctx)
	require.NoError(t, err)
	assert.Equal(t, "registry/app:abc123", out["image"])
	assert.Equal(t, "abc123def", out["rev"])
}

func TestGoToCtyRoundTrip(t *testing.T) {
	in := map[string]any{
		"name":  "web",
		"ports": []any{float64(80), float64(443)},
		"tags":  map[string]any{"env": "prod"},
	}
	val, err := GoToCty(in)
	require.NoError(t, err)

	out, err := CtyToGo(val)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
