package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/lang"
)

func parseTestConfig(t *testing.T, src string) *lang.Config {
	t.Helper()
	cfg, err := lang.ParseConfig([]byte(src), "test.sf.hcl")
	require.NoError(t, err)
	return cfg
}

func TestBuildGraph_ExpressionEdges(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "aws_vpc" "main" {
  provider   = "aws"
  cidr_block = "10.0.0.0/16"
}

resource "aws_subnet" "web" {
  provider = "aws"
  vpc_id   = aws_vpc.main.id
}

resource "aws_instance" "app" {
  provider  = "aws"
  subnet_id = aws_subnet.web.id
  name      = "app-${aws_vpc.main.id}"
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 3)

	assert.Empty(t, g.Nodes["aws_vpc.main"].Deps)
	assert.Equal(t, []string{"aws_vpc.main"}, g.Nodes["aws_subnet.web"].Deps)
	assert.Equal(t, []string{"aws_subnet.web", "aws_vpc.main"}, g.Nodes["aws_instance.app"].Deps)
}

func TestBuildGraph_ExplicitDependsOn(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "null_object" "a" {
  provider   = "null"
  depends_on = [null_object.b]
}

resource "null_object" "b" {
  provider = "null"
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"null_object.b"}, g.Nodes["null_object.a"].Deps)
}

func TestBuildGraph_ConditionEdges(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "null_object" "gate" {
  provider = "null"
}

resource "null_object" "gated" {
  provider  = "null"
  condition = null_object.gate.id != ""
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"null_object.gate"}, g.Nodes["null_object.gated"].Deps)
}

func TestBuildGraph_UnknownReference(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "aws_subnet" "web" {
  provider = "aws"
  vpc_id   = aws_vpc.missing.id
}
`)
	_, err := BuildGraph(cfg)
	var refErr *UnknownReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "aws_subnet.web", refErr.Referencer)
	assert.Equal(t, "aws_vpc.missing", refErr.Reference)
}

func TestBuildGraph_CycleDetection(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "null_object" "a" {
  provider = "null"
  peer     = null_object.b.id
}

resource "null_object" "b" {
  provider = "null"
  peer     = null_object.c.id
}

resource "null_object" "c" {
  provider = "null"
  peer     = null_object.a.id
}
`)
	_, err := BuildGraph(cfg)
	var cycErr *CyclicDependencyError
	require.ErrorAs(t, err, &cycErr)
	// The reported cycle closes back on its starting node.
	assert.Equal(t, cycErr.Nodes[0], cycErr.Nodes[len(cycErr.Nodes)-1])
	assert.GreaterOrEqual(t, len(cycErr.Nodes), 4)
}

func TestBuildGraph_SelfReferenceIgnored(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "null_object" "a" {
  provider   = "null"
  depends_on = [null_object.a]
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)
	assert.Empty(t, g.Nodes["null_object.a"].Deps)
}

func TestDependents(t *testing.T) {
	cfg := parseTestConfig(t, `
resource "aws_vpc" "main" {
  provider = "aws"
}

resource "aws_subnet" "a" {
  provider = "aws"
  vpc_id   = aws_vpc.main.id
}

resource "aws_subnet" "b" {
  provider = "aws"
  vpc_id   = aws_vpc.main.id
}
`)
	g, err := BuildGraph(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"aws_subnet.a", "aws_subnet.b"}, g.Dependents("aws_vpc.main"))
	assert.Empty(t, g.Dependents("aws_subnet.a"))
}
