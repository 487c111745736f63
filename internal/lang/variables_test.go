package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestBindVariables_Defaults(t *testing.T) {
	src := `
variable "region" {
  type    = string
  default = "us-east-1"
}

variable "port" {
  type    = number
  default = 8080
}

variable "enable_ssl" {
  type    = bool
  default = false
}
`
	cfg, err := ParseConfig([]byte(src), "vars.sf.hcl")
	require.NoError(t, err)

	vals, err := BindVariables(cfg.Variables, nil)
	require.NoError(t, err)

	assert.Equal(t, cty.StringVal("us-east-1"), vals["region"])
	assert.Equal(t, cty.False, vals["enable_ssl"])
	port, _ := vals["port"].AsBigFloat().Int64()
	assert.Equal(t, int64(8080), port)
}

func TestBindVariables_ExplicitOverridesDefault(t *testing.T) {
	src := `
variable "enable_ssl" {
  type    = bool
  default = false
}
`
	cfg, err := ParseConfig([]byte(src), "vars.sf.hcl")
	require.NoError(t, err)

	vals, err := BindVariables(cfg.Variables, map[string]string{"enable_ssl": "true"})
	require.NoError(t, err)
	assert.Equal(t, cty.True, vals["enable_ssl"])
}

func TestBindVariables_MissingRequired(t *testing.T) {
	src := `
variable "domain" {
  type = string
}
`
	cfg, err := ParseConfig([]byte(src), "vars.sf.hcl")
	require.NoError(t, err)

	_, err = BindVariables(cfg.Variables, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems[0], "domain")
}

func TestBindVariables_UndeclaredValue(t *testing.T) {
	_, err := BindVariables(nil, map[string]string{"mystery": "x"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Problems[0], "undeclared")
}

func TestBindVariables_ValidationAggregation(t *testing.T) {
	src := `
variable "port" {
  type    = number
  default = 8080

  validation {
    condition     = var.port > 1024
    error_message = "port must be above 1024"
  }

  validation {
    condition     = var.port < 65536
    error_message = "port must be below 65536"
  }
}

variable "replicas" {
  type    = number
  default = 0

  validation {
    condition     = var.replicas > 0
    error_message = "replicas must be positive"
  }
}
`
	cfg, err := ParseConfig([]byte(src), "vars.sf.hcl")
	require.NoError(t, err)

	_, err = BindVariables(cfg.Variables, map[string]string{"port": "80"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	// Both the port and the replicas violations are reported together.
	require.Len(t, verr.Problems, 2)
	assert.Contains(t, verr.Problems[0], "above 1024")
	assert.Contains(t, verr.Problems[1], "positive")
}

func TestBindVariables_TypeMismatch(t *testing.T) {
	src := `
variable "port" {
  type = number
}
`
	cfg, err := ParseConfig([]byte(src), "vars.sf.hcl")
	require.NoError(t, err)

	_, err = BindVariables(cfg.Variables, map[string]string{"port": "not-a-number"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestParseVariableValue_Map(t *testing.T) {
	val, err := parseVariableValue(`{ a = "1", b = "2" }`, cty.Map(cty.String))
	require.NoError(t, err)
	assert.Equal(t, "1", val.Index(cty.StringVal("a")).AsString())
}

func TestLoadVarsDir_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.sfvars.hcl", `
region  = "us-east-1"
port    = 8080
tags    = { team = "platform" }
`)
	writeFile(t, dir, "b.sfvars.hcl", `
region = "eu-west-1"
`)
	writeFile(t, dir, "notes.txt", "ignored")

	set, err := LoadVarsDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", set["region"])
	assert.Equal(t, "8080", set["port"])
	assert.Equal(t, `{team = "platform"}`, set["tags"])
}

func TestLoadVarsDir_RejectsNonConstant(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.sfvars.hcl", `region = var.other`)

	_, err := LoadVarsDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constant")
}

func TestLoadVarsDir_RoundTripsThroughBinding(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "prod.sfvars.hcl", `
enable_ssl = true
tags       = { env = "prod" }
`)
	set, err := LoadVarsDir(dir)
	require.NoError(t, err)

	cfg, err := ParseConfig([]byte(`
variable "enable_ssl" {
  type = bool
}

variable "tags" {
  type = map
}
`), "vars.sf.hcl")
	require.NoError(t, err)

	vals, err := BindVariables(cfg.Variables, set)
	require.NoError(t, err)
	assert.True(t, vals["enable_ssl"].True())
	assert.Equal(t, "prod", vals["tags"].Index(cty.StringVal("env")).AsString())
}
