package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
	"github.com/stackform-io/stackform/internal/provider"
	"github.com/stackform-io/stackform/internal/state"
)

func TestExitCodeError(t *testing.T) {
	inner := fmt.Errorf("apply failed")
	err := &ExitCodeError{Code: ExitError, Err: inner}

	assert.Equal(t, "apply failed", err.Error())
	assert.ErrorIs(t, err, inner)

	bare := &ExitCodeError{Code: ExitChanges}
	assert.Equal(t, "", bare.Error())

	var target *ExitCodeError
	wrapped := fmt.Errorf("outer: %w", err)
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, ExitError, target.Code)
}

func TestCollectVars_Precedence(t *testing.T) {
	t.Setenv(varEnvPrefix+"region", "us-east-1")
	t.Setenv(varEnvPrefix+"domain", "example.com")

	vars := collectVars(map[string]string{"region": "ap-south-1", "zone": "a"}, map[string]string{"region": "eu-west-1"})
	assert.Equal(t, "eu-west-1", vars["region"])
	assert.Equal(t, "example.com", vars["domain"])
	assert.Equal(t, "a", vars["zone"])
}

func TestNewStateBackend_DefaultsToLocal(t *testing.T) {
	dir := t.TempDir()

	b, err := newStateBackend(dir)
	require.NoError(t, err)
	assert.IsType(t, &state.Manager{}, b)
}

func TestNewStateBackend_EnvSelection(t *testing.T) {
	t.Setenv(backendEnvVar, "consul")
	_, err := newStateBackend(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")

	// The s3 backend validates its configuration before touching AWS.
	t.Setenv(backendEnvVar, "s3")
	_, err = newStateBackend(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestBackendConfigFromEnv(t *testing.T) {
	t.Setenv(backendEnvPrefix+"BUCKET", "tf-state")
	t.Setenv(backendEnvPrefix+"DYNAMODB_TABLE", "tf-locks")

	cfg := backendConfigFromEnv()
	assert.Equal(t, "tf-state", cfg["bucket"])
	assert.Equal(t, "tf-locks", cfg["dynamodb_table"])
}

func TestResolveDir(t *testing.T) {
	dir := t.TempDir()

	got, err := resolveDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveDir([]string{dir + "/missing"})
	assert.Error(t, err)
}

func TestLoadStateProviders_UnknownProvider(t *testing.T) {
	st := ir.NewState()
	st.Upsert(&ir.ResourceState{Type: "martian_base", Name: "one", Provider: "martian"})

	err := loadStateProviders(provider.NewRegistry(), st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "martian")
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, `"web"`, formatValue("web"))
	assert.Equal(t, "42", formatValue(42))
	assert.Equal(t, "true", formatValue(true))
}
