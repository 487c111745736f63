package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackform-io/stackform/internal/ir"
)

func TestManager_ReadMissingIsEmptyState(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))

	st, err := mgr.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Version)
	assert.Equal(t, 0, st.Serial)
	assert.Empty(t, st.Resources)
}

func TestManager_WriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".stackform", "state.json")
	mgr := NewManager(path)
	ctx := context.Background()

	st := ir.NewState()
	st.Serial = 3
	st.Lineage = "test-lineage"
	st.Upsert(&ir.ResourceState{
		Type:       "aws_vpc",
		Name:       "main",
		Provider:   "aws",
		Status:     ir.StatusCreated,
		Inputs:     map[string]any{"cidr_block": "10.0.0.0/16"},
		InputsHash: "hash123",
		Outputs:    map[string]any{"id": "vpc-123"},
	})
	st.Outputs = map[string]any{"vpc_id": "vpc-123"}

	require.NoError(t, mgr.Write(ctx, st))

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Serial)
	assert.Equal(t, "test-lineage", got.Lineage)

	rs := got.Resource("aws_vpc.main")
	require.NotNil(t, rs)
	assert.Equal(t, ir.StatusCreated, rs.Status)
	assert.Equal(t, "vpc-123", rs.Outputs["id"])
	assert.Equal(t, "vpc-123", got.Outputs["vpc_id"])
}

func TestManager_StateFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(path)

	require.NoError(t, mgr.Write(context.Background(), ir.NewState()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestManager_Lock(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))

	require.NoError(t, mgr.Lock())

	// A second lock while held must fail.
	err := mgr.Lock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")

	require.NoError(t, mgr.Unlock())
	require.NoError(t, mgr.Lock())
	require.NoError(t, mgr.Unlock())
}

func TestManager_UnlockWithoutLock(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.json"))
	assert.NoError(t, mgr.Unlock())
}

func TestNewBackend_Local(t *testing.T) {
	b, err := NewBackend(nil)
	require.NoError(t, err)
	assert.IsType(t, &Manager{}, b)

	b, err = NewBackend(&BackendConfig{Type: "local", Config: map[string]string{"path": "custom/state.json"}})
	require.NoError(t, err)
	assert.IsType(t, &Manager{}, b)
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := NewBackend(&BackendConfig{Type: "consul"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")
}
