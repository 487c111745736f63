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

func TestEncryptState_NoKeyIsPassthrough(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "")

	content := []byte(`{"version":1}`)
	out, err := EncryptState(content)
	require.NoError(t, err)
	assert.Equal(t, content, out)
	assert.False(t, IsEncrypted(out))
}

func TestEncryptState_RoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "super-secret-key")

	content := []byte(`{"version":1,"serial":7}`)
	enc, err := EncryptState(content)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(enc))
	assert.NotContains(t, string(enc), "serial")

	dec, err := DecryptState(enc)
	require.NoError(t, err)
	assert.Equal(t, content, dec)
}

func TestDecryptState_WrongKey(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "key-one")
	enc, err := EncryptState([]byte(`{"version":1}`))
	require.NoError(t, err)

	t.Setenv(EncryptionKeyEnvVar, "key-two")
	_, err = DecryptState(enc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong key")
}

func TestDecryptState_MissingKey(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "some-key")
	enc, err := EncryptState([]byte(`{"version":1}`))
	require.NoError(t, err)

	t.Setenv(EncryptionKeyEnvVar, "")
	_, err = DecryptState(enc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), EncryptionKeyEnvVar)
}

func TestManager_EncryptedRoundTrip(t *testing.T) {
	t.Setenv(EncryptionKeyEnvVar, "roundtrip-key")

	path := filepath.Join(t.TempDir(), "state.json")
	mgr := NewManager(path)
	ctx := context.Background()

	st := ir.NewState()
	st.Upsert(&ir.ResourceState{
		Type:     "null_object",
		Name:     "secret",
		Provider: "null",
		Status:   ir.StatusCreated,
		Inputs:   map[string]any{"token": "hunter2"},
	})
	require.NoError(t, mgr.Write(ctx, st))

	// The file on disk never carries plaintext.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(raw))
	assert.NotContains(t, string(raw), "hunter2")

	got, err := mgr.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got.Resource("null_object.secret").Inputs["token"])
}
