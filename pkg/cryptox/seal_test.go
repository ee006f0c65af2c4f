package cryptox_test

import (
	"testing"

	"github.com/darceymckelvey/codestrata-auth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	plaintext := []byte(`{"access":"t1","refresh":"r1"}`)

	sealed, err := cryptox.Seal(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, sealed)

	opened, err := cryptox.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, plaintext, opened)
}

func TestSealUniqueNonces(t *testing.T) {
	a, err := cryptox.Seal([]byte("same input"))
	require.NoError(t, err)
	b, err := cryptox.Seal([]byte("same input"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestOpenRejectsCorruptData(t *testing.T) {
	t.Run("truncated", func(t *testing.T) {
		_, err := cryptox.Open([]byte("short"))
		require.ErrorIs(t, err, cryptox.ErrSealCorrupt)
	})

	t.Run("tampered", func(t *testing.T) {
		sealed, err := cryptox.Seal([]byte("payload"))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xFF
		_, err = cryptox.Open(sealed)
		require.ErrorIs(t, err, cryptox.ErrSealCorrupt)
	})
}
