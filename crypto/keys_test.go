package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeypairJSONRoundTrip(t *testing.T) {
	key, err := GenerateKeypair()
	require.NoError(t, err)

	encoded, err := key.MarshalJSON()
	require.NoError(t, err)

	restored, err := ParseKeypairJSON(encoded)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), restored.PublicKey())
	require.Equal(t, key.Bytes(), restored.Bytes())
}

func TestKeypairSignVerify(t *testing.T) {
	key := testKey(t, 1)
	msg := []byte("claim message")
	sig := key.Sign(msg)
	require.Len(t, sig, 64)
	require.True(t, Verify(key.PublicKey(), msg, sig))
	require.False(t, Verify(testKey(t, 2).PublicKey(), msg, sig))
}

func TestKeypairFromBytesRejectsMismatchedPublicHalf(t *testing.T) {
	secret := testKey(t, 3).Bytes()
	secret[63] ^= 0xff
	_, err := KeypairFromBytes(secret)
	require.Error(t, err)

	_, err = KeypairFromBytes(secret[:40])
	require.Error(t, err)
}

func TestParseKeypairJSONRejectsOutOfRangeBytes(t *testing.T) {
	_, err := ParseKeypairJSON([]byte("[1,2,300]"))
	require.Error(t, err)
	_, err = ParseKeypairJSON([]byte("not json"))
	require.Error(t, err)
}

func TestKeypairFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "airdrop.json")
	key := testKey(t, 4)
	require.NoError(t, SaveKeypairFile(path, key))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadKeypairFile(path)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), loaded.PublicKey())

	// Overwriting an existing file must succeed.
	require.NoError(t, SaveKeypairFile(path, testKey(t, 5)))
	loaded, err = LoadKeypairFile(path)
	require.NoError(t, err)
	require.Equal(t, testKey(t, 5).PublicKey(), loaded.PublicKey())
}

func TestLoadKeypairEnv(t *testing.T) {
	key := testKey(t, 6)
	encoded, err := key.MarshalJSON()
	require.NoError(t, err)
	t.Setenv("CLAIMD_TEST_KEYPAIR", string(encoded))

	loaded, err := LoadKeypairEnv("CLAIMD_TEST_KEYPAIR")
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), loaded.PublicKey())

	t.Setenv("CLAIMD_TEST_KEYPAIR", "")
	_, err = LoadKeypairEnv("CLAIMD_TEST_KEYPAIR")
	require.Error(t, err)
}
