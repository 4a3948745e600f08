package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"airdrop/config"
	"airdrop/crypto"
)

func address(fill byte) string {
	var key crypto.PublicKey
	for i := range key {
		key[i] = fill
	}
	return key.String()
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String() + stderr.String(), err
}

func TestKeygenAndPubkey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authority.json")
	out, err := runCmd(t, "keygen", "-out", path)
	require.NoError(t, err)
	key, err := crypto.LoadKeypairFile(path)
	require.NoError(t, err)
	require.Contains(t, out, key.PublicKey().String())

	_, err = runCmd(t, "keygen", "-out", path)
	require.ErrorContains(t, err, "already exists")

	out, err = runCmd(t, "pubkey", "-keypair", path)
	require.NoError(t, err)
	require.Equal(t, "Public Key: "+key.PublicKey().String()+"\n", out)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	t.Setenv("CLAIMCTL_TEST_KEYPAIR", string(raw))
	out, err = runCmd(t, "pubkey", "-env", "CLAIMCTL_TEST_KEYPAIR")
	require.NoError(t, err)
	require.Contains(t, out, key.PublicKey().String())
}

func TestImportAndInspect(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "whitelist.csv")
	csv := "wallet_address,claim_amount\n" +
		address(1) + ",10\n" +
		"not-an-address,5\n" +
		address(2) + ",0.5\n"
	require.NoError(t, os.WriteFile(in, []byte(csv), 0o600))
	snapshot := filepath.Join(dir, "out", "claims.csv")

	out, err := runCmd(t, "import", "-in", in, "-out", snapshot)
	require.NoError(t, err)
	require.Contains(t, out, "rows=3 loaded=2 skipped=1 duplicates=0")

	data, err := os.ReadFile(snapshot)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "wallet_address,claim_amount,state,reserved_at,reservation_id\n"))

	out, err = runCmd(t, "inspect", "-snapshot", snapshot)
	require.NoError(t, err)
	require.Contains(t, out, "available: 2")
	require.Contains(t, out, "consumed:  0")
	require.Contains(t, out, "unclaimed amount: 10.5")

	_, err = runCmd(t, "import", "-in", in)
	require.ErrorContains(t, err, "-out is required")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimd.toml")
	_, err := runCmd(t, "config-init", "-out", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "reservation_ttl")
	require.Contains(t, string(data), "keypair_file")

	_, err = runCmd(t, "config-init", "-out", path)
	require.ErrorContains(t, err, "already exists")
}

func TestAdminToken(t *testing.T) {
	t.Setenv(config.DefaultAdminSecretEnv, "operator-secret")
	out, err := runCmd(t, "admin-token", "-sub", "alice", "-iss", "ops", "-ttl", "5m")
	require.NoError(t, err)

	parsed, err := jwt.Parse(strings.TrimSpace(out), func(*jwt.Token) (any, error) {
		return []byte("operator-secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	require.Equal(t, "alice", claims["sub"])
	require.Equal(t, "ops", claims["iss"])
	require.Equal(t, "claims:admin", claims["scope"])
}

func TestUnknownCommand(t *testing.T) {
	_, err := runCmd(t, "frobnicate")
	require.ErrorContains(t, err, "unknown command")
	_, err = runCmd(t)
	require.Error(t, err)
}
