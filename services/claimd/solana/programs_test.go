package solana

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"airdrop/crypto"
)

func TestProgramIDs(t *testing.T) {
	require.True(t, SystemProgramID.IsZero())
	require.Equal(t, "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", TokenProgramID.String())
	require.Equal(t, "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL", AssociatedTokenAccountProgramID.String())
}

func TestAssociatedTokenAddressKnownVectors(t *testing.T) {
	cases := []struct {
		owner, mint, want string
		bump              uint8
	}{
		{
			owner: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
			mint:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			want:  "FGETo8T8wMcN2wCjav8VK6eh3dLk63evNDPxzLSJra8B",
			bump:  254,
		},
		{
			owner: "HcPwBMKzwZnhkdfg3ELsKwmnLZDqCchf9Gp4Shp8cXVz",
			mint:  "So11111111111111111111111111111111111111112",
			want:  "4v4WQVoGNurEviuT5QVAF3J9Jvn2xtBPWQ98DojFMyXM",
			bump:  255,
		},
	}
	for _, tc := range cases {
		owner := crypto.MustPublicKey(tc.owner)
		mint := crypto.MustPublicKey(tc.mint)

		ata, err := AssociatedTokenAddress(owner, mint)
		require.NoError(t, err)
		require.Equal(t, tc.want, ata.String())

		_, bump, err := FindProgramAddress([][]byte{owner[:], TokenProgramID[:], mint[:]}, AssociatedTokenAccountProgramID)
		require.NoError(t, err)
		require.Equal(t, tc.bump, bump)
	}
}

func TestFindProgramAddressIsOffCurve(t *testing.T) {
	owner := filledKey(1)
	mint := filledKey(2)
	seeds := [][]byte{owner[:], TokenProgramID[:], mint[:]}

	key, bump, err := FindProgramAddress(seeds, AssociatedTokenAccountProgramID)
	require.NoError(t, err)
	require.False(t, isOnCurve(key[:]))

	again, err := CreateProgramAddress(append(seeds, []byte{bump}), AssociatedTokenAccountProgramID)
	require.NoError(t, err)
	require.Equal(t, key, again)
	require.Len(t, seeds, 3, "caller seeds are not modified")

	ata, err := AssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	require.Equal(t, key, ata)

	other, err := AssociatedTokenAddress(filledKey(3), mint)
	require.NoError(t, err)
	require.NotEqual(t, ata, other)
}

func TestCreateProgramAddressRejectsLongSeeds(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, 33)}, TokenProgramID)
	require.Error(t, err)

	tooMany := make([][]byte, maxSeeds+1)
	_, err = CreateProgramAddress(tooMany, TokenProgramID)
	require.Error(t, err)
}

func TestRealPublicKeysAreOnCurve(t *testing.T) {
	key, err := crypto.KeypairFromSeed(bytes.Repeat([]byte{5}, 32))
	require.NoError(t, err)
	pub := key.PublicKey()
	require.True(t, isOnCurve(pub[:]))
}
