package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"airdrop/crypto"
)

var (
	SystemProgramID                 = crypto.MustPublicKey("11111111111111111111111111111111")
	TokenProgramID                  = crypto.MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenAccountProgramID = crypto.MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
	pdaMarker     = "ProgramDerivedAddress"
)

// ErrOnCurve is returned when seeds hash to a valid ed25519 point, which a program
// address must never be.
var ErrOnCurve = errors.New("solana: derived address is on the ed25519 curve")

// CreateProgramAddress hashes the seeds with the program id into an off-curve address.
func CreateProgramAddress(seeds [][]byte, programID crypto.PublicKey) (crypto.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return crypto.PublicKey{}, fmt.Errorf("solana: %d seeds exceeds %d", len(seeds), maxSeeds)
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return crypto.PublicKey{}, fmt.Errorf("solana: seed length %d exceeds %d", len(seed), maxSeedLength)
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	sum := h.Sum(nil)
	if isOnCurve(sum) {
		return crypto.PublicKey{}, ErrOnCurve
	}
	return crypto.PublicKeyFromBytes(sum)
}

// FindProgramAddress searches bump seeds from 255 downwards for the first off-curve address.
func FindProgramAddress(seeds [][]byte, programID crypto.PublicKey) (crypto.PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds), len(seeds)+1)
	copy(withBump, seeds)
	withBump = append(withBump, []byte{0})
	for bump := 255; bump >= 0; bump-- {
		withBump[len(withBump)-1][0] = byte(bump)
		key, err := CreateProgramAddress(withBump, programID)
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return crypto.PublicKey{}, 0, err
		}
		return key, uint8(bump), nil
	}
	return crypto.PublicKey{}, 0, fmt.Errorf("solana: no viable bump seed")
}

// AssociatedTokenAddress derives the canonical token account of owner for mint.
func AssociatedTokenAddress(owner, mint crypto.PublicKey) (crypto.PublicKey, error) {
	key, _, err := FindProgramAddress([][]byte{owner[:], TokenProgramID[:], mint[:]}, AssociatedTokenAccountProgramID)
	return key, err
}

func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
