package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
)

// --- Key Management ---

// Keypair wraps an ed25519 signing key in the 64-byte secret layout used by ledger wallets
// (32-byte seed followed by the 32-byte public key).
type Keypair struct {
	private ed25519.PrivateKey
}

// GenerateKeypair creates a fresh random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{private: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromBytes restores a keypair from its 64-byte secret key and verifies that the
// embedded public half matches the seed.
func KeypairFromBytes(secret []byte) (*Keypair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(secret))
	}
	derived := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], secret[ed25519.SeedSize:]) {
		return nil, errors.New("crypto: secret key public half does not match seed")
	}
	return &Keypair{private: derived}, nil
}

// ParseKeypairJSON decodes the JSON byte-array format written by wallet CLIs, e.g. "[12,34,...]".
func ParseKeypairJSON(data []byte) (*Keypair, error) {
	var raw []int
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, fmt.Errorf("crypto: decode keypair json: %w", err)
	}
	secret := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("crypto: keypair byte %d out of range: %d", i, v)
		}
		secret[i] = byte(v)
	}
	return KeypairFromBytes(secret)
}

// MarshalJSON renders the secret key as a JSON byte array compatible with ParseKeypairJSON.
func (k *Keypair) MarshalJSON() ([]byte, error) {
	if k == nil {
		return nil, errors.New("crypto: nil keypair")
	}
	raw := make([]int, len(k.private))
	for i, b := range k.private {
		raw[i] = int(b)
	}
	return json.Marshal(raw)
}

// PublicKey returns the address controlled by this keypair.
func (k *Keypair) PublicKey() PublicKey {
	var pub PublicKey
	copy(pub[:], k.private[ed25519.SeedSize:])
	return pub
}

// Bytes returns a copy of the 64-byte secret key.
func (k *Keypair) Bytes() []byte {
	out := make([]byte, len(k.private))
	copy(out, k.private)
	return out
}

// Sign produces an ed25519 signature over msg.
func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Verify checks an ed25519 signature against the public key.
func Verify(pub PublicKey, msg, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}
