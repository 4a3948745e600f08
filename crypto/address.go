package crypto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/text/unicode/norm"
)

const (
	// PublicKeyLength is the size in bytes of an ed25519 public key, which doubles as a ledger address.
	PublicKeyLength = 32

	minAddressLength = 32
	maxAddressLength = 44
	base58Alphabet   = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
)

// ErrInvalidAddress is returned when a textual address cannot be decoded into a public key.
var ErrInvalidAddress = errors.New("crypto: invalid address")

// PublicKey is the native 32-byte representation of a ledger address.
type PublicKey [PublicKeyLength]byte

// String renders the key in its canonical base58 form.
func (k PublicKey) String() string {
	return base58.Encode(k[:])
}

// Bytes returns a copy of the raw key bytes.
func (k PublicKey) Bytes() []byte {
	out := make([]byte, PublicKeyLength)
	copy(out, k[:])
	return out
}

// IsZero reports whether the key is all zero bytes.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var key PublicKey
	if len(b) != PublicKeyLength {
		return key, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, PublicKeyLength, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// MustPublicKey decodes a well-known address and panics when it is malformed.
// It is intended for program identifiers compiled into the binary.
func MustPublicKey(addr string) PublicKey {
	key, err := DecodeAddress(addr)
	if err != nil {
		panic(err)
	}
	return key
}

// DecodeAddress folds compatibility characters, trims surrounding whitespace and decodes
// the base58 text into a 32-byte public key.
func DecodeAddress(raw string) (PublicKey, error) {
	trimmed := strings.TrimSpace(norm.NFKC.String(raw))
	if trimmed == "" {
		return PublicKey{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if n := len(trimmed); n < minAddressLength || n > maxAddressLength {
		return PublicKey{}, fmt.Errorf("%w: length %d outside [%d,%d]", ErrInvalidAddress, n, minAddressLength, maxAddressLength)
	}
	for _, r := range trimmed {
		if !strings.ContainsRune(base58Alphabet, r) {
			return PublicKey{}, fmt.Errorf("%w: character %q not in base58 alphabet", ErrInvalidAddress, r)
		}
	}
	return PublicKeyFromBytes(base58.Decode(trimmed))
}

// NormalizeAddress returns the canonical spelling of an address. Every store key and every
// lookup goes through this function so that equivalent spellings collapse to one identity.
func NormalizeAddress(raw string) (string, error) {
	key, err := DecodeAddress(raw)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}
