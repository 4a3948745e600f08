package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// SaveKeypairFile writes the keypair as a JSON byte array at the given path.
// If the parent directory does not exist it will be created with 0700 permissions.
func SaveKeypairFile(path string, key *Keypair) error {
	if key == nil {
		return errors.New("crypto: nil keypair")
	}
	if path == "" {
		return errors.New("crypto: empty keypair path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	encoded, err := key.MarshalJSON()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "keypair-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(encoded); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadKeypairFile reads a JSON byte-array keypair from disk.
func LoadKeypairFile(path string) (*Keypair, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("crypto: empty keypair path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := ParseKeypairJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// LoadKeypairEnv reads a JSON byte-array keypair from the named environment variable.
func LoadKeypairEnv(name string) (*Keypair, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("crypto: empty keypair env name")
	}
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return nil, fmt.Errorf("crypto: environment variable %s is empty", name)
	}
	return ParseKeypairJSON([]byte(value))
}
