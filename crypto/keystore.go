package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

const keystoreVersion = 1

type keystoreFile struct {
	Version   int                 `json:"version"`
	PublicKey string              `json:"publicKey"`
	Crypto    keystore.CryptoJSON `json:"crypto"`
}

// SaveToKeystore encrypts the key with the passphrase (scrypt + AES-128-CTR,
// the Ethereum v3 keystore cipher suite) and writes it to path with 0600
// permissions. The parent directory is created with 0700 permissions.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	if strings.TrimSpace(passphrase) == "" {
		return errors.New("crypto: empty keystore passphrase")
	}
	cryptoJSON, err := keystore.EncryptDataV3(key.Bytes(), []byte(passphrase), keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt key: %w", err)
	}
	encoded, err := json.MarshalIndent(keystoreFile{
		Version:   keystoreVersion,
		PublicKey: key.PublicKey().String(),
		Crypto:    cryptoJSON,
	}, "", "  ")
	if err != nil {
		return err
	}
	return writeKeyFile(path, encoded)
}

// LoadFromKeystore decrypts a keystore file written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file keystoreFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	if file.Version != keystoreVersion {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d", file.Version)
	}
	secret, err := keystore.DecryptDataV3(file.Crypto, passphrase)
	if err != nil {
		return nil, err
	}
	key, err := PrivateKeyFromBytes(secret)
	if err != nil {
		return nil, err
	}
	if file.PublicKey != "" && key.PublicKey().String() != file.PublicKey {
		return nil, errors.New("crypto: keystore public key mismatch")
	}
	return key, nil
}

// SaveKeyFile writes the base58 secret in plain text. Intended for local
// development keys only.
func SaveKeyFile(path string, key *PrivateKey) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	return writeKeyFile(path, []byte(key.String()+"\n"))
}

// LoadKeyFile reads either a plain base58 key file or, when passphrase is
// non-empty, an encrypted keystore.
func LoadKeyFile(path, passphrase string) (*PrivateKey, error) {
	if passphrase != "" {
		return LoadFromKeystore(path, passphrase)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return PrivateKeyFromBase58(string(raw))
}

// IsKeystore reports whether the file at path is an encrypted keystore.
func IsKeystore(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}

func writeKeyFile(path string, contents []byte) error {
	if path == "" {
		return errors.New("crypto: empty key path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "key-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(contents); err != nil {
		tmp.Close()
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
