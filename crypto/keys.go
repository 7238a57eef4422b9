package crypto

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// ParsePublicKey decodes a base58 encoded 32-byte identity.
func ParsePublicKey(value string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return solana.PublicKey{}, fmt.Errorf("crypto: empty public key")
	}
	key, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("crypto: invalid public key %q: %w", trimmed, err)
	}
	return key, nil
}

// --- Key Management ---

// PrivateKey is an ed25519 signing key.
type PrivateKey struct {
	key solana.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBase58 decodes the 64-byte base58 secret used by key files.
func PrivateKeyFromBase58(value string) (*PrivateKey, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes wraps a raw 64-byte ed25519 secret.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 64 {
		return nil, fmt.Errorf("crypto: private key must be 64 bytes, got %d", len(b))
	}
	return &PrivateKey{key: solana.PrivateKey(append([]byte(nil), b...))}, nil
}

// Bytes returns the raw secret.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.key...)
}

// String returns the base58 encoded secret.
func (k *PrivateKey) String() string {
	return k.key.String()
}

func (k *PrivateKey) PublicKey() solana.PublicKey {
	return k.key.PublicKey()
}

// Sign signs the keccak256 digest of msg.
func (k *PrivateKey) Sign(msg []byte) (solana.Signature, error) {
	digest := Digest(msg)
	return k.key.Sign(digest[:])
}

// Verify reports whether sig is a signature by pub over the keccak256 digest
// of msg.
func Verify(pub solana.PublicKey, msg []byte, sig solana.Signature) bool {
	if pub.IsZero() {
		return false
	}
	digest := Digest(msg)
	return sig.Verify(pub, digest[:])
}

// ParseSignature decodes a base58 signature.
func ParseSignature(value string) (solana.Signature, error) {
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(value))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("crypto: invalid signature: %w", err)
	}
	return sig, nil
}

// Digest returns the keccak256 hash over the concatenated parts.
func Digest(parts ...[]byte) [32]byte {
	return crypto.Keccak256Hash(parts...)
}
