package rewardsd

import (
	"errors"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"

	"rewardvault/core/state"
	"rewardvault/storage"
)

var (
	// ErrReplay is returned when a signed request reuses a nonce.
	ErrReplay = errors.New("rewardsd: request nonce already used")
	// ErrStaleRequest is returned when a signed request falls outside the
	// accepted time window.
	ErrStaleRequest = errors.New("rewardsd: request timestamp outside accepted window")
)

var noncePrefix = []byte("nonce:")

// Proof identifies a signed request. The signature itself is checked by the
// transport; the ledger enforces freshness and single use.
type Proof struct {
	Signer    solana.PublicKey
	Nonce     string
	Timestamp time.Time
}

func nonceKey(signer solana.PublicKey, nonce string) []byte {
	digest := ethcrypto.Keccak256([]byte(nonce))
	buf := make([]byte, 0, len(noncePrefix)+len(signer)+len(digest))
	buf = append(buf, noncePrefix...)
	buf = append(buf, signer[:]...)
	return append(buf, digest...)
}

// consumeNonce records the proof's nonce in the operation's overlay so it is
// committed together with the ledger writes. Callers must hold the locks that
// serialize requests by the same signer on the same record.
func consumeNonce(m *state.Manager, proof *Proof, now time.Time, ttl time.Duration) error {
	if proof == nil {
		return nil
	}
	if proof.Nonce == "" {
		return fmt.Errorf("%w: empty nonce", ErrStaleRequest)
	}
	skew := now.Sub(proof.Timestamp)
	if skew > ttl || skew < -ttl {
		return ErrStaleRequest
	}
	key := nonceKey(proof.Signer, proof.Nonce)
	if ok, err := m.KVGet(key, nil); err != nil {
		return err
	} else if ok {
		return ErrReplay
	}
	return m.KVPut(key, uint64(proof.Timestamp.Unix()))
}

// PruneNonces removes nonces whose timestamp is older than cutoff; such
// requests are rejected as stale anyway. It returns the number removed.
func PruneNonces(db storage.Database, cutoff time.Time) (int, error) {
	batch := storage.NewBatch()
	var decodeErr error
	err := db.Iterate(noncePrefix, func(key, value []byte) bool {
		ts, err := decodeNonceTimestamp(value)
		if err != nil {
			decodeErr = err
			return false
		}
		if ts < cutoff.Unix() {
			batch.Delete(key)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if decodeErr != nil {
		return 0, decodeErr
	}
	if err := db.Write(batch); err != nil {
		return 0, err
	}
	return batch.Len(), nil
}

// decodeNonceTimestamp reads the RLP encoded unix timestamp stored by
// consumeNonce.
func decodeNonceTimestamp(value []byte) (int64, error) {
	var ts uint64
	if err := rlp.DecodeBytes(value, &ts); err != nil {
		return 0, fmt.Errorf("decode nonce: %w", err)
	}
	if ts > uint64(1<<62) {
		return 0, fmt.Errorf("decode nonce: timestamp out of range")
	}
	return int64(ts), nil
}
