package rewards

import (
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// RewardPool binds a vault to the authority allowed to release funds from it.
// Both bindings are fixed at initialization.
type RewardPool struct {
	Address    solana.PublicKey
	Vault      solana.PublicKey
	Authority  solana.PublicKey
	FundedBy   solana.PublicKey
	SignerBump uint8
}

// Entry is the claimable balance of one user inside a pool.
type Entry struct {
	Pool   solana.PublicKey
	User   solana.PublicKey
	Amount uint64
}

// Vault is the custody view of the holder that backs a pool.
type Vault struct {
	Address    solana.PublicKey
	Mint       solana.PublicKey
	Controller solana.PublicKey
	Held       uint64
}

type InitializeParams struct {
	Pool      solana.PublicKey
	Payer     solana.PublicKey
	Vault     solana.PublicKey
	Authority solana.PublicKey
}

type DepositParams struct {
	Pool       solana.PublicKey
	User       solana.PublicKey
	Source     solana.PublicKey
	Authorizer solana.PublicKey
	Vault      solana.PublicKey
	Amount     uint64
}

type ClaimParams struct {
	Pool        solana.PublicKey
	User        solana.PublicKey
	Vault       solana.PublicKey
	Destination solana.PublicKey
	Signer      solana.PublicKey
	Amount      uint64
}

func (p *RewardPool) Clone() *RewardPool {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

const userRefDomain = "rewardvault/user-ref/v1:"

// HashUserRef maps an externally issued identity (account id, e-mail) onto
// the opaque 32-byte user reference used by ledger entries. The identifier is
// trimmed and lower-cased first so equivalent spellings share one entry.
func HashUserRef(external string) solana.PublicKey {
	normalized := strings.ToLower(strings.TrimSpace(external))
	return solana.PublicKeyFromBytes(ethcrypto.Keccak256([]byte(userRefDomain), []byte(normalized)))
}
