package rewards

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// AuthoritySeed labels the program address that controls every pool vault.
const AuthoritySeed = "authority"

// DefaultProgramID namespaces derived pool authorities when no program id is
// configured.
var DefaultProgramID = solana.PublicKeyFromBytes(ethcrypto.Keccak256([]byte("rewardvault/program/v1")))

// DeriveAuthority returns the off-curve address that acts as the pool's
// signing capability together with its bump seed. No private key exists for
// the address; only code holding the pool record can produce a Capability for
// it.
func DeriveAuthority(program, pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(authoritySeeds(pool), program)
}

func authoritySeeds(pool solana.PublicKey) [][]byte {
	return [][]byte{[]byte(AuthoritySeed), pool.Bytes()}
}

// Capability proves the right to move funds out of a pool vault. It can only
// be obtained through RewardPool.AuthorizeTransfer.
type Capability struct {
	pool    solana.PublicKey
	program solana.PublicKey
	signer  solana.PublicKey
	bump    uint8
}

// AuthorizeTransfer mints the pool's derived signing capability.
func (p *RewardPool) AuthorizeTransfer(program solana.PublicKey) (Capability, error) {
	if p == nil || p.Address.IsZero() {
		return Capability{}, newError(CodeInvalidArgument, "pool required for transfer authority")
	}
	signer, err := solana.CreateProgramAddress(append(authoritySeeds(p.Address), []byte{p.SignerBump}), program)
	if err != nil {
		return Capability{}, wrapError(CodeInvalidVault, err, "derive pool authority")
	}
	return Capability{pool: p.Address, program: program, signer: signer, bump: p.SignerBump}, nil
}

func (c Capability) Pool() solana.PublicKey { return c.pool }

func (c Capability) Signer() solana.PublicKey { return c.signer }

// Verify re-derives the signer from the pool and rejects forged or zero-value
// capabilities.
func (c Capability) Verify() error {
	if c.pool.IsZero() || c.signer.IsZero() {
		return fmt.Errorf("rewards: empty pool capability")
	}
	derived, err := solana.CreateProgramAddress(append(authoritySeeds(c.pool), []byte{c.bump}), c.program)
	if err != nil {
		return fmt.Errorf("rewards: derive pool authority: %w", err)
	}
	if !derived.Equals(c.signer) {
		return fmt.Errorf("rewards: capability signer mismatch")
	}
	return nil
}
