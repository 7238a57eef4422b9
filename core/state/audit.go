package state

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"rewardvault/native/rewards"
)

// AuditReport compares the custody of a pool vault with its ledger entries.
type AuditReport struct {
	Pool       solana.PublicKey
	Vault      solana.PublicKey
	VaultHeld  uint64
	EntryTotal *uint256.Int
	Entries    int
	NonZero    int
}

// Consistent reports whether the vault holds exactly the sum of the entries.
func (r *AuditReport) Consistent() bool {
	if r == nil || r.EntryTotal == nil {
		return false
	}
	return r.EntryTotal.Eq(uint256.NewInt(r.VaultHeld))
}

// Audit sums every entry of pool. The total is accumulated in 256 bits so an
// inconsistent ledger is reported rather than wrapped.
func (m *Manager) Audit(pool solana.PublicKey) (*AuditReport, error) {
	record, ok, err := m.PoolGet(pool)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("state: pool %s not found", pool)
	}
	report := &AuditReport{Pool: pool, Vault: record.Vault, EntryTotal: uint256.NewInt(0)}
	vault, ok, err := m.VaultGet(record.Vault)
	if err != nil {
		return nil, err
	}
	if ok {
		report.VaultHeld = vault.Held
	}
	amount := new(uint256.Int)
	err = m.Entries(pool, func(entry *rewards.Entry) bool {
		report.Entries++
		if entry.Amount > 0 {
			report.NonZero++
		}
		report.EntryTotal.Add(report.EntryTotal, amount.SetUint64(entry.Amount))
		return true
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
