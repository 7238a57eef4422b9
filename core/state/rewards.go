package state

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"rewardvault/native/bank"
	"rewardvault/native/rewards"
)

type storedPool struct {
	Address    [32]byte
	Vault      [32]byte
	Authority  [32]byte
	FundedBy   [32]byte
	SignerBump uint8
}

type storedEntry struct {
	Pool   [32]byte
	User   [32]byte
	Amount uint64
}

type storedHolder struct {
	Address    [32]byte
	Mint       [32]byte
	Controller [32]byte
	Balance    uint64
	Frozen     bool
}

func (m *Manager) PoolGet(addr solana.PublicKey) (*rewards.RewardPool, bool, error) {
	var stored storedPool
	ok, err := m.KVGet(poolKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rewards.RewardPool{
		Address:    stored.Address,
		Vault:      stored.Vault,
		Authority:  stored.Authority,
		FundedBy:   stored.FundedBy,
		SignerBump: stored.SignerBump,
	}, true, nil
}

func (m *Manager) PoolPut(pool *rewards.RewardPool) error {
	if pool == nil {
		return fmt.Errorf("state: nil pool")
	}
	return m.KVPut(poolKey(pool.Address), &storedPool{
		Address:    pool.Address,
		Vault:      pool.Vault,
		Authority:  pool.Authority,
		FundedBy:   pool.FundedBy,
		SignerBump: pool.SignerBump,
	})
}

// Pools lists every initialized pool in key order.
func (m *Manager) Pools() ([]*rewards.RewardPool, error) {
	var out []*rewards.RewardPool
	err := m.KVIterate(poolPrefix, func(_, value []byte) (bool, error) {
		var stored storedPool
		if err := decode(value, &stored); err != nil {
			return false, err
		}
		out = append(out, &rewards.RewardPool{
			Address:    stored.Address,
			Vault:      stored.Vault,
			Authority:  stored.Authority,
			FundedBy:   stored.FundedBy,
			SignerBump: stored.SignerBump,
		})
		return true, nil
	})
	return out, err
}

// VaultGet exposes the bank holder at addr as a vault.
func (m *Manager) VaultGet(addr solana.PublicKey) (*rewards.Vault, bool, error) {
	holder, ok, err := m.HolderGet(addr)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rewards.Vault{
		Address:    holder.Address,
		Mint:       holder.Mint,
		Controller: holder.Controller,
		Held:       holder.Balance,
	}, true, nil
}

func (m *Manager) VaultBinding(vault solana.PublicKey) (solana.PublicKey, bool, error) {
	var pool [32]byte
	ok, err := m.KVGet(vaultBindingKey(vault), &pool)
	if err != nil || !ok {
		return solana.PublicKey{}, false, err
	}
	return pool, true, nil
}

func (m *Manager) VaultBind(vault, pool solana.PublicKey) error {
	return m.KVPut(vaultBindingKey(vault), [32]byte(pool))
}

func (m *Manager) EntryGet(pool, user solana.PublicKey) (*rewards.Entry, bool, error) {
	var stored storedEntry
	ok, err := m.KVGet(entryKey(pool, user), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rewards.Entry{Pool: stored.Pool, User: stored.User, Amount: stored.Amount}, true, nil
}

func (m *Manager) EntryPut(entry *rewards.Entry) error {
	if entry == nil {
		return fmt.Errorf("state: nil entry")
	}
	return m.KVPut(entryKey(entry.Pool, entry.User), &storedEntry{
		Pool:   entry.Pool,
		User:   entry.User,
		Amount: entry.Amount,
	})
}

// Entries walks every ledger entry of pool in user order.
func (m *Manager) Entries(pool solana.PublicKey, fn func(*rewards.Entry) bool) error {
	return m.KVIterate(poolEntriesPrefix(pool), func(_, value []byte) (bool, error) {
		var stored storedEntry
		if err := decode(value, &stored); err != nil {
			return false, err
		}
		return fn(&rewards.Entry{Pool: stored.Pool, User: stored.User, Amount: stored.Amount}), nil
	})
}

func (m *Manager) HolderGet(addr solana.PublicKey) (*bank.Holder, bool, error) {
	var stored storedHolder
	ok, err := m.KVGet(holderKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &bank.Holder{
		Address:    stored.Address,
		Mint:       stored.Mint,
		Controller: stored.Controller,
		Balance:    stored.Balance,
		Frozen:     stored.Frozen,
	}, true, nil
}

func (m *Manager) HolderPut(holder *bank.Holder) error {
	if holder == nil {
		return fmt.Errorf("state: nil holder")
	}
	return m.KVPut(holderKey(holder.Address), &storedHolder{
		Address:    holder.Address,
		Mint:       holder.Mint,
		Controller: holder.Controller,
		Balance:    holder.Balance,
		Frozen:     holder.Frozen,
	})
}
