package events

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"rewardvault/core/types"
)

const (
	TypeRewardPoolInitialized = "rewards.pool.initialized"
	TypeRewardDeposited       = "rewards.deposited"
	TypeRewardClaimed         = "rewards.claimed"
	TypeHolderOpened          = "bank.holder.opened"
	TypeHolderMinted          = "bank.holder.minted"
)

type RewardPoolInitialized struct {
	Pool      solana.PublicKey
	Vault     solana.PublicKey
	Authority solana.PublicKey
	FundedBy  solana.PublicKey
}

func (RewardPoolInitialized) EventType() string { return TypeRewardPoolInitialized }

func (e RewardPoolInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardPoolInitialized,
		Attributes: map[string]string{
			"pool":      e.Pool.String(),
			"vault":     e.Vault.String(),
			"authority": e.Authority.String(),
			"fundedBy":  e.FundedBy.String(),
		},
	}
}

// RewardDeposited is emitted after a deposit credited a ledger entry.
type RewardDeposited struct {
	Pool       solana.PublicKey
	User       solana.PublicKey
	Source     solana.PublicKey
	Amount     uint64
	Balance    uint64
	VaultTotal uint64
}

func (RewardDeposited) EventType() string { return TypeRewardDeposited }

func (e RewardDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardDeposited,
		Attributes: map[string]string{
			"pool":       e.Pool.String(),
			"user":       e.User.String(),
			"source":     e.Source.String(),
			"amount":     formatUint(e.Amount),
			"balance":    formatUint(e.Balance),
			"vaultTotal": formatUint(e.VaultTotal),
		},
	}
}

// RewardClaimed is emitted after the pool authority released funds from the
// vault on behalf of a user.
type RewardClaimed struct {
	Pool        solana.PublicKey
	User        solana.PublicKey
	Destination solana.PublicKey
	Signer      solana.PublicKey
	Amount      uint64
	Balance     uint64
	VaultTotal  uint64
}

func (RewardClaimed) EventType() string { return TypeRewardClaimed }

func (e RewardClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardClaimed,
		Attributes: map[string]string{
			"pool":        e.Pool.String(),
			"user":        e.User.String(),
			"destination": e.Destination.String(),
			"signer":      e.Signer.String(),
			"amount":      formatUint(e.Amount),
			"balance":     formatUint(e.Balance),
			"vaultTotal":  formatUint(e.VaultTotal),
		},
	}
}

type HolderOpened struct {
	Address    solana.PublicKey
	Mint       solana.PublicKey
	Controller solana.PublicKey
}

func (HolderOpened) EventType() string { return TypeHolderOpened }

func (e HolderOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeHolderOpened,
		Attributes: map[string]string{
			"address":    e.Address.String(),
			"mint":       e.Mint.String(),
			"controller": e.Controller.String(),
		},
	}
}

type HolderMinted struct {
	Address solana.PublicKey
	Amount  uint64
	Balance uint64
}

func (HolderMinted) EventType() string { return TypeHolderMinted }

func (e HolderMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeHolderMinted,
		Attributes: map[string]string{
			"address": e.Address.String(),
			"amount":  formatUint(e.Amount),
			"balance": formatUint(e.Balance),
		},
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
