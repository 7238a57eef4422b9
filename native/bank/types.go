package bank

import "github.com/gagliardetto/solana-go"

// Holder is a single-asset balance account. Controller is the only principal
// that may move funds out of it.
type Holder struct {
	Address    solana.PublicKey
	Mint       solana.PublicKey
	Controller solana.PublicKey
	Balance    uint64
	Frozen     bool
}

func (h *Holder) Clone() *Holder {
	if h == nil {
		return nil
	}
	clone := *h
	return &clone
}
