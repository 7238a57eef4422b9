package bank

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"rewardvault/core/events"
	"rewardvault/native/rewards"
)

var (
	ErrNilState           = errors.New("bank: state not configured")
	ErrHolderExists       = errors.New("bank: holder already exists")
	ErrHolderNotFound     = errors.New("bank: holder not found")
	ErrHolderFrozen       = errors.New("bank: holder frozen")
	ErrMintMismatch       = errors.New("bank: mint mismatch")
	ErrUnauthorized       = errors.New("bank: authorizer does not control holder")
	ErrInsufficientFunds  = errors.New("bank: insufficient funds")
	ErrBalanceOverflow    = errors.New("bank: balance overflow")
	ErrInvalidAmount      = errors.New("bank: amount must be positive")
	ErrSelfTransfer       = errors.New("bank: source and destination are identical")
	ErrInvalidCapability  = errors.New("bank: invalid pool capability")
	ErrInvalidHolderField = errors.New("bank: address, mint and controller are required")
)

type bankState interface {
	HolderGet(addr solana.PublicKey) (*Holder, bool, error)
	HolderPut(holder *Holder) error
}

// Ledger moves a single fungible asset between holders. Every check runs
// before the first write so a rejected transfer leaves both holders intact.
type Ledger struct {
	state   bankState
	emitter events.Emitter
}

func NewLedger(state bankState) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil discards events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// OpenHolder creates an empty holder.
func (l *Ledger) OpenHolder(addr, mint, controller solana.PublicKey) (*Holder, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	if addr.IsZero() || mint.IsZero() || controller.IsZero() {
		return nil, ErrInvalidHolderField
	}
	if _, exists, err := l.state.HolderGet(addr); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: %s", ErrHolderExists, addr)
	}
	holder := &Holder{Address: addr, Mint: mint, Controller: controller}
	if err := l.state.HolderPut(holder); err != nil {
		return nil, err
	}
	l.emitter.Emit(events.HolderOpened{Address: addr, Mint: mint, Controller: controller})
	return holder.Clone(), nil
}

// Mint credits new supply to a holder.
func (l *Ledger) Mint(addr solana.PublicKey, amount uint64) (*Holder, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	holder, err := l.holder(addr)
	if err != nil {
		return nil, err
	}
	balance, ok := add(holder.Balance, amount)
	if !ok {
		return nil, ErrBalanceOverflow
	}
	holder.Balance = balance
	if err := l.state.HolderPut(holder); err != nil {
		return nil, err
	}
	l.emitter.Emit(events.HolderMinted{Address: addr, Amount: amount, Balance: balance})
	return holder.Clone(), nil
}

// SetFrozen blocks or unblocks transfers touching the holder.
func (l *Ledger) SetFrozen(addr solana.PublicKey, frozen bool) (*Holder, error) {
	holder, err := l.holder(addr)
	if err != nil {
		return nil, err
	}
	holder.Frozen = frozen
	if err := l.state.HolderPut(holder); err != nil {
		return nil, err
	}
	return holder.Clone(), nil
}

// Holder returns the stored holder record.
func (l *Ledger) Holder(addr solana.PublicKey) (*Holder, error) {
	holder, err := l.holder(addr)
	if err != nil {
		return nil, err
	}
	return holder, nil
}

// Transfer moves amount from one holder to another on the authority of the
// source controller.
func (l *Ledger) Transfer(from, to solana.PublicKey, amount uint64, authorizer solana.PublicKey) error {
	src, dst, err := l.prepare(from, to, amount)
	if err != nil {
		return err
	}
	if !src.Controller.Equals(authorizer) {
		return ErrUnauthorized
	}
	return l.apply(src, dst, amount)
}

// TransferWithPoolAuthority moves funds out of a pool vault. The spending
// proof is the pool's derived capability instead of a controller signature.
func (l *Ledger) TransferWithPoolAuthority(vault, to solana.PublicKey, amount uint64, capability rewards.Capability) error {
	if err := capability.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCapability, err)
	}
	src, dst, err := l.prepare(vault, to, amount)
	if err != nil {
		return err
	}
	if !src.Controller.Equals(capability.Signer()) {
		return ErrInvalidCapability
	}
	return l.apply(src, dst, amount)
}

func (l *Ledger) prepare(from, to solana.PublicKey, amount uint64) (*Holder, *Holder, error) {
	if amount == 0 {
		return nil, nil, ErrInvalidAmount
	}
	if from.Equals(to) {
		return nil, nil, ErrSelfTransfer
	}
	src, err := l.holder(from)
	if err != nil {
		return nil, nil, err
	}
	dst, err := l.holder(to)
	if err != nil {
		return nil, nil, err
	}
	if src.Frozen || dst.Frozen {
		return nil, nil, ErrHolderFrozen
	}
	if !src.Mint.Equals(dst.Mint) {
		return nil, nil, ErrMintMismatch
	}
	if src.Balance < amount {
		return nil, nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Balance, amount)
	}
	if _, ok := add(dst.Balance, amount); !ok {
		return nil, nil, ErrBalanceOverflow
	}
	return src, dst, nil
}

func (l *Ledger) apply(src, dst *Holder, amount uint64) error {
	src.Balance -= amount
	dst.Balance += amount
	if err := l.state.HolderPut(src); err != nil {
		return err
	}
	return l.state.HolderPut(dst)
}

func (l *Ledger) holder(addr solana.PublicKey) (*Holder, error) {
	if l == nil || l.state == nil {
		return nil, ErrNilState
	}
	holder, ok, err := l.state.HolderGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || holder == nil {
		return nil, fmt.Errorf("%w: %s", ErrHolderNotFound, addr)
	}
	return holder, nil
}

func add(a, b uint64) (uint64, bool) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, false
	}
	return sum.Uint64(), true
}
