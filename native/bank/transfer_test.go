package bank

import (
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"

	"rewardvault/core/events"
	"rewardvault/native/rewards"
)

type memState struct {
	holders map[solana.PublicKey]*Holder
}

func newMemState() *memState {
	return &memState{holders: make(map[solana.PublicKey]*Holder)}
}

func (m *memState) HolderGet(addr solana.PublicKey) (*Holder, bool, error) {
	h, ok := m.holders[addr]
	return h.Clone(), ok, nil
}

func (m *memState) HolderPut(h *Holder) error {
	m.holders[h.Address] = h.Clone()
	return nil
}

func key() solana.PublicKey { return solana.NewWallet().PublicKey() }

func openFunded(t *testing.T, l *Ledger, mint, controller solana.PublicKey, amount uint64) solana.PublicKey {
	t.Helper()
	addr := key()
	if _, err := l.OpenHolder(addr, mint, controller); err != nil {
		t.Fatalf("open holder: %v", err)
	}
	if amount > 0 {
		if _, err := l.Mint(addr, amount); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}
	return addr
}

func TestTransferChecks(t *testing.T) {
	state := newMemState()
	ledger := NewLedger(state)
	mint := key()
	owner := key()
	src := openFunded(t, ledger, mint, owner, 100)
	dst := openFunded(t, ledger, mint, key(), 0)
	foreign := openFunded(t, ledger, key(), key(), 0)

	cases := []struct {
		name       string
		from, to   solana.PublicKey
		amount     uint64
		authorizer solana.PublicKey
		want       error
	}{
		{"wrong authorizer", src, dst, 10, key(), ErrUnauthorized},
		{"insufficient", src, dst, 101, owner, ErrInsufficientFunds},
		{"mint mismatch", src, foreign, 10, owner, ErrMintMismatch},
		{"unknown destination", src, key(), 10, owner, ErrHolderNotFound},
		{"self transfer", src, src, 10, owner, ErrSelfTransfer},
		{"zero amount", src, dst, 0, owner, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ledger.Transfer(tc.from, tc.to, tc.amount, tc.authorizer)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if state.holders[src].Balance != 100 {
				t.Fatalf("source mutated by rejected transfer")
			}
		})
	}

	if err := ledger.Transfer(src, dst, 40, owner); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if state.holders[src].Balance != 60 || state.holders[dst].Balance != 40 {
		t.Fatalf("unexpected balances %d/%d", state.holders[src].Balance, state.holders[dst].Balance)
	}
}

func TestTransferFrozenAndOverflow(t *testing.T) {
	state := newMemState()
	ledger := NewLedger(state)
	mint := key()
	owner := key()
	src := openFunded(t, ledger, mint, owner, 10)
	dst := openFunded(t, ledger, mint, key(), math.MaxUint64-5)

	if err := ledger.Transfer(src, dst, 10, owner); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected ErrBalanceOverflow, got %v", err)
	}
	if _, err := ledger.SetFrozen(src, true); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if err := ledger.Transfer(src, dst, 1, owner); !errors.Is(err, ErrHolderFrozen) {
		t.Fatalf("expected ErrHolderFrozen, got %v", err)
	}
	if _, err := ledger.Mint(dst, 10); !errors.Is(err, ErrBalanceOverflow) {
		t.Fatalf("expected mint overflow, got %v", err)
	}
}

func TestTransferWithPoolAuthority(t *testing.T) {
	state := newMemState()
	ledger := NewLedger(state)
	mint := key()
	poolAddr := key()
	signer, bump, err := rewards.DeriveAuthority(rewards.DefaultProgramID, poolAddr)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	vault := openFunded(t, ledger, mint, signer, 50)
	dst := openFunded(t, ledger, mint, key(), 0)

	pool := &rewards.RewardPool{Address: poolAddr, Vault: vault, SignerBump: bump}
	capability, err := pool.AuthorizeTransfer(rewards.DefaultProgramID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := ledger.TransferWithPoolAuthority(vault, dst, 20, capability); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if state.holders[vault].Balance != 30 || state.holders[dst].Balance != 20 {
		t.Fatalf("unexpected balances after pool transfer")
	}

	if err := ledger.TransferWithPoolAuthority(vault, dst, 1, rewards.Capability{}); !errors.Is(err, ErrInvalidCapability) {
		t.Fatalf("expected ErrInvalidCapability for empty capability, got %v", err)
	}

	otherAddr := key()
	_, otherBump, err := rewards.DeriveAuthority(rewards.DefaultProgramID, otherAddr)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	other := &rewards.RewardPool{Address: otherAddr, SignerBump: otherBump}
	foreign, err := other.AuthorizeTransfer(rewards.DefaultProgramID)
	if err != nil {
		t.Fatalf("authorize foreign: %v", err)
	}
	if err := ledger.TransferWithPoolAuthority(vault, dst, 1, foreign); !errors.Is(err, ErrInvalidCapability) {
		t.Fatalf("expected ErrInvalidCapability for foreign pool, got %v", err)
	}
	if state.holders[vault].Balance != 30 {
		t.Fatalf("vault mutated by rejected transfers")
	}
}

func TestOpenHolderEmitsAndRejectsDuplicates(t *testing.T) {
	ledger := NewLedger(newMemState())
	recorder := &events.Recorder{}
	ledger.SetEmitter(recorder)
	addr, mint, controller := key(), key(), key()

	if _, err := ledger.OpenHolder(addr, mint, controller); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := ledger.OpenHolder(addr, mint, controller); !errors.Is(err, ErrHolderExists) {
		t.Fatalf("expected ErrHolderExists, got %v", err)
	}
	if _, err := ledger.OpenHolder(key(), solana.PublicKey{}, controller); !errors.Is(err, ErrInvalidHolderField) {
		t.Fatalf("expected ErrInvalidHolderField, got %v", err)
	}
	evts := recorder.Events()
	if len(evts) != 1 || evts[0].EventType() != events.TypeHolderOpened {
		t.Fatalf("unexpected events %+v", evts)
	}
}
