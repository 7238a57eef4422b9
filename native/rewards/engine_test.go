package rewards

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"

	"rewardvault/core/events"
)

type mockHolder struct {
	mint       solana.PublicKey
	controller solana.PublicKey
	balance    uint64
}

type mockState struct {
	pools    map[solana.PublicKey]*RewardPool
	entries  map[[64]byte]*Entry
	bindings map[solana.PublicKey]solana.PublicKey
	holders  map[solana.PublicKey]*mockHolder
}

func newMockState() *mockState {
	return &mockState{
		pools:    make(map[solana.PublicKey]*RewardPool),
		entries:  make(map[[64]byte]*Entry),
		bindings: make(map[solana.PublicKey]solana.PublicKey),
		holders:  make(map[solana.PublicKey]*mockHolder),
	}
}

func entryKey(pool, user solana.PublicKey) [64]byte {
	var key [64]byte
	copy(key[:32], pool[:])
	copy(key[32:], user[:])
	return key
}

func (m *mockState) PoolGet(addr solana.PublicKey) (*RewardPool, bool, error) {
	pool, ok := m.pools[addr]
	return pool.Clone(), ok, nil
}

func (m *mockState) PoolPut(pool *RewardPool) error {
	m.pools[pool.Address] = pool.Clone()
	return nil
}

func (m *mockState) VaultGet(addr solana.PublicKey) (*Vault, bool, error) {
	h, ok := m.holders[addr]
	if !ok {
		return nil, false, nil
	}
	return &Vault{Address: addr, Mint: h.mint, Controller: h.controller, Held: h.balance}, true, nil
}

func (m *mockState) VaultBinding(vault solana.PublicKey) (solana.PublicKey, bool, error) {
	pool, ok := m.bindings[vault]
	return pool, ok, nil
}

func (m *mockState) VaultBind(vault, pool solana.PublicKey) error {
	m.bindings[vault] = pool
	return nil
}

func (m *mockState) EntryGet(pool, user solana.PublicKey) (*Entry, bool, error) {
	entry, ok := m.entries[entryKey(pool, user)]
	return entry.Clone(), ok, nil
}

func (m *mockState) EntryPut(entry *Entry) error {
	m.entries[entryKey(entry.Pool, entry.User)] = entry.Clone()
	return nil
}

func (m *mockState) Transfer(from, to solana.PublicKey, amount uint64, authorizer solana.PublicKey) error {
	src, ok := m.holders[from]
	if !ok {
		return fmt.Errorf("unknown source")
	}
	if !src.controller.Equals(authorizer) {
		return fmt.Errorf("authorizer mismatch")
	}
	return m.move(src, to, amount)
}

func (m *mockState) TransferWithPoolAuthority(vault, to solana.PublicKey, amount uint64, capability Capability) error {
	src, ok := m.holders[vault]
	if !ok {
		return fmt.Errorf("unknown vault")
	}
	if err := capability.Verify(); err != nil {
		return err
	}
	if !src.controller.Equals(capability.Signer()) {
		return fmt.Errorf("capability does not control vault")
	}
	return m.move(src, to, amount)
}

func (m *mockState) move(src *mockHolder, to solana.PublicKey, amount uint64) error {
	dst, ok := m.holders[to]
	if !ok {
		return fmt.Errorf("unknown destination")
	}
	if !dst.mint.Equals(src.mint) {
		return fmt.Errorf("mint mismatch")
	}
	if src.balance < amount {
		return fmt.Errorf("insufficient funds")
	}
	if dst.balance > math.MaxUint64-amount {
		return fmt.Errorf("destination overflow")
	}
	src.balance -= amount
	dst.balance += amount
	return nil
}

func (m *mockState) entrySum(pool solana.PublicKey) uint64 {
	var sum uint64
	for _, entry := range m.entries {
		if entry.Pool.Equals(pool) {
			sum += entry.Amount
		}
	}
	return sum
}

type fixture struct {
	engine    *Engine
	state     *mockState
	recorder  *events.Recorder
	pool      solana.PublicKey
	vault     solana.PublicKey
	authority solana.PublicKey
	payer     solana.PublicKey
	mint      solana.PublicKey
	source    solana.PublicKey
	funder    solana.PublicKey
	dest      solana.PublicKey
	user      solana.PublicKey
}

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:     newMockState(),
		recorder:  &events.Recorder{},
		pool:      newKey(),
		vault:     newKey(),
		authority: newKey(),
		payer:     newKey(),
		mint:      newKey(),
		source:    newKey(),
		funder:    newKey(),
		dest:      newKey(),
		user:      HashUserRef("alice@example.com"),
	}
	f.engine = NewEngine(DefaultProgramID)
	f.engine.SetState(f.state)
	f.engine.SetTransferer(f.state)
	f.engine.SetEmitter(f.recorder)

	signer, _, err := DeriveAuthority(DefaultProgramID, f.pool)
	if err != nil {
		t.Fatalf("derive authority: %v", err)
	}
	f.state.holders[f.vault] = &mockHolder{mint: f.mint, controller: signer}
	f.state.holders[f.source] = &mockHolder{mint: f.mint, controller: f.funder, balance: 10_000}
	f.state.holders[f.dest] = &mockHolder{mint: f.mint, controller: newKey()}
	return f
}

func (f *fixture) initialize(t *testing.T) *RewardPool {
	t.Helper()
	pool, err := f.engine.Initialize(InitializeParams{Pool: f.pool, Payer: f.payer, Vault: f.vault, Authority: f.authority})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return pool
}

func (f *fixture) deposit(amount uint64) (*Entry, error) {
	return f.engine.Deposit(DepositParams{
		Pool:       f.pool,
		User:       f.user,
		Source:     f.source,
		Authorizer: f.funder,
		Vault:      f.vault,
		Amount:     amount,
	})
}

func (f *fixture) claim(amount uint64, signer solana.PublicKey) (*Entry, error) {
	return f.engine.Claim(ClaimParams{
		Pool:        f.pool,
		User:        f.user,
		Vault:       f.vault,
		Destination: f.dest,
		Signer:      signer,
		Amount:      amount,
	})
}

func (f *fixture) assertConsistent(t *testing.T) {
	t.Helper()
	held := f.state.holders[f.vault].balance
	if sum := f.state.entrySum(f.pool); sum != held {
		t.Fatalf("vault holds %d but entries sum to %d", held, sum)
	}
}

func TestInitializeBindsVaultAndAuthority(t *testing.T) {
	f := newFixture(t)
	pool := f.initialize(t)
	if !pool.Vault.Equals(f.vault) || !pool.Authority.Equals(f.authority) || !pool.FundedBy.Equals(f.payer) {
		t.Fatalf("unexpected pool bindings: %+v", pool)
	}
	if bound := f.state.bindings[f.vault]; !bound.Equals(f.pool) {
		t.Fatalf("vault not bound to pool")
	}
	evts := f.recorder.Events()
	if len(evts) != 1 || evts[0].EventType() != events.TypeRewardPoolInitialized {
		t.Fatalf("expected pool initialized event, got %+v", evts)
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	f := newFixture(t)
	first := f.initialize(t)

	_, err := f.engine.Initialize(InitializeParams{Pool: f.pool, Payer: f.payer, Vault: f.vault, Authority: newKey()})
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	stored, err := f.engine.Pool(f.pool)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if *stored != *first {
		t.Fatalf("pool changed after failed initialize: %+v vs %+v", stored, first)
	}
}

func TestInitializeRejectsInvalidVaults(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture)
	}{
		{"missing", func(f *fixture) { delete(f.state.holders, f.vault) }},
		{"foreign controller", func(f *fixture) { f.state.holders[f.vault].controller = newKey() }},
		{"not empty", func(f *fixture) { f.state.holders[f.vault].balance = 1 }},
		{"no mint", func(f *fixture) { f.state.holders[f.vault].mint = solana.PublicKey{} }},
		{"already bound", func(f *fixture) { f.state.bindings[f.vault] = newKey() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(f)
			_, err := f.engine.Initialize(InitializeParams{Pool: f.pool, Payer: f.payer, Vault: f.vault, Authority: f.authority})
			if !errors.Is(err, ErrInvalidVault) {
				t.Fatalf("expected ErrInvalidVault, got %v", err)
			}
			if _, ok := f.state.pools[f.pool]; ok {
				t.Fatalf("pool created despite invalid vault")
			}
		})
	}
}

func TestDepositClaimRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	entry, err := f.deposit(500)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if entry.Amount != 500 || f.state.holders[f.vault].balance != 500 {
		t.Fatalf("unexpected state after deposit: entry=%d vault=%d", entry.Amount, f.state.holders[f.vault].balance)
	}
	if f.state.holders[f.source].balance != 9_500 {
		t.Fatalf("source not debited: %d", f.state.holders[f.source].balance)
	}
	f.assertConsistent(t)

	entry, err = f.claim(500, f.authority)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if entry.Amount != 0 || f.state.holders[f.vault].balance != 0 {
		t.Fatalf("unexpected state after claim: entry=%d vault=%d", entry.Amount, f.state.holders[f.vault].balance)
	}
	if f.state.holders[f.dest].balance != 500 {
		t.Fatalf("destination not credited: %d", f.state.holders[f.dest].balance)
	}
	if _, ok := f.state.entries[entryKey(f.pool, f.user)]; !ok {
		t.Fatalf("zero balance entry must persist")
	}
	f.assertConsistent(t)

	evts := f.recorder.Events()
	last := evts[len(evts)-1].Event()
	if last.Type != events.TypeRewardClaimed || last.Attributes["vaultTotal"] != "0" || last.Attributes["balance"] != "0" {
		t.Fatalf("unexpected claim event: %+v", last)
	}
}

func TestClaimUnauthorizedLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.deposit(100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	for _, amount := range []uint64{50, 1000} {
		_, err := f.claim(amount, newKey())
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("claim %d: expected ErrUnauthorized, got %v", amount, err)
		}
	}
	if f.state.entries[entryKey(f.pool, f.user)].Amount != 100 || f.state.holders[f.vault].balance != 100 {
		t.Fatalf("state mutated by unauthorized claim")
	}
	if f.state.holders[f.dest].balance != 0 {
		t.Fatalf("destination credited by unauthorized claim")
	}
}

func TestClaimInsufficientRewards(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	if _, err := f.claim(1, f.authority); !errors.Is(err, ErrInsufficientRewards) {
		t.Fatalf("expected ErrInsufficientRewards for unknown entry, got %v", err)
	}
	if _, ok := f.state.entries[entryKey(f.pool, f.user)]; ok {
		t.Fatalf("failed claim must not create an entry")
	}

	if _, err := f.deposit(100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.claim(60, f.authority); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := f.claim(60, f.authority)
	if !errors.Is(err, ErrInsufficientRewards) {
		t.Fatalf("expected ErrInsufficientRewards, got %v", err)
	}
	if got := f.state.entries[entryKey(f.pool, f.user)].Amount; got != 40 {
		t.Fatalf("expected remaining balance 40, got %d", got)
	}
	if got := f.state.holders[f.vault].balance; got != 40 {
		t.Fatalf("expected vault to hold 40, got %d", got)
	}
	f.assertConsistent(t)
}

func TestDepositOverflowMovesNothing(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	big := uint64(math.MaxUint64 - 5)
	f.state.holders[f.source].balance = big
	if _, err := f.deposit(big); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.state.holders[f.source].balance = 10

	_, err := f.deposit(10)
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if CodeOf(err) != CodeOverflow {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if f.state.entries[entryKey(f.pool, f.user)].Amount != big || f.state.holders[f.vault].balance != big {
		t.Fatalf("overflowing deposit changed balances")
	}
	if f.state.holders[f.source].balance != 10 {
		t.Fatalf("overflowing deposit moved funds")
	}
}

func TestDepositTransferRejected(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	_, err := f.engine.Deposit(DepositParams{
		Pool:       f.pool,
		User:       f.user,
		Source:     f.source,
		Authorizer: newKey(),
		Vault:      f.vault,
		Amount:     10,
	})
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if _, ok := f.state.entries[entryKey(f.pool, f.user)]; ok {
		t.Fatalf("rejected deposit credited the entry")
	}

	if _, err := f.deposit(20_000); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected for insufficient source funds, got %v", err)
	}
	f.assertConsistent(t)
}

func TestClaimTransferRejectedKeepsBalance(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.deposit(100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	f.state.holders[f.dest].mint = newKey()

	_, err := f.claim(50, f.authority)
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if f.state.entries[entryKey(f.pool, f.user)].Amount != 100 {
		t.Fatalf("rejected claim debited the entry")
	}
	f.assertConsistent(t)
}

func (f *fixture) secondPool(t *testing.T) (pool, vault solana.PublicKey) {
	t.Helper()
	pool, vault = newKey(), newKey()
	signer, _, err := DeriveAuthority(DefaultProgramID, pool)
	if err != nil {
		t.Fatalf("derive authority: %v", err)
	}
	f.state.holders[vault] = &mockHolder{mint: f.mint, controller: signer}
	if _, err := f.engine.Initialize(InitializeParams{Pool: pool, Payer: f.payer, Vault: vault, Authority: f.authority}); err != nil {
		t.Fatalf("initialize second pool: %v", err)
	}
	return pool, vault
}

func TestClaimIntoPoolVaultRejected(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	if _, err := f.deposit(100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	other, otherVault := f.secondPool(t)

	for _, dest := range []solana.PublicKey{otherVault, f.vault} {
		_, err := f.engine.Claim(ClaimParams{Pool: f.pool, User: f.user, Vault: f.vault, Destination: dest, Signer: f.authority, Amount: 60})
		if !errors.Is(err, ErrTransferRejected) {
			t.Fatalf("claim into %s: expected ErrTransferRejected, got %v", dest, err)
		}
	}
	if f.state.holders[otherVault].balance != 0 || f.state.entrySum(other) != 0 {
		t.Fatalf("second pool vault credited without entries")
	}
	if f.state.entries[entryKey(f.pool, f.user)].Amount != 100 {
		t.Fatalf("rejected claim debited the entry")
	}
	f.assertConsistent(t)
}

func TestDepositFromPoolVaultRejected(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	other, otherVault := f.secondPool(t)
	signer, _, err := DeriveAuthority(DefaultProgramID, other)
	if err != nil {
		t.Fatalf("derive authority: %v", err)
	}
	f.state.holders[otherVault].balance = 50

	_, err = f.engine.Deposit(DepositParams{Pool: f.pool, User: f.user, Source: otherVault, Authorizer: signer, Vault: f.vault, Amount: 50})
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected ErrTransferRejected, got %v", err)
	}
	if f.state.holders[otherVault].balance != 50 || f.state.holders[f.vault].balance != 0 {
		t.Fatalf("deposit moved funds out of a pool vault")
	}
}

func TestClaimAuthorityCheckedFirst(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	_, err := f.claim(0, newKey())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for zero claim by stranger, got %v", err)
	}
	_, err = f.engine.Claim(ClaimParams{Pool: f.pool, User: solana.PublicKey{}, Vault: newKey(), Destination: f.dest, Signer: newKey(), Amount: 1})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized before argument checks, got %v", err)
	}
}

func TestOperationsValidateArguments(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	if _, err := f.deposit(0); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument for zero deposit, got %v", err)
	}
	if _, err := f.claim(0, f.authority); CodeOf(err) != CodeInvalidArgument {
		t.Fatalf("expected InvalidArgument for zero claim, got %v", err)
	}
	_, err := f.engine.Deposit(DepositParams{Pool: f.pool, User: f.user, Source: f.source, Authorizer: f.funder, Vault: newKey(), Amount: 1})
	if !errors.Is(err, ErrInvalidVault) {
		t.Fatalf("expected ErrInvalidVault for foreign vault, got %v", err)
	}
	_, err = f.engine.Claim(ClaimParams{Pool: newKey(), User: f.user, Vault: f.vault, Destination: f.dest, Signer: f.authority, Amount: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown pool, got %v", err)
	}
}

func TestCapabilityVerify(t *testing.T) {
	f := newFixture(t)
	pool := f.initialize(t)

	capability, err := pool.AuthorizeTransfer(DefaultProgramID)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := capability.Verify(); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !capability.Signer().Equals(f.state.holders[f.vault].controller) {
		t.Fatalf("capability signer does not control the vault")
	}
	if err := (Capability{}).Verify(); err == nil {
		t.Fatalf("expected zero capability to fail verification")
	}
	other, err := pool.AuthorizeTransfer(newKey())
	if err == nil && other.Signer().Equals(capability.Signer()) {
		t.Fatalf("capability under a different program must not share the signer")
	}
}

func TestHashUserRefNormalizes(t *testing.T) {
	a := HashUserRef("  Alice@Example.com ")
	b := HashUserRef("alice@example.com")
	if !a.Equals(b) {
		t.Fatalf("expected equivalent identifiers to hash identically")
	}
	if a.Equals(HashUserRef("bob@example.com")) {
		t.Fatalf("distinct identifiers collided")
	}
}

func TestErrorMessagesCarryCode(t *testing.T) {
	err := wrapError(CodeTransferRejected, errors.New("frozen"), "deposit transfer rejected")
	if err.Error() != "rewards: deposit transfer rejected: frozen" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if CodeOf(fmt.Errorf("wrapped: %w", err)) != CodeTransferRejected {
		t.Fatalf("code lost through wrapping")
	}
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatalf("plain errors must report CodeUnknown")
	}
}
