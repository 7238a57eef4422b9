package rewards

import (
	"errors"

	"github.com/gagliardetto/solana-go"

	"rewardvault/core/events"
)

var (
	errNilState     = errors.New("rewards engine: state not configured")
	errNilTransfers = errors.New("rewards engine: transfer service not configured")
)

// engineState is the record store the engine runs against. The host wraps it
// in a write overlay so that every mutation of one operation is committed or
// discarded together.
type engineState interface {
	PoolGet(addr solana.PublicKey) (*RewardPool, bool, error)
	PoolPut(pool *RewardPool) error
	VaultGet(addr solana.PublicKey) (*Vault, bool, error)
	VaultBinding(vault solana.PublicKey) (solana.PublicKey, bool, error)
	VaultBind(vault, pool solana.PublicKey) error
	EntryGet(pool, user solana.PublicKey) (*Entry, bool, error)
	EntryPut(entry *Entry) error
}

// Transferer moves the pooled asset between holders.
type Transferer interface {
	Transfer(from, to solana.PublicKey, amount uint64, authorizer solana.PublicKey) error
	TransferWithPoolAuthority(vault, to solana.PublicKey, amount uint64, capability Capability) error
}

// Engine implements pool initialization, deposits and claims. It holds no
// locks; the caller must serialize access to the pool, vault and entry records
// an operation touches.
type Engine struct {
	state     engineState
	transfers Transferer
	emitter   events.Emitter
	program   solana.PublicKey
}

// NewEngine creates an engine deriving pool authorities under program.
func NewEngine(program solana.PublicKey) *Engine {
	if program.IsZero() {
		program = DefaultProgramID
	}
	return &Engine{emitter: events.NoopEmitter{}, program: program}
}

func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetTransferer(t Transferer) { e.transfers = t }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) ProgramID() solana.PublicKey { return e.program }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.transfers == nil {
		return errNilTransfers
	}
	return nil
}

// Initialize creates the pool record and binds it to an empty vault controlled
// by the pool's derived authority.
func (e *Engine) Initialize(p InitializeParams) (*RewardPool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p.Pool.IsZero() || p.Vault.IsZero() || p.Authority.IsZero() || p.Payer.IsZero() {
		return nil, newError(CodeInvalidArgument, "pool, vault, authority and payer are required")
	}
	if _, exists, err := e.state.PoolGet(p.Pool); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrAlreadyInitialized
	}
	signer, bump, err := DeriveAuthority(e.program, p.Pool)
	if err != nil {
		return nil, wrapError(CodeInvalidVault, err, "derive pool authority")
	}
	vault, ok, err := e.state.VaultGet(p.Vault)
	if err != nil {
		return nil, err
	}
	switch {
	case !ok:
		return nil, newError(CodeInvalidVault, "vault %s does not exist", p.Vault)
	case vault.Mint.IsZero():
		return nil, newError(CodeInvalidVault, "vault %s has no mint", p.Vault)
	case !vault.Controller.Equals(signer):
		return nil, newError(CodeInvalidVault, "vault %s is not controlled by pool authority %s", p.Vault, signer)
	case vault.Held != 0:
		return nil, newError(CodeInvalidVault, "vault %s is not empty", p.Vault)
	}
	if bound, exists, err := e.state.VaultBinding(p.Vault); err != nil {
		return nil, err
	} else if exists {
		return nil, newError(CodeInvalidVault, "vault %s already bound to pool %s", p.Vault, bound)
	}
	pool := &RewardPool{
		Address:    p.Pool,
		Vault:      p.Vault,
		Authority:  p.Authority,
		FundedBy:   p.Payer,
		SignerBump: bump,
	}
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	if err := e.state.VaultBind(p.Vault, p.Pool); err != nil {
		return nil, err
	}
	e.emit(events.RewardPoolInitialized{Pool: pool.Address, Vault: pool.Vault, Authority: pool.Authority, FundedBy: pool.FundedBy})
	return pool.Clone(), nil
}

// Deposit moves amount from the source holder into the pool vault and
// credits the user's entry. The overflow checks run before the transfer so a
// rejected credit never moves funds.
func (e *Engine) Deposit(p DepositParams) (*Entry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p.Amount == 0 {
		return nil, newError(CodeInvalidArgument, "deposit amount must be positive")
	}
	pool, err := e.pool(p.Pool)
	if err != nil {
		return nil, err
	}
	if !p.Vault.Equals(pool.Vault) {
		return nil, newError(CodeInvalidVault, "vault %s is not bound to pool %s", p.Vault, pool.Address)
	}
	vault, err := e.vault(pool.Vault)
	if err != nil {
		return nil, err
	}
	entry, err := e.entry(pool.Address, p.User)
	if err != nil {
		return nil, err
	}
	balance, ok := addUint64(entry.Amount, p.Amount)
	if !ok {
		return nil, newError(CodeOverflow, "entry balance %d + %d overflows", entry.Amount, p.Amount)
	}
	held, ok := addUint64(vault.Held, p.Amount)
	if !ok {
		return nil, newError(CodeOverflow, "vault total %d + %d overflows", vault.Held, p.Amount)
	}
	if err := e.rejectVault(p.Source, "source"); err != nil {
		return nil, err
	}
	if err := e.transfers.Transfer(p.Source, pool.Vault, p.Amount, p.Authorizer); err != nil {
		return nil, wrapError(CodeTransferRejected, err, "deposit transfer rejected")
	}
	entry.Amount = balance
	if err := e.state.EntryPut(entry); err != nil {
		return nil, err
	}
	e.emit(events.RewardDeposited{
		Pool:       pool.Address,
		User:       entry.User,
		Source:     p.Source,
		Amount:     p.Amount,
		Balance:    balance,
		VaultTotal: held,
	})
	return entry.Clone(), nil
}

// Claim releases amount from the vault to the destination on behalf of the
// user. Only the pool authority may claim, and that gate runs before any
// argument or balance check. The user's consent is not part of the check.
func (e *Engine) Claim(p ClaimParams) (*Entry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.pool(p.Pool)
	if err != nil {
		return nil, err
	}
	if !p.Signer.Equals(pool.Authority) {
		return nil, ErrUnauthorized
	}
	if p.Amount == 0 {
		return nil, newError(CodeInvalidArgument, "claim amount must be positive")
	}
	entry, err := e.entry(pool.Address, p.User)
	if err != nil {
		return nil, err
	}
	remaining, ok := subUint64(entry.Amount, p.Amount)
	if !ok {
		return nil, newError(CodeInsufficientRewards, "balance %d below requested %d", entry.Amount, p.Amount)
	}
	if !p.Vault.Equals(pool.Vault) {
		return nil, newError(CodeInvalidVault, "vault %s is not bound to pool %s", p.Vault, pool.Address)
	}
	if err := e.rejectVault(p.Destination, "destination"); err != nil {
		return nil, err
	}
	capability, err := pool.AuthorizeTransfer(e.program)
	if err != nil {
		return nil, err
	}
	if err := e.transfers.TransferWithPoolAuthority(pool.Vault, p.Destination, p.Amount, capability); err != nil {
		return nil, wrapError(CodeTransferRejected, err, "claim transfer rejected")
	}
	entry.Amount = remaining
	if err := e.state.EntryPut(entry); err != nil {
		return nil, err
	}
	vault, err := e.vault(pool.Vault)
	if err != nil {
		return nil, err
	}
	e.emit(events.RewardClaimed{
		Pool:        pool.Address,
		User:        entry.User,
		Destination: p.Destination,
		Signer:      p.Signer,
		Amount:      p.Amount,
		Balance:     remaining,
		VaultTotal:  vault.Held,
	})
	return entry.Clone(), nil
}

// Pool returns the pool stored at addr.
func (e *Engine) Pool(addr solana.PublicKey) (*RewardPool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.pool(addr)
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Entry returns the user's entry in the pool. Users without deposits report a
// zero balance.
func (e *Engine) Entry(pool, user solana.PublicKey) (*Entry, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.pool(pool); err != nil {
		return nil, err
	}
	return e.entry(pool, user)
}

// rejectVault fails when holder is bound to any pool. Value may only enter or
// leave a vault through its own pool's ledger entries.
func (e *Engine) rejectVault(holder solana.PublicKey, role string) error {
	bound, ok, err := e.state.VaultBinding(holder)
	if err != nil {
		return err
	}
	if ok {
		return newError(CodeTransferRejected, "%s %s is the vault of pool %s", role, holder, bound)
	}
	return nil
}

func (e *Engine) pool(addr solana.PublicKey) (*RewardPool, error) {
	pool, ok, err := e.state.PoolGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || pool == nil {
		return nil, newError(CodeNotFound, "pool %s not found", addr)
	}
	return pool, nil
}

func (e *Engine) vault(addr solana.PublicKey) (*Vault, error) {
	vault, ok, err := e.state.VaultGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok || vault == nil {
		return nil, newError(CodeInvalidVault, "vault %s does not exist", addr)
	}
	return vault, nil
}

func (e *Engine) entry(pool, user solana.PublicKey) (*Entry, error) {
	if user.IsZero() {
		return nil, newError(CodeInvalidArgument, "user reference required")
	}
	entry, ok, err := e.state.EntryGet(pool, user)
	if err != nil {
		return nil, err
	}
	if !ok || entry == nil {
		return &Entry{Pool: pool, User: user}, nil
	}
	return entry, nil
}
