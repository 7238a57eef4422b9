package rewardsd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"rewardvault/core/events"
	"rewardvault/core/state"
	"rewardvault/native/bank"
	"rewardvault/native/common"
	"rewardvault/native/rewards"
	"rewardvault/storage"
)

const (
	ModuleRewards = "rewards"
	ModuleBank    = "bank"
)

// Ledger hosts the reward engine. It resolves and locks the records an
// operation touches, runs the engine against a write overlay and commits the
// overlay in one batch, so every operation either fully applies or leaves no
// trace. Operations on different entries of one vault serialize on the vault;
// operations on different vaults never contend.
type Ledger struct {
	db       storage.Database
	locks    *lockTable
	pauses   *common.Pauses
	program  solana.PublicKey
	minClaim uint64
	ttl      time.Duration
	emitter  events.Emitter
	metrics  *Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    func() time.Time
}

// LedgerOption customises the ledger instance.
type LedgerOption func(*Ledger)

func WithProgramID(program solana.PublicKey) LedgerOption {
	return func(l *Ledger) {
		if !program.IsZero() {
			l.program = program
		}
	}
}

// WithMinClaim rejects claims below amount. Zero disables the check.
func WithMinClaim(amount uint64) LedgerOption {
	return func(l *Ledger) { l.minClaim = amount }
}

// WithRequestTTL bounds how far a signed request timestamp may drift from the
// ledger clock.
func WithRequestTTL(ttl time.Duration) LedgerOption {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithEmitter receives the events of committed operations.
func WithEmitter(emitter events.Emitter) LedgerOption {
	return func(l *Ledger) {
		if emitter != nil {
			l.emitter = emitter
		}
	}
}

func WithMetrics(m *Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func NewLedger(db storage.Database, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		db:      db,
		locks:   newLockTable(),
		pauses:  common.NewPauses(),
		program: rewards.DefaultProgramID,
		ttl:     5 * time.Minute,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("rewardsd"),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Program() solana.PublicKey { return l.program }

func (l *Ledger) MinClaim() uint64 { return l.minClaim }

type txn struct {
	state  *state.Manager
	engine *rewards.Engine
	bank   *bank.Ledger
}

func (l *Ledger) newTxn(emitter events.Emitter) *txn {
	m := state.NewManager(l.db)
	ledger := bank.NewLedger(m)
	ledger.SetEmitter(emitter)
	engine := rewards.NewEngine(l.program)
	engine.SetState(m)
	engine.SetTransferer(ledger)
	engine.SetEmitter(emitter)
	return &txn{state: m, engine: engine, bank: ledger}
}

// run executes fn under the given locks. observed is read after fn returns and
// feeds the amount metric.
func (l *Ledger) run(ctx context.Context, op string, observed *uint64, keys []lockKey, attrs []attribute.KeyValue, fn func(*txn) error) (err error) {
	ctx, span := l.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
	start := time.Now()
	defer func() {
		code := errorCode(err)
		var amount uint64
		if observed != nil {
			amount = *observed
		}
		l.metrics.Observe(op, code, amount, time.Since(start))
		if errors.Is(err, ErrReplay) {
			l.metrics.RecordReplay()
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, code)
		}
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	release := l.locks.acquire(keys...)
	defer release()

	recorder := &events.Recorder{}
	tx := l.newTxn(recorder)
	if err := fn(tx); err != nil {
		tx.state.Discard()
		return err
	}
	if err := tx.state.Commit(); err != nil {
		return err
	}
	recorder.Flush(l.emitter)
	return nil
}

func (l *Ledger) guard(module string) error {
	if err := common.Guard(l.pauses, module); err != nil {
		return fmt.Errorf("%s: %w", module, err)
	}
	return nil
}

func (l *Ledger) consume(tx *txn, proof *Proof) error {
	return consumeNonce(tx.state, proof, l.clock(), l.ttl)
}

// Initialize creates a pool bound to vault and authority.
func (l *Ledger) Initialize(ctx context.Context, p rewards.InitializeParams, proof *Proof) (*rewards.RewardPool, error) {
	if err := l.guard(ModuleRewards); err != nil {
		return nil, err
	}
	var pool *rewards.RewardPool
	keys := []lockKey{poolLock(p.Pool, false), holderLock(p.Vault)}
	err := l.run(ctx, "initialize", nil, keys, poolAttrs(p.Pool), func(tx *txn) error {
		if err := l.consume(tx, proof); err != nil {
			return err
		}
		var err error
		pool, err = tx.engine.Initialize(p)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.metrics.SetVaultHeld(pool.Address.String(), 0)
	l.logger.Info("reward pool initialized",
		slog.String("pool", pool.Address.String()),
		slog.String("vault", pool.Vault.String()))
	return pool, nil
}

// Deposit credits p.User and moves the funds into the pool vault.
func (l *Ledger) Deposit(ctx context.Context, p rewards.DepositParams, proof *Proof) (*rewards.Entry, error) {
	if err := l.guard(ModuleRewards); err != nil {
		return nil, err
	}
	var (
		entry  *rewards.Entry
		held   uint64
		amount uint64
	)
	keys := []lockKey{
		poolLock(p.Pool, true),
		holderLock(p.Vault),
		holderLock(p.Source),
		entryLock(p.Pool, p.User),
	}
	err := l.run(ctx, "deposit", &amount, keys, entryAttrs(p.Pool, p.User, p.Amount), func(tx *txn) error {
		if err := l.consume(tx, proof); err != nil {
			return err
		}
		var err error
		if entry, err = tx.engine.Deposit(p); err != nil {
			return err
		}
		amount = p.Amount
		held, err = vaultHeld(tx.state, p.Vault)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.metrics.SetVaultHeld(p.Pool.String(), held)
	return entry, nil
}

// Claim releases p.Amount from the vault to p.Destination on the pool
// authority's signature.
func (l *Ledger) Claim(ctx context.Context, p rewards.ClaimParams, proof *Proof) (*rewards.Entry, error) {
	if err := l.guard(ModuleRewards); err != nil {
		return nil, err
	}
	entry, _, err := l.claim(ctx, "claim", p, proof, false)
	return entry, err
}

// ClaimAll claims the full balance of the entry. p.Amount is ignored.
func (l *Ledger) ClaimAll(ctx context.Context, p rewards.ClaimParams, proof *Proof) (*rewards.Entry, uint64, error) {
	if err := l.guard(ModuleRewards); err != nil {
		return nil, 0, err
	}
	return l.claim(ctx, "claim_all", p, proof, true)
}

func (l *Ledger) claim(ctx context.Context, op string, p rewards.ClaimParams, proof *Proof, all bool) (*rewards.Entry, uint64, error) {
	var (
		entry  *rewards.Entry
		held   uint64
		amount uint64
	)
	keys := []lockKey{
		poolLock(p.Pool, true),
		holderLock(p.Vault),
		holderLock(p.Destination),
		entryLock(p.Pool, p.User),
	}
	err := l.run(ctx, op, &amount, keys, entryAttrs(p.Pool, p.User, p.Amount), func(tx *txn) error {
		if err := l.consume(tx, proof); err != nil {
			return err
		}
		resolved, err := l.claimAmount(tx, p, all)
		if err != nil {
			return err
		}
		p.Amount = resolved
		if entry, err = tx.engine.Claim(p); err != nil {
			return err
		}
		amount = p.Amount
		held, err = vaultHeld(tx.state, p.Vault)
		return err
	})
	if err != nil {
		if errors.Is(err, rewards.ErrUnauthorized) {
			l.logger.Warn("unauthorized claim rejected",
				slog.String("pool", p.Pool.String()),
				slog.String("user", p.User.String()),
				slog.String("signer", p.Signer.String()))
		}
		return nil, 0, err
	}
	l.metrics.SetVaultHeld(p.Pool.String(), held)
	return entry, amount, nil
}

// claimAmount resolves the amount to release. The authority check runs first
// so an unauthorized signer learns nothing about the balance or the claim
// floor.
func (l *Ledger) claimAmount(tx *txn, p rewards.ClaimParams, all bool) (uint64, error) {
	pool, err := tx.engine.Pool(p.Pool)
	if err != nil {
		return 0, err
	}
	if !p.Signer.Equals(pool.Authority) {
		return 0, rewards.ErrUnauthorized
	}
	if !all {
		if l.minClaim > 0 && p.Amount < l.minClaim {
			return 0, &rewards.Error{Code: rewards.CodeInvalidArgument, Msg: fmt.Sprintf("claim amount %d below minimum %d", p.Amount, l.minClaim)}
		}
		return p.Amount, nil
	}
	entry, err := tx.engine.Entry(p.Pool, p.User)
	if err != nil {
		return 0, err
	}
	if entry.Amount == 0 {
		return 0, &rewards.Error{Code: rewards.CodeInsufficientRewards, Msg: "nothing to claim"}
	}
	if l.minClaim > 0 && entry.Amount < l.minClaim {
		return 0, &rewards.Error{Code: rewards.CodeInvalidArgument, Msg: fmt.Sprintf("balance %d below minimum claim %d", entry.Amount, l.minClaim)}
	}
	return entry.Amount, nil
}

// Pool returns the pool and the current state of its vault.
func (l *Ledger) Pool(ctx context.Context, addr solana.PublicKey) (*rewards.RewardPool, *rewards.Vault, error) {
	tx := l.newTxn(nil)
	pool, err := tx.engine.Pool(addr)
	if err != nil {
		return nil, nil, err
	}
	vault, ok, err := tx.state.VaultGet(pool.Vault)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, &rewards.Error{Code: rewards.CodeInvalidVault, Msg: fmt.Sprintf("vault %s missing", pool.Vault)}
	}
	return pool, vault, nil
}

// Vault returns the custody holder of a pool vault.
func (l *Ledger) Vault(ctx context.Context, addr solana.PublicKey) (*rewards.Vault, error) {
	vault, ok, err := state.NewManager(l.db).VaultGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &rewards.Error{Code: rewards.CodeNotFound, Msg: fmt.Sprintf("vault %s not found", addr)}
	}
	return vault, nil
}

// Entry returns the balance of user in pool.
func (l *Ledger) Entry(ctx context.Context, pool, user solana.PublicKey) (*rewards.Entry, error) {
	return l.newTxn(nil).engine.Entry(pool, user)
}

// Holder returns a bank holder.
func (l *Ledger) Holder(ctx context.Context, addr solana.PublicKey) (*bank.Holder, error) {
	return l.newTxn(nil).bank.Holder(addr)
}

// Audit compares the vault total with the sum of all entries. The vault lock
// is held so no deposit or claim on the pool is in flight.
func (l *Ledger) Audit(ctx context.Context, addr solana.PublicKey) (*state.AuditReport, error) {
	pool, err := l.newTxn(nil).engine.Pool(addr)
	if err != nil {
		return nil, err
	}
	release := l.locks.acquire(poolLock(addr, true), holderLock(pool.Vault))
	defer release()
	_, span := l.tracer.Start(ctx, "ledger.audit", trace.WithAttributes(poolAttrs(addr)...))
	defer span.End()
	report, err := state.NewManager(l.db).Audit(addr)
	if err != nil {
		return nil, err
	}
	if !report.Consistent() {
		l.logger.Error("vault custody diverges from ledger entries",
			slog.String("pool", addr.String()),
			slog.Uint64("vault_held", report.VaultHeld),
			slog.String("entry_total", report.EntryTotal.Dec()))
	}
	return report, nil
}

// Derive returns the derived authority that must control a vault of pool.
func (l *Ledger) Derive(pool solana.PublicKey) (solana.PublicKey, uint8, error) {
	return rewards.DeriveAuthority(l.program, pool)
}

// Status summarises the ledger for operators.
type Status struct {
	Paused []string
	Pools  int
}

func (l *Ledger) Status(ctx context.Context) (Status, error) {
	pools, err := state.NewManager(l.db).Pools()
	if err != nil {
		return Status{}, err
	}
	return Status{Paused: l.pauses.Paused(), Pools: len(pools)}, nil
}

// OpenHolder creates an empty bank holder.
func (l *Ledger) OpenHolder(ctx context.Context, addr, mint, controller solana.PublicKey) (*bank.Holder, error) {
	if err := l.guard(ModuleBank); err != nil {
		return nil, err
	}
	var holder *bank.Holder
	err := l.run(ctx, "open_holder", nil, []lockKey{holderLock(addr)}, holderAttrs(addr), func(tx *txn) error {
		var err error
		holder, err = tx.bank.OpenHolder(addr, mint, controller)
		return err
	})
	return holder, err
}

// Mint credits new supply to a holder. Pool vaults are refused: their
// holdings must always equal the sum of their ledger entries.
func (l *Ledger) Mint(ctx context.Context, addr solana.PublicKey, amount uint64) (*bank.Holder, error) {
	if err := l.guard(ModuleBank); err != nil {
		return nil, err
	}
	var holder *bank.Holder
	observed := amount
	err := l.run(ctx, "mint", &observed, []lockKey{holderLock(addr)}, holderAttrs(addr), func(tx *txn) error {
		if pool, bound, err := tx.state.VaultBinding(addr); err != nil {
			return err
		} else if bound {
			return &rewards.Error{Code: rewards.CodeInvalidVault, Msg: fmt.Sprintf("holder %s is the vault of pool %s; fund it through deposits", addr, pool)}
		}
		var err error
		holder, err = tx.bank.Mint(addr, amount)
		return err
	})
	return holder, err
}

// Freeze blocks or unblocks transfers touching a holder.
func (l *Ledger) Freeze(ctx context.Context, addr solana.PublicKey, frozen bool) (*bank.Holder, error) {
	var holder *bank.Holder
	err := l.run(ctx, "freeze", nil, []lockKey{holderLock(addr)}, holderAttrs(addr), func(tx *txn) error {
		var err error
		holder, err = tx.bank.SetFrozen(addr, frozen)
		return err
	})
	if err == nil {
		l.logger.Info("holder freeze updated", slog.String("holder", addr.String()), slog.Bool("frozen", frozen))
	}
	return holder, err
}

// Pause rejects new mutations on the given modules, or on all modules when
// none are named. Operations already holding their locks complete.
func (l *Ledger) Pause(modules ...string) {
	l.setPaused(true, modules)
}

func (l *Ledger) Resume(modules ...string) {
	l.setPaused(false, modules)
}

func (l *Ledger) setPaused(paused bool, modules []string) {
	if len(modules) == 0 {
		modules = []string{ModuleRewards, ModuleBank}
	}
	for _, module := range modules {
		if l.pauses.Set(module, paused) {
			l.logger.Warn("module pause toggled", slog.String("component", module), slog.Bool("paused", paused))
		}
	}
	l.metrics.SetPaused(len(l.pauses.Paused()) > 0)
}

func vaultHeld(m *state.Manager, addr solana.PublicKey) (uint64, error) {
	vault, ok, err := m.VaultGet(addr)
	if err != nil || !ok {
		return 0, err
	}
	return vault.Held, nil
}

func poolAttrs(pool solana.PublicKey) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("rewards.pool", pool.String())}
}

func entryAttrs(pool, user solana.PublicKey, amount uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("rewards.pool", pool.String()),
		attribute.String("rewards.user", user.String()),
		attribute.String("rewards.amount", strconv.FormatUint(amount, 10)),
	}
}

func holderAttrs(addr solana.PublicKey) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("bank.holder", addr.String())}
}

// errorCode maps an operation error onto a stable label.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := rewards.CodeOf(err); code != rewards.CodeUnknown {
		return code.String()
	}
	switch {
	case errors.Is(err, common.ErrModulePaused):
		return "Paused"
	case errors.Is(err, ErrReplay):
		return "Replay"
	case errors.Is(err, ErrStaleRequest):
		return "StaleRequest"
	case errors.Is(err, bank.ErrHolderNotFound):
		return rewards.CodeNotFound.String()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	case isBankError(err):
		return "BankRejected"
	default:
		return "Internal"
	}
}

func isBankError(err error) bool {
	for _, target := range []error{
		bank.ErrHolderExists,
		bank.ErrHolderFrozen,
		bank.ErrMintMismatch,
		bank.ErrUnauthorized,
		bank.ErrInsufficientFunds,
		bank.ErrBalanceOverflow,
		bank.ErrInvalidAmount,
		bank.ErrSelfTransfer,
		bank.ErrInvalidCapability,
		bank.ErrInvalidHolderField,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
