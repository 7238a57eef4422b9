package rewardsd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rewardvault/crypto"
	sdk "rewardvault/sdk/rewards"
	"rewardvault/services/rewardsd/middleware"
	"rewardvault/storage"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type serverFixture struct {
	client    *sdk.Client
	admin     *sdk.Client
	poolKey   *crypto.PrivateKey
	authority *crypto.PrivateKey
	funder    *crypto.PrivateKey
	user      *crypto.PrivateKey
	pool      string
	vault     string
	source    string
	dest      string
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	ctx := context.Background()
	ledger := NewLedger(storage.NewMemDB())
	srv := NewServer(ledger, ServerOptions{
		Auth: middleware.AuthConfig{HMACSecret: testSecret, Issuer: "rewardvault", Audience: "rewardsd"},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := middleware.IssueToken(testSecret, "ops", "rewardvault", "rewardsd", []string{middleware.ScopeOperator}, time.Minute)
	require.NoError(t, err)

	poolKey := mustKey(t)
	f := &serverFixture{
		client:    sdk.NewClient(ts.URL),
		admin:     sdk.NewClient(ts.URL, sdk.WithToken(token)),
		poolKey:   poolKey,
		authority: mustKey(t),
		funder:    mustKey(t),
		user:      mustKey(t),
		pool:      poolKey.PublicKey().String(),
		vault:     mustKey(t).PublicKey().String(),
		source:    mustKey(t).PublicKey().String(),
		dest:      mustKey(t).PublicKey().String(),
	}
	mint := mustKey(t).PublicKey().String()

	derived, err := f.client.Derive(ctx, f.pool)
	require.NoError(t, err)
	_, err = f.admin.OpenHolder(ctx, sdk.OpenHolderRequest{Address: f.vault, Mint: mint, Controller: derived.Authority})
	require.NoError(t, err)
	_, err = f.admin.OpenHolder(ctx, sdk.OpenHolderRequest{Address: f.source, Mint: mint, Controller: f.funder.PublicKey().String()})
	require.NoError(t, err)
	_, err = f.admin.Mint(ctx, f.source, 1_000)
	require.NoError(t, err)
	_, err = f.admin.OpenHolder(ctx, sdk.OpenHolderRequest{Address: f.dest, Mint: mint, Controller: f.user.PublicKey().String()})
	require.NoError(t, err)

	req := sdk.InitializeRequest{Vault: f.vault}
	require.NoError(t, sdk.SignInitialize(&req, f.poolKey, f.authority, f.funder))
	pool, err := f.client.Initialize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, derived.Authority, pool.VaultAuthority)
	require.Equal(t, derived.Bump, pool.SignerBump)
	return f
}

func (f *serverFixture) signedDeposit(t *testing.T, amount uint64) sdk.DepositRequest {
	t.Helper()
	req := sdk.DepositRequest{
		Pool:   f.pool,
		User:   f.user.PublicKey().String(),
		Source: f.source,
		Vault:  f.vault,
		Amount: amount,
	}
	require.NoError(t, sdk.SignDeposit(&req, f.funder))
	return req
}

func (f *serverFixture) signedClaim(t *testing.T, amount uint64, signer *crypto.PrivateKey) sdk.ClaimRequest {
	t.Helper()
	req := sdk.ClaimRequest{
		Pool:        f.pool,
		User:        f.user.PublicKey().String(),
		Vault:       f.vault,
		Destination: f.dest,
		Amount:      amount,
	}
	require.NoError(t, sdk.SignClaim(&req, signer))
	return req
}

func requireAPIError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *sdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected API error, got %v", err)
	require.Equal(t, status, apiErr.Status)
	require.Equal(t, code, apiErr.Code)
}

func TestServerDepositAndClaim(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)

	entry, err := f.client.Deposit(ctx, f.signedDeposit(t, 500))
	require.NoError(t, err)
	require.Equal(t, uint64(500), entry.Amount)

	claim, err := f.client.Claim(ctx, f.signedClaim(t, 200, f.authority))
	require.NoError(t, err)
	require.Equal(t, uint64(300), claim.Amount)
	require.Equal(t, uint64(200), claim.Claimed)

	pool, err := f.client.Pool(ctx, f.pool)
	require.NoError(t, err)
	require.Equal(t, uint64(300), pool.VaultHeld)

	holder, err := f.client.Holder(ctx, f.dest)
	require.NoError(t, err)
	require.Equal(t, uint64(200), holder.Balance)

	audit, err := f.client.Audit(ctx, f.pool)
	require.NoError(t, err)
	require.True(t, audit.Consistent)
	require.Equal(t, "300", audit.EntryTotal)

	got, err := f.client.Entry(ctx, f.pool, f.user.PublicKey().String())
	require.NoError(t, err)
	require.Equal(t, uint64(300), got.Amount)
}

func TestServerClaimAll(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	_, err := f.client.Deposit(ctx, f.signedDeposit(t, 75))
	require.NoError(t, err)

	req := sdk.ClaimRequest{
		Pool:        f.pool,
		User:        f.user.PublicKey().String(),
		Vault:       f.vault,
		Destination: f.dest,
		All:         true,
	}
	require.NoError(t, sdk.SignClaim(&req, f.authority))
	claim, err := f.client.Claim(ctx, req)
	require.NoError(t, err)
	require.Equal(t, uint64(75), claim.Claimed)
	require.Zero(t, claim.Amount)
}

func TestServerRejectsUnauthorizedClaim(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	_, err := f.client.Deposit(ctx, f.signedDeposit(t, 100))
	require.NoError(t, err)

	_, err = f.client.Claim(ctx, f.signedClaim(t, 10, f.user))
	requireAPIError(t, err, http.StatusForbidden, "Unauthorized")

	_, err = f.client.Claim(ctx, f.signedClaim(t, 101, f.authority))
	requireAPIError(t, err, http.StatusConflict, "InsufficientRewards")

	entry, err := f.client.Entry(ctx, f.pool, f.user.PublicKey().String())
	require.NoError(t, err)
	require.Equal(t, uint64(100), entry.Amount)
}

func TestServerRejectsTamperedAndReplayedRequests(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)

	tampered := f.signedDeposit(t, 10)
	tampered.Amount = 10_000
	_, err := f.client.Deposit(ctx, tampered)
	requireAPIError(t, err, http.StatusUnauthorized, "BadSignature")

	req := f.signedDeposit(t, 10)
	_, err = f.client.Deposit(ctx, req)
	require.NoError(t, err)
	_, err = f.client.Deposit(ctx, req)
	requireAPIError(t, err, http.StatusConflict, "Replay")

	stale := sdk.DepositRequest{
		Pool:      f.pool,
		User:      f.user.PublicKey().String(),
		Source:    f.source,
		Vault:     f.vault,
		Amount:    10,
		Timestamp: time.Now().Add(-time.Hour).Unix(),
	}
	require.NoError(t, sdk.SignDeposit(&stale, f.funder))
	_, err = f.client.Deposit(ctx, stale)
	requireAPIError(t, err, http.StatusUnauthorized, "StaleRequest")

	entry, err := f.client.Entry(ctx, f.pool, f.user.PublicKey().String())
	require.NoError(t, err)
	require.Equal(t, uint64(10), entry.Amount)
}

func TestServerInitializeTwiceConflicts(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)

	req := sdk.InitializeRequest{Vault: f.vault}
	require.NoError(t, sdk.SignInitialize(&req, f.poolKey, f.authority, f.funder))
	_, err := f.client.Initialize(ctx, req)
	requireAPIError(t, err, http.StatusConflict, "AlreadyInitialized")
}

func TestServerInitializeRequiresPoolSignature(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)

	poolKey := mustKey(t)
	pool := poolKey.PublicKey().String()
	derived, err := f.client.Derive(ctx, pool)
	require.NoError(t, err)
	vault := mustKey(t).PublicKey().String()
	holder, err := f.client.Holder(ctx, f.vault)
	require.NoError(t, err)
	_, err = f.admin.OpenHolder(ctx, sdk.OpenHolderRequest{Address: vault, Mint: holder.Mint, Controller: derived.Authority})
	require.NoError(t, err)

	squatter := mustKey(t)
	req := sdk.InitializeRequest{Vault: vault}
	require.NoError(t, sdk.SignInitialize(&req, squatter, squatter, squatter))
	req.Pool = pool
	_, err = f.client.Initialize(ctx, req)
	requireAPIError(t, err, http.StatusUnauthorized, "BadSignature")

	req.PoolSignature = ""
	_, err = f.client.Initialize(ctx, req)
	requireAPIError(t, err, http.StatusUnauthorized, "BadSignature")

	_, err = f.client.Pool(ctx, pool)
	requireAPIError(t, err, http.StatusNotFound, "NotFound")

	req = sdk.InitializeRequest{Vault: vault}
	require.NoError(t, sdk.SignInitialize(&req, poolKey, f.authority, f.funder))
	created, err := f.client.Initialize(ctx, req)
	require.NoError(t, err)
	require.Equal(t, pool, created.Address)
	require.Equal(t, f.authority.PublicKey().String(), created.Authority)
}

func TestServerMintIntoPoolVaultRejected(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)
	_, err := f.client.Deposit(ctx, f.signedDeposit(t, 100))
	require.NoError(t, err)

	_, err = f.admin.Mint(ctx, f.vault, 50)
	requireAPIError(t, err, http.StatusBadRequest, "InvalidVault")

	report, err := f.client.Audit(ctx, f.pool)
	require.NoError(t, err)
	require.True(t, report.Consistent)
}

func TestServerAdminRoutes(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)

	_, err := f.client.Status(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))

	require.NoError(t, f.admin.Pause(ctx))
	status, err := f.admin.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{ModuleBank, ModuleRewards}, status.Paused)
	require.Equal(t, 1, status.Pools)

	_, err = f.client.Deposit(ctx, f.signedDeposit(t, 10))
	requireAPIError(t, err, http.StatusServiceUnavailable, "Paused")

	require.NoError(t, f.admin.Resume(ctx))
	_, err = f.client.Deposit(ctx, f.signedDeposit(t, 10))
	require.NoError(t, err)

	holder, err := f.admin.Freeze(ctx, f.source, true)
	require.NoError(t, err)
	require.True(t, holder.Frozen)
	_, err = f.client.Deposit(ctx, f.signedDeposit(t, 10))
	requireAPIError(t, err, http.StatusUnprocessableEntity, "TransferRejected")
}

func TestServerRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	f := newServerFixture(t)

	_, err := f.client.Entry(ctx, f.pool, "not-a-key")
	requireAPIError(t, err, http.StatusBadRequest, "InvalidArgument")

	_, err = f.client.Pool(ctx, mustKey(t).PublicKey().String())
	requireAPIError(t, err, http.StatusNotFound, "NotFound")

	_, err = f.client.Holder(ctx, mustKey(t).PublicKey().String())
	requireAPIError(t, err, http.StatusNotFound, "NotFound")
}

func TestStatusForMapping(t *testing.T) {
	status, code := statusFor(ErrStaleRequest)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "StaleRequest", code)

	status, code = statusFor(errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "Internal", code)
}
