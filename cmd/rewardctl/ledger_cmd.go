package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	sdk "rewardvault/sdk/rewards"
)

type userFlags struct {
	user string
	ref  string
}

func (u *userFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&u.user, "user", "", "user reference (base58)")
	fs.StringVar(&u.ref, "user-ref", "", "external identity hashed into the user reference")
}

func (u *userFlags) resolve() (string, error) {
	key, err := resolveUser(u.user, u.ref)
	if err != nil {
		return "", err
	}
	return key.String(), nil
}

// poolVault looks up the vault of pool when the caller did not pass one.
func poolVault(pool, vault string) (string, error) {
	if v := strings.TrimSpace(vault); v != "" {
		return v, nil
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient().Pool(ctx, pool)
	if err != nil {
		return "", err
	}
	return resp.Vault, nil
}

func runDepositCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var users userFlags
	var pool, source, vault, key string
	var amount uint64
	users.register(fs)
	fs.StringVar(&pool, "pool", "", "pool address")
	fs.StringVar(&source, "source", "", "holder the rewards are funded from")
	fs.StringVar(&vault, "vault", "", "pool vault (looked up when omitted)")
	fs.StringVar(&key, "key", "", "key file of the source controller")
	fs.Uint64Var(&amount, "amount", 0, "amount to credit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := sdk.DepositRequest{Amount: amount}
	var err error
	if req.Pool, err = requireFlag("pool", pool); err != nil {
		return fail(stderr, err)
	}
	if req.User, err = users.resolve(); err != nil {
		return fail(stderr, err)
	}
	if req.Source, err = requireFlag("source", source); err != nil {
		return fail(stderr, err)
	}
	if amount == 0 {
		fmt.Fprintln(stderr, "Error: --amount must be positive")
		return 1
	}
	authorizer, err := loadKey(key)
	if err != nil {
		return fail(stderr, fmt.Errorf("--key: %w", err))
	}
	if req.Vault, err = poolVault(req.Pool, vault); err != nil {
		return fail(stderr, err)
	}
	if err := sdk.SignDeposit(&req, authorizer); err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient().Deposit(ctx, req)
	if err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, resp)
	return 0
}

func runClaimCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var users userFlags
	var pool, destination, vault, key string
	var amount uint64
	var all bool
	users.register(fs)
	fs.StringVar(&pool, "pool", "", "pool address")
	fs.StringVar(&destination, "destination", "", "holder receiving the rewards")
	fs.StringVar(&vault, "vault", "", "pool vault (looked up when omitted)")
	fs.StringVar(&key, "key", "", "key file of the pool authority")
	fs.Uint64Var(&amount, "amount", 0, "amount to release")
	fs.BoolVar(&all, "all", false, "release the full balance")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := sdk.ClaimRequest{Amount: amount, All: all}
	var err error
	if req.Pool, err = requireFlag("pool", pool); err != nil {
		return fail(stderr, err)
	}
	if req.User, err = users.resolve(); err != nil {
		return fail(stderr, err)
	}
	if req.Destination, err = requireFlag("destination", destination); err != nil {
		return fail(stderr, err)
	}
	switch {
	case all && amount != 0:
		fmt.Fprintln(stderr, "Error: --amount and --all are mutually exclusive")
		return 1
	case !all && amount == 0:
		fmt.Fprintln(stderr, "Error: --amount must be positive")
		return 1
	}
	signer, err := loadKey(key)
	if err != nil {
		return fail(stderr, fmt.Errorf("--key: %w", err))
	}
	if req.Vault, err = poolVault(req.Pool, vault); err != nil {
		return fail(stderr, err)
	}
	if err := sdk.SignClaim(&req, signer); err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient().Claim(ctx, req)
	if err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, resp)
	return 0
}

func runEntryCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("entry", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var users userFlags
	var pool string
	users.register(fs)
	fs.StringVar(&pool, "pool", "", "pool address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireFlag("pool", pool)
	if err != nil {
		return fail(stderr, err)
	}
	user, err := users.resolve()
	if err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient().Entry(ctx, addr, user)
	if err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, resp)
	return 0
}

func runHolderCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("holder", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var addr string
	fs.StringVar(&addr, "addr", "", "holder address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	trimmed, err := requireFlag("addr", addr)
	if err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient().Holder(ctx, trimmed)
	if err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, resp)
	return 0
}
