package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"rewardvault/crypto"
	"rewardvault/native/rewards"
	sdk "rewardvault/sdk/rewards"
)

func runDeriveCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var pool, program string
	fs.StringVar(&pool, "pool", "", "pool address")
	fs.StringVar(&program, "program", "", "program id (defaults to the built-in program)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	poolKey, err := crypto.ParsePublicKey(pool)
	if err != nil {
		return fail(stderr, fmt.Errorf("--pool: %w", err))
	}
	programKey := rewards.DefaultProgramID
	if strings.TrimSpace(program) != "" {
		if programKey, err = crypto.ParsePublicKey(program); err != nil {
			return fail(stderr, fmt.Errorf("--program: %w", err))
		}
	}
	authority, bump, err := rewards.DeriveAuthority(programKey, poolKey)
	if err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, sdk.DeriveResponse{
		Pool:      poolKey.String(),
		Program:   programKey.String(),
		Authority: authority.String(),
		Bump:      bump,
	})
	return 0
}

func runInitCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var poolKey, vault, authorityKey, payerKey string
	fs.StringVar(&poolKey, "pool-key", "", "key file of the pool; its public key is the pool address")
	fs.StringVar(&vault, "vault", "", "vault holder controlled by the derived pool authority")
	fs.StringVar(&authorityKey, "authority-key", "", "key file of the pool authority")
	fs.StringVar(&payerKey, "payer-key", "", "key file of the payer")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := sdk.InitializeRequest{}
	var err error
	if req.Vault, err = requireFlag("vault", vault); err != nil {
		return fail(stderr, err)
	}
	pool, err := loadKey(poolKey)
	if err != nil {
		return fail(stderr, fmt.Errorf("--pool-key: %w", err))
	}
	authority, err := loadKey(authorityKey)
	if err != nil {
		return fail(stderr, fmt.Errorf("--authority-key: %w", err))
	}
	payer, err := loadKey(payerKey)
	if err != nil {
		return fail(stderr, fmt.Errorf("--payer-key: %w", err))
	}
	if err := sdk.SignInitialize(&req, pool, authority, payer); err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient().Initialize(ctx, req)
	if err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, resp)
	return 0
}

func runPoolCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var pool string
	fs.StringVar(&pool, "pool", "", "pool address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireFlag("pool", pool)
	if err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient().Pool(ctx, addr)
	if err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, resp)
	return 0
}

func runAuditCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var pool string
	fs.StringVar(&pool, "pool", "", "pool address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	addr, err := requireFlag("pool", pool)
	if err != nil {
		return fail(stderr, err)
	}
	ctx, cancel := requestContext()
	defer cancel()
	resp, err := newClient().Audit(ctx, addr)
	if err != nil {
		return fail(stderr, err)
	}
	writeResult(stdout, resp)
	if !resp.Consistent {
		fmt.Fprintln(stderr, "Error: vault custody does not match the ledger entries")
		return 3
	}
	return 0
}
