package rewards

import (
	"errors"
	"strings"
	"testing"

	"rewardvault/crypto"
)

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestSignClaimRoundTrip(t *testing.T) {
	signer := mustKey(t)
	req := &ClaimRequest{Pool: "pool", User: "user", Vault: "vault", Destination: "dest", Amount: 60}
	if err := SignClaim(req, signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if req.Nonce == "" || req.Timestamp == 0 {
		t.Fatalf("request not stamped: %+v", req)
	}
	if err := VerifySignature(req.Signer, req.SigningMessage(), req.Signature); err != nil {
		t.Fatalf("verify: %v", err)
	}

	req.Amount = 61
	if err := VerifySignature(req.Signer, req.SigningMessage(), req.Signature); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected tampered amount to fail verification, got %v", err)
	}
}

func TestSignInitializeCoversAllKeys(t *testing.T) {
	pool, authority, payer := mustKey(t), mustKey(t), mustKey(t)
	req := &InitializeRequest{Vault: "vault"}
	if err := SignInitialize(req, pool, authority, payer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if req.Pool != pool.PublicKey().String() {
		t.Fatalf("pool not taken from the pool key: %s", req.Pool)
	}
	msg := req.SigningMessage()
	if err := VerifySignature(req.Pool, msg, req.PoolSignature); err != nil {
		t.Fatalf("pool signature: %v", err)
	}
	if err := VerifySignature(req.Authority, msg, req.AuthoritySignature); err != nil {
		t.Fatalf("authority signature: %v", err)
	}
	if err := VerifySignature(req.Payer, msg, req.PayerSignature); err != nil {
		t.Fatalf("payer signature: %v", err)
	}
	if err := VerifySignature(req.Payer, msg, req.AuthoritySignature); err == nil {
		t.Fatalf("signatures must not be interchangeable")
	}
}

func TestSigningMessagesAreDomainSeparated(t *testing.T) {
	deposit := (&DepositRequest{Pool: "p", User: "u", Amount: 1, Nonce: "n", Timestamp: 1}).SigningMessage()
	claim := (&ClaimRequest{Pool: "p", User: "u", Amount: 1, Nonce: "n", Timestamp: 1}).SigningMessage()
	if string(deposit) == string(claim) {
		t.Fatalf("deposit and claim messages collide")
	}
	if !strings.HasPrefix(string(deposit), "rewardvault/v1|deposit|") {
		t.Fatalf("unexpected message %q", deposit)
	}
}
