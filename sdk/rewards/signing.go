package rewards

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"rewardvault/crypto"
)

const messageDomain = "rewardvault/v1"

var ErrBadSignature = errors.New("rewards: signature verification failed")

func canonical(operation string, fields ...string) []byte {
	var b strings.Builder
	b.WriteString(messageDomain)
	b.WriteByte('|')
	b.WriteString(operation)
	for i := 0; i+1 < len(fields); i += 2 {
		b.WriteByte('|')
		b.WriteString(fields[i])
		b.WriteByte('=')
		b.WriteString(strings.TrimSpace(fields[i+1]))
	}
	return []byte(b.String())
}

func (r *InitializeRequest) SigningMessage() []byte {
	return canonical("initialize",
		"pool", r.Pool,
		"payer", r.Payer,
		"vault", r.Vault,
		"authority", r.Authority,
		"nonce", r.Nonce,
		"timestamp", strconv.FormatInt(r.Timestamp, 10),
	)
}

func (r *DepositRequest) SigningMessage() []byte {
	return canonical("deposit",
		"pool", r.Pool,
		"user", r.User,
		"source", r.Source,
		"authorizer", r.Authorizer,
		"vault", r.Vault,
		"amount", strconv.FormatUint(r.Amount, 10),
		"nonce", r.Nonce,
		"timestamp", strconv.FormatInt(r.Timestamp, 10),
	)
}

func (r *ClaimRequest) SigningMessage() []byte {
	return canonical("claim",
		"pool", r.Pool,
		"user", r.User,
		"vault", r.Vault,
		"destination", r.Destination,
		"signer", r.Signer,
		"amount", strconv.FormatUint(r.Amount, 10),
		"all", strconv.FormatBool(r.All),
		"nonce", r.Nonce,
		"timestamp", strconv.FormatInt(r.Timestamp, 10),
	)
}

// NewNonce returns a random request nonce.
func NewNonce() string { return uuid.NewString() }

func stamp(nonce *string, ts *int64) {
	if strings.TrimSpace(*nonce) == "" {
		*nonce = NewNonce()
	}
	if *ts == 0 {
		*ts = time.Now().Unix()
	}
}

// SignInitialize stamps the request and signs it with the pool, authority and
// payer keys.
func SignInitialize(req *InitializeRequest, pool, authority, payer *crypto.PrivateKey) error {
	if req == nil || pool == nil || authority == nil || payer == nil {
		return fmt.Errorf("rewards: request, pool, authority and payer keys are required")
	}
	req.Pool = pool.PublicKey().String()
	req.Authority = authority.PublicKey().String()
	req.Payer = payer.PublicKey().String()
	stamp(&req.Nonce, &req.Timestamp)
	msg := req.SigningMessage()
	sig, err := pool.Sign(msg)
	if err != nil {
		return err
	}
	req.PoolSignature = sig.String()
	sig, err = authority.Sign(msg)
	if err != nil {
		return err
	}
	req.AuthoritySignature = sig.String()
	sig, err = payer.Sign(msg)
	if err != nil {
		return err
	}
	req.PayerSignature = sig.String()
	return nil
}

// SignDeposit stamps the request and signs it with the source authorizer.
func SignDeposit(req *DepositRequest, authorizer *crypto.PrivateKey) error {
	if req == nil || authorizer == nil {
		return fmt.Errorf("rewards: request and authorizer key are required")
	}
	req.Authorizer = authorizer.PublicKey().String()
	stamp(&req.Nonce, &req.Timestamp)
	sig, err := authorizer.Sign(req.SigningMessage())
	if err != nil {
		return err
	}
	req.Signature = sig.String()
	return nil
}

// SignClaim stamps the request and signs it with the pool authority.
func SignClaim(req *ClaimRequest, signer *crypto.PrivateKey) error {
	if req == nil || signer == nil {
		return fmt.Errorf("rewards: request and signer key are required")
	}
	req.Signer = signer.PublicKey().String()
	stamp(&req.Nonce, &req.Timestamp)
	sig, err := signer.Sign(req.SigningMessage())
	if err != nil {
		return err
	}
	req.Signature = sig.String()
	return nil
}

// VerifySignature checks a base58 signature by the base58 public key over msg.
func VerifySignature(publicKey string, msg []byte, signature string) error {
	pub, err := crypto.ParsePublicKey(publicKey)
	if err != nil {
		return err
	}
	sig, err := crypto.ParseSignature(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !crypto.Verify(pub, msg, sig) {
		return ErrBadSignature
	}
	return nil
}
