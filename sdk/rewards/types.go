package rewards

// InitializeRequest creates a pool. The pool key, the authority and the payer
// all sign the request; the pool signature proves the caller owns the pool
// identifier.
type InitializeRequest struct {
	Pool               string `json:"pool"`
	Payer              string `json:"payer"`
	Vault              string `json:"vault"`
	Authority          string `json:"authority"`
	Nonce              string `json:"nonce"`
	Timestamp          int64  `json:"timestamp"`
	PoolSignature      string `json:"poolSignature"`
	AuthoritySignature string `json:"authoritySignature"`
	PayerSignature     string `json:"payerSignature"`
}

// DepositRequest credits User and is signed by the source Authorizer.
type DepositRequest struct {
	Pool       string `json:"pool"`
	User       string `json:"user"`
	Source     string `json:"source"`
	Authorizer string `json:"authorizer"`
	Vault      string `json:"vault"`
	Amount     uint64 `json:"amount,string"`
	Nonce      string `json:"nonce"`
	Timestamp  int64  `json:"timestamp"`
	Signature  string `json:"signature"`
}

// ClaimRequest releases funds for User and is signed by the pool authority.
// With All set the full balance is claimed and Amount must be zero.
type ClaimRequest struct {
	Pool        string `json:"pool"`
	User        string `json:"user"`
	Vault       string `json:"vault"`
	Destination string `json:"destination"`
	Signer      string `json:"signer"`
	Amount      uint64 `json:"amount,string"`
	All         bool   `json:"all,omitempty"`
	Nonce       string `json:"nonce"`
	Timestamp   int64  `json:"timestamp"`
	Signature   string `json:"signature"`
}

type OpenHolderRequest struct {
	Address    string `json:"address"`
	Mint       string `json:"mint"`
	Controller string `json:"controller"`
}

type MintRequest struct {
	Amount uint64 `json:"amount,string"`
}

type FreezeRequest struct {
	Frozen bool `json:"frozen"`
}

type PoolResponse struct {
	Address        string `json:"address"`
	Vault          string `json:"vault"`
	Authority      string `json:"authority"`
	FundedBy       string `json:"fundedBy"`
	VaultAuthority string `json:"vaultAuthority"`
	SignerBump     uint8  `json:"signerBump"`
	VaultHeld      uint64 `json:"vaultHeld,string"`
}

type EntryResponse struct {
	Pool   string `json:"pool"`
	User   string `json:"user"`
	Amount uint64 `json:"amount,string"`
}

// ClaimResponse reports the entry after a claim and the amount released.
type ClaimResponse struct {
	EntryResponse
	Claimed uint64 `json:"claimed,string"`
}

type HolderResponse struct {
	Address    string `json:"address"`
	Mint       string `json:"mint"`
	Controller string `json:"controller"`
	Balance    uint64 `json:"balance,string"`
	Frozen     bool   `json:"frozen"`
}

type AuditResponse struct {
	Pool       string `json:"pool"`
	Vault      string `json:"vault"`
	VaultHeld  uint64 `json:"vaultHeld,string"`
	EntryTotal string `json:"entryTotal"`
	Entries    int    `json:"entries"`
	NonZero    int    `json:"nonZero"`
	Consistent bool   `json:"consistent"`
}

type DeriveResponse struct {
	Pool      string `json:"pool"`
	Program   string `json:"program"`
	Authority string `json:"authority"`
	Bump      uint8  `json:"bump"`
}

type StatusResponse struct {
	Paused   []string `json:"paused"`
	Pools    int      `json:"pools"`
	MinClaim uint64   `json:"minClaim,string"`
	Program  string   `json:"program"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
