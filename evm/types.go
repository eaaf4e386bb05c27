package evm

import "time"

// AuthorizationValidity is the fixed window between validAfter and
// validBefore of every authorization the client signs (48 hours).
const AuthorizationValidity = 172800 * time.Second

// Default EIP-712 domain of the payment token, used when a challenge does
// not carry extra.name / extra.version.
const (
	DefaultTokenName    = "USD Coin"
	DefaultTokenVersion = "2"
)

// ExactPayload is the "exact" scheme payload carried in a proof envelope.
// Following the EIP-3009 transferWithAuthorization specification.
type ExactPayload struct {
	Signature     string         `json:"signature"`
	Authorization *Authorization `json:"authorization"`
}

// Authorization contains the EIP-3009 authorization parameters. All values
// travel as plain strings.
type Authorization struct {
	From        string `json:"from"`        // payer address
	To          string `json:"to"`          // payee address
	Value       string `json:"value"`       // amount in the token's smallest unit
	ValidAfter  string `json:"validAfter"`  // unix seconds
	ValidBefore string `json:"validBefore"` // unix seconds
	Nonce       string `json:"nonce"`       // 0x-prefixed bytes32
}

// Domain is the EIP-712 signing domain of the payment token.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract string
}

// DomainDefaults are used only for the parts of a challenge that are
// missing or malformed.
type DomainDefaults struct {
	ChainID      uint64
	Asset        string
	TokenName    string
	TokenVersion string
}
