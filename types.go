package x402

// SchemeExact is the only payment scheme the arena backend issues.
const SchemeExact = "exact"

// DefaultProtocolVersion is used when a challenge omits x402Version.
const DefaultProtocolVersion = 1

// PaymentRequirement describes one acceptable way to pay for a gated action.
// Amounts are decimal strings in the asset's smallest unit.
type PaymentRequirement struct {
	Scheme            string           `json:"scheme"`
	Network           string           `json:"network"`           // CAIP-2: "eip155:43113"
	MaxAmountRequired string           `json:"maxAmountRequired"` // atomic units, e.g. "10100"
	Resource          string           `json:"resource,omitempty"`
	Description       string           `json:"description,omitempty"`
	MimeType          string           `json:"mimeType,omitempty"`
	PayTo             string           `json:"payTo"`
	MaxTimeoutSeconds int              `json:"maxTimeoutSeconds,omitempty"`
	Asset             string           `json:"asset"` // token contract address
	Extra             *RequirementInfo `json:"extra,omitempty"`
}

// RequirementInfo carries the token's EIP-712 domain name and version.
type RequirementInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// PaymentChallenge is the 402 response body of a gated action.
type PaymentChallenge struct {
	X402Version int                  `json:"x402Version"`
	Accepts     []PaymentRequirement `json:"accepts"`
	Error       string               `json:"error,omitempty"`
}

// First returns the option the client pays with. The client never
// negotiates among options.
func (c *PaymentChallenge) First() *PaymentRequirement {
	if c == nil || len(c.Accepts) == 0 {
		return nil
	}
	return &c.Accepts[0]
}

// ProtocolVersion returns the challenge's protocol version, defaulting to 1.
func (c *PaymentChallenge) ProtocolVersion() int {
	if c == nil || c.X402Version == 0 {
		return DefaultProtocolVersion
	}
	return c.X402Version
}

// PaymentProofEnvelope is resubmitted in the X-PAYMENT header.
type PaymentProofEnvelope struct {
	X402Version int         `json:"x402Version"`
	Scheme      string      `json:"scheme"`
	Network     string      `json:"network"`
	Payload     interface{} `json:"payload"` // scheme-specific (e.g., evm.ExactPayload)
}

// APIError is the error body returned by the backend for non-200, non-402
// statuses. Some handlers use "error", others "detail".
type APIError struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Message returns the most specific message available, or "".
func (e *APIError) Message() string {
	if e == nil {
		return ""
	}
	if e.Error != "" {
		return e.Error
	}
	return e.Detail
}
