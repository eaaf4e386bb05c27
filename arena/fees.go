package arena

import (
	"math/big"

	x402 "github.com/aarika/x402-arena"
)

// Upfront charges on competition creation, as fractions of the reward.
var (
	advanceRate     = big.NewRat(1, 10)   // 10%
	platformFeeRate = big.NewRat(1, 1000) // 0.1%
)

// FeeQuote previews what creating a competition costs, in nominal token
// units formatted to five decimals.
type FeeQuote struct {
	Reward      string
	Advance     string // charged on creation
	PlatformFee string // charged on creation
	Total       string // Advance + PlatformFee
	Remaining   string // charged when the winner is selected
}

// QuoteFees computes the creation fee preview for reward.
func QuoteFees(reward float64) FeeQuote {
	r := new(big.Rat)
	if reward > 0 {
		r.SetFloat64(reward)
	}

	advance := new(big.Rat).Mul(r, advanceRate)
	fee := new(big.Rat).Mul(r, platformFeeRate)
	total := new(big.Rat).Add(advance, fee)
	remaining := new(big.Rat).Sub(r, advance)

	return FeeQuote{
		Reward:      r.FloatString(5),
		Advance:     advance.FloatString(5),
		PlatformFee: fee.FloatString(5),
		Total:       total.FloatString(5),
		Remaining:   remaining.FloatString(5),
	}
}

// EscrowAmount returns the amount the challenge asks for, in the asset's
// smallest unit, or "0" when it carries no option.
func EscrowAmount(challenge *x402.PaymentChallenge) string {
	if req := challenge.First(); req != nil && req.MaxAmountRequired != "" {
		return req.MaxAmountRequired
	}
	return "0"
}
