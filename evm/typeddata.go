package evm

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	x402 "github.com/aarika/x402-arena"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// PrimaryTypeTransferWithAuthorization is the EIP-3009 struct name.
const PrimaryTypeTransferWithAuthorization = "TransferWithAuthorization"

var transferWithAuthorizationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryTypeTransferWithAuthorization: {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

// NewAuthorization builds an authorization paying req from the given
// address. The value is copied verbatim from maxAmountRequired and a fresh
// nonce is drawn on every call.
func NewAuthorization(from string, req *x402.PaymentRequirement, now time.Time) (*Authorization, error) {
	if req == nil {
		return nil, fmt.Errorf("payment requirement is required")
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}

	validAfter := now.Unix()
	validBefore := validAfter + int64(AuthorizationValidity/time.Second)

	return &Authorization{
		From:        from,
		To:          req.PayTo,
		Value:       req.MaxAmountRequired,
		ValidAfter:  strconv.FormatInt(validAfter, 10),
		ValidBefore: strconv.FormatInt(validBefore, 10),
		Nonce:       nonce,
	}, nil
}

// DomainFor derives the signing domain from the challenge option. Chain id
// and verifying contract come from the option's network and asset; the
// defaults apply only when those are absent or malformed.
func DomainFor(req *x402.PaymentRequirement, defaults DomainDefaults) Domain {
	domain := Domain{
		Name:              defaults.TokenName,
		Version:           defaults.TokenVersion,
		ChainID:           defaults.ChainID,
		VerifyingContract: defaults.Asset,
	}
	if domain.Name == "" {
		domain.Name = DefaultTokenName
	}
	if domain.Version == "" {
		domain.Version = DefaultTokenVersion
	}

	if req == nil {
		return domain
	}

	if chainID, err := x402.ChainID(req.Network); err == nil {
		domain.ChainID = chainID
	} else if req.Network != "" {
		log.Debugf("Using default chain id %d: %v", defaults.ChainID, err)
	}
	if req.Asset != "" {
		domain.VerifyingContract = req.Asset
	}
	if req.Extra != nil {
		if req.Extra.Name != "" {
			domain.Name = req.Extra.Name
		}
		if req.Extra.Version != "" {
			domain.Version = req.Extra.Version
		}
	}

	return domain
}

// TransferWithAuthorization builds the EIP-712 document a wallet signs.
func TransferWithAuthorization(domain Domain, auth *Authorization) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       transferWithAuthorizationTypes,
		PrimaryType: PrimaryTypeTransferWithAuthorization,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).SetUint64(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

// HashTypedData returns the EIP-712 digest of a typed-data document.
func HashTypedData(typedData apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return hash, nil
}

// RecoverTypedDataSigner returns the address that produced signature over
// typedData. Any of the legacy, parity or EIP-155 v encodings is accepted.
func RecoverTypedDataSigner(typedData apitypes.TypedData, signature string) (common.Address, error) {
	hash, err := HashTypedData(typedData)
	if err != nil {
		return common.Address{}, err
	}

	chainID := uint64(0)
	if typedData.Domain.ChainId != nil {
		chainID = (*big.Int)(typedData.Domain.ChainId).Uint64()
	}

	sig, err := hexutil.Decode(NormalizeSignatureV(signature, chainID))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
