package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedDataSigner produces EIP-712 signatures. The returned signature is
// 0x-prefixed hex; its v byte may use any encoding.
type TypedDataSigner interface {
	SignTypedData(ctx context.Context, typedData apitypes.TypedData) (string, error)
}

// MessageSigner produces EIP-191 personal_sign signatures.
type MessageSigner interface {
	SignMessage(ctx context.Context, message []byte) (string, error)
}

// Wallet is the external account capability. Signing operations are
// optional; callers must check availability before use.
type Wallet interface {
	// Address returns the connected account, or "" when disconnected.
	Address() string

	// TypedDataSigner returns the typed-data capability if supported.
	TypedDataSigner() (TypedDataSigner, bool)

	// MessageSigner returns the message-signing capability if supported.
	MessageSigner() (MessageSigner, bool)
}

// WatchWallet is a connected account without signing capabilities.
type WatchWallet string

func (w WatchWallet) Address() string                          { return string(w) }
func (w WatchWallet) TypedDataSigner() (TypedDataSigner, bool) { return nil, false }
func (w WatchWallet) MessageSigner() (MessageSigner, bool)     { return nil, false }

// KeyWallet signs with an in-process secp256k1 key.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyWallet loads a hex private key, with or without 0x prefix.
func NewKeyWallet(hexKey string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewKeyWalletFromKey(key), nil
}

// NewKeyWalletFromKey wraps an existing private key.
func NewKeyWalletFromKey(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (w *KeyWallet) Address() string {
	return w.address.Hex()
}

func (w *KeyWallet) TypedDataSigner() (TypedDataSigner, bool) {
	return w, true
}

func (w *KeyWallet) MessageSigner() (MessageSigner, bool) {
	return w, true
}

// SignTypedData signs the EIP-712 digest. The v byte is in parity form.
func (w *KeyWallet) SignTypedData(_ context.Context, typedData apitypes.TypedData) (string, error) {
	hash, err := HashTypedData(typedData)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(hash, w.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign typed data: %w", err)
	}
	return hexutil.Encode(sig), nil
}

// SignMessage signs the EIP-191 text hash of message. The v byte is 27/28,
// as personal_sign wallets return it.
func (w *KeyWallet) SignMessage(_ context.Context, message []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), w.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// RecoverMessageSigner returns the address that personal_signed message.
func RecoverMessageSigner(message []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
