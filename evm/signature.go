package evm

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// rsHexLen is the number of hex digits of r||s in a 65-byte signature.
const rsHexLen = 128

// NormalizeSignatureV rewrites the recovery byte of a hex signature to the
// legacy 27/28 form expected by EIP-3009 contracts. Wallets emit 27/28,
// parity (0/1) or EIP-155 (chainId*2+35+parity) encodings. The r and s
// portion is never touched. Unrecognized input is returned unchanged with a
// warning.
func NormalizeSignatureV(signature string, chainID uint64) string {
	prefix, body := "", signature
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		prefix, body = body[:2], body[2:]
	}

	if len(body) < rsHexLen+2 {
		log.Warnf("Signature has %d hex digits, expected at least %d; leaving it unchanged",
			len(body), rsHexLen+2)
		return signature
	}

	rs, vHex := body[:rsHexLen], body[rsHexLen:]
	v, err := strconv.ParseUint(vHex, 16, 64)
	if err != nil {
		log.Warnf("Unparsable signature v value %q; leaving signature unchanged", vHex)
		return signature
	}

	var normalized uint64
	switch {
	case v == 27 || v == 28:
		return signature
	case v == 0 || v == 1:
		normalized = v + 27
	case v >= 35:
		// uint64 wraparound is modulo 2^64, so the parity is exact even when
		// 2*chainID exceeds v-35.
		normalized = (v-35-2*chainID)%2 + 27
	default:
		log.Warnf("Unexpected signature v value %d; leaving signature unchanged", v)
		return signature
	}

	return prefix + rs + fmt.Sprintf("%02x", normalized)
}

// GenerateNonce returns 32 random bytes as a 0x-prefixed hex string.
func GenerateNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to read random nonce: %w", err)
	}
	return hexutil.Encode(nonce[:]), nil
}
