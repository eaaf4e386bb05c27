package evm

import (
	"fmt"
	"strings"
	"testing"
)

const testRS = "1111111111111111111111111111111111111111111111111111111111111111" +
	"2222222222222222222222222222222222222222222222222222222222222222"

func sigWithV(v uint64) string {
	return "0x" + testRS + fmt.Sprintf("%02x", v)
}

func TestNormalizeSignatureV_LegacyIsIdempotent(t *testing.T) {
	for _, v := range []uint64{27, 28} {
		for _, chainID := range []uint64{0, 1, 43113, 84532} {
			sig := sigWithV(v)
			if got := NormalizeSignatureV(sig, chainID); got != sig {
				t.Errorf("v=%d chainID=%d: expected unchanged signature, got %s", v, chainID, got)
			}
		}
	}
}

func TestNormalizeSignatureV(t *testing.T) {
	tests := []struct {
		name    string
		v       uint64
		chainID uint64
		wantV   uint64
	}{
		{name: "parity 0", v: 0, chainID: 43113, wantV: 27},
		{name: "parity 1", v: 1, chainID: 43113, wantV: 28},
		{name: "eip155 mainnet parity 0", v: 37, chainID: 1, wantV: 27},
		{name: "eip155 mainnet parity 1", v: 38, chainID: 1, wantV: 28},
		{name: "eip155 base sepolia parity 0", v: 84532*2 + 35, chainID: 84532, wantV: 27},
		{name: "eip155 base sepolia parity 1", v: 84532*2 + 36, chainID: 84532, wantV: 28},
		{name: "eip155 fuji parity 1", v: 43113*2 + 36, chainID: 43113, wantV: 28},
		{name: "eip155 with mismatched chain id", v: 36, chainID: 43113, wantV: 28},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sig string
			if tt.v > 0xff {
				sig = "0x" + testRS + fmt.Sprintf("%x", tt.v)
			} else {
				sig = sigWithV(tt.v)
			}

			got := NormalizeSignatureV(sig, tt.chainID)
			want := sigWithV(tt.wantV)
			if got != want {
				t.Errorf("expected %s, got %s", want[130:], got[130:])
			}
			if !strings.HasPrefix(got, "0x"+testRS) {
				t.Error("r/s portion was modified")
			}
		})
	}
}

func TestNormalizeSignatureV_PassThrough(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{name: "unknown v", sig: sigWithV(5)},
		{name: "v just below eip155 range", sig: sigWithV(34)},
		{name: "too short", sig: "0x" + testRS[:100]},
		{name: "empty", sig: ""},
		{name: "non-hex v", sig: "0x" + testRS + "zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSignatureV(tt.sig, 43113); got != tt.sig {
				t.Errorf("expected unchanged signature, got %s", got)
			}
		})
	}
}

func TestNormalizeSignatureV_WithoutPrefix(t *testing.T) {
	got := NormalizeSignatureV(testRS+"01", 1)
	if got != testRS+"1c" {
		t.Errorf("expected %s1c, got %s", testRS, got)
	}
}

func TestGenerateNonce_Unique(t *testing.T) {
	const n = 10000
	seen := make(map[string]struct{}, n)

	for i := 0; i < n; i++ {
		nonce, err := GenerateNonce()
		if err != nil {
			t.Fatalf("GenerateNonce failed: %v", err)
		}
		if !strings.HasPrefix(nonce, "0x") {
			t.Fatalf("expected 0x prefix, got %s", nonce)
		}
		digits := strings.TrimPrefix(nonce, "0x")
		if len(digits) != 64 {
			t.Fatalf("expected 64 hex characters, got %d", len(digits))
		}
		if strings.Trim(digits, "0123456789abcdef") != "" {
			t.Fatalf("nonce contains non-hex characters: %s", nonce)
		}
		if _, dup := seen[nonce]; dup {
			t.Fatalf("duplicate nonce after %d draws: %s", i, nonce)
		}
		seen[nonce] = struct{}{}
	}
}
