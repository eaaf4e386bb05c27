package x402

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Header names.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
	HeaderPaymentRequired = "PAYMENT-REQUIRED"
)

// marshalCompact encodes v as JSON without HTML escaping or a trailing
// newline, matching what browser JSON.stringify produces for the same values.
func marshalCompact(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// EncodeProof encodes an envelope to X-PAYMENT header format (base64 JSON).
func EncodeProof(envelope *PaymentProofEnvelope) (string, error) {
	envelopeJSON, err := marshalCompact(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(envelopeJSON), nil
}

// DecodeProof decodes and validates an X-PAYMENT header value.
func DecodeProof(header string) (*PaymentProofEnvelope, error) {
	payloadBytes, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var envelope PaymentProofEnvelope
	if err := json.Unmarshal(payloadBytes, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if envelope.X402Version == 0 {
		return nil, fmt.Errorf("x402Version is required")
	}
	if envelope.Scheme == "" {
		return nil, fmt.Errorf("scheme is required")
	}
	if envelope.Network == "" {
		return nil, fmt.Errorf("network is required")
	}
	if envelope.Payload == nil {
		return nil, fmt.Errorf("payload is required")
	}

	return &envelope, nil
}

// EncodeChallenge encodes a challenge to base64 JSON.
func EncodeChallenge(challenge *PaymentChallenge) (string, error) {
	challengeJSON, err := marshalCompact(challenge)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment challenge: %w", err)
	}
	return base64.StdEncoding.EncodeToString(challengeJSON), nil
}

// DecodeChallenge decodes a base64 JSON challenge.
func DecodeChallenge(encoded string) (*PaymentChallenge, error) {
	challengeJSON, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var challenge PaymentChallenge
	if err := json.Unmarshal(challengeJSON, &challenge); err != nil {
		return nil, fmt.Errorf("failed to parse payment challenge: %w", err)
	}
	return &challenge, nil
}

// ReadChallenge extracts the challenge from a 402 response. The body is
// authoritative; the PAYMENT-REQUIRED header is used when the body is
// unparsable or carries no accepted requirements.
func ReadChallenge(resp *http.Response) (*PaymentChallenge, error) {
	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, fmt.Errorf("expected status 402, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return parseChallenge(body, resp.Header)
}
