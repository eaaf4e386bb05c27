package evm

import (
	"encoding/json"
	"fmt"
)

// ParseExactPayload converts a generic envelope payload to ExactPayload.
func ParseExactPayload(payload interface{}) (*ExactPayload, error) {
	// Marshal and unmarshal to convert map to struct
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var exact ExactPayload
	if err := json.Unmarshal(payloadBytes, &exact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exact payload: %w", err)
	}

	if exact.Signature == "" {
		return nil, fmt.Errorf("signature is required")
	}

	if exact.Authorization == nil {
		return nil, fmt.Errorf("authorization is required")
	}

	auth := exact.Authorization
	if auth.From == "" || auth.To == "" || auth.Value == "" || auth.Nonce == "" {
		return nil, fmt.Errorf("authorization missing required fields")
	}
	if auth.ValidAfter == "" || auth.ValidBefore == "" {
		return nil, fmt.Errorf("authorization missing validity window")
	}

	return &exact, nil
}
