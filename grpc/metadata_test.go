package grpc

import (
	"context"
	"errors"
	"testing"

	x402 "github.com/aarika/x402-arena"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func testChallenge() *x402.PaymentChallenge {
	return &x402.PaymentChallenge{
		X402Version: 1,
		Accepts: []x402.PaymentRequirement{{
			Scheme:            "exact",
			Network:           "eip155:43113",
			MaxAmountRequired: "10100",
			Resource:          "/arena.v1.Arena/CreateCompetition",
			PayTo:             "0x1111111111111111111111111111111111111111",
			Asset:             "0x5425890298aed601595a70AB815c96711a31Bc65",
		}},
		Error: "payment required",
	}
}

func TestPaymentRequired_RoundTrip(t *testing.T) {
	err := PaymentRequired(testChallenge())
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", status.Code(err))
	}

	challenge, ok := ChallengeFromError(err, nil)
	if !ok {
		t.Fatal("expected challenge in status message")
	}
	if challenge.First().MaxAmountRequired != "10100" {
		t.Errorf("expected amount 10100, got %s", challenge.First().MaxAmountRequired)
	}
	if challenge.Error != "payment required" {
		t.Errorf("expected error preserved, got %q", challenge.Error)
	}
}

func TestChallengeFromError(t *testing.T) {
	encoded, err := x402.EncodeChallenge(testChallenge())
	if err != nil {
		t.Fatalf("EncodeChallenge failed: %v", err)
	}

	tests := []struct {
		name    string
		err     error
		trailer metadata.MD
		want    bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "other code", err: status.Error(codes.Unavailable, encoded), want: false},
		{name: "quota without challenge", err: status.Error(codes.ResourceExhausted, "rate limited"), want: false},
		{name: "challenge in message", err: status.Error(codes.ResourceExhausted, encoded), want: true},
		{
			name:    "challenge in trailer",
			err:     status.Error(codes.ResourceExhausted, "payment required"),
			trailer: metadata.Pairs(MetadataKeyPaymentRequirements, encoded),
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			challenge, ok := ChallengeFromError(tt.err, tt.trailer)
			if ok != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, ok)
			}
			if ok && challenge.First().PayTo != "0x1111111111111111111111111111111111111111" {
				t.Errorf("unexpected challenge %+v", challenge)
			}
		})
	}
}

func TestExtractPaymentFromMetadata(t *testing.T) {
	proof, err := x402.EncodeProof(&x402.PaymentProofEnvelope{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "eip155:43113",
		Payload:     map[string]interface{}{"signature": "0xabc"},
	})
	if err != nil {
		t.Fatalf("EncodeProof failed: %v", err)
	}

	ctx := WithPayment(context.Background(), proof)
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}

	envelope, err := ExtractPaymentFromMetadata(md)
	if err != nil {
		t.Fatalf("ExtractPaymentFromMetadata failed: %v", err)
	}
	if envelope.Network != "eip155:43113" {
		t.Errorf("expected network eip155:43113, got %s", envelope.Network)
	}

	if _, err := ExtractPaymentFromMetadata(metadata.MD{}); err == nil {
		t.Error("expected error for missing payment")
	}
	if _, err := ExtractPaymentFromMetadata(metadata.Pairs(MetadataKeyPayment, "!!")); err == nil {
		t.Error("expected error for invalid payment")
	}
	if _, err := ExtractChallengeFromMetadata(metadata.MD{}); err == nil {
		t.Error("expected error for missing requirements")
	}
}
