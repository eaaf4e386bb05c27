package grpc

import (
	"context"
	"fmt"

	x402 "github.com/aarika/x402-arena"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// MetadataKeyPaymentRequirements carries a base64 JSON challenge.
	MetadataKeyPaymentRequirements = "x402-payment-requirements"

	// MetadataKeyPayment carries the X-PAYMENT proof.
	MetadataKeyPayment = "x402-payment"

	// MetadataKeyPaymentResponse carries the settlement response.
	MetadataKeyPaymentResponse = "x402-payment-response"
)

// PaymentRequired returns the RESOURCE_EXHAUSTED status that signals a
// payment challenge. The message is the base64 JSON challenge, following
// the precedent of quota enforcement for billing errors.
func PaymentRequired(challenge *x402.PaymentChallenge) error {
	encoded, err := x402.EncodeChallenge(challenge)
	if err != nil {
		return status.Error(codes.Internal, fmt.Sprintf("failed to encode payment requirements: %v", err))
	}
	return status.Error(codes.ResourceExhausted, encoded)
}

// ChallengeFromError extracts a payment challenge from a call error. The
// status message is tried first, then the requirements key of trailer.
func ChallengeFromError(err error, trailer metadata.MD) (*x402.PaymentChallenge, bool) {
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.ResourceExhausted {
		return nil, false
	}

	if challenge, err := x402.DecodeChallenge(st.Message()); err == nil && len(challenge.Accepts) > 0 {
		return challenge, true
	}

	challenge, err := ExtractChallengeFromMetadata(trailer)
	if err != nil {
		log.Tracef("Resource exhausted without a payment challenge: %v", err)
		return nil, false
	}
	return challenge, true
}

// ExtractChallengeFromMetadata decodes the challenge stored under
// MetadataKeyPaymentRequirements.
func ExtractChallengeFromMetadata(md metadata.MD) (*x402.PaymentChallenge, error) {
	values := md.Get(MetadataKeyPaymentRequirements)
	if len(values) == 0 {
		return nil, fmt.Errorf("no payment requirements found in metadata")
	}
	return x402.DecodeChallenge(values[0])
}

// ExtractPaymentFromMetadata decodes and validates the proof stored under
// MetadataKeyPayment.
func ExtractPaymentFromMetadata(md metadata.MD) (*x402.PaymentProofEnvelope, error) {
	values := md.Get(MetadataKeyPayment)
	if len(values) == 0 {
		return nil, fmt.Errorf("no payment found in metadata")
	}
	return x402.DecodeProof(values[0])
}

// WithPayment attaches proof to the outgoing metadata of ctx.
func WithPayment(ctx context.Context, proof string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataKeyPayment, proof)
}
