package grpc

import (
	"context"

	x402 "github.com/aarika/x402-arena"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// Authorizer answers a payment challenge with an X-PAYMENT proof.
// *arena.Orchestrator satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, challenge *x402.PaymentChallenge) (string, error)
}

// UnaryClientInterceptor pays x402 challenges on unary calls. A call that
// fails with a payment challenge is authorized and retried exactly once
// with the proof in metadata; every other outcome is returned unchanged.
func UnaryClientInterceptor(auth Authorizer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		var trailer metadata.MD
		err := invoker(ctx, method, req, reply, cc, append(opts, grpc.Trailer(&trailer))...)
		if err == nil {
			return nil
		}

		challenge, ok := ChallengeFromError(err, trailer)
		if !ok {
			return err
		}
		log.Debugf("Payment required for %s", method)

		proof, authErr := auth.Authorize(ctx, challenge)
		if authErr != nil {
			return authErr
		}
		return invoker(WithPayment(ctx, proof), method, req, reply, cc, opts...)
	}
}
