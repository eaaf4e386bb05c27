package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// StreamClientInterceptor pays x402 challenges on server-streaming calls.
// The request message is kept so the stream can be reopened with a proof
// when the first receive fails with a challenge. Client-streaming and
// bidirectional calls are passed through since their requests cannot be
// replayed.
func StreamClientInterceptor(auth Authorizer) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		cs, err := streamer(ctx, desc, cc, method, opts...)
		if desc.ClientStreams {
			return cs, err
		}
		if err != nil {
			challenge, ok := ChallengeFromError(err, nil)
			if !ok {
				return nil, err
			}
			proof, authErr := auth.Authorize(ctx, challenge)
			if authErr != nil {
				return nil, authErr
			}
			return streamer(WithPayment(ctx, proof), desc, cc, method, opts...)
		}

		return &payingStream{
			ClientStream: cs,
			ctx:          ctx,
			desc:         desc,
			cc:           cc,
			method:       method,
			streamer:     streamer,
			opts:         opts,
			auth:         auth,
		}, nil
	}
}

// payingStream reopens a server stream once with a payment proof.
type payingStream struct {
	grpc.ClientStream

	ctx      context.Context
	desc     *grpc.StreamDesc
	cc       *grpc.ClientConn
	method   string
	streamer grpc.Streamer
	opts     []grpc.CallOption
	auth     Authorizer

	request  interface{}
	closed   bool
	received bool
	retried  bool
}

func (s *payingStream) SendMsg(m interface{}) error {
	s.request = m
	return s.ClientStream.SendMsg(m)
}

func (s *payingStream) CloseSend() error {
	s.closed = true
	return s.ClientStream.CloseSend()
}

func (s *payingStream) RecvMsg(m interface{}) error {
	err := s.ClientStream.RecvMsg(m)
	if err == nil {
		s.received = true
		return nil
	}
	if s.received || s.retried || s.request == nil {
		return err
	}

	challenge, ok := ChallengeFromError(err, s.ClientStream.Trailer())
	if !ok {
		return err
	}
	s.retried = true
	log.Debugf("Payment required for stream %s", s.method)

	proof, err := s.auth.Authorize(s.ctx, challenge)
	if err != nil {
		return err
	}
	cs, err := s.streamer(WithPayment(s.ctx, proof), s.desc, s.cc, s.method, s.opts...)
	if err != nil {
		return err
	}
	if err := cs.SendMsg(s.request); err != nil {
		return err
	}
	if s.closed {
		if err := cs.CloseSend(); err != nil {
			return err
		}
	}
	s.ClientStream = cs
	return s.RecvMsg(m)
}
