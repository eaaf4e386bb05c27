// Package arena drives the payment-gated competition actions: submit, pay
// the 402 challenge with a signed EIP-3009 authorization, resubmit once,
// and reconcile the result.
package arena

import (
	"context"
	"errors"
	"fmt"
	"time"

	x402 "github.com/aarika/x402-arena"
	"github.com/aarika/x402-arena/events"
	"github.com/aarika/x402-arena/evm"
	"github.com/aarika/x402-arena/metrics"
)

// ErrDismissed is returned when the caller's context ended at a suspension
// point. In-flight requests are allowed to finish; their results are
// discarded and no further state or events are emitted.
var ErrDismissed = errors.New("action dismissed")

// Action names a payment-gated operation.
type Action string

const (
	ActionCreateCompetition Action = "create-competition"
	ActionSelectWinner      Action = "select-winner"
	ActionAuthorize         Action = "authorize"
)

// State is a step of the per-action handshake.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateChallenged
	StateSigning
	StateResubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateChallenged:
		return "challenged"
	case StateSigning:
		return "signing"
	case StateResubmitting:
		return "resubmitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateFunc observes state transitions.
type StateFunc func(action Action, state State)

// Options configures an Orchestrator.
type Options struct {
	Config  Config
	Sink    events.Sink
	Metrics *metrics.Metrics
	Now     func() time.Time
	OnState StateFunc
}

// Orchestrator runs payment-gated actions for one wallet. Concurrent
// actions are not coordinated against each other.
type Orchestrator struct {
	client  *x402.Client
	wallet  evm.Wallet
	cfg     Config
	sink    events.Sink
	metrics *metrics.Metrics
	now     func() time.Time
	onState StateFunc
}

// New creates an Orchestrator. wallet may be nil; actions then fail with
// wallet-not-connected.
func New(client *x402.Client, wallet evm.Wallet, opts Options) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arena configuration: %w", err)
	}

	o := &Orchestrator{
		client:  client,
		wallet:  wallet,
		cfg:     opts.Config,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		now:     opts.Now,
		onState: opts.OnState,
	}
	if o.sink == nil {
		o.sink = events.Discard
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Config returns the validated configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// paidAction holds the per-action endpoint and fallback messages.
type paidAction struct {
	action      Action
	endpoint    string
	rejected    string // first call failed for a non-payment reason
	unverified  string // proof-bearing call failed
	description string
}

var (
	createCompetitionAction = paidAction{
		action:      ActionCreateCompetition,
		endpoint:    EndpointCreateCompetition,
		rejected:    "Failed to create competition",
		unverified:  "Payment verification failed",
		description: "Create Competition",
	}
	selectWinnerAction = paidAction{
		action:      ActionSelectWinner,
		endpoint:    EndpointSelectWinner,
		rejected:    "Failed to select winner",
		unverified:  "Payment verification failed",
		description: "Select Winner",
	}
)

// run executes one handshake: submit without proof, pay the challenge if
// one is returned, and resubmit the identical body exactly once.
func (o *Orchestrator) run(ctx context.Context, pa paidAction, body interface{}) (*x402.Response, error) {
	start := o.now()

	if _, err := o.payer(); err != nil {
		return nil, o.fail(pa.action, start, err)
	}

	o.setState(pa.action, StateSubmitting)
	o.emit(events.SourceFrontend, "Initiating "+pa.description, events.Details{"body": body}, events.TypeInfo)

	resp := o.client.Attempt(context.WithoutCancel(ctx), pa.endpoint, body, "")
	if ctx.Err() != nil {
		return nil, o.dismiss(pa.action, start)
	}

	switch resp.Kind {
	case x402.KindSuccess:
		// A prior proof or session already satisfied payment.
		o.succeed(pa.action, start)
		return resp, nil
	case x402.KindPaymentRequired:
	default:
		return nil, o.fail(pa.action, start, rejection(resp, pa.rejected))
	}

	proof, err := o.authorize(ctx, pa.action, resp.Challenge)
	if errors.Is(err, ErrDismissed) {
		return nil, o.dismiss(pa.action, start)
	}
	if err != nil {
		return nil, o.fail(pa.action, start, err)
	}

	o.setState(pa.action, StateResubmitting)
	resp = o.client.Attempt(context.WithoutCancel(ctx), pa.endpoint, body, proof)
	if ctx.Err() != nil {
		return nil, o.dismiss(pa.action, start)
	}
	if resp.Kind != x402.KindSuccess {
		return nil, o.fail(pa.action, start, rejection(resp, pa.unverified))
	}

	o.succeed(pa.action, start)
	return resp, nil
}

// Authorize answers a payment challenge with an encoded X-PAYMENT proof.
func (o *Orchestrator) Authorize(ctx context.Context, challenge *x402.PaymentChallenge) (string, error) {
	return o.authorize(ctx, ActionAuthorize, challenge)
}

func (o *Orchestrator) authorize(ctx context.Context, action Action, challenge *x402.PaymentChallenge) (string, error) {
	o.setState(action, StateChallenged)
	o.metrics.ObserveChallenge(string(action))

	from, err := o.payer()
	if err != nil {
		return "", err
	}

	req := challenge.First()
	if req != nil {
		o.emit(events.SourceBackend, "Payment Required (x402)", events.Details{
			"amount":      req.MaxAmountRequired,
			"description": req.Description,
		}, events.TypeWarning)
	}
	if req == nil || req.PayTo == "" || req.MaxAmountRequired == "" {
		return "", x402.NewPaymentError(x402.ErrCodeInvalidPaymentInfo, "Invalid payment information", nil)
	}

	o.setState(action, StateSigning)
	signer, ok := o.wallet.TypedDataSigner()
	if !ok {
		return "", x402.NewPaymentError(x402.ErrCodeSigningUnsupported,
			"Wallet does not support signTypedData. Please reconnect your wallet.", nil)
	}

	auth, err := evm.NewAuthorization(from, req, o.now())
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeSigningFailed, "Failed to build authorization", err)
	}
	domain := evm.DomainFor(req, o.cfg.domainDefaults())
	typedData := evm.TransferWithAuthorization(domain, auth)

	o.emit(events.SourceWallet, "Requesting ERC-3009 TransferWithAuthorization signature", events.Details{
		"to":     auth.To,
		"amount": auth.Value,
		"asset":  domain.VerifyingContract,
	}, events.TypeInfo)
	log.Debugf("Signing %s of %s to %s on chain %d", domain.Name, auth.Value, auth.To, domain.ChainID)

	signature, err := signer.SignTypedData(context.WithoutCancel(ctx), typedData)
	if ctx.Err() != nil {
		return "", ErrDismissed
	}
	o.metrics.ObserveSignature(string(action), err == nil)
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeSigningFailed, "Wallet signature failed", err)
	}
	signature = evm.NormalizeSignatureV(signature, domain.ChainID)

	o.emit(events.SourceWallet, "Signature Obtained", events.Details{
		"signature": abbreviate(signature),
		"status":    "signed",
	}, events.TypeSuccess)

	network := req.Network
	if network == "" {
		network = x402.NetworkFor(o.cfg.DefaultChainID)
	}
	proof, err := x402.EncodeProof(&x402.PaymentProofEnvelope{
		X402Version: challenge.ProtocolVersion(),
		Scheme:      x402.SchemeExact,
		Network:     network,
		Payload: evm.ExactPayload{
			Signature:     signature,
			Authorization: auth,
		},
	})
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeSigningFailed, "Failed to encode payment proof", err)
	}

	o.emit(events.SourceWallet, "Payment Authorization Ready", events.Details{
		"from":  auth.From,
		"to":    auth.To,
		"value": auth.Value,
	}, events.TypeInfo)
	return proof, nil
}

// payer returns the connected account address.
func (o *Orchestrator) payer() (string, error) {
	if o.wallet == nil || o.wallet.Address() == "" {
		return "", x402.NewPaymentError(x402.ErrCodeWalletNotConnected, "Please connect your wallet first", nil)
	}
	return o.wallet.Address(), nil
}

// rejection maps a non-success response to a terminal error.
func rejection(resp *x402.Response, fallback string) error {
	if resp.Err != nil {
		return x402.NewPaymentError(x402.ErrCodeNetworkError, "Network error", resp.Err)
	}
	message := resp.Failure.Message()
	if resp.Kind == x402.KindPaymentRequired && resp.Challenge != nil {
		// The proof was refused and the terms re-issued.
		message = resp.Challenge.Error
	}
	cause := &x402.StatusError{StatusCode: resp.StatusCode, Message: message}
	if message == "" {
		message = fallback
	}
	return x402.NewPaymentError(x402.ErrCodeServerRejected, message, cause)
}

func (o *Orchestrator) succeed(action Action, start time.Time) {
	o.setState(action, StateSucceeded)
	o.metrics.ObserveAction(string(action), metrics.OutcomeSucceeded, "", o.now().Sub(start))
}

func (o *Orchestrator) fail(action Action, start time.Time, err error) error {
	code := x402.GetPaymentErrorCode(err)
	o.setState(action, StateFailed)
	o.emit(events.SourceFrontend, "Payment Error", events.Details{"error": err.Error(), "code": code}, events.TypeError)
	o.metrics.ObserveAction(string(action), metrics.OutcomeFailed, code, o.now().Sub(start))
	log.Debugf("%s failed: %v", action, err)
	return err
}

func (o *Orchestrator) dismiss(action Action, start time.Time) error {
	o.metrics.ObserveAction(string(action), metrics.OutcomeDismissed, "", o.now().Sub(start))
	log.Debugf("%s dismissed", action)
	return ErrDismissed
}

func (o *Orchestrator) setState(action Action, state State) {
	log.Tracef("%s: %s", action, state)
	if o.onState != nil {
		o.onState(action, state)
	}
}

func (o *Orchestrator) emit(source events.Source, event string, details events.Details, typ events.Type) {
	o.sink.Emit(events.NewRecord(source, event, details, typ))
}

func abbreviate(s string) string {
	if len(s) <= 20 {
		return s
	}
	return s[:20] + "..."
}

// sleep waits for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
