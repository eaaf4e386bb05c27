package arena

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	x402 "github.com/aarika/x402-arena"
)

// Read-auth header names.
const (
	HeaderWalletAddress = "x-wallet-address"
	HeaderSignature     = "x-signature"
	HeaderTimestamp     = "x-timestamp"
)

// AuthHeaders authenticate reads with a wallet signature instead of a
// bearer token.
type AuthHeaders struct {
	Address   string
	Signature string
	Timestamp string // unix seconds
}

// Header renders the headers; a nil receiver yields an empty header.
func (a *AuthHeaders) Header() http.Header {
	h := http.Header{}
	if a == nil {
		return h
	}
	h.Set(HeaderWalletAddress, a.Address)
	h.Set(HeaderSignature, a.Signature)
	h.Set(HeaderTimestamp, a.Timestamp)
	return h
}

// Reader fetches competitions. Reads are not payment gated.
type Reader struct {
	client *x402.Client
}

// NewReader returns a Reader over client.
func NewReader(client *x402.Client) *Reader {
	return &Reader{client: client}
}

// GetCompetition fetches one competition. header may carry AuthHeaders or
// a bearer token, or be nil.
func (r *Reader) GetCompetition(ctx context.Context, id string, header http.Header) (*Competition, error) {
	if id == "" {
		return nil, fmt.Errorf("competition id is required")
	}
	var c Competition
	if err := r.client.Get(ctx, EndpointCompetitions+"/"+url.PathEscape(id), nil, header, &c); err != nil {
		return nil, fmt.Errorf("competition %s not found: %w", id, err)
	}
	return &c, nil
}

// ListCompetitions fetches all competitions.
func (r *Reader) ListCompetitions(ctx context.Context, header http.Header) ([]Competition, error) {
	var list []Competition
	if err := r.client.Get(ctx, EndpointCompetitions, nil, header, &list); err != nil {
		return nil, fmt.Errorf("failed to fetch competitions: %w", err)
	}
	return list, nil
}

// DeliveryStatus fetches the delivery state of a completed competition.
func (r *Reader) DeliveryStatus(ctx context.Context, competitionID string) (*DeliveryStatus, error) {
	var status DeliveryStatus
	query := url.Values{"competitionId": {competitionID}}
	if err := r.client.Get(ctx, EndpointDeliveryStatus, query, nil, &status); err != nil {
		return nil, fmt.Errorf("failed to fetch delivery status: %w", err)
	}
	return &status, nil
}
