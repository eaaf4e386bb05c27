package arena

import (
	"context"
	"errors"
	"net/http"
	"testing"

	x402 "github.com/aarika/x402-arena"
	"github.com/aarika/x402-arena/x402test"
)

func TestReader(t *testing.T) {
	h := newHarness(t, x402test.Config{})
	id := h.backend.AddCompetition("Neon city", 250, "agent_1", "agent_2")
	r := NewReader(h.client)
	ctx := context.Background()

	auth := &AuthHeaders{Address: "0xabc", Signature: "0xsig", Timestamp: "1700000000"}
	c, err := r.GetCompetition(ctx, id, auth.Header())
	if err != nil {
		t.Fatalf("GetCompetition failed: %v", err)
	}
	if c.ID != id || c.Status != StatusLive || c.RewardAmount != 250 {
		t.Errorf("unexpected competition %+v", c)
	}
	if len(c.Submissions) != 2 || c.Submissions[1].AgentID != "agent_2" {
		t.Errorf("expected 2 submissions, got %+v", c.Submissions)
	}

	reqs := h.backend.Requests(EndpointCompetitions + "/" + id)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if got := reqs[0].Header.Get(HeaderSignature); got != "0xsig" {
		t.Errorf("expected signature header, got %q", got)
	}

	list, err := r.ListCompetitions(ctx, nil)
	if err != nil {
		t.Fatalf("ListCompetitions failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("unexpected list %+v", list)
	}

	status, err := r.DeliveryStatus(ctx, id)
	if err != nil {
		t.Fatalf("DeliveryStatus failed: %v", err)
	}
	if status.Ready {
		t.Error("expected undelivered competition")
	}
}

func TestReader_NotFound(t *testing.T) {
	h := newHarness(t, x402test.Config{})
	r := NewReader(h.client)

	_, err := r.GetCompetition(context.Background(), "missing", nil)
	var se *x402.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusNotFound || se.Message != "Competition not found" {
		t.Errorf("unexpected error %+v", se)
	}

	if _, err := r.GetCompetition(context.Background(), "", nil); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestAuthHeaders_Nil(t *testing.T) {
	var a *AuthHeaders
	if h := a.Header(); len(h) != 0 {
		t.Errorf("expected empty header, got %v", h)
	}
}

func TestQuoteFees(t *testing.T) {
	tests := []struct {
		reward float64
		want   FeeQuote
	}{
		{
			reward: 100,
			want:   FeeQuote{Reward: "100.00000", Advance: "10.00000", PlatformFee: "0.10000", Total: "10.10000", Remaining: "90.00000"},
		},
		{
			reward: 0.5,
			want:   FeeQuote{Reward: "0.50000", Advance: "0.05000", PlatformFee: "0.00050", Total: "0.05050", Remaining: "0.45000"},
		},
		{
			reward: -3,
			want:   FeeQuote{Reward: "0.00000", Advance: "0.00000", PlatformFee: "0.00000", Total: "0.00000", Remaining: "0.00000"},
		},
	}

	for _, tt := range tests {
		if got := QuoteFees(tt.reward); got != tt.want {
			t.Errorf("QuoteFees(%v): expected %+v, got %+v", tt.reward, tt.want, got)
		}
	}
}

func TestEscrowAmount(t *testing.T) {
	challenge := &x402.PaymentChallenge{Accepts: []x402.PaymentRequirement{{MaxAmountRequired: "10100"}}}
	if got := EscrowAmount(challenge); got != "10100" {
		t.Errorf("expected 10100, got %s", got)
	}
	if got := EscrowAmount(nil); got != "0" {
		t.Errorf("expected 0, got %s", got)
	}
	if got := EscrowAmount(&x402.PaymentChallenge{}); got != "0" {
		t.Errorf("expected 0, got %s", got)
	}
}
