package arena

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	x402 "github.com/aarika/x402-arena"
	"github.com/aarika/x402-arena/evm"
	"github.com/aarika/x402-arena/x402test"
)

func TestLoginMessage(t *testing.T) {
	got := LoginMessage("0xAbC", 1700000000)
	want := "AARIKA_LOGIN\naddress:0xabc\nts:1700000000"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSession_LoginAndReuse(t *testing.T) {
	h := newHarness(t, x402test.Config{})
	s := NewSession(h.client, newKeyWallet(t), nil)
	ctx := context.Background()

	token, err := s.EnsureToken(ctx)
	if err != nil {
		t.Fatalf("EnsureToken failed: %v", err)
	}
	if !h.backend.Authenticated(token) {
		t.Errorf("expected token %s to be issued by the backend", token)
	}
	if n := len(h.backend.Requests(EndpointAuthLogin)); n != 1 {
		t.Errorf("expected 1 login, got %d", n)
	}

	again, err := s.EnsureToken(ctx)
	if err != nil {
		t.Fatalf("EnsureToken failed: %v", err)
	}
	if again != token {
		t.Errorf("expected reused token %s, got %s", token, again)
	}
	if n := len(h.backend.Requests("")); n != 2 {
		t.Errorf("expected no further requests, got %d total", n)
	}

	if got := s.AuthHeader(ctx).Get("Authorization"); got != "Bearer "+token {
		t.Errorf("expected bearer header, got %q", got)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if got := s.AuthHeader(ctx).Get("Authorization"); got != "" {
		t.Errorf("expected no header after logout, got %q", got)
	}
}

func TestSession_AddressChangeForcesLogin(t *testing.T) {
	h := newHarness(t, x402test.Config{})
	store := NewMemoryTokenStore()
	_ = store.Save(context.Background(), StoredToken{
		Token:     "stale",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		Address:   "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23",
	})

	s := NewSession(h.client, newKeyWallet(t), store)
	token, err := s.EnsureToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureToken failed: %v", err)
	}
	if token == "stale" {
		t.Error("expected a new token for the new address")
	}
	if n := len(h.backend.Requests(EndpointAuthLogin)); n != 1 {
		t.Errorf("expected 1 login, got %d", n)
	}
}

func TestSession_RefreshSkipsLogin(t *testing.T) {
	backend := x402test.NewServer(x402test.Config{})
	server := httptest.NewServer(backend)
	defer server.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New failed: %v", err)
	}
	client, err := x402.NewClient(x402.Config{BaseURL: server.URL, HTTPClient: &http.Client{Jar: jar}})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	wallet := newKeyWallet(t)
	ctx := context.Background()

	first, err := NewSession(client, wallet, nil).EnsureToken(ctx)
	if err != nil {
		t.Fatalf("EnsureToken failed: %v", err)
	}

	second, err := NewSession(client, wallet, nil).EnsureToken(ctx)
	if err != nil {
		t.Fatalf("EnsureToken failed: %v", err)
	}
	if second != first {
		t.Errorf("expected refreshed token %s, got %s", first, second)
	}
	if n := len(backend.Requests(EndpointAuthLogin)); n != 1 {
		t.Errorf("expected a single login, got %d", n)
	}
	if n := len(backend.Requests(EndpointAuthRefresh)); n != 2 {
		t.Errorf("expected 2 refresh attempts, got %d", n)
	}
}

func TestSession_Errors(t *testing.T) {
	h := newHarness(t, x402test.Config{})

	tests := []struct {
		name   string
		wallet evm.Wallet
		code   string
	}{
		{name: "no wallet", wallet: nil, code: x402.ErrCodeWalletNotConnected},
		{name: "watch only", wallet: evm.WatchWallet("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), code: x402.ErrCodeSigningUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSession(h.client, tt.wallet, nil).EnsureToken(context.Background())
			if code := x402.GetPaymentErrorCode(err); code != tt.code {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestRedisTokenStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	store := NewRedisTokenStore(client, "")

	tok, err := store.Load(ctx)
	if err != nil || tok != nil {
		t.Fatalf("expected empty store, got %v %v", tok, err)
	}

	want := StoredToken{Token: "t-1", ExpiresAt: time.Now().Add(time.Hour).Unix(), Address: "0xabc"}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ttl := mr.TTL(DefaultTokenKey); ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected TTL within an hour, got %v", ttl)
	}

	tok, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if tok == nil || *tok != want {
		t.Errorf("expected %+v, got %+v", want, tok)
	}

	mr.FastForward(2 * time.Hour)
	if tok, _ := store.Load(ctx); tok != nil {
		t.Errorf("expected token to expire, got %+v", tok)
	}

	if err := store.Save(ctx, StoredToken{Token: "old", ExpiresAt: time.Now().Add(-time.Minute).Unix(), Address: "0xabc"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if mr.Exists(DefaultTokenKey) {
		t.Error("expected expired token not to be stored")
	}

	if err := mr.Set(DefaultTokenKey, "{not json"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	tok, err = store.Load(ctx)
	if err != nil || tok != nil {
		t.Errorf("expected corrupt entry treated as absent, got %v %v", tok, err)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if mr.Exists(DefaultTokenKey) {
		t.Error("expected key removed")
	}
}

func TestSession_RedisStoreSurvivesSessions(t *testing.T) {
	h := newHarness(t, x402test.Config{})
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	wallet := newKeyWallet(t)
	ctx := context.Background()

	first, err := NewSession(h.client, wallet, NewRedisTokenStore(client, "")).EnsureToken(ctx)
	if err != nil {
		t.Fatalf("EnsureToken failed: %v", err)
	}
	second, err := NewSession(h.client, wallet, NewRedisTokenStore(client, "")).EnsureToken(ctx)
	if err != nil {
		t.Fatalf("EnsureToken failed: %v", err)
	}
	if first != second {
		t.Errorf("expected persisted token %s, got %s", first, second)
	}
	if n := len(h.backend.Requests(EndpointAuthLogin)); n != 1 {
		t.Errorf("expected 1 login, got %d", n)
	}
}
