package arena

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	x402 "github.com/aarika/x402-arena"
	"github.com/aarika/x402-arena/evm"
)

// LoginMessage is the personal_sign payload proving control of address at
// unix time ts.
func LoginMessage(address string, ts int64) string {
	return fmt.Sprintf("AARIKA_LOGIN\naddress:%s\nts:%d", strings.ToLower(address), ts)
}

type loginRequest struct {
	Address   string `json:"address"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	Address   string `json:"address,omitempty"`
}

// Session obtains and caches a bearer token for the connected wallet.
type Session struct {
	client *x402.Client
	wallet evm.Wallet
	store  TokenStore
	now    func() time.Time
}

// NewSession creates a Session. A nil store keeps the token in memory.
func NewSession(client *x402.Client, wallet evm.Wallet, store TokenStore) *Session {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	return &Session{client: client, wallet: wallet, store: store, now: time.Now}
}

// EnsureToken returns a bearer token for the wallet's address. A stored,
// unexpired token for the same address is reused; otherwise a silent
// refresh is tried before asking the wallet to sign a login message.
func (s *Session) EnsureToken(ctx context.Context) (string, error) {
	if s.wallet == nil || s.wallet.Address() == "" {
		return "", x402.NewPaymentError(x402.ErrCodeWalletNotConnected, "Please connect your wallet first", nil)
	}
	address := s.wallet.Address()
	want := strings.ToLower(address)

	existing, err := s.store.Load(ctx)
	if err != nil {
		log.Warnf("Token store unavailable: %v", err)
	}
	if existing.usable(s.now()) && strings.ToLower(existing.Address) == want {
		return existing.Token, nil
	}

	if tok, ok := s.refresh(ctx); ok && strings.ToLower(tok.Address) == want {
		return tok.Token, nil
	}

	return s.login(ctx, address)
}

func (s *Session) refresh(ctx context.Context) (*StoredToken, bool) {
	var resp tokenResponse
	if err := s.client.Post(ctx, EndpointAuthRefresh, nil, nil, &resp); err != nil {
		log.Debugf("Token refresh failed: %v", err)
		return nil, false
	}
	tok := StoredToken{Token: resp.Token, ExpiresAt: resp.ExpiresAt, Address: resp.Address}
	if !tok.usable(s.now()) {
		return nil, false
	}
	s.save(ctx, tok)
	return &tok, true
}

func (s *Session) login(ctx context.Context, address string) (string, error) {
	signer, ok := s.wallet.MessageSigner()
	if !ok {
		return "", x402.NewPaymentError(x402.ErrCodeSigningUnsupported,
			"Wallet does not support signMessage. Please reconnect your wallet.", nil)
	}

	ts := s.now().Unix()
	signature, err := signer.SignMessage(ctx, []byte(LoginMessage(address, ts)))
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeSigningFailed, "Login signature failed", err)
	}

	var resp tokenResponse
	err = s.client.Post(ctx, EndpointAuthLogin, loginRequest{
		Address:   address,
		Timestamp: strconv.FormatInt(ts, 10),
		Signature: signature,
	}, nil, &resp)
	if err != nil {
		return "", x402.NewPaymentError(x402.ErrCodeServerRejected, "Login failed", err)
	}
	if resp.Token == "" {
		return "", x402.NewPaymentError(x402.ErrCodeServerRejected, "Login returned no token", nil)
	}

	s.save(ctx, StoredToken{Token: resp.Token, ExpiresAt: resp.ExpiresAt, Address: address})
	return resp.Token, nil
}

func (s *Session) save(ctx context.Context, tok StoredToken) {
	if err := s.store.Save(ctx, tok); err != nil {
		log.Warnf("Failed to persist token: %v", err)
	}
}

// AuthHeader returns an Authorization header from the stored token, or an
// empty header when none is usable. It never prompts the wallet.
func (s *Session) AuthHeader(ctx context.Context) http.Header {
	header := http.Header{}
	tok, err := s.store.Load(ctx)
	if err == nil && tok.usable(s.now()) {
		header.Set("Authorization", "Bearer "+tok.Token)
	}
	return header
}

// Logout forgets the stored token.
func (s *Session) Logout(ctx context.Context) error {
	return s.store.Clear(ctx)
}
