// Package x402test provides an in-process arena backend that issues x402
// challenges and verifies EIP-3009 payment proofs, for tests and demos.
package x402test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	x402 "github.com/aarika/x402-arena"
	"github.com/aarika/x402-arena/evm"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

// Defaults of a Server's payment terms.
const (
	DefaultPayTo   = "0x1111111111111111111111111111111111111111"
	DefaultAsset   = "0x5425890298aed601595a70AB815c96711a31Bc65"
	DefaultNetwork = "eip155:43113"
)

// Config describes the payment terms and behavior of a Server.
type Config struct {
	PayTo        string
	Asset        string
	Network      string
	TokenName    string
	TokenVersion string

	// CreatePrice returns maxAmountRequired for a create request. Defaults
	// to reward*101 smallest units.
	CreatePrice func(reward float64) string

	// WinnerPrice is maxAmountRequired for select-winner. Default "90000".
	WinnerPrice string

	// Free lists endpoints that succeed without payment.
	Free map[string]bool

	// DeliveryReadyAfter is how many delivery-status polls report not
	// ready before the asset is delivered. Negative never delivers.
	DeliveryReadyAfter int

	// InlineDownload includes downloadUrl in the select-winner response.
	InlineDownload bool

	// TokenTTL is the lifetime of login tokens. Default one hour.
	TokenTTL time.Duration
}

func (c *Config) setDefaults() {
	if c.PayTo == "" {
		c.PayTo = DefaultPayTo
	}
	if c.Asset == "" {
		c.Asset = DefaultAsset
	}
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.TokenName == "" {
		c.TokenName = evm.DefaultTokenName
	}
	if c.TokenVersion == "" {
		c.TokenVersion = evm.DefaultTokenVersion
	}
	if c.CreatePrice == nil {
		c.CreatePrice = func(reward float64) string {
			return strconv.FormatInt(int64(reward*101), 10)
		}
	}
	if c.WinnerPrice == "" {
		c.WinnerPrice = "90000"
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = time.Hour
	}
}

// Request is a request observed by the Server.
type Request struct {
	Method  string
	Path    string
	Body    []byte
	Payment string
	Header  http.Header
}

// Payment is a proof the Server accepted.
type Payment struct {
	Endpoint      string
	Envelope      *x402.PaymentProofEnvelope
	Authorization *evm.Authorization
	Signer        string
}

// Server is an http.Handler emulating the arena backend.
type Server struct {
	cfg Config
	mux *runtime.ServeMux

	mu            sync.Mutex
	requests      []Request
	payments      []Payment
	nonces        map[string]bool
	competitions  map[string]*competition
	order         []string
	deliveryPolls map[string]int
	tokens        map[string]string // token -> address
	rejectMessage string
}

type competition struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	RewardAmount  float64      `json:"rewardAmount"`
	EntryFee      float64      `json:"entryFee"`
	Status        string       `json:"status"`
	CreatorID     string       `json:"creatorId"`
	CreatedAt     int64        `json:"createdAt"`
	AgentCount    int          `json:"agentCount"`
	Submissions   []submission `json:"submissions"`
	WinnerAgentID string       `json:"winnerAgentId,omitempty"`
	delivered     string       // download URL once delivered
}

type submission struct {
	ID          string `json:"id"`
	AgentID     string `json:"agentId"`
	PreviewURL  string `json:"previewUrl"`
	OriginalCID string `json:"originalCid,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// NewServer creates a Server with cfg's defaults filled in.
func NewServer(cfg Config) *Server {
	cfg.setDefaults()
	s := &Server{
		cfg:           cfg,
		mux:           runtime.NewServeMux(),
		nonces:        map[string]bool{},
		competitions:  map[string]*competition{},
		deliveryPolls: map[string]int{},
		tokens:        map[string]string{},
	}

	s.handle(http.MethodPost, "/create-competition", s.handleCreate)
	s.handle(http.MethodPost, "/select-winner", s.handleSelectWinner)
	s.handle(http.MethodGet, "/delivery-status", s.handleDeliveryStatus)
	s.handle(http.MethodGet, "/competitions", s.handleList)
	s.handle(http.MethodGet, "/competitions/{id}", s.handleGet)
	s.handle(http.MethodPost, "/auth/login", s.handleLogin)
	s.handle(http.MethodPost, "/auth/refresh", s.handleRefresh)
	return s
}

func (s *Server) handle(method, pattern string, h func(w http.ResponseWriter, r *http.Request, body []byte, params map[string]string)) {
	if err := s.mux.HandlePath(method, pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		body, _ := io.ReadAll(r.Body)
		s.record(r, body)
		h(w, r, body, params)
	}); err != nil {
		panic(fmt.Sprintf("x402test: invalid route %s %s: %v", method, pattern, err))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) record(r *http.Request, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Body:    body,
		Payment: r.Header.Get(x402.HeaderPayment),
		Header:  r.Header.Clone(),
	})
}

// Requests returns every request received, optionally filtered by path.
func (s *Server) Requests(path string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if path == "" || r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Payments returns the accepted payment proofs in order.
func (s *Server) Payments() []Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Payment(nil), s.payments...)
}

// RejectPayments makes every following proof fail verification with
// message. An empty message restores normal verification.
func (s *Server) RejectPayments(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectMessage = message
}

// AddCompetition seeds a live competition with the given agent submissions
// and returns its ID.
func (s *Server) AddCompetition(title string, reward float64, agentIDs ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.newCompetitionLocked(title, reward, "")
	now := time.Now().UnixMilli()
	for i, agent := range agentIDs {
		c.Submissions = append(c.Submissions, submission{
			ID:         fmt.Sprintf("sub_%d", i+1),
			AgentID:    agent,
			PreviewURL: "https://preview.example/" + c.ID + "/" + agent,
			Timestamp:  now,
		})
	}
	c.AgentCount = len(agentIDs)
	return c.ID
}

func (s *Server) newCompetitionLocked(prompt string, reward float64, creator string) *competition {
	title := prompt
	if len(title) > 40 {
		title = title[:40]
	}
	c := &competition{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  prompt,
		RewardAmount: reward,
		Status:       "LIVE",
		CreatorID:    creator,
		CreatedAt:    time.Now().UnixMilli(),
		Submissions:  []submission{},
	}
	s.competitions[c.ID] = c
	s.order = append(s.order, c.ID)
	return c
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, body []byte, _ map[string]string) {
	var req struct {
		Prompt        string  `json:"prompt"`
		RewardAmount  float64 `json:"rewardAmount"`
		WalletAddress string  `json:"walletAddress"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.RewardAmount <= 0 {
		sendError(w, http.StatusBadRequest, "rewardAmount must be positive")
		return
	}

	if !s.paid(w, r, "/create-competition", s.cfg.CreatePrice(req.RewardAmount), "Create competition escrow") {
		return
	}

	s.mu.Lock()
	c := s.newCompetitionLocked(req.Prompt, req.RewardAmount, req.WalletAddress)
	s.mu.Unlock()

	sendJSON(w, http.StatusOK, map[string]interface{}{
		"competitionId": c.ID,
		"status":        c.Status,
		"message":       "Competition created",
		"txHash":        fakeTxHash(c.ID, "create"),
	})
}

func (s *Server) handleSelectWinner(w http.ResponseWriter, r *http.Request, body []byte, _ map[string]string) {
	var req struct {
		CompetitionID  string `json:"competitionId"`
		WinningAgentID string `json:"winningAgentId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	c, ok := s.competitions[req.CompetitionID]
	s.mu.Unlock()
	if !ok {
		sendError(w, http.StatusNotFound, "Competition not found")
		return
	}

	if !s.paid(w, r, "/select-winner", s.cfg.WinnerPrice, "Winner payout") {
		return
	}

	s.mu.Lock()
	c.Status = "COMPLETED"
	c.WinnerAgentID = req.WinningAgentID
	cid := "Qm" + strings.ReplaceAll(uuid.NewString(), "-", "")
	c.delivered = "https://gateway.example/ipfs/" + cid
	for i := range c.Submissions {
		if c.Submissions[i].AgentID == req.WinningAgentID {
			c.Submissions[i].OriginalCID = cid
		}
	}
	s.mu.Unlock()

	resp := map[string]interface{}{
		"status":        "COMPLETED",
		"competitionId": c.ID,
		"winnerAgentId": req.WinningAgentID,
		"declareTx":     fakeTxHash(c.ID, "declare"),
		"notifyTx":      fakeTxHash(c.ID, "notify"),
		"payoutTx":      fakeTxHash(c.ID, "payout"),
		"completeTx":    fakeTxHash(c.ID, "complete"),
		"downloadUrl":   nil,
	}
	if s.cfg.InlineDownload {
		resp["downloadUrl"] = c.delivered
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeliveryStatus(w http.ResponseWriter, r *http.Request, _ []byte, _ map[string]string) {
	id := r.URL.Query().Get("competitionId")

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitions[id]
	if !ok {
		sendError(w, http.StatusNotFound, "Competition not found")
		return
	}

	polls := s.deliveryPolls[id]
	s.deliveryPolls[id] = polls + 1
	if c.delivered == "" || s.cfg.DeliveryReadyAfter < 0 || polls < s.cfg.DeliveryReadyAfter {
		sendJSON(w, http.StatusOK, map[string]interface{}{"ready": false})
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{"ready": true, "downloadUrl": c.delivered})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, _ []byte, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*competition, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.competitions[id])
	}
	sendJSON(w, http.StatusOK, list)
}

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request, _ []byte, params map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitions[params["id"]]
	if !ok {
		sendJSON(w, http.StatusNotFound, map[string]string{"detail": "Competition not found"})
		return
	}
	sendJSON(w, http.StatusOK, c)
}

// paid reports whether the request carries an acceptable proof, writing
// the 402 or error response when it does not.
func (s *Server) paid(w http.ResponseWriter, r *http.Request, endpoint, amount, description string) bool {
	if s.cfg.Free[endpoint] {
		return true
	}

	req := x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           s.cfg.Network,
		MaxAmountRequired: amount,
		Resource:          endpoint,
		Description:       description,
		MimeType:          "application/json",
		PayTo:             s.cfg.PayTo,
		MaxTimeoutSeconds: 300,
		Asset:             s.cfg.Asset,
		Extra:             &x402.RequirementInfo{Name: s.cfg.TokenName, Version: s.cfg.TokenVersion},
	}

	header := r.Header.Get(x402.HeaderPayment)
	if header == "" {
		sendPaymentRequired(w, &req, "Payment required")
		return false
	}

	envelope, err := x402.DecodeProof(header)
	if err != nil {
		sendError(w, http.StatusBadRequest, fmt.Sprintf("Invalid X-PAYMENT header: %v", err))
		return false
	}

	payment, err := s.verify(endpoint, envelope, &req)
	if err != nil {
		sendPaymentRequired(w, &req, err.Error())
		return false
	}

	s.mu.Lock()
	s.payments = append(s.payments, *payment)
	s.mu.Unlock()
	return true
}

func (s *Server) verify(endpoint string, envelope *x402.PaymentProofEnvelope, req *x402.PaymentRequirement) (*Payment, error) {
	s.mu.Lock()
	reject := s.rejectMessage
	s.mu.Unlock()
	if reject != "" {
		return nil, fmt.Errorf("%s", reject)
	}

	if envelope.Scheme != x402.SchemeExact {
		return nil, fmt.Errorf("unsupported scheme %q", envelope.Scheme)
	}
	if envelope.Network != req.Network {
		return nil, fmt.Errorf("network mismatch: %s", envelope.Network)
	}

	exact, err := evm.ParseExactPayload(envelope.Payload)
	if err != nil {
		return nil, err
	}
	auth := exact.Authorization
	if auth.Value != req.MaxAmountRequired {
		return nil, fmt.Errorf("amount mismatch: expected %s, got %s", req.MaxAmountRequired, auth.Value)
	}
	if !strings.EqualFold(auth.To, req.PayTo) {
		return nil, fmt.Errorf("recipient mismatch")
	}
	after, errA := strconv.ParseInt(auth.ValidAfter, 10, 64)
	before, errB := strconv.ParseInt(auth.ValidBefore, 10, 64)
	if errA != nil || errB != nil || before <= after {
		return nil, fmt.Errorf("invalid validity window")
	}
	if now := time.Now().Unix(); now >= before {
		return nil, fmt.Errorf("authorization expired")
	}

	domain := evm.DomainFor(req, evm.DomainDefaults{})
	signer, err := evm.RecoverTypedDataSigner(evm.TransferWithAuthorization(domain, auth), exact.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	if !strings.EqualFold(signer.Hex(), auth.From) {
		return nil, fmt.Errorf("signature does not match payer")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nonces[auth.Nonce] {
		return nil, fmt.Errorf("authorization nonce already used")
	}
	s.nonces[auth.Nonce] = true

	return &Payment{
		Endpoint:      endpoint,
		Envelope:      envelope,
		Authorization: auth,
		Signer:        signer.Hex(),
	}, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, _ *http.Request, body []byte, _ map[string]string) {
	var req struct {
		Address   string `json:"address"`
		Timestamp string `json:"timestamp"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	message := fmt.Sprintf("AARIKA_LOGIN\naddress:%s\nts:%s", strings.ToLower(req.Address), req.Timestamp)
	signer, err := evm.RecoverMessageSigner([]byte(message), req.Signature)
	if err != nil || !strings.EqualFold(signer.Hex(), req.Address) {
		sendError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	token := uuid.NewString()
	expiresAt := time.Now().Add(s.cfg.TokenTTL).Unix()
	s.mu.Lock()
	s.tokens[token] = req.Address
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: token, Path: "/auth", HttpOnly: true})
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresAt": expiresAt,
		"address":   req.Address,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, _ []byte, _ map[string]string) {
	cookie, err := r.Cookie("refresh_token")
	if err != nil {
		sendError(w, http.StatusUnauthorized, "no refresh token")
		return
	}

	s.mu.Lock()
	address, ok := s.tokens[cookie.Value]
	s.mu.Unlock()
	if !ok {
		sendError(w, http.StatusUnauthorized, "unknown refresh token")
		return
	}
	sendJSON(w, http.StatusOK, map[string]interface{}{
		"token":     cookie.Value,
		"expiresAt": time.Now().Add(s.cfg.TokenTTL).Unix(),
		"address":   address,
	})
}

// Authenticated reports whether token was issued by a login.
func (s *Server) Authenticated(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok
}

func sendPaymentRequired(w http.ResponseWriter, req *x402.PaymentRequirement, reason string) {
	challenge := &x402.PaymentChallenge{
		X402Version: x402.DefaultProtocolVersion,
		Accepts:     []x402.PaymentRequirement{*req},
		Error:       reason,
	}
	if encoded, err := x402.EncodeChallenge(challenge); err == nil {
		w.Header().Set(x402.HeaderPaymentRequired, encoded)
	}
	sendJSON(w, http.StatusPaymentRequired, challenge)
}

func sendError(w http.ResponseWriter, statusCode int, message string) {
	sendJSON(w, statusCode, map[string]string{"error": message})
}

func sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func fakeTxHash(parts ...string) string {
	return crypto.Keccak256Hash([]byte(strings.Join(parts, ":"))).Hex()
}

var _ http.Handler = (*Server)(nil)
