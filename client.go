package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ResponseKind tags which field of a Response is populated.
type ResponseKind int

const (
	// KindSuccess: status 200, Body holds the action payload.
	KindSuccess ResponseKind = iota + 1
	// KindPaymentRequired: status 402, Challenge holds the payment terms.
	KindPaymentRequired
	// KindError: any other status (including synthetic 500s), Failure is set.
	KindError
)

func (k ResponseKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindPaymentRequired:
		return "payment-required"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Response is the result of one gated-call attempt.
type Response struct {
	StatusCode int
	Kind       ResponseKind
	Body       json.RawMessage
	Challenge  *PaymentChallenge
	Failure    *APIError
	Header     http.Header

	// Err is set only on synthetic failures: the request could not be sent
	// or its response could not be read or decoded.
	Err error
}

// Decode unmarshals a success body into out.
func (r *Response) Decode(out interface{}) error {
	if r.Kind != KindSuccess {
		return fmt.Errorf("cannot decode %s response", r.Kind)
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Client executes gated calls against the backend. A Client never retries;
// resubmitting with proof is an explicit second Attempt by the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a new handshake client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		userAgent:  cfg.UserAgent,
	}, nil
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Attempt POSTs body to endpoint, attaching proof in the X-PAYMENT header
// when it is non-empty. Transport and decoding failures are reported as a
// synthetic 500 response whose Failure carries the underlying message.
func (c *Client) Attempt(ctx context.Context, endpoint string, body interface{}, proof string) *Response {
	bodyJSON, err := marshalCompact(body)
	if err != nil {
		return syntheticFailure(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return syntheticFailure(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if proof != "" {
		req.Header.Set(HeaderPayment, proof)
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syntheticFailure(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return syntheticFailure(fmt.Errorf("failed to read response body: %w", err))
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if !json.Valid(respBody) {
			return syntheticFailure(fmt.Errorf("invalid JSON in response body"))
		}
		return &Response{
			StatusCode: resp.StatusCode,
			Kind:       KindSuccess,
			Body:       json.RawMessage(respBody),
			Header:     resp.Header,
		}

	case http.StatusPaymentRequired:
		challenge, err := parseChallenge(respBody, resp.Header)
		if err != nil {
			return syntheticFailure(err)
		}
		return &Response{
			StatusCode: resp.StatusCode,
			Kind:       KindPaymentRequired,
			Challenge:  challenge,
			Header:     resp.Header,
		}

	default:
		failure := &APIError{}
		if len(respBody) > 0 {
			// A non-JSON error body leaves Failure empty; callers fall back
			// to a generic message.
			_ = json.Unmarshal(respBody, failure)
		}
		return &Response{
			StatusCode: resp.StatusCode,
			Kind:       KindError,
			Failure:    failure,
			Header:     resp.Header,
		}
	}
}

// Get performs an ungated GET and decodes a 2xx JSON body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, header http.Header, out interface{}) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, header, out)
}

// Post performs an ungated POST and decodes a 2xx JSON body into out. A nil
// body sends an empty request.
func (c *Client) Post(ctx context.Context, path string, body interface{}, header http.Header, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyJSON, err := marshalCompact(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyJSON)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, header, out)
}

func (c *Client) do(req *http.Request, header http.Header, out interface{}) error {
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	c.setCommonHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var apiErr APIError
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Message() != "" {
			return &StatusError{StatusCode: resp.StatusCode, Message: apiErr.Message()}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(bodyBytes))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

// StatusError is returned by Get and Post for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

func syntheticFailure(err error) *Response {
	return &Response{
		StatusCode: http.StatusInternalServerError,
		Kind:       KindError,
		Failure:    &APIError{Error: err.Error()},
		Err:        err,
	}
}

func parseChallenge(body []byte, header http.Header) (*PaymentChallenge, error) {
	var challenge PaymentChallenge
	bodyErr := json.Unmarshal(body, &challenge)
	if bodyErr == nil && len(challenge.Accepts) > 0 {
		return &challenge, nil
	}
	if encoded := header.Get(HeaderPaymentRequired); encoded != "" {
		if decoded, err := DecodeChallenge(encoded); err == nil {
			if decoded.Error == "" {
				decoded.Error = challenge.Error
			}
			return decoded, nil
		}
	}
	if bodyErr == nil {
		// No usable header; an empty accepts list surfaces as invalid payment info.
		return &challenge, nil
	}
	return nil, fmt.Errorf("failed to parse payment challenge: %w", bodyErr)
}
