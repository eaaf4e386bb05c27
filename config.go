package x402

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the backend used when none is configured.
const DefaultBaseURL = "http://localhost:8000"

// Config holds the handshake client configuration.
type Config struct {
	// BaseURL is the backend root, e.g. "https://core.example.com".
	// Defaults to DefaultBaseURL.
	BaseURL string

	// HTTPClient performs requests. Defaults to a client with Timeout.
	HTTPClient *http.Client

	// Timeout bounds each request made by the default HTTPClient.
	// Defaults to 30 seconds.
	Timeout time.Duration

	// UserAgent is sent on every request when set.
	UserAgent string
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL %q must use http or https", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base URL %q has no host", c.BaseURL)
	}

	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}

	return nil
}
