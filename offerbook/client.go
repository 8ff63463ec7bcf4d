// Package offerbook is the Taker-side client for the directory / DNS
// service spec.md §1 names as an external collaborator ("publishing and
// retrieving Maker swapcoins"). It also holds the Taker's bad-maker list
// (spec.md §4.5 "Banning", supplemented from original_source/'s
// OfferBook/BadMakerList) and the fidelity-bond-proof gate that must pass
// before a Maker is ever considered a candidate.
//
// The HTTP client is grounded on sputn1ck-taproot-assets's
// lightweight-wallet/chain/mempool/client.go: a rate-limited net/http
// client with bounded retries and linearly growing backoff on 429/5xx, adapted
// from a blockchain-explorer client to a Maker-directory client.
package offerbook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// ClientConfig configures the directory HTTP client.
type ClientConfig struct {
	// BaseURL is the directory service's base URL.
	BaseURL string

	// RateLimit is the number of requests per second allowed against the
	// directory.
	RateLimit int

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RetryAttempts is the number of retry attempts for failed requests.
	RetryAttempts int

	// RetryDelay is the base delay between retry attempts.
	RetryDelay time.Duration
}

// DefaultClientConfig returns sane defaults for talking to a directory
// service.
func DefaultClientConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL:       baseURL,
		RateLimit:     10,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// Client is a rate-limited HTTP client for the directory service's
// "POST maker-url + fidelity-proof; GET list of maker-urls" RPC surface
// (spec.md §6).
type Client struct {
	cfg *ClientConfig

	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient builds a directory client from cfg, falling back to
// DefaultClientConfig("") when cfg is nil. Zero fields of a non-nil cfg
// are used as given.
func NewClient(cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig("")
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)

	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: limiter,
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, newErr(ErrDirectoryUnavailable, "rate-limiter", err)
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, newErr(ErrDirectoryUnavailable, "build-request", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.cfg.RetryAttempts {
				time.Sleep(c.cfg.RetryDelay * time.Duration(attempt+1))
				continue
			}
			return nil, newErr(ErrDirectoryUnavailable, path, lastErr)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, newErr(ErrDirectoryUnavailable, "read-body", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited by directory (429)")
			if attempt < c.cfg.RetryAttempts {
				time.Sleep(c.cfg.RetryDelay * time.Duration(attempt+1) * 2)
				continue
			}
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("directory server error (%d): %s", resp.StatusCode, respBody)
			if attempt < c.cfg.RetryAttempts {
				time.Sleep(c.cfg.RetryDelay * time.Duration(attempt+1))
				continue
			}
		default:
			return nil, newErr(ErrDirectoryUnavailable, path,
				fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody))
		}
	}

	return nil, newErr(ErrDirectoryUnavailable, path, lastErr)
}

// ListMakerHosts fetches the current list of advertised maker-urls.
func (c *Client) ListMakerHosts(ctx context.Context) ([]string, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/makers", nil)
	if err != nil {
		return nil, err
	}

	var hosts []string
	if err := json.Unmarshal(respBody, &hosts); err != nil {
		return nil, newErr(ErrDirectoryUnavailable, "parse-makers", err)
	}
	return hosts, nil
}

// advertiseRequest is the body POSTed to publish a maker-url + proof.
type advertiseRequest struct {
	Host              string `json:"host"`
	FidelityBondProof []byte `json:"fidelity_bond_proof"`
}

// Advertise publishes this node's maker-url and fidelity bond proof to the
// directory (the Maker side of the directory RPC).
func (c *Client) Advertise(ctx context.Context, host string, fidelityBondProof []byte) error {
	body, err := json.Marshal(advertiseRequest{Host: host, FidelityBondProof: fidelityBondProof})
	if err != nil {
		return newErr(ErrDirectoryUnavailable, "marshal-advertise", err)
	}

	_, err = c.doRequest(ctx, http.MethodPost, "/makers", body)
	return err
}
