// Package polymarket talks to the Polymarket CLOB: signed order placement,
// midpoint quotes and the market WebSocket.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/autobot/internal/crypto"
	"github.com/alanyoungcy/autobot/internal/domain"
)

const (
	maxRetries    = 3
	baseRetryWait = 250 * time.Millisecond
	zeroAddress   = "0x0000000000000000000000000000000000000000"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	signer     *crypto.Signer
	hmacAuth   *crypto.HMACAuth
}

// ClobOption customises a ClobClient.
type ClobOption func(*ClobClient)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) ClobOption {
	return func(cc *ClobClient) { cc.httpClient = c }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) ClobOption {
	return func(cc *ClobClient) {
		if rps > 0 {
			cc.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

// NewClobClient creates a CLOB client. signer and hmac may be nil for a
// quote-only client.
func NewClobClient(baseURL string, signer *crypto.Signer, hmac *crypto.HMACAuth, opts ...ClobOption) *ClobClient {
	c := &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		signer:     signer,
		hmacAuth:   hmac,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostOrder submits a signed order. A response with success=false is
// returned as a result, not an error, so callers can read the message.
func (c *ClobClient) PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	if c.signer == nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", domain.ErrUnauthorized)
	}
	salt, err := strconv.ParseInt(order.Salt, 10, 64)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: salt %q: %w", order.Salt, err)
	}
	signerAddr := order.Signer
	if signerAddr == "" {
		signerAddr = c.signer.Address().Hex()
	}

	body := map[string]any{
		"order": map[string]any{
			"salt":          salt,
			"maker":         order.Wallet,
			"signer":        signerAddr,
			"taker":         zeroAddress,
			"tokenId":       order.TokenID,
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"expiration":    "0",
			"nonce":         "0",
			"feeRateBps":    "0",
			"side":          string(order.Side),
			"signatureType": order.SignatureType,
			"signature":     order.Signature,
		},
		"owner":     c.apiKey(),
		"orderType": string(order.Type),
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return apiResult.ToDomainOrderResult(), nil
}

// Midpoint returns the current midpoint price for tokenID. Rate-limit and
// server errors are retried with exponential backoff.
func (c *ClobClient) Midpoint(ctx context.Context, tokenID string) (float64, error) {
	endpoint := c.baseURL + "/midpoint?token_id=" + url.QueryEscape(tokenID)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("polymarket/clob: midpoint: rate limiter: %w", err)
		}

		body, err := c.get(ctx, endpoint)
		if err == nil {
			var resp midpointResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
			}
			mid, err := strconv.ParseFloat(resp.Mid, 64)
			if err != nil {
				return 0, fmt.Errorf("polymarket/clob: midpoint %q: %w", resp.Mid, err)
			}
			return mid, nil
		}
		lastErr = err
		if !retryable(err) || attempt == maxRetries {
			break
		}
		if err := sleepBackoff(ctx, attempt); err != nil {
			return 0, fmt.Errorf("polymarket/clob: midpoint %s: %w", tokenID, err)
		}
	}
	return 0, fmt.Errorf("polymarket/clob: midpoint %s: %w", tokenID, lastErr)
}

// DeriveAPIKey performs the CLOB L1 auth flow: it signs a ClobAuth EIP-712
// message and exchanges it for HMAC API credentials, which are then used for
// every authenticated request.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	if c.signer == nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", domain.ErrUnauthorized)
	}
	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	nonce := int64(0)

	sig, err := c.signer.SignAuthMessage(address, timestamp, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", address)
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("polymarket/clob: auth failed: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}

	c.hmacAuth = &crypto.HMACAuth{
		Key:        authResp.APIKey,
		Secret:     authResp.Secret,
		Passphrase: authResp.Passphrase,
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *ClobClient) apiKey() string {
	if c.hmacAuth == nil {
		return ""
	}
	return c.hmacAuth.Key
}

func (c *ClobClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		address := c.signer.Address().Hex()
		for k, v := range c.hmacAuth.L2Headers(address, method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// statusError is a non-2xx response that maps to no domain error.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return &statusError{code: statusCode, body: bodyStr}
	}
}

func retryable(err error) bool {
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var se *statusError
	return errors.As(err, &se) && se.code >= 500
}

func sleepBackoff(ctx context.Context, attempt int) error {
	wait := baseRetryWait << attempt
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
