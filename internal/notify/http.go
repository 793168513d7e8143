package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Option customises a sender's transport.
type Option func(*senderOptions)

type senderOptions struct {
	baseURL string
	client  *http.Client
}

// WithBaseURL points a sender at a different API host.
func WithBaseURL(u string) Option {
	return func(o *senderOptions) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default 10-second client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *senderOptions) { o.client = c }
}

func applyOptions(baseURL string, opts []Option) senderOptions {
	o := senderOptions{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// postJSON posts payload to rawURL and treats any non-2xx answer as an error
// carrying the first KiB of the response body.
func postJSON(ctx context.Context, client *http.Client, rawURL string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// drop the URL: it can carry credentials
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
