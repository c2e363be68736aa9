package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"
)

// ErrNoSigner is returned by authenticated calls on a client without a
// signer.
var ErrNoSigner = errors.New("authenticated endpoint needs a signer")

// APIError represents an error from the REST API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bitfinex api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// errorMessage extracts the text of ["error", code, "text"] bodies.
func errorMessage(status int, body []byte) string {
	var arr []any
	if json.Unmarshal(body, &arr) == nil && len(arr) == 3 && arr[0] == "error" {
		if s, ok := arr[2].(string); ok {
			return s
		}
	}
	return http.StatusText(status)
}

// doRequest performs one HTTP request. Signed requests carry the
// authentication headers for path and body.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body []byte, signed bool) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		if c.signer == nil {
			return nil, ErrNoSigner
		}
		for k, v := range c.signer.SignRequest(path, body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, respBody),
			Body:       respBody,
		}
	}

	return respBody, nil
}

// doWithRetry performs a request with exponential backoff retry. Signed
// requests are re-signed on every attempt so each carries a fresh nonce.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values, body []byte, signed bool) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff
			if backoff > 0 {
				wait = backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			}
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", wait,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

			backoff *= 2
		}

		resp, err := c.doRequest(ctx, method, path, query, body, signed)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a public GET request with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query, nil, false)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// post performs a signed POST request with retries.
func (c *Client) post(ctx context.Context, path string, payload any, result any) error {
	if c.signer == nil {
		return ErrNoSigner
	}

	body := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = b
	}

	resp, err := c.doWithRetry(ctx, http.MethodPost, path, nil, body, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
