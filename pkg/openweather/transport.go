package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// get makes a GET request to the weather API with retry logic.
//
// Requests wait on the rate limiter, and temporary failures (network
// errors, 429 and 5xx) are retried with exponential backoff.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("appid", c.apiKey)
	query.Set("units", string(c.units))
	if c.language != "" {
		query.Set("lang", c.language)
	}
	endpoint := c.baseURL + path + "?" + query.Encode()

	var lastErr error
	backoff := c.backoff

	for i := 0; i < c.maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		c.logDebugf("openweather: GET %s (attempt %d/%d)", path, i+1, c.maxRetries)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "desky/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetryNetworkError(err) && i < c.maxRetries-1 {
				c.logDebugf("openweather: network error, retrying: %v", err)
				if !sleep(ctx, backoff) {
					return nil, ctx.Err()
				}
				backoff = nextBackoff(backoff)
				continue
			}
			return nil, fmt.Errorf("http request failed: %w", err)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			c.logDebugf("openweather: GET %s succeeded", path)
			return body, nil
		}

		apiErr := parseError(resp.StatusCode, body)
		if apiErr.Temporary() && i < c.maxRetries-1 {
			c.logDebugf("openweather: temporary error, retrying: %v", apiErr)
			lastErr = apiErr
			if !sleep(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		return nil, apiErr
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// parseError builds an *Error from a failed response.
func parseError(status int, body []byte) *Error {
	apiErr := &Error{StatusCode: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		apiErr.Message = eb.Message
	}
	return apiErr
}

// shouldRetryNetworkError checks if a network error is retryable.
func shouldRetryNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// sleep waits for the specified duration or until context is cancelled.
// Returns true if sleep completed, false if context was cancelled.
func sleep(ctx context.Context, duration time.Duration) bool {
	t := time.NewTimer(duration)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// nextBackoff calculates the next backoff duration with exponential increase.
// Maximum backoff is capped at 30 seconds.
func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > 30*time.Second {
		return 30 * time.Second
	}
	return next
}
