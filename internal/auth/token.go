package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jfmyers9/desky/internal/apperr"
)

// ProviderError is an error reported by the accounts service
type ProviderError struct {
	Code        string // OAuth error code, e.g. invalid_grant
	Description string // Optional human-readable description
}

// Error returns the error message.
func (e *ProviderError) Error() string {
	return "spotify: " + e.Message()
}

// Message returns the provider's description, falling back to the code
func (e *ProviderError) Message() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s (%s)", e.Description, e.Code)
}

// tokenResponse covers both success and error bodies of the token endpoint
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (r *tokenResponse) expiry(now time.Time) time.Time {
	if r.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}

// classifyProviderError maps an OAuth error code to a failure kind
func classifyProviderError(code string) apperr.Kind {
	switch code {
	case "access_denied":
		return apperr.UserCancelable
	case "temporarily_unavailable", "server_error":
		return apperr.Transient
	default:
		return apperr.Terminal
	}
}

// requestToken performs a single form-encoded POST to the token endpoint.
// Every failure is returned as an *apperr.Error.
func (f *Flow) requestToken(ctx context.Context, op string, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperr.New(apperr.Terminal, op, "could not build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "desky/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, apperr.New(apperr.Transient, op, "token request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.New(apperr.Transient, op, "could not read token response", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		if resp.StatusCode >= 500 {
			return nil, apperr.New(apperr.Transient, op,
				fmt.Sprintf("token endpoint returned %d", resp.StatusCode), err)
		}
		return nil, apperr.New(apperr.Decode, op, "malformed token response", err)
	}

	if tr.AccessToken != "" {
		return &tr, nil
	}

	if tr.Error != "" {
		perr := &ProviderError{Code: tr.Error, Description: tr.ErrorDescription}
		return nil, apperr.New(classifyProviderError(tr.Error), op, perr.Message(), perr)
	}

	return nil, apperr.New(apperr.Decode, op, "token response has neither access_token nor error",
		fmt.Errorf("unexpected token response (status %d)", resp.StatusCode))
}
