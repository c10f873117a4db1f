package openweather

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// Error represents an error response from the weather API.
type Error struct {
	StatusCode int    // HTTP status code
	Message    string // Error message from the API
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openweather: status %d", e.StatusCode)
	}
	return fmt.Sprintf("openweather: status %d: %s", e.StatusCode, e.Message)
}

// Is matches errors with the same status code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

// Temporary returns true if the request should be retried.
//
// Rate limiting (429) and server errors (5xx) are temporary.
// Invalid keys (401) and unknown locations (404) are not.
func (e *Error) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Predefined errors for common cases.
var (
	// ErrUnauthorized matches responses rejecting the API key.
	ErrUnauthorized = &Error{StatusCode: http.StatusUnauthorized}

	// ErrNotFound matches responses for unknown locations.
	ErrNotFound = &Error{StatusCode: http.StatusNotFound}

	// ErrNoLocation is returned when a Location names neither a city nor coordinates.
	ErrNoLocation = fmt.Errorf("openweather: location required")
)

// apiCode is the "cod" field, which the API sends as a number or a string.
type apiCode int

func (c *apiCode) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = apiCode(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("openweather: bad cod %q", s)
	}
	*c = apiCode(n)
	return nil
}

// errorBody is the JSON body of a failed request.
type errorBody struct {
	Code    apiCode `json:"cod"`
	Message string  `json:"message"`
}
