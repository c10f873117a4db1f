// Package openweather provides a client for OpenWeatherMap-compatible
// current weather and forecast APIs.
//
// Example usage:
//
//	import "github.com/jfmyers9/desky/pkg/openweather"
//
//	client, err := openweather.NewClient(openweather.Config{
//	    APIKey: "your-api-key",
//	    Units:  openweather.Metric,
//	})
//
//	current, err := client.Current(ctx, openweather.City("Lisbon"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("%.0f° %s\n", current.Temperature, current.Description)
package openweather

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Units selects the unit system of returned values.
type Units string

const (
	Standard Units = "standard" // Kelvin, m/s
	Metric   Units = "metric"   // Celsius, m/s
	Imperial Units = "imperial" // Fahrenheit, mph
)

// Config holds client configuration.
type Config struct {
	APIKey     string       // Required: API key sent as appid
	HTTPClient *http.Client // Optional: HTTP client (defaults to a client with a 10s timeout)
	BaseURL    string       // Optional: Base URL for API (defaults to OpenWeatherMap, used for testing)
	Units      Units        // Optional: defaults to Metric
	Language   string       // Optional: language for descriptions
	RateLimit  rate.Limit   // Optional: requests per second (defaults to 1)
	Logger     Logger       // Optional: Logger interface for debug logging
}

// Logger is an optional interface for logging.
type Logger interface {
	// Debugf logs a debug message with format and arguments.
	Debugf(format string, args ...interface{})
}

// Client is the main entry point for weather API operations.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	units      Units
	language   string
	limiter    *rate.Limiter
	logger     Logger

	// retry schedule for temporary failures
	maxRetries int
	backoff    time.Duration
}

const (
	// DefaultBaseURL is the default OpenWeatherMap API endpoint.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
)

// NewClient creates a new weather API client.
//
// Returns an error if the APIKey is missing.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openweather: APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	units := cfg.Units
	if units == "" {
		units = Metric
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 1
	}

	return &Client{
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		units:      units,
		language:   cfg.Language,
		limiter:    rate.NewLimiter(limit, 2),
		logger:     cfg.Logger,
		maxRetries: 3,
		backoff:    time.Second,
	}, nil
}

// Units returns the unit system used for requests.
func (c *Client) Units() Units {
	return c.units
}

// logDebugf logs a debug message if a logger is configured.
func (c *Client) logDebugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}
