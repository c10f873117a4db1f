package openweather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

const currentBody = `{
	"weather": [{"id": 500, "main": "Rain", "description": "light rain", "icon": "10d"}],
	"main": {"temp": 14.2, "feels_like": 13.6, "temp_min": 12.9, "temp_max": 15.1, "pressure": 1012, "humidity": 81},
	"wind": {"speed": 4.6, "deg": 250},
	"dt": 1777626000,
	"sys": {"country": "PT", "sunrise": 1777613400, "sunset": 1777663800},
	"name": "Lisbon",
	"cod": 200
}`

const forecastBody = `{
	"cod": "200",
	"list": [
		{"dt": 1777636800, "main": {"temp": 15.0, "humidity": 75}, "weather": [{"main": "Clouds", "description": "broken clouds", "icon": "04d"}], "wind": {"speed": 3.1, "deg": 240}},
		{"dt": 1777647600, "main": {"temp": 16.4, "humidity": 70}, "weather": [{"main": "Clear", "description": "clear sky", "icon": "01d"}], "wind": {"speed": 2.2, "deg": 200}}
	],
	"city": {"name": "Lisbon", "country": "PT"}
}`

// newTestClient returns a client pointed at handler with retries that
// do not sleep and no effective rate limit.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		APIKey:    "test-key",
		BaseURL:   srv.URL,
		RateLimit: rate.Inf,
	})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	c.backoff = time.Millisecond
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected an error without an API key")
	}
}

func TestClient_Current(t *testing.T) {
	tests := []struct {
		name      string
		loc       Location
		wantQuery map[string]string
	}{
		{
			name:      "city",
			loc:       City("Lisbon,PT"),
			wantQuery: map[string]string{"q": "Lisbon,PT", "appid": "test-key", "units": "metric"},
		},
		{
			name:      "coordinates",
			loc:       Coordinates(38.7223, -9.1393),
			wantQuery: map[string]string{"lat": "38.7223", "lon": "-9.1393", "appid": "test-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/weather" {
					t.Errorf("path = %s, want /weather", r.URL.Path)
				}
				for k, want := range tt.wantQuery {
					if got := r.URL.Query().Get(k); got != want {
						t.Errorf("query %s = %q, want %q", k, got, want)
					}
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(currentBody))
			})

			got, err := c.Current(context.Background(), tt.loc)
			if err != nil {
				t.Fatalf("Current() error: %v", err)
			}
			if got.Name != "Lisbon" || got.Country != "PT" {
				t.Errorf("location = %s/%s", got.Name, got.Country)
			}
			if got.Temperature != 14.2 || got.Humidity != 81 || got.WindDegrees != 250 {
				t.Errorf("conditions = %+v", got.Conditions)
			}
			if got.Summary != "Rain" || got.Description != "light rain" || got.Icon != "10d" {
				t.Errorf("summary = %q/%q/%q", got.Summary, got.Description, got.Icon)
			}
			if got.Sunrise.Unix() != 1777613400 || got.Time.Unix() != 1777626000 {
				t.Errorf("times = %v %v", got.Sunrise, got.Time)
			}
		})
	}
}

func TestClient_Forecast(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast" {
			t.Errorf("path = %s, want /forecast", r.URL.Path)
		}
		_, _ = w.Write([]byte(forecastBody))
	})

	got, err := c.Forecast(context.Background(), City("Lisbon"))
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	if got.Name != "Lisbon" || len(got.Entries) != 2 {
		t.Fatalf("forecast = %+v", got)
	}
	if got.Entries[1].Summary != "Clear" || got.Entries[1].Temperature != 16.4 {
		t.Errorf("second entry = %+v", got.Entries[1])
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       []int
		body         string
		wantRequests int32
		wantErr      error
		wantTemp     bool
	}{
		{
			name:         "unknown city is not retried",
			status:       []int{http.StatusNotFound},
			body:         `{"cod": "404", "message": "city not found"}`,
			wantRequests: 1,
			wantErr:      ErrNotFound,
		},
		{
			name:         "bad key is not retried",
			status:       []int{http.StatusUnauthorized},
			body:         `{"cod": 401, "message": "Invalid API key"}`,
			wantRequests: 1,
			wantErr:      ErrUnauthorized,
		},
		{
			name:         "server errors exhaust retries",
			status:       []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusServiceUnavailable},
			body:         `{"cod": 503, "message": "busy"}`,
			wantRequests: 3,
			wantErr:      &Error{StatusCode: http.StatusServiceUnavailable},
			wantTemp:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				n := requests.Add(1)
				w.WriteHeader(tt.status[int(n-1)%len(tt.status)])
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Current(context.Background(), City("Atlantis"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %T, want *Error", err)
			}
			if apiErr.Temporary() != tt.wantTemp {
				t.Errorf("Temporary() = %v, want %v", apiErr.Temporary(), tt.wantTemp)
			}
			if got := requests.Load(); got != tt.wantRequests {
				t.Errorf("requests = %d, want %d", got, tt.wantRequests)
			}
		})
	}
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var requests atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(currentBody))
	})

	got, err := c.Current(context.Background(), City("Lisbon"))
	if err != nil {
		t.Fatalf("Current() error: %v", err)
	}
	if got.Name != "Lisbon" {
		t.Errorf("name = %q", got.Name)
	}
	if requests.Load() != 2 {
		t.Errorf("requests = %d, want 2", requests.Load())
	}
}

func TestClient_NoLocation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	if _, err := c.Current(context.Background(), Location{}); !errors.Is(err, ErrNoLocation) {
		t.Errorf("err = %v, want ErrNoLocation", err)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.backoff = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Current(ctx, City("Lisbon"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the backoff")
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		current time.Duration
		want    time.Duration
	}{
		{time.Second, 2 * time.Second},
		{8 * time.Second, 16 * time.Second},
		{20 * time.Second, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := nextBackoff(tt.current); got != tt.want {
			t.Errorf("nextBackoff(%v) = %v, want %v", tt.current, got, tt.want)
		}
	}
}
