package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string

	// Fixed output width for the now command (0 disables padding)
	OutputWidth int

	// Marquee scrolling for the now command when text exceeds OutputWidth
	MarqueeEnabled   bool
	MarqueeSpeed     int
	MarqueeSeparator string

	// Poll interval for playback state (in seconds)
	PollInterval int

	// Connect to Spotify on launch when credentials are present
	AutoConnect bool

	// Data directory for the token database
	// Default: ~/.local/share/desky
	DataDir string

	Spotify SpotifyConfig
	Session SessionConfig
	Clock   ClockConfig
	Weather WeatherConfig
	Server  ServerConfig
}

// SpotifyConfig holds Spotify application credentials and endpoints
type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIURL       string
}

// SessionConfig holds connection timing knobs
type SessionConfig struct {
	MaxRetries        int
	RetryBackoff      time.Duration
	MaxBackoff        time.Duration
	ConnectTimeout    time.Duration
	ResumeWindow      time.Duration
	ReconnectDebounce time.Duration
	RefreshSkew       time.Duration
}

// ClockConfig holds clock display settings
type ClockConfig struct {
	Use24Hour bool
}

// WeatherConfig holds weather provider settings
type WeatherConfig struct {
	APIKey          string
	BaseURL         string
	City            string
	Lat             float64
	Lon             float64
	Units           string
	RefreshInterval time.Duration
}

// ServerConfig holds the local status API settings
type ServerConfig struct {
	// Listen address; empty disables the API
	Addr string
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)

	// Config file is optional
	_ = v.ReadInConfig()

	// spotify.client_id is read from DESKY_SPOTIFY_CLIENT_ID
	v.SetEnvPrefix("DESKY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", 2)
	v.SetDefault("marquee_separator", " • ")
	v.SetDefault("poll_interval", 3)
	v.SetDefault("auto_connect", true)
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("spotify.redirect_uri", "desky://callback")
	v.SetDefault("spotify.scopes", []string{
		"user-read-playback-state",
		"user-modify-playback-state",
		"user-read-currently-playing",
	})
	v.SetDefault("spotify.auth_url", "https://accounts.spotify.com/authorize")
	v.SetDefault("spotify.token_url", "https://accounts.spotify.com/api/token")
	v.SetDefault("spotify.api_url", "https://api.spotify.com/v1/")

	v.SetDefault("session.max_retries", 3)
	v.SetDefault("session.retry_backoff", "2s")
	v.SetDefault("session.max_backoff", "30s")
	v.SetDefault("session.connect_timeout", "10s")
	v.SetDefault("session.resume_window", "24h")
	v.SetDefault("session.reconnect_debounce", "2s")
	v.SetDefault("session.refresh_skew", "5m")

	v.SetDefault("clock.use_24h", false)

	v.SetDefault("weather.base_url", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("weather.units", "metric")
	v.SetDefault("weather.refresh_interval", "10m")

	v.SetDefault("server.addr", "127.0.0.1:7878")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		OutputFormat:     v.GetString("output_format"),
		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
		PollInterval:     v.GetInt("poll_interval"),
		AutoConnect:      v.GetBool("auto_connect"),
		DataDir:          v.GetString("data_dir"),
		Spotify: SpotifyConfig{
			ClientID:     v.GetString("spotify.client_id"),
			ClientSecret: v.GetString("spotify.client_secret"),
			RedirectURI:  v.GetString("spotify.redirect_uri"),
			Scopes:       v.GetStringSlice("spotify.scopes"),
			AuthURL:      v.GetString("spotify.auth_url"),
			TokenURL:     v.GetString("spotify.token_url"),
			APIURL:       v.GetString("spotify.api_url"),
		},
		Session: SessionConfig{
			MaxRetries:        v.GetInt("session.max_retries"),
			RetryBackoff:      v.GetDuration("session.retry_backoff"),
			MaxBackoff:        v.GetDuration("session.max_backoff"),
			ConnectTimeout:    v.GetDuration("session.connect_timeout"),
			ResumeWindow:      v.GetDuration("session.resume_window"),
			ReconnectDebounce: v.GetDuration("session.reconnect_debounce"),
			RefreshSkew:       v.GetDuration("session.refresh_skew"),
		},
		Clock: ClockConfig{
			Use24Hour: v.GetBool("clock.use_24h"),
		},
		Weather: WeatherConfig{
			APIKey:          v.GetString("weather.api_key"),
			BaseURL:         v.GetString("weather.base_url"),
			City:            v.GetString("weather.city"),
			Lat:             v.GetFloat64("weather.lat"),
			Lon:             v.GetFloat64("weather.lon"),
			Units:           v.GetString("weather.units"),
			RefreshInterval: v.GetDuration("weather.refresh_interval"),
		},
		Server: ServerConfig{
			Addr: v.GetString("server.addr"),
		},
	}
}

// PollDuration returns the poll interval as a duration
func (c *Config) PollDuration() time.Duration {
	if c.PollInterval <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.PollInterval) * time.Second
}

// DatabasePath returns the location of the token database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "desky.db")
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "desky")

	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

func defaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share", "desky")
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configDir := getConfigDir()
	configFile := filepath.Join(configDir, "config.yaml")

	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)
	v.Set("poll_interval", c.PollInterval)
	v.Set("auto_connect", c.AutoConnect)
	v.Set("data_dir", c.DataDir)

	v.Set("spotify.client_id", c.Spotify.ClientID)
	v.Set("spotify.client_secret", c.Spotify.ClientSecret)
	v.Set("spotify.redirect_uri", c.Spotify.RedirectURI)
	v.Set("spotify.scopes", c.Spotify.Scopes)

	v.Set("session.max_retries", c.Session.MaxRetries)
	v.Set("session.retry_backoff", c.Session.RetryBackoff.String())
	v.Set("session.max_backoff", c.Session.MaxBackoff.String())
	v.Set("session.connect_timeout", c.Session.ConnectTimeout.String())
	v.Set("session.resume_window", c.Session.ResumeWindow.String())
	v.Set("session.reconnect_debounce", c.Session.ReconnectDebounce.String())
	v.Set("session.refresh_skew", c.Session.RefreshSkew.String())

	v.Set("clock.use_24h", c.Clock.Use24Hour)

	v.Set("weather.api_key", c.Weather.APIKey)
	v.Set("weather.city", c.Weather.City)
	v.Set("weather.lat", c.Weather.Lat)
	v.Set("weather.lon", c.Weather.Lon)
	v.Set("weather.units", c.Weather.Units)

	v.Set("server.addr", c.Server.Addr)

	return v.WriteConfigAs(configFile)
}
