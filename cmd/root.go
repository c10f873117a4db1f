/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/auth"
	"github.com/jfmyers9/desky/internal/config"
	"github.com/jfmyers9/desky/internal/daemon"
	"github.com/jfmyers9/desky/internal/session"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var (
	logFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "desky",
	Short: "Desk companion for Spotify, the clock and the weather",
	Long: `desky is a desk companion that shows what Spotify is playing,
the time and the local weather.

It runs as a background daemon that keeps a Spotify session open while
the app is in the foreground, publishes the current track, and serves a
small local API that the other commands and status bars can query.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}

// debugLogger adapts zerolog to printf-style Debugf loggers
type debugLogger struct {
	logger zerolog.Logger
}

func (l debugLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// authConfig maps the Spotify section of the config file
func authConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURI:  cfg.Spotify.RedirectURI,
		Scopes:       cfg.Spotify.Scopes,
		AuthURL:      cfg.Spotify.AuthURL,
		TokenURL:     cfg.Spotify.TokenURL,
		RefreshSkew:  cfg.Session.RefreshSkew,
	}
}

// daemonConfig builds the daemon configuration from the config file
func daemonConfig(cfg *config.Config) daemon.Config {
	return daemon.Config{
		DataDir:      cfg.DataDir,
		PollInterval: cfg.PollDuration(),
		ServerAddr:   cfg.Server.Addr,
		APIURL:       cfg.Spotify.APIURL,
		Auth:         authConfig(cfg),
		Session: session.Config{
			MaxRetries:     cfg.Session.MaxRetries,
			RetryBackoff:   cfg.Session.RetryBackoff,
			MaxBackoff:     cfg.Session.MaxBackoff,
			ConnectTimeout: cfg.Session.ConnectTimeout,
			ResumeWindow:   cfg.Session.ResumeWindow,
		},
		Lifecycle: daemon.LifecycleConfig{
			ReconnectDebounce: cfg.Session.ReconnectDebounce,
			AutoConnect:       cfg.AutoConnect,
		},
	}
}

// loadConfig loads the config file and requires Spotify credentials
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Spotify.ClientID == "" {
		return nil, fmt.Errorf("Spotify client id not configured. Run 'desky login' first")
	}
	return cfg, nil
}
