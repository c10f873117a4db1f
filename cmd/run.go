package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/config"
	"github.com/jfmyers9/desky/internal/daemon"
	"github.com/jfmyers9/desky/internal/tui"
	"github.com/jfmyers9/desky/pkg/openweather"
)

var runTUIFlag bool

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the desky daemon",
	Long: `Run the desky daemon in the foreground.

The daemon will:
- Connect to Spotify on launch when you are logged in
- Poll playback state and publish the current track to now.json
- Close the session when suspended (Ctrl-Z) and resume it on fg
- Refresh the access token before it expires
- Serve the local API used by 'desky status', 'desky now' and 'desky callback'
- Handle graceful shutdown on SIGINT/SIGTERM

Use --tui to show the tabbed terminal interface on top of the daemon.
Logs go to stderr by default, or to the data directory with --tui.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runTUIFlag, "tui", false, "Show the terminal interface")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return startDaemon(cmd.Context(), cfg, runTUIFlag)
}

func startDaemon(ctx context.Context, cfg *config.Config, withTUI bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// The terminal belongs to the interface, so logs go to a file
	path := logFile
	if withTUI && path == "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(cfg.DataDir, "desky.log")
	}
	logger := setupLogger(path, logLevel)

	logger.Info().
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Msg("Starting desky")

	d, err := daemon.New(daemonConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if withTUI {
		err = runWithTUI(ctx, cfg, d, logger)
	} else {
		err = d.Run(ctx)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Daemon error")
	}

	if shutdownErr := d.Shutdown(); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("Error during shutdown")
		if err == nil {
			err = shutdownErr
		}
	}

	logger.Info().Msg("desky stopped")
	return err
}

func runWithTUI(ctx context.Context, cfg *config.Config, d *daemon.Daemon, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	tuiCfg := tui.DefaultConfig()
	tuiCfg.Use24Hour = cfg.Clock.Use24Hour
	tuiCfg.Location = weatherLocation(cfg)
	if cfg.Weather.RefreshInterval > 0 {
		tuiCfg.WeatherRefresh = cfg.Weather.RefreshInterval
	}

	// Keep the interface nil-safe: a typed nil client is not a nil source
	var source tui.WeatherSource
	if wc, err := newWeatherClient(cfg, logger); err != nil {
		logger.Info().Err(err).Msg("Weather disabled")
	} else {
		source = wc
	}

	app := tui.New(tuiCfg, d, source)
	tuiErr := app.Run(ctx)

	cancel()
	if err := <-errc; err != nil {
		return err
	}
	return tuiErr
}

// newWeatherClient builds a client from the weather section of the config
func newWeatherClient(cfg *config.Config, logger zerolog.Logger) (*openweather.Client, error) {
	return openweather.NewClient(openweather.Config{
		APIKey:  cfg.Weather.APIKey,
		BaseURL: cfg.Weather.BaseURL,
		Units:   openweather.Units(cfg.Weather.Units),
		Logger:  debugLogger{logger: logger.With().Str("component", "weather").Logger()},
	})
}

// weatherLocation prefers the configured city over coordinates
func weatherLocation(cfg *config.Config) openweather.Location {
	if cfg.Weather.City != "" {
		return openweather.City(cfg.Weather.City)
	}
	if cfg.Weather.Lat != 0 || cfg.Weather.Lon != 0 {
		return openweather.Coordinates(cfg.Weather.Lat, cfg.Weather.Lon)
	}
	return openweather.Location{}
}
