package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfmyers9/desky/internal/config"
	"github.com/jfmyers9/desky/pkg/openweather"
)

var (
	weatherCity     string
	weatherForecast bool
)

var weatherCmd = &cobra.Command{
	Use:   "weather",
	Short: "Show the current weather",
	Long: `Show the current weather for the configured location.

Set weather.api_key and either weather.city or weather.lat/weather.lon in
~/.config/desky/config.yaml. Use --forecast for the next 24 hours.`,
	RunE: runWeather,
}

func init() {
	rootCmd.AddCommand(weatherCmd)

	weatherCmd.Flags().StringVar(&weatherCity, "city", "", "City name (overrides config)")
	weatherCmd.Flags().BoolVar(&weatherForecast, "forecast", false, "Show the forecast for the next 24 hours")
}

func runWeather(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if weatherCity != "" {
		cfg.Weather.City = weatherCity
	}

	logger := setupLogger(logFile, logLevel)
	client, err := newWeatherClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("weather is not configured (set weather.api_key): %w", err)
	}

	loc := weatherLocation(cfg)
	if loc.IsZero() {
		return fmt.Errorf("no location configured (set weather.city or weather.lat/weather.lon)")
	}

	if weatherForecast {
		fc, err := client.Forecast(ctx, loc)
		if err != nil {
			return fmt.Errorf("failed to get forecast: %w", err)
		}
		fmt.Printf("%s, %s\n", fc.Name, fc.Country)
		// Entries are three hours apart
		for i, e := range fc.Entries {
			if i == 8 {
				break
			}
			fmt.Printf("  %s  %s  %s\n",
				e.Time.Local().Format("Mon 15:04"),
				formatTemperature(e.Temperature, client.Units()),
				e.Description)
		}
		return nil
	}

	cur, err := client.Current(ctx, loc)
	if err != nil {
		return fmt.Errorf("failed to get weather: %w", err)
	}
	fmt.Printf("%s, %s\n", cur.Name, cur.Country)
	fmt.Printf("  %s  %s (feels like %s)\n",
		formatTemperature(cur.Temperature, client.Units()),
		cur.Description,
		formatTemperature(cur.FeelsLike, client.Units()))
	fmt.Printf("  Humidity %d%%  Wind %.1f %s\n", cur.Humidity, cur.WindSpeed, windSpeedUnit(client.Units()))
	if !cur.Sunrise.IsZero() {
		fmt.Printf("  Sunrise %s  Sunset %s\n",
			cur.Sunrise.Local().Format("15:04"),
			cur.Sunset.Local().Format("15:04"))
	}
	return nil
}

func formatTemperature(t float64, units openweather.Units) string {
	switch units {
	case openweather.Imperial:
		return fmt.Sprintf("%.0f°F", t)
	case openweather.Standard:
		return fmt.Sprintf("%.0fK", t)
	default:
		return fmt.Sprintf("%.0f°C", t)
	}
}

func windSpeedUnit(units openweather.Units) string {
	if units == openweather.Imperial {
		return "mph"
	}
	return "m/s"
}
