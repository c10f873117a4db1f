package openweather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// Current returns the current weather at loc.
//
// API Documentation: https://openweathermap.org/current
func (c *Client) Current(ctx context.Context, loc Location) (*Current, error) {
	params, err := locationParams(loc)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/weather", params)
	if err != nil {
		return nil, err
	}

	var resp currentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse weather response: %w", err)
	}

	return &Current{
		Conditions: resp.conditions(),
		Name:       resp.Name,
		Country:    resp.Sys.Country,
		Sunrise:    unixOrZero(resp.Sys.Sunrise),
		Sunset:     unixOrZero(resp.Sys.Sunset),
	}, nil
}

// Forecast returns the upcoming conditions at loc.
//
// API Documentation: https://openweathermap.org/forecast5
func (c *Client) Forecast(ctx context.Context, loc Location) (*Forecast, error) {
	params, err := locationParams(loc)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/forecast", params)
	if err != nil {
		return nil, err
	}

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse forecast response: %w", err)
	}

	f := &Forecast{
		Name:    resp.City.Name,
		Country: resp.City.Country,
		Entries: make([]Conditions, 0, len(resp.List)),
	}
	for _, e := range resp.List {
		f.Entries = append(f.Entries, e.conditions())
	}
	return f, nil
}

func locationParams(loc Location) (url.Values, error) {
	if loc.IsZero() {
		return nil, ErrNoLocation
	}
	params := url.Values{}
	if loc.HasCoords {
		params.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64))
	} else {
		params.Set("q", loc.City)
	}
	return params, nil
}
