package openweather

import (
	"strconv"
	"time"
)

// Location identifies where to report weather for.
type Location struct {
	City      string  // City name, optionally "City,CountryCode"
	Lat       float64 // Latitude, used when HasCoords is set
	Lon       float64 // Longitude, used when HasCoords is set
	HasCoords bool
}

// City returns a Location for a named city.
func City(name string) Location {
	return Location{City: name}
}

// Coordinates returns a Location for a latitude and longitude.
func Coordinates(lat, lon float64) Location {
	return Location{Lat: lat, Lon: lon, HasCoords: true}
}

// IsZero reports whether the Location names nothing.
func (l Location) IsZero() bool {
	return l.City == "" && !l.HasCoords
}

// String returns the city name or the coordinates.
func (l Location) String() string {
	if l.HasCoords {
		return strconv.FormatFloat(l.Lat, 'f', 4, 64) + "," + strconv.FormatFloat(l.Lon, 'f', 4, 64)
	}
	return l.City
}

// Conditions is the weather at one point in time.
type Conditions struct {
	Time        time.Time
	Temperature float64 // In the client's units
	FeelsLike   float64
	TempMin     float64
	TempMax     float64
	Humidity    int     // Percent
	Pressure    int     // hPa
	WindSpeed   float64 // m/s, or mph for Imperial
	WindDegrees int
	Summary     string // Condition group, e.g. "Rain"
	Description string // e.g. "light rain"
	Icon        string // Icon code, e.g. "10d"
}

// Current is the current weather at a location.
type Current struct {
	Conditions
	Name    string // Resolved location name
	Country string
	Sunrise time.Time
	Sunset  time.Time
}

// Forecast is a series of future conditions, typically in 3 hour steps.
type Forecast struct {
	Name    string
	Country string
	Entries []Conditions
}

type rawCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type rawMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

type rawWind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
}

type rawEntry struct {
	Dt      int64          `json:"dt"`
	Main    rawMain        `json:"main"`
	Weather []rawCondition `json:"weather"`
	Wind    rawWind        `json:"wind"`
}

type currentResponse struct {
	rawEntry
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
}

type forecastResponse struct {
	List []rawEntry `json:"list"`
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
}

func (e rawEntry) conditions() Conditions {
	c := Conditions{
		Temperature: e.Main.Temp,
		FeelsLike:   e.Main.FeelsLike,
		TempMin:     e.Main.TempMin,
		TempMax:     e.Main.TempMax,
		Humidity:    e.Main.Humidity,
		Pressure:    e.Main.Pressure,
		WindSpeed:   e.Wind.Speed,
		WindDegrees: e.Wind.Deg,
	}
	if e.Dt > 0 {
		c.Time = time.Unix(e.Dt, 0).UTC()
	}
	if len(e.Weather) > 0 {
		c.Summary = e.Weather[0].Main
		c.Description = e.Weather[0].Description
		c.Icon = e.Weather[0].Icon
	}
	return c
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
