package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/koopa0/lakitu/internal/log"
)

// WeatherToolsetName is the toolset identifier constant.
const WeatherToolsetName = "weather"

// weatherUserAgent identifies us to the geocoding service, which rejects
// anonymous clients.
const weatherUserAgent = "lakitu/1.0 (weather tool)"

// WeatherConfig holds the backend endpoints for the weather toolset.
type WeatherConfig struct {
	// GeocodeURL is the geocoding service base URL (Nominatim-compatible).
	GeocodeURL string
	// ForecastURL is the forecast service base URL (Open-Meteo-compatible).
	ForecastURL string
	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// WeatherInput defines input for the getWeather tool.
type WeatherInput struct {
	City string `json:"city" jsonschema_description:"The city name to get current weather for"`
}

// WeatherToolset provides the getWeather tool.
// It resolves a city name to coordinates via a geocoding service, then
// queries a forecast service for current conditions at those coordinates.
type WeatherToolset struct {
	geocodeURL  string
	forecastURL string
	client      *http.Client
	logger      log.Logger
}

// NewWeather creates a WeatherToolset.
func NewWeather(cfg WeatherConfig, logger log.Logger) (*WeatherToolset, error) {
	if cfg.GeocodeURL == "" {
		return nil, fmt.Errorf("geocode URL is required")
	}
	if cfg.ForecastURL == "" {
		return nil, fmt.Errorf("forecast URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &WeatherToolset{
		geocodeURL:  cfg.GeocodeURL,
		forecastURL: cfg.ForecastURL,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}, nil
}

// Name returns the toolset identifier.
func (wt *WeatherToolset) Name() string {
	return WeatherToolsetName
}

// Tools returns all tools provided by this toolset.
func (wt *WeatherToolset) Tools() ([]*ExecutableTool, error) {
	weather, err := NewTool(
		"getWeather",
		"Get the current weather for a city. Returns temperature, humidity, wind speed, and conditions.",
		true, // long running (two network calls)
		wt.CurrentWeather,
	)
	if err != nil {
		return nil, fmt.Errorf("defining getWeather: %w", err)
	}
	return []*ExecutableTool{weather}, nil
}

// geocodeResult is one entry from the geocoding service.
// Coordinates arrive as strings; Nominatim quirk.
type geocodeResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// forecastResponse is the current-conditions slice of the forecast response.
type forecastResponse struct {
	Current struct {
		Time             string  `json:"time"`
		Temperature      float64 `json:"temperature_2m"`
		RelativeHumidity float64 `json:"relative_humidity_2m"`
		WeatherCode      int     `json:"weather_code"`
		WindSpeed        float64 `json:"wind_speed_10m"`
	} `json:"current"`
	CurrentUnits struct {
		Temperature string `json:"temperature_2m"`
		WindSpeed   string `json:"wind_speed_10m"`
	} `json:"current_units"`
}

// CurrentWeather resolves the city and returns current conditions.
// All failures fold into error Results; the model decides how to recover.
func (wt *WeatherToolset) CurrentWeather(ctx context.Context, input WeatherInput) Result {
	if input.City == "" {
		return Failure(ErrCodeValidation, "city cannot be empty")
	}

	wt.logger.Info("getWeather called", "city", input.City)

	loc, result := wt.geocode(ctx, input.City)
	if result != nil {
		return *result
	}

	forecast, result := wt.forecast(ctx, loc.Lat, loc.Lon)
	if result != nil {
		return *result
	}

	return Success(
		fmt.Sprintf("Current weather for %s: %.1f%s, %s",
			input.City,
			forecast.Current.Temperature,
			forecast.CurrentUnits.Temperature,
			weatherCodeDescription(forecast.Current.WeatherCode)),
		map[string]any{
			"city":             input.City,
			"resolved_name":    loc.DisplayName,
			"latitude":         loc.Lat,
			"longitude":        loc.Lon,
			"temperature":      forecast.Current.Temperature,
			"temperature_unit": forecast.CurrentUnits.Temperature,
			"humidity":         forecast.Current.RelativeHumidity,
			"wind_speed":       forecast.Current.WindSpeed,
			"wind_speed_unit":  forecast.CurrentUnits.WindSpeed,
			"conditions":       weatherCodeDescription(forecast.Current.WeatherCode),
			"observed_at":      forecast.Current.Time,
		},
	)
}

// geocode resolves a city name to coordinates.
// Returns either a location or a ready-to-return error Result.
func (wt *WeatherToolset) geocode(ctx context.Context, city string) (*geocodeResult, *Result) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&limit=1",
		wt.geocodeURL, url.QueryEscape(city))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		r := Failuref(ErrCodeInternal, "building geocode request: %v", err)
		return nil, &r
	}
	req.Header.Set("User-Agent", weatherUserAgent)

	resp, err := wt.client.Do(req)
	if err != nil {
		wt.logger.Error("geocode request failed", "city", city, "error", err)
		r := Failuref(ErrCodeNetwork, "geocoding service unreachable: %v", err)
		return nil, &r
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		r := Failuref(ErrCodeBackend, "geocoding service returned status %d", resp.StatusCode)
		return nil, &r
	}

	var results []geocodeResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		r := Failuref(ErrCodeBackend, "decoding geocode response: %v", err)
		return nil, &r
	}

	if len(results) == 0 {
		r := Failuref(ErrCodeNotFound, "no location found for %q", city)
		return nil, &r
	}

	// Coordinates must parse; a garbage backend response should not reach
	// the forecast service.
	if _, err := strconv.ParseFloat(results[0].Lat, 64); err != nil {
		r := Failuref(ErrCodeBackend, "geocoding service returned invalid latitude %q", results[0].Lat)
		return nil, &r
	}
	if _, err := strconv.ParseFloat(results[0].Lon, 64); err != nil {
		r := Failuref(ErrCodeBackend, "geocoding service returned invalid longitude %q", results[0].Lon)
		return nil, &r
	}

	return &results[0], nil
}

// forecast fetches current conditions for the given coordinates.
func (wt *WeatherToolset) forecast(ctx context.Context, lat, lon string) (*forecastResponse, *Result) {
	endpoint := fmt.Sprintf(
		"%s/v1/forecast?latitude=%s&longitude=%s&current=temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m&timezone=auto",
		wt.forecastURL, url.QueryEscape(lat), url.QueryEscape(lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		r := Failuref(ErrCodeInternal, "building forecast request: %v", err)
		return nil, &r
	}

	resp, err := wt.client.Do(req)
	if err != nil {
		wt.logger.Error("forecast request failed", "lat", lat, "lon", lon, "error", err)
		r := Failuref(ErrCodeNetwork, "forecast service unreachable: %v", err)
		return nil, &r
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		r := Failuref(ErrCodeBackend, "forecast service returned status %d", resp.StatusCode)
		return nil, &r
	}

	var forecast forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&forecast); err != nil {
		r := Failuref(ErrCodeBackend, "decoding forecast response: %v", err)
		return nil, &r
	}

	return &forecast, nil
}

// weatherCodeDescription maps WMO weather codes to human-readable conditions.
func weatherCodeDescription(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code <= 3:
		return "partly cloudy"
	case code <= 48:
		return "fog"
	case code <= 57:
		return "drizzle"
	case code <= 67:
		return "rain"
	case code <= 77:
		return "snow"
	case code <= 82:
		return "rain showers"
	case code <= 86:
		return "snow showers"
	case code <= 99:
		return "thunderstorm"
	default:
		return "unknown conditions"
	}
}
