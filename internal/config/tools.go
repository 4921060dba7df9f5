package config

import (
	"encoding/json"
	"fmt"
)

// WeatherConfig holds endpoints for the weather tool.
// Geocoding resolves a city name to coordinates; the forecast service
// returns current conditions for those coordinates.
type WeatherConfig struct {
	// GeocodeURL is the geocoding service base URL (default: https://nominatim.openstreetmap.org)
	GeocodeURL string `mapstructure:"geocode_url" json:"geocode_url"`
	// ForecastURL is the forecast service base URL (default: https://api.open-meteo.com)
	ForecastURL string `mapstructure:"forecast_url" json:"forecast_url"`
	// TimeoutSeconds is the per-request timeout (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// ImagesConfig holds endpoints for the image search and generation tools.
type ImagesConfig struct {
	// SearchURL is the image search API base URL (default: https://api.unsplash.com)
	SearchURL string `mapstructure:"search_url" json:"search_url"`
	// SearchAPIKey authenticates image search requests - SECURITY: masked in MarshalJSON
	SearchAPIKey string `mapstructure:"search_api_key" json:"search_api_key"`
	// GenerateURL is the image generation API base URL (default: http://localhost:7860)
	GenerateURL string `mapstructure:"generate_url" json:"generate_url"`
	// GenerateAPIKey authenticates image generation requests - SECURITY: masked in MarshalJSON
	GenerateAPIKey string `mapstructure:"generate_api_key" json:"generate_api_key"`
	// TimeoutSeconds is the per-request timeout (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c ImagesConfig) MarshalJSON() ([]byte, error) {
	type alias ImagesConfig
	a := alias(c)
	a.SearchAPIKey = maskSecret(a.SearchAPIKey)
	a.GenerateAPIKey = maskSecret(a.GenerateAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal images config: %w", err)
	}
	return data, nil
}

// SearchConfig holds the web search API configuration for the searchWeb tool.
type SearchConfig struct {
	// BaseURL is the search API base URL (default: https://api.tavily.com)
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	// APIKey authenticates search requests - SECURITY: masked in MarshalJSON
	APIKey string `mapstructure:"api_key" json:"api_key"`
	// TimeoutSeconds is the per-request timeout (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	// MaxResults caps returned results per query (default: 5)
	MaxResults int `mapstructure:"max_results" json:"max_results"`
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c SearchConfig) MarshalJSON() ([]byte, error) {
	type alias SearchConfig
	a := alias(c)
	a.APIKey = maskSecret(a.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal search config: %w", err)
	}
	return data, nil
}

// FetcherConfig holds page fetcher configuration for the fetchPage tool.
type FetcherConfig struct {
	// TimeoutSeconds is the per-request timeout (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	// MaxBodyBytes caps the downloaded page size (default: 2 MiB)
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" json:"max_body_bytes"`
}
