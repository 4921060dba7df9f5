package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// 0. Check for nil config (defensive programming)
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider validation
	validProviders := []string{ProviderGemini, ProviderGoogleAI, ProviderOllama, ProviderOpenAI}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidProvider, c.Provider, validProviders)
	}

	// 2. API key validation, scoped to the selected provider
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required",
				ErrMissingAPIKey)
		}
	case ProviderOllama:
		if _, err := url.ParseRequestURI(c.OllamaHost); err != nil {
			return fmt.Errorf("%w: %q is not a valid URL", ErrInvalidOllamaHost, c.OllamaHost)
		}
	}

	// 3. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	// Reference: Gemini API documentation
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens range: 1 to 2097152 (Gemini 2.5 max context window)
	// Reference: https://ai.google.dev/gemini-api/docs/models
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// 4. Chat round validation
	if c.MaxSteps < MinSteps || c.MaxSteps > MaxAllowedSteps {
		return fmt.Errorf("%w: must be between %d and %d, got %d",
			ErrInvalidMaxSteps, MinSteps, MaxAllowedSteps, c.MaxSteps)
	}

	if c.RoundTimeoutSeconds < 1 || c.RoundTimeoutSeconds > 3600 {
		return fmt.Errorf("%w: round_timeout_seconds must be between 1 and 3600, got %d",
			ErrInvalidTimeout, c.RoundTimeoutSeconds)
	}

	// 5. Tool backend validation
	endpoints := map[string]string{
		"weather.geocode_url":  c.Weather.GeocodeURL,
		"weather.forecast_url": c.Weather.ForecastURL,
		"images.search_url":    c.Images.SearchURL,
		"images.generate_url":  c.Images.GenerateURL,
		"search.base_url":      c.Search.BaseURL,
	}
	for key, endpoint := range endpoints {
		if err := validateEndpoint(endpoint); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidToolEndpoint, key, err)
		}
	}

	timeouts := map[string]int{
		"weather.timeout_seconds": c.Weather.TimeoutSeconds,
		"images.timeout_seconds":  c.Images.TimeoutSeconds,
		"search.timeout_seconds":  c.Search.TimeoutSeconds,
		"fetcher.timeout_seconds": c.Fetcher.TimeoutSeconds,
	}
	for key, timeout := range timeouts {
		if timeout < 1 || timeout > 300 {
			return fmt.Errorf("%w: %s must be between 1 and 300, got %d", ErrInvalidTimeout, key, timeout)
		}
	}

	return nil
}

// validateEndpoint checks that a tool backend endpoint is an absolute http(s) URL.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https scheme", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", endpoint)
	}
	return nil
}

// NormalizeMaxSteps clamps a requested tool loop bound into the allowed range.
// Zero or negative values fall back to the default.
func NormalizeMaxSteps(steps int) int {
	if steps <= 0 {
		return DefaultMaxSteps
	}
	if steps < MinSteps {
		return MinSteps
	}
	if steps > MaxAllowedSteps {
		return MaxAllowedSteps
	}
	return steps
}
