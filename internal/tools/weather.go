package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/MrWong99/glyphoxa-chat/internal/config"
	"github.com/MrWong99/glyphoxa-chat/internal/resilience"
	"github.com/MrWong99/glyphoxa-chat/pkg/provider/llm"
)

// weatherDefinition describes the get_weather tool.
var weatherDefinition = llm.ToolDefinition{
	Name:        "get_weather",
	Description: "Look up the current weather conditions for a named location and return a one-line summary.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"location": map[string]any{
				"type":        "string",
				"description": "City name, optionally with a country, e.g. 'London' or 'Austin, US'",
			},
		},
		"required": []string{"location"},
	},
	EstimatedDurationMs: 400,
	MaxDurationMs:       3000,
	Idempotent:          true,
	CacheableSeconds:    300,
}

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	weatherHTTPTimeout = 5 * time.Second
)

// weatherTool implements the get_weather builtin: geocode the free-text
// location via open-meteo's geocoding API, then fetch current conditions
// from open-meteo's forecast API and render them as a fixed one-line
// summary.
type weatherTool struct {
	geocodeURL  string
	forecastURL string
	client      *http.Client
	breaker     *resilience.CircuitBreaker
}

func newWeatherTool(cfg config.WeatherToolConfig) *weatherTool {
	forecastURL := cfg.BaseURL
	if forecastURL == "" {
		forecastURL = defaultForecastURL
	}
	return &weatherTool{
		geocodeURL:  defaultGeocodeURL,
		forecastURL: forecastURL,
		client:      &http.Client{Timeout: weatherHTTPTimeout},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "weather",
			MaxFailures: 5,
			ResetTimeout: 30 * time.Second,
		}),
	}
}

type weatherArgs struct {
	Location string `json:"location"`
}

type geocodeResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature2m    float64 `json:"temperature_2m"`
		WindSpeed10m     float64 `json:"wind_speed_10m"`
		RelativeHumidity float64 `json:"relative_humidity_2m"`
		WeatherCode      int     `json:"weather_code"`
	} `json:"current"`
}

// Handler implements the mcphost.BuiltinTool.Handler contract. It never
// surfaces a Go error for a weather-specific failure — non-2xx responses and
// network errors both fold into a "Weather unavailable: <reason>" string.
func (w *weatherTool) Handler(ctx context.Context, args string) (string, error) {
	var a weatherArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("weather: parse arguments: %w", err)
	}
	if a.Location == "" {
		return "", fmt.Errorf("weather: location must not be empty")
	}

	var summary string
	err := w.breaker.Execute(func() error {
		lat, lon, gerr := w.geocode(ctx, a.Location)
		if gerr != nil {
			return gerr
		}
		f, ferr := w.fetchForecast(ctx, lat, lon)
		if ferr != nil {
			return ferr
		}
		summary = formatConditions(f)
		return nil
	})
	if err != nil {
		return fmt.Sprintf("Weather unavailable: %s", err), nil
	}
	return summary, nil
}

func (w *weatherTool) geocode(ctx context.Context, location string) (lat, lon float64, err error) {
	reqURL := fmt.Sprintf("%s?name=%s&count=1", w.geocodeURL, url.QueryEscape(location))
	var resp geocodeResponse
	if err := w.getJSON(ctx, reqURL, &resp); err != nil {
		return 0, 0, err
	}
	if len(resp.Results) == 0 {
		return 0, 0, fmt.Errorf("unknown location %q", location)
	}
	return resp.Results[0].Latitude, resp.Results[0].Longitude, nil
}

func (w *weatherTool) fetchForecast(ctx context.Context, lat, lon float64) (forecastResponse, error) {
	reqURL := fmt.Sprintf("%s?latitude=%f&longitude=%f&current=temperature_2m,wind_speed_10m,relative_humidity_2m,weather_code",
		w.forecastURL, lat, lon)
	var resp forecastResponse
	if err := w.getJSON(ctx, reqURL, &resp); err != nil {
		return forecastResponse{}, err
	}
	return resp, nil
}

func (w *weatherTool) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// formatConditions renders the fixed one-line shape:
// "condition tempC windkm/h humidity%".
func formatConditions(f forecastResponse) string {
	return fmt.Sprintf("%s %.0fC %.0fkm/h %.0f%%",
		weatherCodeToCondition(f.Current.WeatherCode),
		f.Current.Temperature2m,
		f.Current.WindSpeed10m,
		f.Current.RelativeHumidity,
	)
}

// weatherCodeToCondition maps a WMO weather interpretation code (as used by
// open-meteo) to a short human-readable condition string.
func weatherCodeToCondition(code int) string {
	switch {
	case code == 0:
		return "Clear"
	case code <= 3:
		return "Cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Showers"
	case code >= 85 && code <= 86:
		return "Snow showers"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}
