// Package tools implements the callable tool functions consumed by the
// agent runtime. Every tool returns the uniform envelope
// {status: "success"|"error", ...} and never a Go error: upstream and
// validation failures are translated into error_message so the agent layer
// sees a stable shape.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/meteoagent/weather-tool-service/internal/forecast"
	"github.com/meteoagent/weather-tool-service/internal/meteoblue"
	"github.com/meteoagent/weather-tool-service/internal/observability"
	"github.com/meteoagent/weather-tool-service/internal/params"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the uniform tool envelope. Exactly one payload group is set on
// success; ErrorMessage is set on error. The field names are a contract with
// consumers and must not change.
type Result struct {
	Status       string                    `json:"status"`
	ErrorMessage string                    `json:"error_message,omitempty"`
	Forecast     json.RawMessage           `json:"forecast,omitempty"`
	Results      []meteoblue.LocationMatch `json:"results,omitempty"`
	Message      string                    `json:"message,omitempty"`
	Filename     string                    `json:"filename,omitempty"`
	ImagePath    string                    `json:"image_path,omitempty"`
}

func errorResult(tool, format string, args ...interface{}) Result {
	observability.ToolCallsTotal.WithLabelValues(tool, StatusError).Inc()
	return Result{Status: StatusError, ErrorMessage: fmt.Sprintf(format, args...)}
}

// ForecastArgs are the loosely-typed arguments of the forecast tool, as the
// agent runtime supplies them.
type ForecastArgs struct {
	Lat               float64  `json:"lat"`
	Lon               float64  `json:"lon"`
	Packages          []string `json:"packages,omitempty"`
	TemperatureUnit   string   `json:"temperature_unit,omitempty"`
	WindspeedUnit     string   `json:"windspeed_unit,omitempty"`
	PrecipitationUnit string   `json:"precipitation_unit,omitempty"`
	AltitudeMeters    *int     `json:"altitude_meters,omitempty"`
	Timezone          string   `json:"timezone,omitempty"`
	OutputFormat      string   `json:"output_format,omitempty"`
	SkipCache         bool     `json:"skip_cache,omitempty"`
}

// ImageArgs are the arguments of the climate image tool.
type ImageArgs struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	CityName string  `json:"city_name,omitempty"`
}

// Toolset bundles the tool implementations and their dependencies.
type Toolset struct {
	forecasts   *forecast.Service
	client      meteoblue.Client
	artifactDir string
	logger      *zap.Logger
}

// NewToolset creates the tool functions. artifactDir is where climate images
// are persisted.
func NewToolset(forecasts *forecast.Service, client meteoblue.Client, artifactDir string, logger *zap.Logger) *Toolset {
	return &Toolset{
		forecasts:   forecasts,
		client:      client,
		artifactDir: artifactDir,
		logger:      logger,
	}
}

// GetForecast validates and normalizes the arguments, then retrieves the
// forecast through the caching service. All validation happens before any
// cache or network access; the first invalid token fails the call.
func (t *Toolset) GetForecast(ctx context.Context, args ForecastArgs) Result {
	pkgs, err := params.NormalizePackages(args.Packages)
	if err != nil {
		return errorResult("get_forecast", "%s", err)
	}
	tempUnit, err := params.NormalizeTemperatureUnit(args.TemperatureUnit)
	if err != nil {
		return errorResult("get_forecast", "%s", err)
	}
	windUnit, err := params.NormalizeWindspeedUnit(args.WindspeedUnit)
	if err != nil {
		return errorResult("get_forecast", "%s", err)
	}
	precipUnit, err := params.NormalizePrecipitationUnit(args.PrecipitationUnit)
	if err != nil {
		return errorResult("get_forecast", "%s", err)
	}
	format, err := params.NormalizeFormat(args.OutputFormat)
	if err != nil {
		return errorResult("get_forecast", "%s", err)
	}

	req := meteoblue.ForecastRequest{
		Lat:           args.Lat,
		Lon:           args.Lon,
		Packages:      pkgs,
		Altitude:      args.AltitudeMeters,
		Timezone:      strings.TrimSpace(args.Timezone),
		Temperature:   tempUnit,
		Windspeed:     windUnit,
		Precipitation: precipUnit,
		Format:        format,
	}

	payload, err := t.forecasts.GetOrFetch(ctx, req, args.SkipCache)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("forecast tool failed", zap.Float64("lat", args.Lat), zap.Float64("lon", args.Lon), zap.Error(err))
		}
		return errorResult("get_forecast", "Forecast retrieval failed: %s", err)
	}

	observability.ToolCallsTotal.WithLabelValues("get_forecast", StatusSuccess).Inc()
	return Result{Status: StatusSuccess, Forecast: forecastValue(payload)}
}

// forecastValue renders the payload as the value of the envelope's
// "forecast" field: the parsed object for JSON responses, a string for CSV.
func forecastValue(payload meteoblue.ForecastPayload) json.RawMessage {
	if payload.Format == meteoblue.FormatCSV {
		encoded, _ := json.Marshal(payload.Text)
		return encoded
	}
	return payload.JSON
}

// GetClimateImage fetches the 14-day meteogram for a coordinate and persists
// it under the artifact directory. A write failure after a successful fetch
// is reported distinctly from a fetch failure.
func (t *Toolset) GetClimateImage(ctx context.Context, args ImageArgs) Result {
	filename := "meteogram_" + sanitizeCityName(args.CityName) + ".png"

	imageBytes, err := t.client.Image(ctx, meteoblue.ImageMeteogram14Day, args.Lat, args.Lon)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("climate image fetch failed", zap.Float64("lat", args.Lat), zap.Float64("lon", args.Lon), zap.Error(err))
		}
		return errorResult("get_climate_image", "Image generation failed: %s", err)
	}

	imagePath := filepath.Join(t.artifactDir, filename)
	if err := os.WriteFile(imagePath, imageBytes, 0o644); err != nil {
		if t.logger != nil {
			t.logger.Warn("climate image write failed", zap.String("path", imagePath), zap.Error(err))
		}
		return errorResult("get_climate_image", "Saving image failed: %s", err)
	}

	observability.ToolCallsTotal.WithLabelValues("get_climate_image", StatusSuccess).Inc()
	return Result{
		Status:    StatusSuccess,
		Message:   "14-day meteogram saved to " + imagePath,
		Filename:  filename,
		ImagePath: imagePath,
	}
}

// sanitizeCityName reduces a free-text city name to a safe filename stem:
// letters, digits, spaces, hyphens and underscores survive, spaces become
// underscores, everything lowercased. Empty input falls back to "location".
func sanitizeCityName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	safe = strings.ReplaceAll(safe, " ", "_")
	safe = strings.ToLower(safe)
	if safe == "" {
		return "location"
	}
	return safe
}

// SearchLocation resolves a place name to candidate coordinates. An empty
// result list is an error envelope, per the tool contract.
func (t *Toolset) SearchLocation(ctx context.Context, query string) Result {
	results, err := t.client.SearchLocations(ctx, query)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("location search failed", zap.String("query", query), zap.Error(err))
		}
		return errorResult("search_location", "Search failed: %s", err)
	}
	if len(results) == 0 {
		return errorResult("search_location", "No locations found for %q. Please try a different city name.", query)
	}

	observability.ToolCallsTotal.WithLabelValues("search_location", StatusSuccess).Inc()
	return Result{Status: StatusSuccess, Results: results}
}
