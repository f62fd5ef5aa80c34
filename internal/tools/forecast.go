package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/voralis/skycast/backend/internal/config"
)

// ForecastToolName is the name advertised to the model for forecasts.
const ForecastToolName = "get_weather_forecast"

const dateLayout = "2006-01-02"

var weatherDescriptions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// ForecastClient fetches daily forecasts from an Open-Meteo-compatible
// endpoint and renders them as readable text for the model.
type ForecastClient struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewForecastClient builds a forecast client with a bounded request timeout.
func NewForecastClient(cfg config.ForecastConfig) *ForecastClient {
	return &ForecastClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		now:     time.Now,
	}
}

// Info describes the tool for the model.
func (f *ForecastClient) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: ForecastToolName,
		Desc: "Fetch a daily weather forecast for a location. Requires latitude and longitude; " +
			"dates default to the next seven days, temperature unit defaults to celsius.",
		ParamsOneOf: schema.NewParamsOneOfByParams(f.Params()),
	}
}

// Params returns the validation schema for tool arguments.
func (f *ForecastClient) Params() map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{
		"latitude": {
			Type:     schema.Number,
			Desc:     "Latitude of the location (e.g. 40.7128 for New York)",
			Required: true,
		},
		"longitude": {
			Type:     schema.Number,
			Desc:     "Longitude of the location (e.g. -74.0060 for New York)",
			Required: true,
		},
		"start_date": {
			Type: schema.String,
			Desc: "Start date in YYYY-MM-DD format (defaults to today)",
		},
		"end_date": {
			Type: schema.String,
			Desc: "End date in YYYY-MM-DD format (defaults to 7 days from start)",
		},
		"unit": {
			Type: schema.String,
			Desc: "Either 'celsius' or 'fahrenheit' (defaults to 'celsius')",
		},
		"timezone": {
			Type: schema.String,
			Desc: "Timezone string like 'Europe/London', or 'auto' to infer from coordinates",
		},
	}
}

// Call validates the collected parameters and fetches the forecast.
// Validation failures never reach the provider.
func (f *ForecastClient) Call(ctx context.Context, args map[string]any) Result {
	lat, _ := floatArg(args, "latitude")
	lng, _ := floatArg(args, "longitude")
	if lat < -90 || lat > 90 {
		return Failure(KindInvalidArguments, fmt.Sprintf("argument \"latitude\" out of range: %v", lat))
	}
	if lng < -180 || lng > 180 {
		return Failure(KindInvalidArguments, fmt.Sprintf("argument \"longitude\" out of range: %v", lng))
	}

	unit := stringArg(args, "unit")
	if unit == "" {
		unit = "celsius"
	}
	if unit != "celsius" && unit != "fahrenheit" {
		return Failure(KindInvalidArguments, fmt.Sprintf("argument \"unit\" must be 'celsius' or 'fahrenheit', got %q", unit))
	}

	timezone := stringArg(args, "timezone")
	if timezone == "" {
		timezone = "auto"
	}

	startRaw := stringArg(args, "start_date")
	if startRaw == "" {
		startRaw = f.now().UTC().Format(dateLayout)
	}
	start, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return Failure(KindInvalidArguments, fmt.Sprintf("argument \"start_date\" is not a YYYY-MM-DD date: %q", startRaw))
	}

	endRaw := stringArg(args, "end_date")
	if endRaw == "" {
		endRaw = start.AddDate(0, 0, 7).Format(dateLayout)
	}
	end, err := time.Parse(dateLayout, endRaw)
	if err != nil {
		return Failure(KindInvalidArguments, fmt.Sprintf("argument \"end_date\" is not a YYYY-MM-DD date: %q", endRaw))
	}

	if end.Before(start) {
		return Failure(KindInvalidArguments,
			fmt.Sprintf("argument \"end_date\" %s is before \"start_date\" %s", endRaw, startRaw))
	}

	return f.fetch(ctx, lat, lng, startRaw, endRaw, unit, timezone)
}

type forecastResponse struct {
	Daily struct {
		Time                     []string  `json:"time"`
		TemperatureMax           []float64 `json:"temperature_2m_max"`
		TemperatureMin           []float64 `json:"temperature_2m_min"`
		PrecipitationSum         []float64 `json:"precipitation_sum"`
		PrecipitationProbability []float64 `json:"precipitation_probability_max"`
		WindSpeedMax             []float64 `json:"windspeed_10m_max"`
		WeatherCode              []int     `json:"weathercode"`
	} `json:"daily"`
}

func (f *ForecastClient) fetch(ctx context.Context, lat, lng float64, startDate, endDate, unit, timezone string) Result {
	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%v", lat))
	query.Set("longitude", fmt.Sprintf("%v", lng))
	query.Set("start_date", startDate)
	query.Set("end_date", endDate)
	query.Set("temperature_unit", unit)
	query.Set("timezone", timezone)
	query.Set("daily", strings.Join([]string{
		"temperature_2m_max",
		"temperature_2m_min",
		"precipitation_sum",
		"precipitation_probability_max",
		"windspeed_10m_max",
		"weathercode",
	}, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return Failure(KindProviderError, fmt.Sprintf("forecast request failed: %v", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Failure(KindProviderError, fmt.Sprintf("forecast request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Failure(KindProviderError, fmt.Sprintf("forecast API error: %d", resp.StatusCode))
	}

	var payload forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Failure(KindProviderError, fmt.Sprintf("malformed forecast response: %v", err))
	}

	return Success(formatForecast(lat, lng, unit, timezone, payload))
}

func formatForecast(lat, lng float64, unit, timezone string, payload forecastResponse) string {
	unitSymbol := "°C"
	if unit == "fahrenheit" {
		unitSymbol = "°F"
	}

	daily := payload.Daily
	var b strings.Builder
	fmt.Fprintf(&b, "Weather Forecast for (%v, %v)\n", lat, lng)
	fmt.Fprintf(&b, "Timezone: %s\n", timezone)
	b.WriteString(strings.Repeat("-", 50))

	for i, day := range daily.Time {
		desc := "Unknown"
		if i < len(daily.WeatherCode) {
			if known, ok := weatherDescriptions[daily.WeatherCode[i]]; ok {
				desc = known
			}
		}

		fmt.Fprintf(&b, "\n\n%s:\n", day)
		fmt.Fprintf(&b, "  Condition: %s\n", desc)
		if i < len(daily.TemperatureMin) && i < len(daily.TemperatureMax) {
			fmt.Fprintf(&b, "  Temperature: %v%s - %v%s\n",
				daily.TemperatureMin[i], unitSymbol, daily.TemperatureMax[i], unitSymbol)
		}
		if i < len(daily.PrecipitationSum) && i < len(daily.PrecipitationProbability) {
			fmt.Fprintf(&b, "  Precipitation: %vmm (probability: %v%%)\n",
				daily.PrecipitationSum[i], daily.PrecipitationProbability[i])
		}
		if i < len(daily.WindSpeedMax) {
			fmt.Fprintf(&b, "  Max Wind: %v km/h", daily.WindSpeedMax[i])
		}
	}

	return b.String()
}
