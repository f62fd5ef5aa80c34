package tools_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voralis/skycast/backend/internal/config"
	"github.com/voralis/skycast/backend/internal/tools"
)

const singleDayPayload = `{"daily":{
	"time":["2026-01-20"],
	"temperature_2m_max":[6.1],
	"temperature_2m_min":[1.4],
	"precipitation_sum":[0.3],
	"precipitation_probability_max":[35],
	"windspeed_10m_max":[18.2],
	"weathercode":[61]
}}`

func newForecastClient(baseURL string) *tools.ForecastClient {
	return tools.NewForecastClient(config.ForecastConfig{
		BaseURL: baseURL,
		Timeout: time.Second,
	})
}

func parisArgs() map[string]any {
	return map[string]any{
		"latitude":   48.8566,
		"longitude":  2.3522,
		"start_date": "2026-01-20",
		"end_date":   "2026-01-25",
	}
}

func TestForecastSingleDayRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("start_date") != "2026-01-20" || query.Get("end_date") != "2026-01-20" {
			t.Errorf("unexpected date range: %s to %s", query.Get("start_date"), query.Get("end_date"))
		}
		w.Write([]byte(singleDayPayload))
	}))
	defer server.Close()

	client := newForecastClient(server.URL)
	args := parisArgs()
	args["end_date"] = "2026-01-20"

	result := client.Call(context.Background(), args)
	if !result.OK() {
		t.Fatalf("expected ok, got %s: %s", result.Kind, result.Content)
	}
	if !strings.Contains(result.Content, "2026-01-20") {
		t.Fatalf("expected the single day in output, got %q", result.Content)
	}
	if !strings.Contains(result.Content, "Slight rain") {
		t.Fatalf("expected weather-code description, got %q", result.Content)
	}
	if !strings.Contains(result.Content, "°C") {
		t.Fatalf("expected celsius default, got %q", result.Content)
	}
}

func TestForecastStartAfterEndNeverReachesProvider(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	client := newForecastClient(server.URL)
	args := parisArgs()
	args["start_date"] = "2026-01-25"
	args["end_date"] = "2026-01-20"

	result := client.Call(context.Background(), args)
	if result.Kind != tools.KindInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %s", result.Kind)
	}
	if hits != 0 {
		t.Fatalf("provider must not be called, got %d hits", hits)
	}
}

func TestForecastUnparseableDate(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	client := newForecastClient(server.URL)
	args := parisArgs()
	args["start_date"] = "next Blursday"

	result := client.Call(context.Background(), args)
	if result.Kind != tools.KindInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %s", result.Kind)
	}
	if hits != 0 {
		t.Fatalf("provider must not be called, got %d hits", hits)
	}
}

func TestForecastRejectsUnknownUnit(t *testing.T) {
	client := newForecastClient("http://unused.invalid")
	args := parisArgs()
	args["unit"] = "kelvin"

	result := client.Call(context.Background(), args)
	if result.Kind != tools.KindInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %s", result.Kind)
	}
}

func TestForecastRejectsOutOfRangeCoordinates(t *testing.T) {
	client := newForecastClient("http://unused.invalid")
	args := parisArgs()
	args["latitude"] = 123.4

	result := client.Call(context.Background(), args)
	if result.Kind != tools.KindInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %s", result.Kind)
	}
}

func TestForecastDefaultsUnitAndTimezone(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("temperature_unit") != "celsius" {
			t.Errorf("expected celsius default, got %q", query.Get("temperature_unit"))
		}
		if query.Get("timezone") != "auto" {
			t.Errorf("expected auto timezone default, got %q", query.Get("timezone"))
		}
		w.Write([]byte(singleDayPayload))
	}))
	defer server.Close()

	client := newForecastClient(server.URL)

	result := client.Call(context.Background(), parisArgs())
	if !result.OK() {
		t.Fatalf("expected ok, got %s: %s", result.Kind, result.Content)
	}
}

func TestForecastProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newForecastClient(server.URL)

	result := client.Call(context.Background(), parisArgs())
	if result.Kind != tools.KindProviderError {
		t.Fatalf("expected provider_error, got %s", result.Kind)
	}
}

func TestForecastFahrenheitSymbol(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(singleDayPayload))
	}))
	defer server.Close()

	client := newForecastClient(server.URL)
	args := parisArgs()
	args["unit"] = "fahrenheit"

	result := client.Call(context.Background(), args)
	if !result.OK() {
		t.Fatalf("expected ok, got %s: %s", result.Kind, result.Content)
	}
	if !strings.Contains(result.Content, "°F") {
		t.Fatalf("expected fahrenheit symbol, got %q", result.Content)
	}
}
