package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cloudwego/eino/schema"

	"github.com/voralis/skycast/backend/internal/config"
)

// GeocodeToolName is the name advertised to the model for place lookup.
const GeocodeToolName = "geocode_address"

// Location is a resolved place.
type Location struct {
	Latitude    float64
	Longitude   float64
	DisplayName string
}

// Geocoder resolves free-text place names to coordinates through a
// Nominatim-compatible search endpoint. Ambiguous queries resolve to
// the provider's top-ranked match.
type Geocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewGeocoder builds a geocoder with a bounded request timeout.
func NewGeocoder(cfg config.GeocodeConfig) *Geocoder {
	return &Geocoder{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Info describes the tool for the model.
func (g *Geocoder) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: GeocodeToolName,
		Desc: "Convert an address, city name, or place to geographic coordinates. " +
			"Always use this tool when the user provides a location as text rather than coordinates.",
		ParamsOneOf: schema.NewParamsOneOfByParams(g.Params()),
	}
}

// Params returns the validation schema for tool arguments.
func (g *Geocoder) Params() map[string]*schema.ParameterInfo {
	return map[string]*schema.ParameterInfo{
		"address": {
			Type:     schema.String,
			Desc:     `The address or place name to look up (e.g. "Paris, France")`,
			Required: true,
		},
	}
}

// Call resolves the address argument and formats the match for the model.
func (g *Geocoder) Call(ctx context.Context, args map[string]any) Result {
	address := stringArg(args, "address")
	if address == "" {
		return Failure(KindInvalidArguments, `argument "address" must not be empty`)
	}

	location, err := g.Resolve(ctx, address)
	if err != nil {
		return failureFromError(err)
	}

	return Success(fmt.Sprintf("Location: %q\nLatitude: %v\nLongitude: %v",
		location.DisplayName, location.Latitude, location.Longitude))
}

// Resolve looks up a place name, treating the provider's single best
// match as authoritative. Failures come back as classified tool errors.
func (g *Geocoder) Resolve(ctx context.Context, address string) (Location, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("limit", "1")
	query.Set("q", address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return Location{}, errorf(KindProviderError, "geocoding request failed: %v", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept-Language", "en")

	resp, err := g.client.Do(req)
	if err != nil {
		return Location{}, errorf(KindProviderError, "geocoding request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, errorf(KindProviderError, "geocoding API error: %d", resp.StatusCode)
	}

	var matches []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return Location{}, errorf(KindProviderError, "malformed geocoding response: %v", err)
	}

	if len(matches) == 0 {
		return Location{}, errorf(KindNotFound,
			"Could not find a location matching %q. Try a different search term.", address)
	}

	match := matches[0]
	lat, latErr := strconv.ParseFloat(match.Lat, 64)
	lng, lngErr := strconv.ParseFloat(match.Lon, 64)
	if latErr != nil || lngErr != nil {
		return Location{}, errorf(KindProviderError, "malformed coordinates in geocoding response")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Location{}, errorf(KindProviderError,
			"geocoding returned out-of-range coordinates (%v, %v)", lat, lng)
	}

	displayName := match.DisplayName
	if displayName == "" {
		displayName = address
	}

	return Location{Latitude: lat, Longitude: lng, DisplayName: displayName}, nil
}
