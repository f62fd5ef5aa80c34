package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service needs.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Providers ProvidersConfig
	Dialogue  DialogueConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	providers, err := loadProvidersConfig()
	if err != nil {
		return nil, err
	}

	dialogue, err := loadDialogueConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Providers: providers, Dialogue: dialogue}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the hosted chat model.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds a model instance from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("model credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// ProvidersConfig describes the external geocoding and weather services.
type ProvidersConfig struct {
	Geocode  GeocodeConfig
	Forecast ForecastConfig
}

// GeocodeConfig points at a Nominatim-compatible search endpoint.
type GeocodeConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// ForecastConfig points at an Open-Meteo-compatible forecast endpoint.
type ForecastConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadProvidersConfig() (ProvidersConfig, error) {
	geocodeTimeout, err := parseTimeoutEnv("GEOCODE_TIMEOUT", 10*time.Second)
	if err != nil {
		return ProvidersConfig{}, err
	}

	forecastTimeout, err := parseTimeoutEnv("FORECAST_TIMEOUT", 30*time.Second)
	if err != nil {
		return ProvidersConfig{}, err
	}

	return ProvidersConfig{
		Geocode: GeocodeConfig{
			BaseURL:   getEnvOrDefault("GEOCODE_BASE_URL", "https://nominatim.openstreetmap.org/search"),
			UserAgent: getEnvOrDefault("GEOCODE_USER_AGENT", "SkycastAgent/1.0"),
			Timeout:   geocodeTimeout,
		},
		Forecast: ForecastConfig{
			BaseURL: getEnvOrDefault("FORECAST_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
			Timeout: forecastTimeout,
		},
	}, nil
}

// DialogueConfig bounds a single dialogue turn.
type DialogueConfig struct {
	MaxToolRounds int
	TurnTimeout   time.Duration
}

func loadDialogueConfig() (DialogueConfig, error) {
	rounds := 4
	if override, err := parseOptionalIntEnv("DIALOGUE_MAX_TOOL_ROUNDS"); err != nil {
		return DialogueConfig{}, err
	} else if override != nil {
		if *override < 1 {
			rounds = 1
		} else {
			rounds = *override
		}
	}

	turnTimeout, err := parseTimeoutEnv("DIALOGUE_TURN_TIMEOUT", 2*time.Minute)
	if err != nil {
		return DialogueConfig{}, err
	}

	return DialogueConfig{MaxToolRounds: rounds, TurnTimeout: turnTimeout}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseTimeoutEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	seconds, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if seconds == nil {
		return defaultValue, nil
	}
	if *seconds < 1 {
		return 0, fmt.Errorf("invalid %s value %d: must be at least 1 second", key, *seconds)
	}
	return time.Duration(*seconds) * time.Second, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
