// Package config loads the agent configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Eagerness controls how long the speech model waits before declaring a user
// utterance complete. Low eagerness waits for a longer pause, trading latency
// for fewer premature cutoffs.
type Eagerness string

const (
	EagernessLow  Eagerness = "low"
	EagernessAuto Eagerness = "auto"
	EagernessHigh Eagerness = "high"
)

type Config struct {
	// Knowledge index directory. Required for startup; the agent refuses to
	// start without a knowledge base.
	IndexPath string

	// Retrieval.
	RetrievalTopK     int
	RetrievalMinScore float64 // 0 disables the absolute threshold
	RetrievalTimeout  time.Duration

	// External tool calls.
	ToolTimeout    time.Duration
	WeatherTimeout time.Duration

	SearchMaxResults      int
	SearchSnippetMaxChars int
	SearchPayloadMaxChars int

	// Turn policy.
	AllowInterruptions bool
	TurnEagerness      Eagerness

	// Speech model.
	Model string
	Voice string

	RealtimeBaseURL   string
	EmbeddingsBaseURL string
	EmbeddingsModel   string
	WeatherBaseURL    string
	TavilyBaseURL     string

	// Credentials.
	OpenAIKey  string
	WeatherKey string
	TavilyKey  string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		IndexPath:             envOr("RAWI_INDEX_PATH", "./knowledge_index"),
		RetrievalTopK:         envIntOr("RAWI_RETRIEVAL_TOP_K", 5),
		RetrievalMinScore:     envFloat64Or("RAWI_RETRIEVAL_MIN_SCORE", 0),
		RetrievalTimeout:      envDurationOr("RAWI_RETRIEVAL_TIMEOUT", 3*time.Second),
		ToolTimeout:           envDurationOr("RAWI_TOOL_TIMEOUT", 8*time.Second),
		WeatherTimeout:        envDurationOr("RAWI_WEATHER_TIMEOUT", 5*time.Second),
		SearchMaxResults:      envIntOr("RAWI_SEARCH_MAX_RESULTS", 3),
		SearchSnippetMaxChars: envIntOr("RAWI_SEARCH_SNIPPET_MAX_CHARS", 200),
		SearchPayloadMaxChars: envIntOr("RAWI_SEARCH_PAYLOAD_MAX_CHARS", 2000),
		AllowInterruptions:    envBoolOr("RAWI_ALLOW_INTERRUPTIONS", false),
		TurnEagerness:         Eagerness(envOr("RAWI_TURN_EAGERNESS", string(EagernessLow))),
		Model:                 envOr("RAWI_MODEL", "gpt-4o-realtime-preview"),
		Voice:                 envOr("RAWI_VOICE", "alloy"),
		RealtimeBaseURL:       envOr("RAWI_REALTIME_BASE_URL", "wss://api.openai.com/v1/realtime"),
		EmbeddingsBaseURL:     envOr("RAWI_EMBEDDINGS_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingsModel:       envOr("RAWI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		WeatherBaseURL:        envOr("RAWI_WEATHER_BASE_URL", "http://api.weatherapi.com/v1"),
		TavilyBaseURL:         envOr("RAWI_TAVILY_BASE_URL", "https://api.tavily.com"),
		OpenAIKey:             strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		WeatherKey:            strings.TrimSpace(os.Getenv("WEATHERAPI_KEY")),
		TavilyKey:             strings.TrimSpace(os.Getenv("TAVILY_API_KEY")),
	}

	switch cfg.TurnEagerness {
	case EagernessLow, EagernessAuto, EagernessHigh:
	default:
		return Config{}, fmt.Errorf("RAWI_TURN_EAGERNESS must be one of low|auto|high")
	}

	if strings.TrimSpace(cfg.IndexPath) == "" {
		return Config{}, fmt.Errorf("RAWI_INDEX_PATH must not be empty")
	}
	if cfg.RetrievalTopK <= 0 {
		return Config{}, fmt.Errorf("RAWI_RETRIEVAL_TOP_K must be > 0")
	}
	if cfg.RetrievalMinScore < 0 || cfg.RetrievalMinScore > 1 {
		return Config{}, fmt.Errorf("RAWI_RETRIEVAL_MIN_SCORE must be in [0,1]")
	}
	if cfg.RetrievalTimeout <= 0 {
		return Config{}, fmt.Errorf("RAWI_RETRIEVAL_TIMEOUT must be > 0")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, fmt.Errorf("RAWI_TOOL_TIMEOUT must be > 0")
	}
	if cfg.WeatherTimeout <= 0 {
		return Config{}, fmt.Errorf("RAWI_WEATHER_TIMEOUT must be > 0")
	}
	if cfg.SearchMaxResults <= 0 {
		return Config{}, fmt.Errorf("RAWI_SEARCH_MAX_RESULTS must be > 0")
	}
	if cfg.SearchSnippetMaxChars <= 0 {
		return Config{}, fmt.Errorf("RAWI_SEARCH_SNIPPET_MAX_CHARS must be > 0")
	}
	if cfg.SearchPayloadMaxChars <= 0 {
		return Config{}, fmt.Errorf("RAWI_SEARCH_PAYLOAD_MAX_CHARS must be > 0")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return Config{}, fmt.Errorf("RAWI_MODEL must not be empty")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
