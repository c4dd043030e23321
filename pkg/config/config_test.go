package config

import (
	"strings"
	"testing"
	"time"
)

var agentEnvKeys = []string{
	"RAWI_INDEX_PATH",
	"RAWI_RETRIEVAL_TOP_K",
	"RAWI_RETRIEVAL_MIN_SCORE",
	"RAWI_RETRIEVAL_TIMEOUT",
	"RAWI_TOOL_TIMEOUT",
	"RAWI_WEATHER_TIMEOUT",
	"RAWI_SEARCH_MAX_RESULTS",
	"RAWI_SEARCH_SNIPPET_MAX_CHARS",
	"RAWI_SEARCH_PAYLOAD_MAX_CHARS",
	"RAWI_ALLOW_INTERRUPTIONS",
	"RAWI_TURN_EAGERNESS",
	"RAWI_MODEL",
	"RAWI_VOICE",
	"RAWI_REALTIME_BASE_URL",
	"RAWI_EMBEDDINGS_BASE_URL",
	"RAWI_EMBEDDINGS_MODEL",
	"RAWI_WEATHER_BASE_URL",
	"RAWI_TAVILY_BASE_URL",
	"OPENAI_API_KEY",
	"WEATHERAPI_KEY",
	"TAVILY_API_KEY",
}

func clearAgentEnv(t *testing.T) {
	t.Helper()
	for _, key := range agentEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearAgentEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.RetrievalTopK != 5 {
		t.Fatalf("RetrievalTopK=%d, want 5", cfg.RetrievalTopK)
	}
	if cfg.RetrievalMinScore != 0 {
		t.Fatalf("RetrievalMinScore=%v, want 0 (disabled)", cfg.RetrievalMinScore)
	}
	if cfg.RetrievalTimeout != 3*time.Second {
		t.Fatalf("RetrievalTimeout=%v, want 3s", cfg.RetrievalTimeout)
	}
	if cfg.AllowInterruptions {
		t.Fatalf("AllowInterruptions=true, want false by default")
	}
	if cfg.TurnEagerness != EagernessLow {
		t.Fatalf("TurnEagerness=%q, want low", cfg.TurnEagerness)
	}
	if cfg.SearchMaxResults != 3 {
		t.Fatalf("SearchMaxResults=%d, want 3", cfg.SearchMaxResults)
	}
	if !strings.HasPrefix(cfg.RealtimeBaseURL, "wss://") {
		t.Fatalf("RealtimeBaseURL=%q, want wss scheme", cfg.RealtimeBaseURL)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearAgentEnv(t)
	t.Setenv("RAWI_RETRIEVAL_TOP_K", "2")
	t.Setenv("RAWI_RETRIEVAL_TIMEOUT", "500ms")
	t.Setenv("RAWI_ALLOW_INTERRUPTIONS", "true")
	t.Setenv("RAWI_TURN_EAGERNESS", "high")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}
	if cfg.RetrievalTopK != 2 {
		t.Fatalf("RetrievalTopK=%d, want 2", cfg.RetrievalTopK)
	}
	if cfg.RetrievalTimeout != 500*time.Millisecond {
		t.Fatalf("RetrievalTimeout=%v, want 500ms", cfg.RetrievalTimeout)
	}
	if !cfg.AllowInterruptions {
		t.Fatalf("AllowInterruptions=false, want true")
	}
	if cfg.TurnEagerness != EagernessHigh {
		t.Fatalf("TurnEagerness=%q, want high", cfg.TurnEagerness)
	}
}

func TestLoadFromEnv_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"RAWI_TURN_EAGERNESS":      "eager",
		"RAWI_RETRIEVAL_TOP_K":     "0",
		"RAWI_RETRIEVAL_MIN_SCORE": "1.5",
		"RAWI_SEARCH_MAX_RESULTS":  "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearAgentEnv(t)
			t.Setenv(key, value)
			if _, err := LoadFromEnv(); err == nil {
				t.Fatalf("LoadFromEnv accepted %s=%q", key, value)
			}
		})
	}
}
