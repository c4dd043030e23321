package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := Load(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("Load missing file error: %v", err)
	}
}

func TestLoad_LoadsValuesAndPreservesExisting(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, ".env")
	content := "" +
		"# rawi agent credentials\n" +
		"WEATHERAPI_KEY=wkey\n" +
		"TAVILY_API_KEY=\"t key\"\n" +
		"export OPENAI_API_KEY=okey\n" +
		"RAWI_INDEX_PATH=from_file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("RAWI_INDEX_PATH", "already_set")

	if err := Load(envPath); err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if got := os.Getenv("WEATHERAPI_KEY"); got != "wkey" {
		t.Fatalf("WEATHERAPI_KEY=%q, want %q", got, "wkey")
	}
	if got := os.Getenv("TAVILY_API_KEY"); got != "t key" {
		t.Fatalf("TAVILY_API_KEY=%q, want %q", got, "t key")
	}
	if got := os.Getenv("OPENAI_API_KEY"); got != "okey" {
		t.Fatalf("OPENAI_API_KEY=%q, want %q", got, "okey")
	}
	if got := os.Getenv("RAWI_INDEX_PATH"); got != "already_set" {
		t.Fatalf("RAWI_INDEX_PATH=%q, want existing value preserved", got)
	}
}
