package config_test

import (
	"strings"
	"testing"

	"github.com/lumenforge/tutorcore/internal/config"
)

func TestValidate_RequiresDRSCacheQueue(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  llm:
    name: openai
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing drs/cache/queue settings, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"drs.postgres_dsn", "cache.redis_addr", "queue.name"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
drs:
  postgres_dsn: "postgres://localhost/test"
cache:
  redis_addr: "localhost:6379"
queue:
  name: ingest
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_RetrievalDenseBiasOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
drs:
  postgres_dsn: "postgres://localhost/test"
cache:
  redis_addr: "localhost:6379"
queue:
  name: ingest
retrieval:
  dense_bias: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range dense_bias, got nil")
	}
	if !strings.Contains(err.Error(), "dense_bias") {
		t.Errorf("error should mention dense_bias, got: %v", err)
	}
}

func TestValidate_IntentThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
drs:
  postgres_dsn: "postgres://localhost/test"
cache:
  redis_addr: "localhost:6379"
queue:
  name: ingest
intent:
  threshold: 2.0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range intent threshold, got nil")
	}
	if !strings.Contains(err.Error(), "intent.threshold") {
		t.Errorf("error should mention intent.threshold, got: %v", err)
	}
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: info
providers:
  llm:
    name: openai
    model: gpt-4o
  embeddings:
    name: openai
    model: text-embedding-3-small
drs:
  postgres_dsn: "postgres://localhost/test"
cache:
  redis_addr: "localhost:6379"
queue:
  name: ingest
retrieval:
  dense_k: 10
  sparse_k: 10
  top_r: 4
  dense_bias: 0.6
intent:
  threshold: 0.7
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleErrorsJoined(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: bananas
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
	if !strings.Contains(errStr, "drs.postgres_dsn") {
		t.Errorf("error should mention drs.postgres_dsn, got: %v", err)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	// Sanity-check that the map is populated.
	if len(config.ValidProviderNames) == 0 {
		t.Fatal("ValidProviderNames should not be empty")
	}
	llmNames := config.ValidProviderNames["llm"]
	if len(llmNames) == 0 {
		t.Fatal("ValidProviderNames[\"llm\"] should not be empty")
	}
	found := false
	for _, n := range llmNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error("ValidProviderNames[\"llm\"] should contain \"openai\"")
	}
}
