package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"deepgram", "whisper", "whisper-native"},
	"tts":        {"elevenlabs", "coqui"},
	"embeddings": {"openai", "ollama"},
	"reranker":   {},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("reranker", cfg.Providers.Reranker.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; teaching and question-answering turns will fail")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("no embeddings provider configured; dense retrieval will be unavailable")
	}

	// DRS / cache / queue availability
	if cfg.DRS.PostgresDSN == "" {
		errs = append(errs, errors.New("drs.postgres_dsn is required"))
	}
	if cfg.Cache.RedisAddr == "" {
		errs = append(errs, errors.New("cache.redis_addr is required"))
	}
	if cfg.Queue.Name == "" {
		errs = append(errs, errors.New("queue.name is required"))
	}

	// Worker pool
	if cfg.Worker.Count < 0 {
		errs = append(errs, fmt.Errorf("worker.count %d must not be negative", cfg.Worker.Count))
	}
	if cfg.Worker.VisibilityTimeout < 0 {
		errs = append(errs, fmt.Errorf("worker.visibility_timeout %s must not be negative", cfg.Worker.VisibilityTimeout))
	}

	// Retrieval
	if cfg.Retrieval.DenseK < 0 || cfg.Retrieval.SparseK < 0 {
		errs = append(errs, errors.New("retrieval.dense_k and retrieval.sparse_k must not be negative"))
	}
	if cfg.Retrieval.TopR < 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_r %d must not be negative", cfg.Retrieval.TopR))
	}
	if cfg.Retrieval.DenseBias < 0 || cfg.Retrieval.DenseBias > 1 {
		errs = append(errs, fmt.Errorf("retrieval.dense_bias %.2f is out of range [0, 1]", cfg.Retrieval.DenseBias))
	}

	// Intent
	if cfg.Intent.Threshold < 0 || cfg.Intent.Threshold > 1 {
		errs = append(errs, fmt.Errorf("intent.threshold %.2f is out of range [0, 1]", cfg.Intent.Threshold))
	}

	// Orchestrator
	if cfg.Orchestrator.FailureThreshold < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.failure_threshold %d must not be negative", cfg.Orchestrator.FailureThreshold))
	}
	if cfg.Orchestrator.FailureWindow < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.failure_window %s must not be negative", cfg.Orchestrator.FailureWindow))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
