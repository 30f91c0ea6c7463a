package config_test

import (
	"testing"
	"time"

	"github.com/lumenforge/tutorcore/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:    config.ServerConfig{LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o"}},
		Worker:    config.WorkerConfig{Count: 4},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.ProvidersChanged {
		t.Error("expected ProvidersChanged=false for identical configs")
	}
	if d.WorkerCountChanged {
		t.Error("expected WorkerCountChanged=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_ProviderModelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"}}}
	new := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o"}}}

	d := config.Diff(old, new)
	if !d.ProvidersChanged {
		t.Error("expected ProvidersChanged=true")
	}
	if len(d.ProviderChanges) != 1 {
		t.Fatalf("expected 1 provider change, got %d", len(d.ProviderChanges))
	}
	if d.ProviderChanges[0].Kind != "llm" {
		t.Errorf("expected changed kind %q, got %q", "llm", d.ProviderChanges[0].Kind)
	}
}

func TestDiff_ProviderOptionsIgnored(t *testing.T) {
	t.Parallel()
	old := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Options: map[string]any{"temperature": 0.3}}}}
	new := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "openai", Options: map[string]any{"temperature": 0.7}}}}

	d := config.Diff(old, new)
	if d.ProvidersChanged {
		t.Error("expected ProvidersChanged=false when only Options (a non-comparable field) differs")
	}
}

func TestDiff_WorkerCountChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Worker: config.WorkerConfig{Count: 4}}
	new := &config.Config{Worker: config.WorkerConfig{Count: 8}}

	d := config.Diff(old, new)
	if !d.WorkerCountChanged {
		t.Error("expected WorkerCountChanged=true")
	}
	if d.NewWorkerCount != 8 {
		t.Errorf("expected NewWorkerCount=8, got %d", d.NewWorkerCount)
	}
}

func TestDiff_RetrievalChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Retrieval: config.RetrievalConfig{DenseK: 10}}
	new := &config.Config{Retrieval: config.RetrievalConfig{DenseK: 20}}

	d := config.Diff(old, new)
	if !d.RetrievalChanged {
		t.Error("expected RetrievalChanged=true")
	}
	if d.NewRetrieval.DenseK != 20 {
		t.Errorf("expected NewRetrieval.DenseK=20, got %d", d.NewRetrieval.DenseK)
	}
}

func TestDiff_OrchestratorChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Orchestrator: config.OrchestratorConfig{FailureThreshold: 3, FailureWindow: 60 * time.Second}}
	new := &config.Config{Orchestrator: config.OrchestratorConfig{FailureThreshold: 5, FailureWindow: 60 * time.Second}}

	d := config.Diff(old, new)
	if !d.OrchestratorChanged {
		t.Error("expected OrchestratorChanged=true")
	}
	if d.NewOrchestrator.FailureThreshold != 5 {
		t.Errorf("expected NewOrchestrator.FailureThreshold=5, got %d", d.NewOrchestrator.FailureThreshold)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Worker: config.WorkerConfig{Count: 4},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogWarn},
		Worker: config.WorkerConfig{Count: 8},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.WorkerCountChanged {
		t.Error("expected WorkerCountChanged=true")
	}
}
