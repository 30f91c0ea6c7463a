// Command tutorcore is the main entry point for the tutoring backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/lumenforge/tutorcore/internal/app"
	"github.com/lumenforge/tutorcore/internal/config"
	"github.com/lumenforge/tutorcore/internal/observe"
	"github.com/lumenforge/tutorcore/internal/resilience"
	"github.com/lumenforge/tutorcore/pkg/provider/embeddings"
	"github.com/lumenforge/tutorcore/pkg/provider/embeddings/ollama"
	"github.com/lumenforge/tutorcore/pkg/provider/embeddings/openai"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/provider/llm/anyllm"
	openaillm "github.com/lumenforge/tutorcore/pkg/provider/llm/openai"
	"github.com/lumenforge/tutorcore/pkg/provider/stt"
	"github.com/lumenforge/tutorcore/pkg/provider/stt/whisper"
	"github.com/lumenforge/tutorcore/pkg/provider/tts"
	"github.com/lumenforge/tutorcore/pkg/provider/tts/coqui"
	"github.com/lumenforge/tutorcore/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tutorcore: config file %q not found — pass the path of a YAML config file with -config\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tutorcore: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("tutorcore starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	shutdownTelemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceName: "tutorcore"})
	if err != nil {
		slog.Error("failed to initialise telemetry providers", "error", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "error", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "error", err)
		return 1
	}

	printStartupSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "error", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "error", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders is the set of provider names backed by the any-llm-go
// universal adapter rather than a dedicated native client.
var anyllmProviders = map[string]bool{
	"anthropic": true, "gemini": true, "ollama": true, "deepseek": true,
	"mistral": true, "groq": true, "llamacpp": true, "llamafile": true,
}

// builtinProviders maps provider category names to the implementations that
// ship with tutorcore. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":        {"whisper-native"},
	"tts":        {"elevenlabs", "coqui"},
	"embeddings": {"openai", "ollama"},
}

// registerBuiltinProviders registers every factory tutorcore ships with into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		return openaillm.New(e.APIKey, e.Model, llmOpenAIOptions(e)...)
	})
	for name := range anyllmProviders {
		name := name
		reg.RegisterLLM(name, func(e config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(name, e.Model, anyllmOptions(e)...)
		})
	}

	reg.RegisterSTT("whisper-native", func(e config.ProviderEntry) (stt.Provider, error) {
		return whisper.NewNative(e.Model)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		return elevenlabs.New(e.APIKey)
	})
	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		return coqui.New(e.BaseURL)
	})

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return openai.New(e.APIKey, e.Model)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return ollama.New(e.BaseURL, e.Model)
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

func llmOpenAIOptions(e config.ProviderEntry) []openaillm.Option {
	var opts []openaillm.Option
	if e.BaseURL != "" {
		opts = append(opts, openaillm.WithBaseURL(e.BaseURL))
	}
	return opts
}

func anyllmOptions(e config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if e.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
	}
	if e.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
	}
	return opts
}

// buildProviders instantiates every provider named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// A provider named but not registered is a configuration error; an unnamed
// provider slot is simply left unconfigured. LLM, STT and TTS entries that
// declare Fallbacks are wrapped in a [resilience] failover chain so a primary
// outage degrades to the next configured backend instead of failing the turn
// outright. Fallbacks declared on the embeddings and reranker entries are not
// used.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		if len(cfg.Providers.LLM.Fallbacks) > 0 {
			chain := resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
			for _, fb := range cfg.Providers.LLM.Fallbacks {
				fp, err := reg.CreateLLM(fb)
				if err != nil {
					return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
				}
				chain.AddFallback(fb.Name, fp)
				slog.Info("registered llm fallback", "primary", name, "fallback", fb.Name)
			}
			p = chain
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		if len(cfg.Providers.STT.Fallbacks) > 0 {
			chain := resilience.NewSTTFallback(p, name, resilience.FallbackConfig{})
			for _, fb := range cfg.Providers.STT.Fallbacks {
				fp, err := reg.CreateSTT(fb)
				if err != nil {
					return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
				}
				chain.AddFallback(fb.Name, fp)
				slog.Info("registered stt fallback", "primary", name, "fallback", fb.Name)
			}
			p = chain
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		if len(cfg.Providers.TTS.Fallbacks) > 0 {
			chain := resilience.NewTTSFallback(p, name, resilience.FallbackConfig{})
			for _, fb := range cfg.Providers.TTS.Fallbacks {
				fp, err := reg.CreateTTS(fb)
				if err != nil {
					return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
				}
				chain.AddFallback(fb.Name, fp)
				slog.Info("registered tts fallback", "primary", name, "fallback", fb.Name)
			}
			p = chain
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}

	if cfg.Providers.Reranker.Name != "" {
		p, err := reg.CreateReranker(cfg.Providers.Reranker)
		if err != nil {
			return nil, fmt.Errorf("create reranker %q: %w", cfg.Providers.Reranker.Name, err)
		}
		ps.Reranker = p
		slog.Info("provider created", "kind", "reranker", "name", cfg.Providers.Reranker.Name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         tutorcore — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("Reranker", cfg.Providers.Reranker.Name, cfg.Providers.Reranker.Model)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Printf("║  Worker count    : %-19d ║\n", cfg.Worker.Count)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
