// Package config provides the configuration schema, loader, and provider
// registry for the tutoring backend.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognized log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (l LogLevel) String() string {
	return string(l)
}

// Config is the root configuration structure for the tutoring backend.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Providers    ProvidersConfig    `yaml:"providers"`
	DRS          DRSConfig          `yaml:"drs"`
	Cache        CacheConfig        `yaml:"cache"`
	Queue        QueueConfig        `yaml:"queue"`
	Worker       WorkerConfig       `yaml:"worker"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Intent       IntentConfig       `yaml:"intent"`
	Chat         ChatConfig         `yaml:"chat"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// ServerConfig holds network and logging settings for the tutoring server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	STT        ProviderEntry `yaml:"stt"`
	TTS        ProviderEntry `yaml:"tts"`
	Embeddings ProviderEntry `yaml:"embeddings"`
	Reranker   ProviderEntry `yaml:"reranker"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists additional provider implementations, tried in order,
	// when this entry's provider fails or its circuit breaker is open.
	// Leave empty to run without failover.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// DRSConfig configures the durable record store (component C).
type DRSConfig struct {
	// PostgresDSN is the connection string for the PostgreSQL-backed DRS.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// CacheConfig configures the hot cache (component D).
type CacheConfig struct {
	// RedisAddr is the address of the Redis instance backing the hot cache.
	RedisAddr string `yaml:"redis_addr"`
}

// QueueConfig configures the job queue broker (component E). The broker
// shares the Redis instance with [CacheConfig] unless RedisAddr is set.
type QueueConfig struct {
	// RedisAddr overrides [CacheConfig.RedisAddr] for the queue connection.
	RedisAddr string `yaml:"redis_addr"`

	// Name is the queue name tasks are enqueued under.
	Name string `yaml:"name"`
}

// WorkerConfig tunes the worker pool (component H) that drains the ingest
// queue.
type WorkerConfig struct {
	// Count is the number of concurrent worker goroutines.
	Count int `yaml:"count"`

	// VisibilityTimeout bounds how long a task may be claimed before it is
	// considered abandoned and returned to the queue.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	// HeartbeatInterval is how often an in-progress task's claim is renewed.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// MaxTasksPerWorker restarts a worker goroutine after this many tasks, to
	// bound any slow memory growth across a long process lifetime. Zero
	// disables the restart.
	MaxTasksPerWorker int `yaml:"max_tasks_per_worker"`

	// SoftMemoryCapBytes triggers a worker restart once its process RSS
	// estimate exceeds this many bytes. Zero disables the cap.
	SoftMemoryCapBytes uint64 `yaml:"soft_memory_cap_bytes"`
}

// RetrievalConfig tunes the hybrid retrieval pipeline (component F).
type RetrievalConfig struct {
	// DenseK is the number of nearest neighbours fetched from the dense index.
	DenseK int `yaml:"dense_k"`

	// SparseK is the number of matches fetched from the sparse (BM25) index.
	SparseK int `yaml:"sparse_k"`

	// TopR is the number of fused results returned after reranking.
	TopR int `yaml:"top_r"`

	// RRFKappa is the reciprocal rank fusion constant.
	RRFKappa float64 `yaml:"rrf_kappa"`

	// DenseBias weights dense results against sparse results in [0, 1]; 1.0
	// ignores sparse entirely.
	DenseBias float64 `yaml:"dense_bias"`
}

// IntentConfig tunes the intent router (component K).
type IntentConfig struct {
	// ExemplarsPath is a JSON file of labelled example utterances used for
	// embedding-nearest-neighbour classification.
	ExemplarsPath string `yaml:"exemplars_path"`

	// Threshold is the minimum cosine similarity required to accept the
	// nearest exemplar's label; below it, the router tries its keyword
	// rules and uses DefaultLabel only if they are inconclusive.
	Threshold float64 `yaml:"threshold"`

	// DefaultLabel is returned when no exemplar clears Threshold and the
	// keyword rules are inconclusive.
	DefaultLabel string `yaml:"default_label"`
}

// ChatConfig tunes the per-turn chat service (component J).
type ChatConfig struct {
	// TurnBudget is the end-to-end deadline applied to a single chat turn.
	TurnBudget time.Duration `yaml:"turn_budget"`

	// MaxContextTokens is the LLM provider's context window, used to decide
	// when accumulated turn history must be summarised before being sent on
	// a completion request. Defaults to 8000 when zero.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// OrchestratorConfig tunes the teaching orchestrator (component L).
type OrchestratorConfig struct {
	// DefaultVoiceID selects the TTS voice used when a session does not
	// specify one explicitly.
	DefaultVoiceID string `yaml:"default_voice_id"`

	// FailureThreshold is the number of sub-agent failures within
	// FailureWindow that ends a session.
	FailureThreshold int `yaml:"failure_threshold"`

	// FailureWindow is the sliding window over which FailureThreshold is
	// evaluated.
	FailureWindow time.Duration `yaml:"failure_window"`
}
