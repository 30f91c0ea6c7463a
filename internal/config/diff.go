package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; changes to DRS,
// cache, or queue connection settings require a process restart and are not
// reported here.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ProvidersChanged bool // true if any of LLM/STT/TTS/Embeddings/Reranker entries changed
	ProviderChanges  []ProviderDiff

	WorkerCountChanged bool
	NewWorkerCount     int

	RetrievalChanged bool
	NewRetrieval     RetrievalConfig

	OrchestratorChanged bool
	NewOrchestrator     OrchestratorConfig
}

// ProviderDiff describes what changed for a single provider slot between two
// configs.
type ProviderDiff struct {
	Kind string // "llm", "stt", "tts", "embeddings", "reranker"
	Old  ProviderEntry
	New  ProviderEntry
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	for _, pd := range []ProviderDiff{
		{Kind: "llm", Old: old.Providers.LLM, New: new.Providers.LLM},
		{Kind: "stt", Old: old.Providers.STT, New: new.Providers.STT},
		{Kind: "tts", Old: old.Providers.TTS, New: new.Providers.TTS},
		{Kind: "embeddings", Old: old.Providers.Embeddings, New: new.Providers.Embeddings},
		{Kind: "reranker", Old: old.Providers.Reranker, New: new.Providers.Reranker},
	} {
		if providerEntryChanged(pd.Old, pd.New) {
			d.ProviderChanges = append(d.ProviderChanges, pd)
			d.ProvidersChanged = true
		}
	}

	if old.Worker.Count != new.Worker.Count {
		d.WorkerCountChanged = true
		d.NewWorkerCount = new.Worker.Count
	}

	if old.Retrieval != new.Retrieval {
		d.RetrievalChanged = true
		d.NewRetrieval = new.Retrieval
	}

	if old.Orchestrator != new.Orchestrator {
		d.OrchestratorChanged = true
		d.NewOrchestrator = new.Orchestrator
	}

	return d
}

// providerEntryChanged compares the scalar fields of two [ProviderEntry]
// values. Options is deliberately excluded: it holds arbitrary nested values
// that are not comparable with ==.
func providerEntryChanged(a, b ProviderEntry) bool {
	return a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model
}
