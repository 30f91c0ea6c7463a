package model

// Chunk is a piece of source text extracted during ingest, carrying a dense
// embedding for vector search. ChunkID is stable across re-ingest of the same
// input document, which is what makes re-ingest idempotent.
type Chunk struct {
	ChunkID      string
	SourceDocID  string
	Page         int
	OffsetBegin  int
	OffsetEnd    int
	Text         string
	Metadata     map[string]string // course, module, topic, language
	Embedding    []float32
	ModelID      string // embedding model identifier used to produce Embedding
}
