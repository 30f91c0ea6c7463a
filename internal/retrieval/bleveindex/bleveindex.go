// Package bleveindex implements [retrieval.SparseIndex] on top of an
// in-memory bleve index, providing BM25-ranked lexical search as the sparse
// half of the hybrid retriever. No repo in the reference corpus this
// codebase is descended from demonstrates bleve's API, so this package
// follows bleve's own documented usage pattern directly rather than an
// adapted in-house idiom.
package bleveindex

import (
	"context"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/lumenforge/tutorcore/pkg/model"
)

// indexedDoc is the document shape handed to bleve; only Text is analyzed,
// the rest travels along for filtering-free lookups after a search hit.
type indexedDoc struct {
	Text       string `json:"text"`
	Collection string `json:"collection"`
}

// Index is a process-local, in-memory bleve index. One Index instance
// serves all collections (tenants); documents are namespaced by prefixing
// their bleve document ID with the collection name, since bleve's
// in-memory index has no native multi-tenant partitioning.
type Index struct {
	mu  sync.RWMutex
	idx bleve.Index
}

// New builds an empty in-memory bleve index with a default text mapping.
func New() (*Index, error) {
	m := mapping.NewIndexMapping()
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, err
	}
	return &Index{idx: idx}, nil
}

// Index adds or replaces chunk in the lexical index, scoped to collection.
func (b *Index) Index(ctx context.Context, collection string, chunk model.Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.idx.Index(docID(collection, chunk.ChunkID), indexedDoc{Text: chunk.Text, Collection: collection})
}

// Search returns up to topK chunk IDs ranked by BM25 score, best first,
// scoped to collection.
func (b *Index) Search(ctx context.Context, collection string, query string, topK int) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	textQuery := bleve.NewMatchQuery(query)
	textQuery.SetField("text")
	collectionQuery := bleve.NewTermQuery(collection)
	collectionQuery.SetField("collection")

	conjunct := bleve.NewConjunctionQuery(textQuery, collectionQuery)
	req := bleve.NewSearchRequestOptions(conjunct, topK, 0, false)

	result, err := b.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, chunkIDFromDocID(collection, hit.ID))
	}
	return ids, nil
}

func docID(collection, chunkID string) string {
	return collection + "/" + chunkID
}

func chunkIDFromDocID(collection, docID string) string {
	prefix := collection + "/"
	if len(docID) > len(prefix) && docID[:len(prefix)] == prefix {
		return docID[len(prefix):]
	}
	return docID
}
