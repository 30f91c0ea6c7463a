// Package mock provides a test double for [vectorindex.Index].
package mock

import (
	"context"
	"sync"

	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/vectorindex"
)

// Index is a mock implementation of [vectorindex.Index]. Upsert only records
// its calls and stores nothing; Query returns QueryResults (cut to topK) and
// Count returns CountValue.
type Index struct {
	mu sync.Mutex

	// QueryResults, if non-nil, is returned verbatim by Query.
	QueryResults []vectorindex.Result
	QueryErr     error
	UpsertErr    error
	CountValue   int
	CountErr     error
	DeleteErr    error

	UpsertCalls []struct {
		Collection string
		Chunks     []model.Chunk
	}
	QueryCalls int
}

var _ vectorindex.Index = (*Index)(nil)

func (m *Index) Upsert(ctx context.Context, collection string, chunks []model.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls = append(m.UpsertCalls, struct {
		Collection string
		Chunks     []model.Chunk
	}{collection, chunks})
	return m.UpsertErr
}

func (m *Index) Query(ctx context.Context, collection string, embedding []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QueryCalls++
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	if len(m.QueryResults) > topK {
		return m.QueryResults[:topK], nil
	}
	return m.QueryResults, nil
}

func (m *Index) Count(ctx context.Context, collection string) (int, error) {
	return m.CountValue, m.CountErr
}

func (m *Index) Delete(ctx context.Context, collection string, filter vectorindex.Filter) error {
	return m.DeleteErr
}
