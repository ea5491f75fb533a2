package testutils

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/papercomputeco/recall/pkg/vector"
)

// ErrMockQuery is returned by MockVectorDriver.Query when FailQuery is set.
var ErrMockQuery = errors.New("mock query failure")

// MockVectorDriver is an in-memory vector driver. Query ranks stored
// documents by cosine similarity mapped into (0, 1].
type MockVectorDriver struct {
	mu        sync.Mutex
	documents map[string]vector.Document

	// AddCalls counts documents passed to Add.
	AddCalls int

	// FailQuery causes Query to return ErrMockQuery.
	FailQuery bool
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make(map[string]vector.Document),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.documents[d.ID] = d
	}
	m.AddCalls += len(docs)
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailQuery {
		return nil, ErrMockQuery
	}

	results := make([]vector.QueryResult, 0, len(m.documents))
	for _, d := range m.documents {
		sim := cosine(embedding, d.Embedding)
		results = append(results, vector.QueryResult{Document: d, Score: float32((sim + 1) / 2)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []vector.Document
	for _, id := range ids {
		if d, ok := m.documents[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.documents, id)
	}
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Len returns the number of stored documents.
func (m *MockVectorDriver) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.documents)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
