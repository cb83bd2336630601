// Package memindex is an in-process vector index with the same contract as the
// pgvector repository. It backs VECTOR_STORE=memory and the pipeline tests.
package memindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"rag-chat/internal/models"
)

type namespace map[string]models.EmbeddedVector

// Index is a brute-force cosine similarity store partitioned by namespace
type Index struct {
	mu         sync.RWMutex
	name       string
	dimension  int
	created    bool
	namespaces map[string]namespace
}

// New returns an index that still has to be created with EnsureIndex
func New(name string) *Index {
	return &Index{name: name, namespaces: map[string]namespace{}}
}

// EnsureIndex creates the index; calling it again is a no-op
func (s *Index) EnsureIndex(_ context.Context, indexSpec models.IndexSpec) error {
	if indexSpec.Dimension <= 0 {
		return &models.ValidationError{Fields: []string{"dimension"}, Reason: "dimension must be positive"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		if s.dimension != indexSpec.Dimension {
			return &models.ValidationError{Fields: []string{"dimension"}, Reason: "index exists with another dimension"}
		}
		return nil
	}
	if indexSpec.Name != "" {
		s.name = indexSpec.Name
	}
	s.dimension = indexSpec.Dimension
	s.created = true
	return nil
}

func (s *Index) Upsert(_ context.Context, ns string, vectors []models.EmbeddedVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return &models.NotFoundError{Kind: "index", Name: s.name}
	}
	for _, v := range vectors {
		if len(v.Values) != s.dimension {
			return &models.ValidationError{Fields: []string{"values"}, Reason: "vector dimension mismatch"}
		}
	}
	part, ok := s.namespaces[ns]
	if !ok {
		part = namespace{}
		s.namespaces[ns] = part
	}
	for _, v := range vectors {
		v.Values = append([]float32(nil), v.Values...)
		part[v.ID] = v
	}
	return nil
}

func (s *Index) Query(_ context.Context, ns string, vector []float32, topK int) ([]models.ScoredMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, &models.NotFoundError{Kind: "index", Name: s.name}
	}
	part := s.namespaces[ns]
	matches := make([]models.ScoredMatch, 0, len(part))
	for id, v := range part {
		matches = append(matches, models.ScoredMatch{
			ID:       id,
			Score:    cosine(v.Values, vector),
			Metadata: v.Metadata,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
	if topK >= 0 && topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Index) DescribeStats(_ context.Context, ns string) (*models.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return nil, &models.NotFoundError{Kind: "index", Name: s.name}
	}
	stats := &models.IndexStats{
		Dimension:  s.dimension,
		Namespaces: map[string]models.NamespaceStats{ns: {VectorCount: int64(len(s.namespaces[ns]))}},
	}
	for _, part := range s.namespaces {
		stats.TotalVectorCount += int64(len(part))
	}
	return stats, nil
}

func (s *Index) DeleteAll(_ context.Context, ns string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return &models.NotFoundError{Kind: "index", Name: s.name}
	}
	delete(s.namespaces, ns)
	return nil
}

func cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
