package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rag-chat/internal/models"
)

// recordingIndex records upsert batches and replays canned query results
type recordingIndex struct {
	mu        sync.Mutex
	batches   [][]models.EmbeddedVector
	failOn    int // 1-based upsert call that fails, 0 for never
	matches   []models.ScoredMatch
	queryErr  error
	queryTopK int
	ensured   []models.IndexSpec
	ensureErr error
}

func (f *recordingIndex) EnsureIndex(_ context.Context, indexSpec models.IndexSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, indexSpec)
	return f.ensureErr
}

func (f *recordingIndex) Upsert(_ context.Context, _ string, vectors []models.EmbeddedVector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.batches)+1 == f.failOn {
		f.batches = append(f.batches, nil)
		return errors.New("index unavailable")
	}
	f.batches = append(f.batches, append([]models.EmbeddedVector(nil), vectors...))
	return nil
}

func (f *recordingIndex) Query(_ context.Context, _ string, _ []float32, topK int) ([]models.ScoredMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryTopK = topK
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *recordingIndex) DescribeStats(_ context.Context, ns string) (*models.IndexStats, error) {
	return &models.IndexStats{Dimension: 3, Namespaces: map[string]models.NamespaceStats{ns: {}}}, nil
}

func (f *recordingIndex) DeleteAll(context.Context, string) error { return nil }

func (f *recordingIndex) committed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

// stubEmbedder derives a small deterministic vector from the text
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{1, float32(len(text)), sum}, nil
}

// grantDirectory allows exactly the (user, object) pairs it was given
type grantDirectory struct {
	mu      sync.Mutex
	grants  map[string]bool
	failFor map[string]bool
	checks  int
	ops     []models.ImportOperation
	failErr error
}

func newGrantDirectory() *grantDirectory {
	return &grantDirectory{grants: map[string]bool{}, failFor: map[string]bool{}}
}

func (d *grantDirectory) grant(user, object string) { d.grants[user+"|"+object] = true }

func (d *grantDirectory) Import(_ context.Context, ops []models.ImportOperation) (models.ImportResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failErr != nil {
		return models.ImportResult{}, d.failErr
	}
	var res models.ImportResult
	for _, op := range ops {
		d.ops = append(d.ops, op)
		switch {
		case op.Relation != nil && op.OpCode == models.ImportOpSet:
			d.grants[op.Relation.SubjectID+"|"+op.Relation.ObjectID] = true
			res.RelationsSet++
		case op.Relation != nil && op.OpCode == models.ImportOpDelete:
			delete(d.grants, op.Relation.SubjectID+"|"+op.Relation.ObjectID)
			res.RelationsDeleted++
		case op.Object != nil:
			res.ObjectsSet++
		}
	}
	return res, nil
}

func (d *grantDirectory) CheckPermission(_ context.Context, check models.PermissionCheck) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++
	if d.failFor[check.ObjectID] {
		return false, fmt.Errorf("directory timeout for %s", check.ObjectID)
	}
	return d.grants[check.SubjectID+"|"+check.ObjectID], nil
}

func (d *grantDirectory) relationOps() []models.ImportOperation {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.ImportOperation
	for _, op := range d.ops {
		if op.Relation != nil {
			out = append(out, op)
		}
	}
	return out
}

// scriptedGenerator emits fixed tokens and records what it was asked
type scriptedGenerator struct {
	tokens   []string
	err      error
	system   string
	messages []models.ChatMessage
}

func (g *scriptedGenerator) Stream(
	ctx context.Context,
	system string,
	messages []models.ChatMessage,
	onToken func(ctx context.Context, token string) error,
) (string, error) {
	g.system = system
	g.messages = messages
	full := ""
	for _, tok := range g.tokens {
		if err := onToken(ctx, tok); err != nil {
			return full, err
		}
		full += tok
	}
	if g.err != nil {
		return full, g.err
	}
	return full, nil
}

// memorySink collects a chat stream in arrival order
type memorySink struct {
	events []string
	tokens []string
	data   []any
	errs   []error
	closed int
}

func (s *memorySink) Token(token string) error {
	s.events = append(s.events, "token")
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *memorySink) Data(payload any) error {
	s.events = append(s.events, "data")
	s.data = append(s.data, payload)
	return nil
}

func (s *memorySink) Error(err error) error {
	s.events = append(s.events, "error")
	s.errs = append(s.errs, err)
	return nil
}

func (s *memorySink) Close() error {
	s.events = append(s.events, "close")
	s.closed++
	return nil
}

func match(id string, score float32, category string) models.ScoredMatch {
	return models.ScoredMatch{
		ID:    id,
		Score: score,
		Metadata: models.VectorMetadata{
			SchemaVersion: models.MetadataSchemaVersion,
			Chunk:         "chunk " + id,
			URL:           "https://acme.test/" + id,
			Category:      category,
			Hash:          id,
		},
	}
}
