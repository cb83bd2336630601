package services

import (
	"context"
	"fmt"

	"rag-chat/internal/logger"
	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// ChunkEmbedder embeds a batch of chunks, preserving order
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedVector, error)
}

// StaticSource serves pages supplied inline with a request
type StaticSource struct {
	Pages []models.Page
}

func (s StaticSource) Name() string { return "inline" }

func (s StaticSource) Load(context.Context) ([]models.Page, error) {
	return s.Pages, nil
}

// IngestRequest is one ingestion run
type IngestRequest struct {
	Source    Source
	Splitter  models.SplitterConfig
	Ownership models.OwnershipAssignment
	Namespace string
}

// IngestResult summarizes a completed run. Sample holds the chunks of the first page.
type IngestResult struct {
	Sample    []models.Chunk      `json:"documents"`
	Pages     int                 `json:"pages"`
	Chunks    int                 `json:"chunks"`
	Vectors   int                 `json:"vectors"`
	Relations models.ImportResult `json:"relations"`
}

// IngestService runs EnsureIndex -> Split -> Embed -> Upsert -> AssignRelations
type IngestService struct {
	index     VectorIndex
	embedder  ChunkEmbedder
	auth      *AuthorizationService
	indexSpec models.IndexSpec
	batchSize int
	recorder  UpsertRecorder
}

// NewIngestService creates a new ingest service
func NewIngestService(
	index VectorIndex,
	embedder ChunkEmbedder,
	auth *AuthorizationService,
	indexSpec models.IndexSpec,
	batchSize int,
	recorder UpsertRecorder,
) *IngestService {
	return &IngestService{
		index:     index,
		embedder:  embedder,
		auth:      auth,
		indexSpec: indexSpec,
		batchSize: batchSize,
		recorder:  recorder,
	}
}

// Ingest runs the pipeline. Any stage failure stops the run; work already done by
// earlier stages is kept, and re-running the same input converges because vector
// ids and relation SETs are idempotent.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.Source == nil {
		return nil, &models.ValidationError{Fields: []string{"source"}, Reason: "a source is required"}
	}
	ctx, span := middleware.StartSpan(ctx, "IngestService.Ingest",
		attribute.String("source", req.Source.Name()),
		attribute.String("splitter", string(req.Splitter.Method)),
		attribute.String("namespace", req.Namespace),
	)
	defer span.End()
	log := logger.FromContext(ctx).With("source", req.Source.Name(), "namespace", req.Namespace)

	splitter, err := NewSplitter(req.Splitter)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	pages, err := req.Source.Load(ctx)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to load source %s: %w", req.Source.Name(), err)
	}

	if err := s.index.EnsureIndex(ctx, s.indexSpec); err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}
	middleware.AddSpanEvent(ctx, "index.ensured")

	documents := make([][]models.Chunk, 0, len(pages))
	var all []models.Chunk
	for _, page := range pages {
		chunks, err := Prepare(page, splitter)
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return nil, err
		}
		documents = append(documents, chunks)
		all = append(all, chunks...)
	}
	middleware.AddSpanEvent(ctx, "pages.split", attribute.Int("chunks", len(all)))

	embedded, err := s.embedder.EmbedChunks(ctx, uniqueChunks(all))
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	if err := ChunkedUpsert(ctx, s.index, embedded, req.Namespace, s.batchSize, s.recorder); err != nil {
		return nil, err
	}

	relations, err := s.auth.AssignRelations(ctx, req.Ownership, embedded)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	result := &IngestResult{
		Sample:    []models.Chunk{},
		Pages:     len(pages),
		Chunks:    len(all),
		Vectors:   len(embedded),
		Relations: relations,
	}
	if len(documents) > 0 {
		result.Sample = documents[0]
	}
	log.Info("ingestion complete",
		"pages", result.Pages,
		"chunks", result.Chunks,
		"vectors", result.Vectors,
		"relations", relations.RelationsSet,
	)
	return result, nil
}

// uniqueChunks drops chunks whose content hash was already seen, since they map
// to the same vector id
func uniqueChunks(chunks []models.Chunk) []models.Chunk {
	seen := make(map[string]bool, len(chunks))
	out := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if seen[c.ContentHash] {
			continue
		}
		seen[c.ContentHash] = true
		out = append(out, c)
	}
	return out
}
