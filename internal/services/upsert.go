package services

import (
	"context"

	"rag-chat/internal/logger"
	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultUpsertBatchSize is used when a caller passes a non-positive batch size
const DefaultUpsertBatchSize = 10

// UpsertRecorder observes each committed batch. It may be nil.
type UpsertRecorder interface {
	UpsertBatch(namespace string, size int, err error)
}

// ChunkedUpsert writes vectors in contiguous batches of batchSize, in input order,
// one batch at a time. The first failing batch stops the run and is reported as an
// UpsertError. Earlier batches stay written; callers re-run the ingestion to repair,
// which is safe because vector ids are content hashes.
func ChunkedUpsert(
	ctx context.Context,
	index VectorIndex,
	vectors []models.EmbeddedVector,
	namespace string,
	batchSize int,
	recorder UpsertRecorder,
) error {
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	ctx, span := middleware.StartSpan(ctx, "ChunkedUpsert",
		attribute.Int("vectors.count", len(vectors)),
		attribute.Int("batch.size", batchSize),
		attribute.String("namespace", namespace),
	)
	defer span.End()

	log := logger.FromContext(ctx)
	for batch, start := 0, 0; start < len(vectors); batch, start = batch+1, start+batchSize {
		end := start + batchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		err := index.Upsert(ctx, namespace, vectors[start:end])
		if recorder != nil {
			recorder.UpsertBatch(namespace, end-start, err)
		}
		if err != nil {
			uerr := &models.UpsertError{Batch: batch, Start: start, End: end, Err: err}
			middleware.AddSpanError(ctx, uerr)
			log.Error("upsert batch failed", "batch", batch, "start", start, "end", end, "error", err)
			return uerr
		}
		middleware.AddSpanEvent(ctx, "batch.upserted",
			attribute.Int("batch", batch),
			attribute.Int("size", end-start),
		)
	}
	return nil
}
