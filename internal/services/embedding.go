package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rag-chat/internal/logger"
	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

/*
EMBEDDING WORKER POOL

A fixed number of workers pull chunk jobs from a bounded queue, so an
ingestion run never has more than `workers` embedding calls in flight no
matter how many chunks it produced. A full queue blocks the submitter.

  EmbedChunks ──job──▶ [ queue ] ──▶ worker 0..N-1 ──▶ Embedder.Embed
       ▲                                   │
       └────────────── reply ◀─────────────┘
*/

// ErrPoolStopped is returned for work submitted to a pool that is shutting down
var ErrPoolStopped = errors.New("embedding pool is shutting down")

type embedJob struct {
	ctx   context.Context
	index int
	chunk models.Chunk
	reply chan<- embedResult
}

type embedResult struct {
	index  int
	vector models.EmbeddedVector
	err    error
}

// EmbeddingPool embeds chunks with a bounded number of concurrent calls
type EmbeddingPool struct {
	embedder Embedder

	jobs    chan embedJob
	workers int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewEmbeddingPool creates the pool; call Start before submitting work
func NewEmbeddingPool(embedder Embedder, numWorkers, queueSize int) *EmbeddingPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EmbeddingPool{
		embedder: embedder,
		jobs:     make(chan embedJob, queueSize),
		workers:  numWorkers,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start spawns the workers
func (p *EmbeddingPool) Start() {
	logger.Default().Info("starting embedding worker pool", "workers", p.workers, "queue", cap(p.jobs))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *EmbeddingPool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			logger.Default().Debug("embedding worker stopped", "worker", id)
			return
		case job := <-p.jobs:
			job.reply <- p.process(job)
		}
	}
}

func (p *EmbeddingPool) process(job embedJob) embedResult {
	if err := job.ctx.Err(); err != nil {
		return embedResult{index: job.index, err: err}
	}
	values, err := p.embedder.Embed(job.ctx, job.chunk.PageContent)
	if err != nil {
		return embedResult{index: job.index, err: fmt.Errorf("failed to embed chunk %s: %w", job.chunk.ContentHash, err)}
	}
	return embedResult{index: job.index, vector: models.NewEmbeddedVector(job.chunk, values)}
}

// EmbedChunks embeds every chunk and returns the vectors in chunk order.
// The first failure cancels the remaining jobs of this call and is returned.
func (p *EmbeddingPool) EmbedChunks(ctx context.Context, chunks []models.Chunk) ([]models.EmbeddedVector, error) {
	ctx, span := middleware.StartSpan(ctx, "EmbeddingPool.EmbedChunks",
		attribute.Int("chunks.count", len(chunks)),
	)
	defer span.End()

	if len(chunks) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	replies := make(chan embedResult, len(chunks))
	submitted := 0
	for i, chunk := range chunks {
		select {
		case p.jobs <- embedJob{ctx: ctx, index: i, chunk: chunk, reply: replies}:
			submitted++
		case <-ctx.Done():
			middleware.AddSpanError(ctx, ctx.Err())
			return nil, ctx.Err()
		case <-p.ctx.Done():
			return nil, ErrPoolStopped
		}
	}

	out := make([]models.EmbeddedVector, len(chunks))
	for received := 0; received < submitted; received++ {
		select {
		case res := <-replies:
			if res.err != nil {
				middleware.AddSpanError(ctx, res.err)
				return nil, res.err
			}
			out[res.index] = res.vector
		case <-p.ctx.Done():
			return nil, ErrPoolStopped
		}
	}
	return out, nil
}

// Shutdown stops the workers and waits for in-flight embeddings to return
func (p *EmbeddingPool) Shutdown() {
	logger.Default().Info("shutting down embedding worker pool")
	p.cancel()
	p.wg.Wait()
}

// QueueLength returns the number of jobs waiting for a worker
func (p *EmbeddingPool) QueueLength() int {
	return len(p.jobs)
}
