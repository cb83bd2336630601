package services

import (
	"context"

	"rag-chat/internal/models"
)

/*
Interfaces are declared here, next to the code that consumes them.
Repositories and clients return concrete types and never import this package.

  Embedder      internal/openai.Client
  VectorIndex   repository.VectorRepositoryImpl, memindex.Index
  Directory     repository.DirectoryRepositoryImpl, directory.Client
  Generator     internal/openai.Client
*/

// Embedder turns text into a vector of the index dimension
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is a namespace-scoped similarity store bound to one index
type VectorIndex interface {
	EnsureIndex(ctx context.Context, indexSpec models.IndexSpec) error
	Upsert(ctx context.Context, namespace string, vectors []models.EmbeddedVector) error
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.ScoredMatch, error)
	DescribeStats(ctx context.Context, namespace string) (*models.IndexStats, error)
	DeleteAll(ctx context.Context, namespace string) error
}

// Directory stores authorization relations and answers permission checks
type Directory interface {
	Import(ctx context.Context, ops []models.ImportOperation) (models.ImportResult, error)
	CheckPermission(ctx context.Context, check models.PermissionCheck) (bool, error)
}

// Generator streams a chat completion token by token
type Generator interface {
	Stream(
		ctx context.Context,
		system string,
		messages []models.ChatMessage,
		onToken func(ctx context.Context, token string) error,
	) (string, error)
}

// Source yields the pages of one ingestion run
type Source interface {
	Name() string
	Load(ctx context.Context) ([]models.Page, error)
}

// StreamSink receives the output of a chat turn. Close is called exactly once,
// after the last token and after the context payload.
type StreamSink interface {
	Token(token string) error
	Data(payload any) error
	Error(err error) error
	Close() error
}
