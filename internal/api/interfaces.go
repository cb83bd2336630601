package api

import (
	"context"

	"rag-chat/internal/models"
	"rag-chat/internal/services"
)

// Handlers depend on these, not on the concrete services

// ChatService streams grounded answers
type ChatService interface {
	Chat(ctx context.Context, req services.ChatRequest, sink services.StreamSink) error
}

// IngestService runs ingestion
type IngestService interface {
	Ingest(ctx context.Context, req services.IngestRequest) (*services.IngestResult, error)
}

// IndexMaintainer covers the index maintenance endpoints
type IndexMaintainer interface {
	EnsureIndex(ctx context.Context, indexSpec models.IndexSpec) error
	DescribeStats(ctx context.Context, namespace string) (*models.IndexStats, error)
	DeleteAll(ctx context.Context, namespace string) error
}

// RelationService grants and revokes access to vectors
type RelationService interface {
	AssignRelations(ctx context.Context, assignment models.OwnershipAssignment, vectors []models.EmbeddedVector) (models.ImportResult, error)
	Unassign(ctx context.Context, userID, relation string, vectorIDs []string) (models.ImportResult, error)
}
