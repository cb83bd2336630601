package services

import (
	"context"
	"strings"

	"rag-chat/internal/logger"
	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const (
	// TopK is the number of nearest neighbours fetched before any filtering
	TopK = 10

	DefaultMinScore        = 0.95
	DefaultMaxContextChars = 3000
)

// Retrieval outcomes reported to the recorder
const (
	OutcomeGrounded     = "grounded"
	OutcomeNoMatches    = "no_matches"
	OutcomeAccessNotice = "access_notice"
)

// RetrievalRecorder observes retrieval outcomes. It may be nil.
type RetrievalRecorder interface {
	Retrieval(outcome string)
}

// RetrieveRequest is one context lookup
type RetrieveRequest struct {
	Message   string
	Namespace string
	// MaxTokens clips the joined context text, counted in characters
	MaxTokens int
	// MinScore is exclusive: a match must score strictly above it
	MinScore float64
	User     *models.User
}

// ContextService finds the chunks a user may see that are relevant to a message
type ContextService struct {
	embedder Embedder
	index    VectorIndex
	auth     *AuthorizationService
	recorder RetrievalRecorder
}

// NewContextService creates a new context service
func NewContextService(embedder Embedder, index VectorIndex, auth *AuthorizationService, recorder RetrievalRecorder) *ContextService {
	return &ContextService{
		embedder: embedder,
		index:    index,
		auth:     auth,
		recorder: recorder,
	}
}

// Retrieve embeds the message, queries the index, keeps the matches above the
// score threshold and then the ones the user may read.
//
// NoMatches describes the score-qualified set and ignores permissions, so a user
// with no grants sees NoMatches=false and AccessNotice=true when relevant content
// exists. Embedding or query failures are returned; permission failures are not.
func (s *ContextService) Retrieve(ctx context.Context, req RetrieveRequest) (*models.ContextResult, error) {
	ctx, span := middleware.StartSpan(ctx, "ContextService.Retrieve",
		attribute.String("namespace", req.Namespace),
		attribute.Float64("min_score", req.MinScore),
		attribute.Bool("user.anonymous", req.User == nil),
	)
	defer span.End()

	maxChars := req.MaxTokens
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}

	embedding, err := s.embedder.Embed(ctx, req.Message)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	matches, err := s.index.Query(ctx, req.Namespace, embedding, TopK)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}

	qualifying := make([]models.ScoredMatch, 0, len(matches))
	for _, m := range matches {
		if float64(m.Score) > req.MinScore {
			qualifying = append(qualifying, m)
		}
	}

	documents := s.auth.FilterMatches(ctx, req.User, qualifying)

	result := &models.ContextResult{
		Documents:    documents,
		NoMatches:    len(qualifying) == 0,
		AccessNotice: len(documents) < len(qualifying),
	}

	chunks := make([]string, len(documents))
	for i, d := range documents {
		chunks[i] = d.Metadata.Chunk
	}
	result.Text = ClipRunes(strings.Join(chunks, "\n"), maxChars)

	span.SetAttributes(
		attribute.Int("matches.total", len(matches)),
		attribute.Int("matches.qualifying", len(qualifying)),
		attribute.Int("matches.permitted", len(documents)),
	)
	logger.FromContext(ctx).Debug("context retrieved",
		"matches", len(matches),
		"qualifying", len(qualifying),
		"permitted", len(documents),
	)
	s.record(result)
	return result, nil
}

func (s *ContextService) record(result *models.ContextResult) {
	if s.recorder == nil {
		return
	}
	switch {
	case result.NoMatches:
		s.recorder.Retrieval(OutcomeNoMatches)
	case result.AccessNotice:
		s.recorder.Retrieval(OutcomeAccessNotice)
	default:
		s.recorder.Retrieval(OutcomeGrounded)
	}
}

// ClipRunes returns at most max characters of s
func ClipRunes(s string, max int) string {
	if max < 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == max {
			return s[:i]
		}
		count++
	}
	return s
}
