package services

import (
	"context"
	"fmt"
	"strings"

	"rag-chat/internal/logger"
	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"go.opentelemetry.io/otel/attribute"
)

const systemPromptTemplate = `AI assistant is a brand new, powerful, human-like artificial intelligence.
The traits of AI include expert knowledge, helpfulness, cleverness, and articulateness.
AI is a well-behaved and well-mannered individual.
AI is always friendly, kind, and inspiring, and is eager to provide vivid and thoughtful responses to the user.
START CONTEXT BLOCK
%s
END OF CONTEXT BLOCK
AI assistant will take into account any CONTEXT BLOCK that is provided in a conversation.
If the context does not provide the answer to question, the AI assistant will say, "I'm sorry, but I don't know the answer to that question".
AI assistant will not apologize for previous responses, but instead will indicate new information was gained.
AI assistant will not invent anything that is not drawn directly from the context.`

// BuildSystemPrompt embeds the retrieved context text in the system instruction
func BuildSystemPrompt(contextText string) string {
	return fmt.Sprintf(systemPromptTemplate, contextText)
}

// ContextPayload is the out-of-band data frame sent after the last token.
// Context is nil when the turn ran without retrieval.
type ContextPayload struct {
	Context *models.ContextResult `json:"context"`
}

// ChatRequest is one chat turn
type ChatRequest struct {
	Messages    []models.ChatMessage
	WithContext bool
	User        *models.User
}

// ChatService grounds a completion in retrieved context and streams it to a sink
type ChatService struct {
	contexts  *ContextService
	generator Generator
	namespace string
	minScore  float64
	maxChars  int
}

// NewChatService creates a new chat service
func NewChatService(contexts *ContextService, generator Generator, namespace string, minScore float64, maxChars int) *ChatService {
	return &ChatService{
		contexts:  contexts,
		generator: generator,
		namespace: namespace,
		minScore:  minScore,
		maxChars:  maxChars,
	}
}

// Chat answers the latest message. Only user turns are replayed to the model.
// Tokens go to the sink as they arrive; after the last one the context payload is
// sent and the sink is closed. The sink is closed exactly once on every path.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest, sink StreamSink) (err error) {
	ctx, span := middleware.StartSpan(ctx, "ChatService.Chat",
		attribute.Int("messages.count", len(req.Messages)),
		attribute.Bool("with_context", req.WithContext),
	)
	defer span.End()
	log := logger.FromContext(ctx)

	defer func() {
		if err != nil {
			middleware.AddSpanError(ctx, err)
			if werr := sink.Error(err); werr != nil {
				log.Debug("failed to write error frame", "error", werr)
			}
		}
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close stream: %w", cerr)
		}
	}()

	if len(req.Messages) == 0 {
		return &models.ValidationError{Fields: []string{"messages"}, Reason: "at least one message is required"}
	}
	last := req.Messages[len(req.Messages)-1]

	var retrieved *models.ContextResult
	contextText := ""
	if req.WithContext {
		retrieved, err = s.contexts.Retrieve(ctx, RetrieveRequest{
			Message:   last.Content,
			Namespace: s.namespace,
			MaxTokens: s.maxChars,
			MinScore:  s.minScore,
			User:      req.User,
		})
		if err != nil {
			return err
		}
		contextText = retrieved.Text
	}

	turns := UserTurns(req.Messages)
	_, err = s.generator.Stream(ctx, BuildSystemPrompt(contextText), turns, func(_ context.Context, token string) error {
		return sink.Token(token)
	})
	if err != nil {
		return err
	}

	if err := sink.Data(ContextPayload{Context: retrieved}); err != nil {
		return fmt.Errorf("failed to write context payload: %w", err)
	}
	log.Debug("chat turn streamed", "turns", len(turns), "with_context", req.WithContext)
	return nil
}

// UserTurns keeps only the user-authored messages, in order
func UserTurns(messages []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleUser && strings.TrimSpace(m.Content) != "" {
			out = append(out, m)
		}
	}
	return out
}
