package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel/attribute"
)

const providerName = "openai"

// ErrFirstTokenTimeout is the cause of a stream abandoned before its first token
var ErrFirstTokenTimeout = errors.New("no token received before the provider timeout")

// Config selects the models and the deadlines. Timeout bounds an embedding call
// and the wait for the first streamed token; StreamTimeout bounds a whole completion.
type Config struct {
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	BaseURL        string
	Timeout        time.Duration
	StreamTimeout  time.Duration
}

// Client embeds text and streams chat completions through langchaingo
type Client struct {
	embedder      embeddings.Embedder
	model         llms.Model
	timeout       time.Duration
	streamTimeout time.Duration
}

// NewClient connects to the OpenAI API
func NewClient(cfg Config) (*Client, error) {
	opts := []lcopenai.Option{
		lcopenai.WithToken(cfg.APIKey),
		lcopenai.WithModel(cfg.ChatModel),
		lcopenai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai embedder: %w", err)
	}
	return NewWithModels(embedder, llm, cfg.Timeout, cfg.StreamTimeout), nil
}

// NewWithModels builds a client around existing langchaingo implementations
func NewWithModels(embedder embeddings.Embedder, model llms.Model, timeout, streamTimeout time.Duration) *Client {
	return &Client{embedder: embedder, model: model, timeout: timeout, streamTimeout: streamTimeout}
}

// Embed returns the embedding of a single text
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := middleware.StartSpan(ctx, "OpenAI.Embed",
		attribute.Int("text.length", len(text)),
	)
	defer span.End()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, models.NewProviderError(providerName, "embedding", err)
	}
	if len(vector) == 0 {
		err := errors.New("empty embedding returned")
		middleware.AddSpanError(ctx, err)
		return nil, models.NewProviderError(providerName, "embedding", err)
	}
	return vector, nil
}

// Stream generates a completion for the conversation and hands every token to onToken
// as it arrives. It returns the full completion text. The first token has to arrive
// within the provider timeout; after that only the stream timeout applies.
func (c *Client) Stream(
	ctx context.Context,
	system string,
	messages []models.ChatMessage,
	onToken func(ctx context.Context, token string) error,
) (string, error) {
	ctx, span := middleware.StartSpan(ctx, "OpenAI.Stream",
		attribute.Int("messages.count", len(messages)),
	)
	defer span.End()

	ctx, cancel := c.withStreamTimeout(ctx)
	defer cancel()
	ctx, abandon := context.WithCancelCause(ctx)
	defer abandon(nil)
	stopWaiting := func() {}
	if c.timeout > 0 {
		timer := time.AfterFunc(c.timeout, func() { abandon(ErrFirstTokenTimeout) })
		stopWaiting = func() { timer.Stop() }
	}
	defer stopWaiting()

	content := make([]llms.MessageContent, 0, len(messages)+1)
	if system != "" {
		content = append(content, llms.TextParts(schema.ChatMessageTypeSystem, system))
	}
	for _, msg := range messages {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}

	resp, err := c.model.GenerateContent(ctx, content,
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			stopWaiting()
			return onToken(ctx, string(chunk))
		}),
	)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrFirstTokenTimeout) {
			err = cause
		}
		middleware.AddSpanError(ctx, err)
		return "", models.NewProviderError(providerName, "completion", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Content, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) withStreamTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.streamTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.streamTimeout)
}

func messageType(role models.Role) schema.ChatMessageType {
	switch role {
	case models.RoleSystem:
		return schema.ChatMessageTypeSystem
	case models.RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
