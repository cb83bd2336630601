package services

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"rag-chat/internal/models"

	"github.com/tmc/langchaingo/textsplitter"
)

// NewSplitter builds the text splitter for a splitter config.
// Markdown splitting uses its built-in sizes; recursive splitting needs
// chunkOverlap < chunkSize.
func NewSplitter(cfg models.SplitterConfig) (textsplitter.TextSplitter, error) {
	switch cfg.Method {
	case models.SplitRecursive:
		if cfg.ChunkSize <= 0 {
			return nil, &models.ValidationError{Fields: []string{"chunkSize"}, Reason: "chunk size must be greater than zero"}
		}
		if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
			return nil, &models.ValidationError{
				Fields: []string{"chunkOverlap"},
				Reason: fmt.Sprintf("chunk overlap %d must be in [0, %d)", cfg.ChunkOverlap, cfg.ChunkSize),
			}
		}
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		), nil
	case models.SplitMarkdown, "":
		return textsplitter.NewMarkdownTextSplitter(), nil
	default:
		return nil, &models.ValidationError{
			Fields: []string{"splittingMethod"},
			Reason: fmt.Sprintf("unknown splitting method %q", cfg.Method),
		}
	}
}

// Prepare splits a page into chunks. Every chunk carries the page url, title and
// category, a copy of the page truncated to MaxTruncatedBytes, and the md5 of its
// own content. Identical input always yields identical chunks.
func Prepare(page models.Page, splitter textsplitter.TextSplitter) ([]models.Chunk, error) {
	parts, err := splitter.SplitText(page.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to split page %s: %w", page.URL, err)
	}

	truncated := TruncateStringByBytes(page.Content, models.MaxTruncatedBytes)
	chunks := make([]models.Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			PageContent:   part,
			SourceURL:     page.URL,
			Title:         page.Title,
			Category:      page.Category,
			TruncatedText: truncated,
			ContentHash:   ContentHash(part),
		})
	}
	return chunks, nil
}

// ContentHash is the hex md5 of a chunk's content and doubles as its vector id
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// TruncateStringByBytes cuts s to at most maxBytes bytes without splitting a rune
func TruncateStringByBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
