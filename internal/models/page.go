package models

// SplittingMethod selects how page content is cut into chunks
type SplittingMethod string

const (
	SplitMarkdown  SplittingMethod = "markdown"
	SplitRecursive SplittingMethod = "recursive"
)

// MaxTruncatedBytes bounds the provenance copy of a page stored with every chunk
const MaxTruncatedBytes = 36000

// Page is one crawled or loaded source document before splitting
type Page struct {
	URL      string `json:"url" yaml:"url" validate:"required"`
	Content  string `json:"content" yaml:"content" validate:"required"`
	Title    string `json:"title,omitempty" yaml:"title,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
}

// SplitterConfig mirrors the options the ingestion endpoint accepts.
// ChunkSize and ChunkOverlap only apply to the recursive method.
type SplitterConfig struct {
	Method       SplittingMethod `json:"splittingMethod" validate:"omitempty,oneof=markdown recursive"`
	ChunkSize    int             `json:"chunkSize" validate:"gte=0"`
	ChunkOverlap int             `json:"chunkOverlap" validate:"gte=0"`
}

// Chunk is a unit of text produced from splitting a Page.
// It is immutable once created; ContentHash is its identity across runs.
type Chunk struct {
	PageContent   string `json:"pageContent"`
	SourceURL     string `json:"url"`
	Title         string `json:"title,omitempty"`
	Category      string `json:"category,omitempty"`
	TruncatedText string `json:"text"`
	ContentHash   string `json:"hash"`
}
