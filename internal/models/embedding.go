package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// MetadataSchemaVersion is stamped on every stored vector.
// Version 2 added the optional category and title fields.
const MetadataSchemaVersion = 2

// VectorMetadata is the single metadata schema stored next to each vector
type VectorMetadata struct {
	SchemaVersion int    `json:"schemaVersion"`
	Chunk         string `json:"chunk"`
	Text          string `json:"text"`
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	Category      string `json:"category,omitempty"`
	Hash          string `json:"hash"`
}

// EmbeddedVector is a Chunk plus its embedding, keyed by the chunk's content hash
type EmbeddedVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata VectorMetadata `json:"metadata"`
}

// NewEmbeddedVector builds the vector record for a chunk
func NewEmbeddedVector(chunk Chunk, values []float32) EmbeddedVector {
	return EmbeddedVector{
		ID:     chunk.ContentHash,
		Values: values,
		Metadata: VectorMetadata{
			SchemaVersion: MetadataSchemaVersion,
			Chunk:         chunk.PageContent,
			Text:          chunk.TruncatedText,
			URL:           chunk.SourceURL,
			Title:         chunk.Title,
			Category:      chunk.Category,
			Hash:          chunk.ContentHash,
		},
	}
}

// ScoredMatch is a similarity query result; higher Score is more relevant
type ScoredMatch struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata VectorMetadata `json:"metadata"`
}

// IndexSpec describes where and how a vector index is created
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    string
	Cloud     string
	Region    string
}

// NamespaceStats is the per-namespace part of IndexStats
type NamespaceStats struct {
	VectorCount int64 `json:"vectorCount"`
}

// IndexStats reports the shape and population of an index
type IndexStats struct {
	Dimension        int                       `json:"dimension"`
	TotalVectorCount int64                     `json:"totalVectorCount"`
	Namespaces       map[string]NamespaceStats `json:"namespaces"`
}

// IndexCatalog records every index created through EnsureIndex
type IndexCatalog struct {
	Name      string    `gorm:"type:varchar(64);primaryKey"`
	Table     string    `gorm:"column:table_name;type:varchar(80);not null;uniqueIndex"`
	Dimension int       `gorm:"not null"`
	Metric    string    `gorm:"type:varchar(20);not null;default:'cosine'"`
	Cloud     string    `gorm:"type:varchar(20)"`
	Region    string    `gorm:"type:varchar(40)"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName override
func (IndexCatalog) TableName() string {
	return "vector_indexes"
}

// VectorRecord is one row of an index table. The table itself is chosen per index,
// so queries always go through db.Table(...).
type VectorRecord struct {
	ID            string          `gorm:"type:varchar(64);primaryKey"`
	Namespace     string          `gorm:"type:varchar(128);primaryKey"`
	Embedding     pgvector.Vector `gorm:"not null"`
	Chunk         string          `gorm:"type:text;not null"`
	Text          string          `gorm:"type:text"`
	URL           string          `gorm:"type:text"`
	Title         string          `gorm:"type:text"`
	Category      string          `gorm:"type:varchar(128);index"`
	Hash          string          `gorm:"type:varchar(64);not null"`
	SchemaVersion int             `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// ToRecord converts a vector into its row form for the given namespace
func (v EmbeddedVector) ToRecord(namespace string) VectorRecord {
	return VectorRecord{
		ID:            v.ID,
		Namespace:     namespace,
		Embedding:     pgvector.NewVector(v.Values),
		Chunk:         v.Metadata.Chunk,
		Text:          v.Metadata.Text,
		URL:           v.Metadata.URL,
		Title:         v.Metadata.Title,
		Category:      v.Metadata.Category,
		Hash:          v.Metadata.Hash,
		SchemaVersion: v.Metadata.SchemaVersion,
	}
}

// Metadata restores the stored metadata of a row
func (r VectorRecord) Metadata() VectorMetadata {
	return VectorMetadata{
		SchemaVersion: r.SchemaVersion,
		Chunk:         r.Chunk,
		Text:          r.Text,
		URL:           r.URL,
		Title:         r.Title,
		Category:      r.Category,
		Hash:          r.Hash,
	}
}
