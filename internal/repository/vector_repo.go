package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

/*
Vector index on pgvector.

Each named index is its own table (vectors_<name>) with a fixed-dimension
vector column and an hnsw cosine index. Namespaces partition rows inside
the table. The vector_indexes catalog remembers which indexes exist.

  EnsureIndex  create table + hnsw index, "already exists" is success
  Upsert       INSERT ... ON CONFLICT (namespace, id) DO UPDATE
  Query        1 - (embedding <=> q) as score, highest first
*/

// Postgres duplicate_table
const pgDuplicateTable = "42P07"

var identUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// VectorRepositoryImpl is the vector index bound to one index name
type VectorRepositoryImpl struct {
	db        *gorm.DB
	indexName string
}

// NewVectorRepository creates a repository for the named index
func NewVectorRepository(db *gorm.DB, indexName string) *VectorRepositoryImpl {
	return &VectorRepositoryImpl{db: db, indexName: indexName}
}

// IndexTableName is the table holding the vectors of an index
func IndexTableName(indexName string) string {
	name := identUnsafe.ReplaceAllString(strings.ToLower(indexName), "_")
	return "vectors_" + strings.Trim(name, "_")
}

// EnsureIndex creates the index if it does not exist. Concurrent creators and
// repeated calls both end in success.
func (r *VectorRepositoryImpl) EnsureIndex(ctx context.Context, indexSpec models.IndexSpec) error {
	ctx, span := middleware.StartSpan(ctx, "VectorRepository.EnsureIndex",
		attribute.String("index.name", indexSpec.Name),
		attribute.Int("index.dimension", indexSpec.Dimension),
	)
	defer span.End()

	if indexSpec.Name == "" || indexSpec.Dimension <= 0 {
		return &models.ValidationError{Fields: []string{"name", "dimension"}, Reason: "index name and positive dimension are required"}
	}
	table := IndexTableName(indexSpec.Name)

	var existing models.IndexCatalog
	err := r.db.WithContext(ctx).Where("name = ?", indexSpec.Name).First(&existing).Error
	if err == nil {
		if existing.Dimension != indexSpec.Dimension {
			return &models.ValidationError{
				Fields: []string{"dimension"},
				Reason: fmt.Sprintf("index %s exists with dimension %d", indexSpec.Name, existing.Dimension),
			}
		}
		middleware.AddSpanEvent(ctx, "index.exists")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		middleware.AddSpanError(ctx, err)
		return models.NewProviderError("pgvector", "describe index", err)
	}

	// Raw SQL: the vector column dimension is chosen at runtime
	createTable := fmt.Sprintf(`
		CREATE TABLE %s (
			id varchar(64) NOT NULL,
			namespace varchar(128) NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			chunk text NOT NULL,
			text text,
			url text,
			title text,
			category varchar(128),
			hash varchar(64) NOT NULL,
			schema_version integer NOT NULL,
			updated_at timestamptz,
			PRIMARY KEY (namespace, id)
		)`, table, indexSpec.Dimension)
	if err := r.db.WithContext(ctx).Exec(createTable).Error; err != nil && !isDuplicateTable(err) {
		middleware.AddSpanError(ctx, err)
		return models.NewProviderError("pgvector", "create index", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding
		ON %s USING hnsw (embedding vector_cosine_ops)`, table, table)
	if err := r.db.WithContext(ctx).Exec(createIndex).Error; err != nil {
		middleware.AddSpanError(ctx, err)
		return models.NewProviderError("pgvector", "create index", err)
	}

	entry := models.IndexCatalog{
		Name:      indexSpec.Name,
		Table:     table,
		Dimension: indexSpec.Dimension,
		Metric:    indexSpec.Metric,
		Cloud:     indexSpec.Cloud,
		Region:    indexSpec.Region,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
		middleware.AddSpanError(ctx, err)
		return models.NewProviderError("pgvector", "register index", err)
	}

	middleware.AddSpanEvent(ctx, "index.created")
	return nil
}

// Upsert writes vectors into a namespace, replacing rows with the same id
func (r *VectorRepositoryImpl) Upsert(ctx context.Context, namespace string, vectors []models.EmbeddedVector) error {
	if len(vectors) == 0 {
		return nil
	}
	table, err := r.table(ctx)
	if err != nil {
		return err
	}

	records := make([]models.VectorRecord, len(vectors))
	for i, v := range vectors {
		records[i] = v.ToRecord(namespace)
	}

	err = r.db.WithContext(ctx).Table(table).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "id"}},
			UpdateAll: true,
		}).
		Create(&records).Error
	if err != nil {
		return models.NewProviderError("pgvector", "upsert", err)
	}
	return nil
}

type scoredRow struct {
	models.VectorRecord `gorm:"embedded"`
	Score               float32
}

// Query returns the topK nearest vectors of a namespace by cosine similarity
func (r *VectorRepositoryImpl) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.ScoredMatch, error) {
	table, err := r.table(ctx)
	if err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(vector)

	var rows []scoredRow
	err = r.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT
			id, namespace, chunk, text, url, title, category, hash, schema_version,
			1 - (embedding <=> ?) AS score
		FROM %s
		WHERE namespace = ?
		ORDER BY embedding <=> ?
		LIMIT ?
	`, table), vec, namespace, vec, topK).Scan(&rows).Error
	if err != nil {
		return nil, models.NewProviderError("pgvector", "query", err)
	}

	matches := make([]models.ScoredMatch, len(rows))
	for i, row := range rows {
		matches[i] = models.ScoredMatch{
			ID:       row.ID,
			Score:    row.Score,
			Metadata: row.VectorRecord.Metadata(),
		}
	}
	return matches, nil
}

// DescribeStats reports the index dimension, its total size and the size of namespace
func (r *VectorRepositoryImpl) DescribeStats(ctx context.Context, namespace string) (*models.IndexStats, error) {
	entry, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}

	var counts []struct {
		Namespace string
		Count     int64
	}
	err = r.db.WithContext(ctx).Table(entry.Table).
		Select("namespace, count(*) AS count").
		Group("namespace").
		Scan(&counts).Error
	if err != nil {
		return nil, models.NewProviderError("pgvector", "describe stats", err)
	}

	stats := &models.IndexStats{
		Dimension:  entry.Dimension,
		Namespaces: map[string]models.NamespaceStats{namespace: {}},
	}
	for _, c := range counts {
		stats.TotalVectorCount += c.Count
		if c.Namespace == namespace {
			stats.Namespaces[namespace] = models.NamespaceStats{VectorCount: c.Count}
		}
	}
	return stats, nil
}

// DeleteAll removes every vector of a namespace
func (r *VectorRepositoryImpl) DeleteAll(ctx context.Context, namespace string) error {
	table, err := r.table(ctx)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE namespace = ?", table), namespace).Error; err != nil {
		return models.NewProviderError("pgvector", "delete all", err)
	}
	return nil
}

func (r *VectorRepositoryImpl) table(ctx context.Context) (string, error) {
	entry, err := r.catalog(ctx)
	if err != nil {
		return "", err
	}
	return entry.Table, nil
}

func (r *VectorRepositoryImpl) catalog(ctx context.Context) (*models.IndexCatalog, error) {
	var entry models.IndexCatalog
	err := r.db.WithContext(ctx).Where("name = ?", r.indexName).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &models.NotFoundError{Kind: "index", Name: r.indexName}
	}
	if err != nil {
		return nil, models.NewProviderError("pgvector", "describe index", err)
	}
	return &entry, nil
}

func isDuplicateTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgDuplicateTable
}
