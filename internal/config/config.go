package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"rag-chat/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	VectorStorePostgres = "postgres"
	VectorStoreMemory   = "memory"

	DirectoryLocal  = "local"
	DirectoryRemote = "remote"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	OpenAIAPIKey         string `validate:"required"`
	OpenAIChatModel      string `validate:"required"`
	OpenAIEmbeddingModel string `validate:"required"`

	ServerPort string
	ServerHost string

	// Embedding worker pool
	EmbeddingWorkers   int `validate:"gte=1"`
	EmbeddingQueueSize int `validate:"gte=1"`
	EmbeddingDimension int `validate:"gte=1"`

	// Vector index
	VectorStore      string `validate:"oneof=postgres memory"`
	IndexName        string `validate:"required"`
	IndexCloud       string `validate:"required"`
	IndexRegion      string
	Namespace        string
	UpsertBatchSize  int `validate:"gte=1"`
	SplittingMethod  models.SplittingMethod `validate:"oneof=markdown recursive"`
	ChunkSize        int                    `validate:"gte=1"`
	ChunkOverlap     int                    `validate:"gte=0,ltfield=ChunkSize"`
	SeedCSVPath      string
	OwnershipFile    string

	// Retrieval
	MinScore                   float64 `validate:"gte=0,lte=1"`
	MaxContextChars            int     `validate:"gte=1"`
	PermissionCheckConcurrency int     `validate:"gte=1"`
	ProviderTimeout            time.Duration
	// StreamTimeout bounds a whole streamed completion; ProviderTimeout only
	// bounds the wait for its first token.
	StreamTimeout              time.Duration `validate:"gtefield=ProviderTimeout"`

	// Policy directory
	DirectoryMode     string `validate:"oneof=local remote"`
	DirectoryURL      string `validate:"required_if=DirectoryMode remote,omitempty,url"`
	DirectoryAPIKey   string
	DirectoryTenantID string
	IdentityHeader    string `validate:"required"`
	// AdminUsers may call the ingestion and relation endpoints
	AdminUsers        []string

	// Observability
	JaegerEndpoint string
	LogLevel       string
	LogJSON        bool
}

// envNames maps struct fields to the environment variable that feeds them,
// so validation failures can name what the operator has to set.
var envNames = map[string]string{
	"OpenAIAPIKey":               "OPENAI_API_KEY",
	"OpenAIChatModel":            "OPENAI_CHAT_MODEL",
	"OpenAIEmbeddingModel":       "OPENAI_EMBEDDING_MODEL",
	"EmbeddingWorkers":           "EMBEDDING_WORKERS",
	"EmbeddingQueueSize":         "EMBEDDING_QUEUE_SIZE",
	"EmbeddingDimension":         "EMBEDDING_DIMENSION",
	"VectorStore":                "VECTOR_STORE",
	"IndexName":                  "VECTOR_INDEX",
	"IndexCloud":                 "VECTOR_INDEX_CLOUD",
	"UpsertBatchSize":            "UPSERT_BATCH_SIZE",
	"SplittingMethod":            "SPLITTING_METHOD",
	"ChunkSize":                  "CHUNK_SIZE",
	"ChunkOverlap":               "CHUNK_OVERLAP",
	"MinScore":                   "MIN_SCORE",
	"MaxContextChars":            "MAX_CONTEXT_CHARS",
	"PermissionCheckConcurrency": "PERMISSION_CHECK_CONCURRENCY",
	"DirectoryMode":              "DIRECTORY_MODE",
	"DirectoryURL":               "DIRECTORY_URL",
	"IdentityHeader":             "IDENTITY_HEADER",
	"StreamTimeout":              "STREAM_TIMEOUT",
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "rag_chat"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-ada-002"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		EmbeddingWorkers:   getEnvInt("EMBEDDING_WORKERS", 5),
		EmbeddingQueueSize: getEnvInt("EMBEDDING_QUEUE_SIZE", 100),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),

		VectorStore:     getEnv("VECTOR_STORE", VectorStorePostgres),
		IndexName:       getEnv("VECTOR_INDEX", ""),
		IndexCloud:      getEnv("VECTOR_INDEX_CLOUD", ""),
		IndexRegion:     getEnv("VECTOR_INDEX_REGION", "us-west-2"),
		Namespace:       os.Getenv("VECTOR_NAMESPACE"),
		UpsertBatchSize: getEnvInt("UPSERT_BATCH_SIZE", 10),
		SplittingMethod: models.SplittingMethod(getEnv("SPLITTING_METHOD", string(models.SplitMarkdown))),
		ChunkSize:       getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 100),
		SeedCSVPath:     getEnv("SEED_CSV", ""),
		OwnershipFile:   getEnv("OWNERSHIP_FILE", ""),

		MinScore:                   getEnvFloat("MIN_SCORE", 0.95),
		MaxContextChars:            getEnvInt("MAX_CONTEXT_CHARS", 3000),
		PermissionCheckConcurrency: getEnvInt("PERMISSION_CHECK_CONCURRENCY", 4),
		ProviderTimeout:            getEnvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		StreamTimeout:              getEnvDuration("STREAM_TIMEOUT", 5*time.Minute),

		DirectoryMode:     getEnv("DIRECTORY_MODE", DirectoryLocal),
		DirectoryURL:      getEnv("DIRECTORY_URL", ""),
		DirectoryAPIKey:   getEnv("DIRECTORY_API_KEY", ""),
		DirectoryTenantID: getEnv("DIRECTORY_TENANT_ID", ""),
		IdentityHeader:    getEnv("IDENTITY_HEADER", "X-User-ID"),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogJSON:        getEnv("LOG_JSON", "false") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports all offending variables at once
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	missing := make([]string, 0, len(verrs))
	invalid := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := envNames[fe.StructField()]
		if name == "" {
			name = fe.StructField()
		}
		if strings.HasPrefix(fe.Tag(), "required") {
			missing = append(missing, name)
		} else {
			invalid = append(invalid, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &models.ValidationError{Fields: missing, Reason: "missing required environment variables"}
	}
	sort.Strings(invalid)
	return &models.ValidationError{Fields: invalid, Reason: "invalid environment variables"}
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// IndexSpec is the placement used when the vector index has to be created
func (c *Config) IndexSpec() models.IndexSpec {
	return models.IndexSpec{
		Name:      c.IndexName,
		Dimension: c.EmbeddingDimension,
		Metric:    "cosine",
		Cloud:     c.IndexCloud,
		Region:    c.IndexRegion,
	}
}

// SplitterConfig is the default splitter for ingestion requests that omit one
func (c *Config) SplitterConfig() models.SplitterConfig {
	return models.SplitterConfig{
		Method:       c.SplittingMethod,
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(value); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
