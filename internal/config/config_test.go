package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"rag-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"OPENAI_API_KEY", "OPENAI_CHAT_MODEL", "OPENAI_EMBEDDING_MODEL",
	"EMBEDDING_WORKERS", "EMBEDDING_QUEUE_SIZE", "EMBEDDING_DIMENSION",
	"VECTOR_STORE", "VECTOR_INDEX", "VECTOR_INDEX_CLOUD", "VECTOR_INDEX_REGION", "VECTOR_NAMESPACE",
	"UPSERT_BATCH_SIZE", "SPLITTING_METHOD", "CHUNK_SIZE", "CHUNK_OVERLAP",
	"MIN_SCORE", "MAX_CONTEXT_CHARS", "PERMISSION_CHECK_CONCURRENCY", "PROVIDER_TIMEOUT",
	"DIRECTORY_MODE", "DIRECTORY_URL", "IDENTITY_HEADER", "STREAM_TIMEOUT", "ADMIN_USERS",
}

// cleanEnv blanks every variable Load reads, then applies the given pairs
func cleanEnv(t *testing.T, pairs ...string) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		t.Setenv(pairs[i], pairs[i+1])
	}
}

func requiredEnv(extra ...string) []string {
	return append([]string{
		"OPENAI_API_KEY", "sk-test",
		"VECTOR_INDEX", "kb",
		"VECTOR_INDEX_CLOUD", "aws",
	}, extra...)
}

func TestLoad_Defaults(t *testing.T) {
	cleanEnv(t, requiredEnv()...)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 0.95, cfg.MinScore)
	assert.Equal(t, 3000, cfg.MaxContextChars)
	assert.Equal(t, 10, cfg.UpsertBatchSize)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 5*time.Minute, cfg.StreamTimeout)
	assert.Empty(t, cfg.AdminUsers)
	assert.Equal(t, "", cfg.Namespace)
	assert.Equal(t, DirectoryLocal, cfg.DirectoryMode)
	assert.Equal(t, "X-User-ID", cfg.IdentityHeader)
	assert.Equal(t, models.IndexSpec{
		Name:      "kb",
		Dimension: 1536,
		Metric:    "cosine",
		Cloud:     "aws",
		Region:    "us-west-2",
	}, cfg.IndexSpec())
	assert.Equal(t, models.SplitterConfig{Method: models.SplitMarkdown, ChunkSize: 1000, ChunkOverlap: 100}, cfg.SplitterConfig())
}

func TestLoad_Overrides(t *testing.T) {
	cleanEnv(t, requiredEnv(
		"MIN_SCORE", "0.8",
		"PROVIDER_TIMEOUT", "5s",
		"VECTOR_NAMESPACE", "docs",
		"DIRECTORY_MODE", "remote",
		"DIRECTORY_URL", "https://directory.example.com",
		"ADMIN_USERS", " ops@acme.test, ,etl-bot ",
	)...)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.MinScore)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "docs", cfg.Namespace)
	assert.Equal(t, DirectoryRemote, cfg.DirectoryMode)
	assert.Equal(t, []string{"ops@acme.test", "etl-bot"}, cfg.AdminUsers)
}

func TestLoad_StreamTimeoutNotBelowProviderTimeout(t *testing.T) {
	cleanEnv(t, requiredEnv("PROVIDER_TIMEOUT", "1m", "STREAM_TIMEOUT", "10s")...)

	_, err := Load()

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"STREAM_TIMEOUT"}, verr.Fields)
}

func TestLoad_ReportsEveryMissingVariable(t *testing.T) {
	cleanEnv(t)

	_, err := Load()

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"OPENAI_API_KEY", "VECTOR_INDEX", "VECTOR_INDEX_CLOUD"}, verr.Fields)
	assert.Contains(t, verr.Reason, "missing")
}

func TestLoad_RemoteDirectoryNeedsURL(t *testing.T) {
	cleanEnv(t, requiredEnv("DIRECTORY_MODE", "remote")...)

	_, err := Load()

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"DIRECTORY_URL"}, verr.Fields)
}

func TestLoad_InvalidValues(t *testing.T) {
	cleanEnv(t, requiredEnv(
		"CHUNK_OVERLAP", "2000",
		"VECTOR_STORE", "redis",
	)...)

	_, err := Load()

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"CHUNK_OVERLAP", "VECTOR_STORE"}, verr.Fields)
	assert.Contains(t, verr.Reason, "invalid")
}

func TestParseOwnership(t *testing.T) {
	raw := []byte(`
users:
  - user:
      id: rick@the-citadel.com
      email: rick@the-citadel.com
      name: Rick Sanchez
    categories: [science, "*"]
  - user:
      id: morty@the-citadel.com
    categories: [school]
`)

	assignment, err := ParseOwnership(raw)

	require.NoError(t, err)
	require.Len(t, assignment.Users, 2)
	assert.Equal(t, "Rick Sanchez", assignment.Users[0].User.Name)
	assert.Equal(t, []string{"science", "*"}, assignment.Users[0].Categories)
	assert.True(t, assignment.Users[1].Matches("school"))
	assert.False(t, assignment.Users[1].Matches("science"))
}

func TestParseOwnership_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing user id":    "users:\n  - user: {email: rick@the-citadel.com}\n    categories: [a]\n",
		"missing categories": "users:\n  - user: {id: rick}\n",
		"bad email":          "users:\n  - user: {id: rick, email: not-an-email}\n    categories: [a]\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseOwnership([]byte(raw))
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}

	_, err := ParseOwnership([]byte("users: [unterminated"))
	require.Error(t, err)
	assert.False(t, models.IsValidation(err))
}

func TestLoadOwnership(t *testing.T) {
	empty, err := LoadOwnership("")
	require.NoError(t, err)
	assert.Empty(t, empty.Users)

	path := filepath.Join(t.TempDir(), "ownership.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  - user: {id: rick}\n    categories: ['*']\n"), 0o600))

	assignment, err := LoadOwnership(path)
	require.NoError(t, err)
	assert.True(t, assignment.Users[0].Matches("anything"))

	_, err = LoadOwnership(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
