package repository

import (
	"os"
	"strings"
	"testing"

	"rag-chat/internal/config"
	"rag-chat/internal/db"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB connects to the Postgres + pgvector instance named by the DB_*
// variables. Tests using it are skipped when DB_HOST is unset.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	host := os.Getenv("DB_HOST")
	if host == "" {
		t.Skip("DB_HOST not set, skipping Postgres tests")
	}
	cfg := &config.Config{
		DBHost:     host,
		DBPort:     envOr("DB_PORT", "5432"),
		DBUser:     envOr("DB_USER", "postgres"),
		DBPassword: envOr("DB_PASSWORD", "postgres"),
		DBName:     envOr("DB_NAME", "rag_chat"),
		DBSSLMode:  envOr("DB_SSLMODE", "disable"),
		LogLevel:   "error",
	}
	database, err := db.NewGorm(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database.DB
}

// uniqueName returns a lowercase identifier that no other test run uses
func uniqueName(prefix string) string {
	return prefix + "_" + strings.ToLower(ksuid.New().String())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
