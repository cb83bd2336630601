package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rag-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPages(t *testing.T) {
	input := "url,content,category,title\n" +
		"https://acme.test/a,\"Expense policy, v2\",finance,Expenses\n" +
		"\n" +
		"https://acme.test/b,Travel policy,hr\n" +
		"https://acme.test/empty,,hr,Empty\n"

	pages, err := ReadPages(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, models.Page{URL: "https://acme.test/a", Content: "Expense policy, v2", Category: "finance", Title: "Expenses"}, pages[0])
	assert.Equal(t, "hr", pages[1].Category)
	assert.Empty(t, pages[1].Title)
}

func TestReadPages_MissingColumns(t *testing.T) {
	_, err := ReadPages(strings.NewReader("link,body\nx,y\n"))
	assert.True(t, models.IsValidation(err))
}

func TestReadPages_Empty(t *testing.T) {
	pages, err := ReadPages(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestCSVSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.csv")
	require.NoError(t, os.WriteFile(path, []byte("URL,Content\nhttps://acme.test,hello\n"), 0o600))

	src := NewCSVSource(path)
	pages, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "hello", pages[0].Content)
	assert.Equal(t, "csv:"+path, src.Name())

	_, err = NewCSVSource(filepath.Join(t.TempDir(), "missing.csv")).Load(context.Background())
	assert.Error(t, err)
}
