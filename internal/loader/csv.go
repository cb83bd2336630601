// Package loader reads seed pages from files.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"rag-chat/internal/models"
)

// Recognised header names; url and content are required
const (
	ColumnURL      = "url"
	ColumnContent  = "content"
	ColumnTitle    = "title"
	ColumnCategory = "category"
)

// CSVSource loads pages from a CSV file whose first row is a header
type CSVSource struct {
	Path string
}

// NewCSVSource creates a new CSV source
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

func (s *CSVSource) Name() string { return "csv:" + s.Path }

func (s *CSVSource) Load(_ context.Context) ([]models.Page, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()
	return ReadPages(f)
}

// ReadPages parses CSV rows into pages. Blank lines and rows without content are skipped.
func ReadPages(r io.Reader) ([]models.Page, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := map[string]int{}
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	var missing []string
	for _, required := range []string{ColumnURL, ColumnContent} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, &models.ValidationError{Fields: missing, Reason: "csv header is missing required columns"}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var pages []models.Page
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}
		page := models.Page{
			URL:      field(record, ColumnURL),
			Content:  field(record, ColumnContent),
			Title:    field(record, ColumnTitle),
			Category: field(record, ColumnCategory),
		}
		if page.Content == "" {
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}
