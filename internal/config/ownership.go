package config

import (
	"fmt"
	"os"

	"rag-chat/internal/models"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// LoadOwnership reads the user/category grant file applied after ingestion.
// An empty path yields an empty assignment.
func LoadOwnership(path string) (*models.OwnershipAssignment, error) {
	if path == "" {
		return &models.OwnershipAssignment{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ownership file: %w", err)
	}
	return ParseOwnership(raw)
}

// ParseOwnership decodes and validates an ownership document
func ParseOwnership(raw []byte) (*models.OwnershipAssignment, error) {
	var assignment models.OwnershipAssignment
	if err := yaml.Unmarshal(raw, &assignment); err != nil {
		return nil, fmt.Errorf("failed to parse ownership file: %w", err)
	}
	if err := validator.New().Struct(&assignment); err != nil {
		return nil, &models.ValidationError{Fields: []string{"users"}, Reason: err.Error()}
	}
	return &assignment, nil
}
