// Package directory talks to a hosted policy directory over its REST gateway.
package directory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"rag-chat/internal/middleware"
	"rag-chat/internal/models"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
)

const (
	checkPath    = "/api/v3/directory/check"
	objectPath   = "/api/v3/directory/object"
	relationPath = "/api/v3/directory/relation"

	tenantHeader = "aserto-tenant-id"
)

// Config for the remote directory
type Config struct {
	BaseURL  string
	APIKey   string
	TenantID string
	Timeout  time.Duration
}

// Client implements Import and CheckPermission against the directory gateway.
// Calls are not retried; a failure surfaces as a ProviderError.
type Client struct {
	http *resty.Client
}

// NewClient creates a new directory client
func NewClient(cfg Config) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "basic "+cfg.APIKey)
	}
	if cfg.TenantID != "" {
		client.SetHeader(tenantHeader, cfg.TenantID)
	}
	return &Client{http: client}
}

type checkRequest struct {
	ObjectType  string `json:"object_type"`
	ObjectID    string `json:"object_id"`
	Relation    string `json:"relation"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
}

type checkResponse struct {
	Check bool `json:"check"`
}

type objectBody struct {
	Type        string         `json:"type"`
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

type setObjectRequest struct {
	Object objectBody `json:"object"`
}

type relationBody struct {
	ObjectType  string `json:"object_type"`
	ObjectID    string `json:"object_id"`
	Relation    string `json:"relation"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
}

type setRelationRequest struct {
	Relation relationBody `json:"relation"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CheckPermission asks the directory whether the subject holds the permission
func (c *Client) CheckPermission(ctx context.Context, check models.PermissionCheck) (bool, error) {
	var out checkResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(checkRequest{
			ObjectType:  models.ObjectTypeResource,
			ObjectID:    check.ObjectID,
			Relation:    check.Permission.CheckName(),
			SubjectType: models.ObjectTypeUser,
			SubjectID:   check.SubjectID,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post(checkPath)
	if err := responseError(resp, err, &apiErr); err != nil {
		return false, models.NewProviderError("directory", "check", err)
	}
	return out.Check, nil
}

// Import applies operations one by one in order and stops at the first failure.
// Operations applied before the failure stay applied.
func (c *Client) Import(ctx context.Context, ops []models.ImportOperation) (models.ImportResult, error) {
	ctx, span := middleware.StartSpan(ctx, "DirectoryClient.Import",
		attribute.Int("operations.count", len(ops)),
	)
	defer span.End()

	var result models.ImportResult
	for i, op := range ops {
		var err error
		switch {
		case op.Object != nil && op.OpCode == models.ImportOpSet:
			err = c.setObject(ctx, op.Object)
			if err == nil {
				result.ObjectsSet++
			}
		case op.Object != nil && op.OpCode == models.ImportOpDelete:
			err = c.deleteObject(ctx, op.Object)
			if err == nil {
				result.ObjectsDeleted++
			}
		case op.Relation != nil && op.OpCode == models.ImportOpSet:
			err = c.setRelation(ctx, op.Relation)
			if err == nil {
				result.RelationsSet++
			}
		case op.Relation != nil && op.OpCode == models.ImportOpDelete:
			err = c.deleteRelation(ctx, op.Relation)
			if err == nil {
				result.RelationsDeleted++
			}
		default:
			return result, &models.ValidationError{
				Fields: []string{fmt.Sprintf("operations[%d]", i)},
				Reason: "operation must carry exactly one object or relation and a known op code",
			}
		}
		if err != nil {
			middleware.AddSpanError(ctx, err)
			return result, models.NewProviderError("directory", "import", fmt.Errorf("operation %d (%s): %w", i, op.OpCode, err))
		}
	}
	return result, nil
}

func (c *Client) setObject(ctx context.Context, obj *models.DirectoryObject) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(setObjectRequest{Object: objectBody{
			Type:        obj.Type,
			ID:          obj.ID,
			DisplayName: obj.DisplayName,
			Properties:  obj.Properties,
		}}).
		SetError(&apiErr).
		Post(objectPath)
	return responseError(resp, err, &apiErr)
}

func (c *Client) deleteObject(ctx context.Context, obj *models.DirectoryObject) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"type": obj.Type, "id": obj.ID}).
		SetError(&apiErr).
		Delete(objectPath + "/{type}/{id}")
	return responseError(resp, err, &apiErr)
}

func (c *Client) setRelation(ctx context.Context, rel *models.Relation) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(setRelationRequest{Relation: relationBody{
			ObjectType:  rel.ObjectType,
			ObjectID:    rel.ObjectID,
			Relation:    rel.Relation,
			SubjectType: rel.SubjectType,
			SubjectID:   rel.SubjectID,
		}}).
		SetError(&apiErr).
		Post(relationPath)
	return responseError(resp, err, &apiErr)
}

func (c *Client) deleteRelation(ctx context.Context, rel *models.Relation) error {
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"object_type":  rel.ObjectType,
			"object_id":    rel.ObjectID,
			"relation":     rel.Relation,
			"subject_type": rel.SubjectType,
			"subject_id":   rel.SubjectID,
		}).
		SetError(&apiErr).
		Delete(relationPath)
	return responseError(resp, err, &apiErr)
}

func responseError(resp *resty.Response, err error, apiErr *apiError) error {
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode(), http.StatusText(resp.StatusCode()))
	}
	return nil
}
