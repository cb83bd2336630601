package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"rag-chat/internal/loader"
	"rag-chat/internal/logger"
	"rag-chat/internal/middleware"
	"rag-chat/internal/models"
	"rag-chat/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

var validate = validator.New()

// Defaults are the server-side settings applied when a request leaves them out,
// plus the callers allowed to run ingestion, index and relation operations
type Defaults struct {
	Admins    []string
	Namespace string
	IndexSpec models.IndexSpec
	Splitter  models.SplitterConfig
	SeedCSV   string
	Ownership models.OwnershipAssignment
}

// Handler handles HTTP requests
type Handler struct {
	chat      ChatService
	ingest    IngestService
	index     IndexMaintainer
	relations RelationService
	metrics   http.Handler
	defaults  Defaults
	admins    map[string]bool
}

func NewHandler(
	chat ChatService,
	ingest IngestService,
	index IndexMaintainer,
	relations RelationService,
	metrics http.Handler,
	defaults Defaults,
) *Handler {
	admins := make(map[string]bool, len(defaults.Admins))
	for _, id := range defaults.Admins {
		admins[id] = true
	}
	return &Handler{
		chat:      chat,
		ingest:    ingest,
		index:     index,
		relations: relations,
		metrics:   metrics,
		defaults:  defaults,
		admins:    admins,
	}
}

// RequireAdmin admits only callers on the admin list. Anonymous callers get 401,
// authenticated ones that are not listed get 403. An empty list closes the route.
func (h *Handler) RequireAdmin(operation string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := middleware.UserFromContext(r.Context())
		switch {
		case user == nil || user.ID == "":
			writeError(w, r, &models.AccessError{Operation: operation})
		case !h.admins[user.ID]:
			writeError(w, r, &models.AccessError{UserID: user.ID, Operation: operation})
		default:
			next(w, r)
		}
	})
}

// Chat handlers

type chatRequest struct {
	Messages    []models.ChatMessage `json:"messages" validate:"required,min=1,dive"`
	WithContext bool                 `json:"withContext"`
}

func (req chatRequest) toService(user *models.User) services.ChatRequest {
	return services.ChatRequest{
		Messages:    req.Messages,
		WithContext: req.WithContext,
		User:        user,
	}
}

// Chat streams the answer as data stream frames. Request errors are reported as
// plain JSON before the stream starts; later failures arrive as an error frame.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	sink := NewDataStreamWriter(w)
	if err := h.chat.Chat(r.Context(), req.toService(middleware.UserFromContext(r.Context())), sink); err != nil {
		logger.FromContext(r.Context()).Warn("chat turn failed", "error", err)
	}
}

// Ingestion handlers

type seedRequest struct {
	Pages     []models.Page               `json:"pages" validate:"omitempty,dive"`
	Options   *models.SplitterConfig      `json:"options"`
	Ownership *models.OwnershipAssignment `json:"ownership"`
	Namespace *string                     `json:"namespace"`
}

// Seed ingests inline pages, or the configured seed CSV when none are sent.
// Clients cannot point the server at arbitrary files.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ingestReq := services.IngestRequest{
		Splitter:  h.defaults.Splitter,
		Ownership: h.defaults.Ownership,
		Namespace: h.defaults.Namespace,
	}
	switch {
	case len(req.Pages) > 0:
		ingestReq.Source = services.StaticSource{Pages: req.Pages}
	case h.defaults.SeedCSV != "":
		ingestReq.Source = loader.NewCSVSource(h.defaults.SeedCSV)
	default:
		writeError(w, r, &models.ValidationError{Fields: []string{"pages"}, Reason: "no pages sent and no seed file configured"})
		return
	}
	if req.Options != nil {
		ingestReq.Splitter = *req.Options
	}
	if req.Ownership != nil {
		ingestReq.Ownership = *req.Ownership
	}
	if req.Namespace != nil {
		ingestReq.Namespace = *req.Namespace
	}

	result, err := h.ingest.Ingest(r.Context(), ingestReq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Index handlers

// CheckIndex creates the index when missing and reports the namespace stats
func (h *Handler) CheckIndex(w http.ResponseWriter, r *http.Request) {
	if err := h.index.EnsureIndex(r.Context(), h.defaults.IndexSpec); err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.index.DescribeStats(r.Context(), h.defaults.Namespace)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) DeleteNamespace(w http.ResponseWriter, r *http.Request) {
	h.clearNamespace(w, r, mux.Vars(r)["namespace"])
}

func (h *Handler) ClearIndex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Namespace *string `json:"namespace"`
	}
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	namespace := h.defaults.Namespace
	if req.Namespace != nil {
		namespace = *req.Namespace
	}
	h.clearNamespace(w, r, namespace)
}

func (h *Handler) clearNamespace(w http.ResponseWriter, r *http.Request, namespace string) {
	if err := h.index.DeleteAll(r.Context(), namespace); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"namespace": namespace,
		"cleared":   true,
	})
}

// Relation handlers

type assignVector struct {
	ID       string `json:"id" validate:"required"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

type assignRequest struct {
	User    models.User    `json:"user"`
	Vectors []assignVector `json:"vectors" validate:"required,min=1,dive"`
}

// AssignRelations makes the user owner of each listed vector
func (h *Handler) AssignRelations(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	vectors := make([]models.EmbeddedVector, 0, len(req.Vectors))
	for _, v := range req.Vectors {
		vectors = append(vectors, models.EmbeddedVector{
			ID: v.ID,
			Metadata: models.VectorMetadata{
				SchemaVersion: models.MetadataSchemaVersion,
				URL:           v.URL,
				Title:         v.Title,
				Category:      v.Category,
				Hash:          v.ID,
			},
		})
	}
	assignment := models.OwnershipAssignment{Users: []models.UserGrant{{
		User:       req.User,
		Categories: []string{models.AllCategories},
	}}}

	result, err := h.relations.AssignRelations(r.Context(), assignment, vectors)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type unassignRequest struct {
	UserID    string   `json:"userId" validate:"required"`
	VectorIDs []string `json:"vectorIds" validate:"required,min=1,dive,required"`
	Relation  string   `json:"relation" validate:"omitempty,oneof=owner viewer"`
}

// UnassignRelations revokes a relation between a user and each listed vector
func (h *Handler) UnassignRelations(w http.ResponseWriter, r *http.Request) {
	var req unassignRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.relations.Unassign(r.Context(), req.UserID, req.Relation, req.VectorIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Operational handlers

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.NotFound(w, r)
		return
	}
	h.metrics.ServeHTTP(w, r)
}

// decodeAndValidate reads a JSON body into dst. An empty body leaves dst zero.
func decodeAndValidate(r *http.Request, dst any) error {
	if r.Body != nil && r.ContentLength != 0 {
		err := json.NewDecoder(r.Body).Decode(dst)
		if err != nil && !errors.Is(err, io.EOF) {
			return &models.ValidationError{Fields: []string{"body"}, Reason: fmt.Sprintf("invalid json: %v", err)}
		}
	}
	return validateRequest(dst)
}

// validateRequest turns validator failures into a ValidationError naming the fields
func validateRequest(dst any) error {
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fieldPath(fe.Namespace()))
			}
			return &models.ValidationError{Fields: fields, Reason: "invalid request"}
		}
		return fmt.Errorf("failed to validate request: %w", err)
	}
	return nil
}

// fieldPath drops the struct name from a validator namespace
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP status codes
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Warn("request rejected", "status", status, "error", err)
	}
	middleware.AddSpanError(r.Context(), err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		provider *models.ProviderError
		upsert   *models.UpsertError
		access   *models.AccessError
	)
	switch {
	case errors.As(err, &access):
		if access.UserID == "" {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case models.IsValidation(err):
		return http.StatusBadRequest
	case models.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &upsert), errors.As(err, &provider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
