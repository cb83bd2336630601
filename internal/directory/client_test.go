package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"rag-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
	header http.Header
}

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	calls := &[]recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, header: r.Header.Clone()}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		mu.Lock()
		*calls = append(*calls, rec)
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func TestClient_CheckPermission(t *testing.T) {
	srv, calls := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"check":true}`))
	})
	client := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", TenantID: "tenant-1"})

	ok, err := client.CheckPermission(context.Background(), models.PermissionCheck{
		SubjectID:  "rick@the-citadel.com",
		ObjectID:   "abc123",
		Permission: models.PermissionRead,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, checkPath, call.path)
	assert.Equal(t, "basic secret", call.header.Get("Authorization"))
	assert.Equal(t, "tenant-1", call.header.Get(tenantHeader))
	assert.Equal(t, "can_read", call.body["relation"])
	assert.Equal(t, "resource", call.body["object_type"])
	assert.Equal(t, "abc123", call.body["object_id"])
	assert.Equal(t, "user", call.body["subject_type"])
	assert.Equal(t, "rick@the-citadel.com", call.body["subject_id"])
}

func TestClient_CheckPermission_ServerError(t *testing.T) {
	srv, _ := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"code":13,"message":"boom"}`))
	})
	client := NewClient(Config{BaseURL: srv.URL})

	ok, err := client.CheckPermission(context.Background(), models.PermissionCheck{SubjectID: "u", ObjectID: "o", Permission: models.PermissionRead})
	require.Error(t, err)
	assert.False(t, ok)

	var pe *models.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "check", pe.Op)
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_Import_SetAndDelete(t *testing.T) {
	srv, calls := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	client := NewClient(Config{BaseURL: srv.URL})

	rel := models.NewOwnerRelation("rick", "vec-1")
	ops := []models.ImportOperation{
		{OpCode: models.ImportOpSet, Object: &models.DirectoryObject{Type: models.ObjectTypeUser, ID: "rick", DisplayName: "Rick"}},
		{OpCode: models.ImportOpSet, Relation: &rel},
		{OpCode: models.ImportOpDelete, Relation: &rel},
	}
	result, err := client.Import(context.Background(), ops)
	require.NoError(t, err)
	assert.Equal(t, models.ImportResult{ObjectsSet: 1, RelationsSet: 1, RelationsDeleted: 1}, result)

	require.Len(t, *calls, 3)
	assert.Equal(t, objectPath, (*calls)[0].path)
	obj, ok := (*calls)[0].body["object"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Rick", obj["display_name"])

	assert.Equal(t, http.MethodPost, (*calls)[1].method)
	assert.Equal(t, relationPath, (*calls)[1].path)

	assert.Equal(t, http.MethodDelete, (*calls)[2].method)
	assert.Contains(t, (*calls)[2].query, "relation=owner")
	assert.Contains(t, (*calls)[2].query, "object_id=vec-1")
}

func TestClient_Import_StopsAtFirstFailure(t *testing.T) {
	var n int
	var mu sync.Mutex
	srv, calls := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		n++
		current := n
		mu.Unlock()
		if current == 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	client := NewClient(Config{BaseURL: srv.URL})

	a := models.NewOwnerRelation("u", "a")
	b := models.NewOwnerRelation("u", "b")
	c := models.NewOwnerRelation("u", "c")
	result, err := client.Import(context.Background(), []models.ImportOperation{
		{OpCode: models.ImportOpSet, Relation: &a},
		{OpCode: models.ImportOpSet, Relation: &b},
		{OpCode: models.ImportOpSet, Relation: &c},
	})
	require.Error(t, err)
	var pe *models.ProviderError
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, result.RelationsSet)
	assert.Len(t, *calls, 2)
}

func TestClient_Import_RejectsEmptyOperation(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Import(context.Background(), []models.ImportOperation{{OpCode: models.ImportOpSet}})
	assert.True(t, models.IsValidation(err))
}
