package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"rag-chat/internal/models"
	"rag-chat/internal/services"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ services.RetrievalRecorder     = (*Metrics)(nil)
	_ services.UpsertRecorder        = (*Metrics)(nil)
	_ services.AuthorizationRecorder = (*Metrics)(nil)
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Retrieval(services.OutcomeAccessNotice)
	m.Retrieval(services.OutcomeAccessNotice)
	m.MatchesSuppressed(3)
	m.UpsertBatch("", 10, nil)
	m.UpsertBatch("", 5, errors.New("boom"))
	m.RelationsWritten(models.ImportOpSet, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.retrievals.WithLabelValues(services.OutcomeAccessNotice)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.suppressedMatches))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.upsertedVectors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upsertBatches.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.relationWrites.WithLabelValues("SET")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.PermissionCheckFailed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rag_permission_check_failures_total 1")
}
