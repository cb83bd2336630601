package api

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataStreamWriter_Frames(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewDataStreamWriter(rec)

	require.NoError(t, s.Token("line one\n"))
	require.NoError(t, s.Data(map[string]int{"n": 1}))
	require.NoError(t, s.Error(errors.New(`bad "quote"`)))
	require.NoError(t, s.Close())

	assert.Equal(t, "0:\"line one\\n\"\n2:[{\"n\":1}]\n3:\"bad \\\"quote\\\"\"\n", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestDataStreamWriter_CloseIsIdempotent(t *testing.T) {
	rec := httptest.NewRecorder()
	s := NewDataStreamWriter(rec)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Error(t, s.Token("late"))

	assert.Equal(t, "v1", rec.Header().Get("X-Vercel-AI-Data-Stream"))
	assert.Empty(t, rec.Body.String())
}
