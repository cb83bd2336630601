package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialChat(t *testing.T, f *fixture, header http.Header) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readTurn collects frames up to and including the done frame
func readTurn(t *testing.T, conn *websocket.Conn) []wsFrame {
	t.Helper()
	var frames []wsFrame
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, message, err := conn.ReadMessage()
		require.NoError(t, err)
		var frame wsFrame
		require.NoError(t, json.Unmarshal(message, &frame))
		frames = append(frames, frame)
		if frame.Type == frameTypeDone {
			return frames
		}
	}
}

func frameTypes(frames []wsFrame) []string {
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		types = append(types, f.Type)
	}
	return types
}

func TestChatWebSocket_StreamsTurns(t *testing.T) {
	f := newFixture(testDefaults)
	conn := dialChat(t, f, http.Header{identityHeader: {"rick@the-citadel.com"}})

	for turn := 0; turn < 2; turn++ {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"messages":    []map[string]string{{"role": "user", "content": "hi"}},
			"withContext": true,
		}))
		frames := readTurn(t, conn)

		assert.Equal(t, []string{"token", "token", "data", "done"}, frameTypes(frames))
		assert.Equal(t, "Hel", frames[0].Token)
		assert.Equal(t, "lo", frames[1].Token)
		data, ok := frames[2].Data.(map[string]any)
		require.True(t, ok)
		assert.Contains(t, data, "context")
	}

	assert.Equal(t, 2, f.chat.calls())
	require.NotNil(t, f.chat.last().User)
	assert.Equal(t, "rick@the-citadel.com", f.chat.last().User.ID)
}

func TestChatWebSocket_InvalidRequestKeepsConnection(t *testing.T) {
	f := newFixture(testDefaults)
	conn := dialChat(t, f, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[]}`)))
	frames := readTurn(t, conn)
	assert.Equal(t, []string{"error", "done"}, frameTypes(frames))
	assert.Contains(t, frames[0].Error, "Messages")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[{"role":"user","content":"hi"}]}`)))
	frames = readTurn(t, conn)
	assert.Equal(t, []string{"token", "token", "data", "done"}, frameTypes(frames))
	assert.Nil(t, f.chat.last().User)
}

func TestChatWebSocket_TurnFailure(t *testing.T) {
	f := newFixture(testDefaults)
	f.chat.err = errors.New("model unavailable")
	conn := dialChat(t, f, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[{"role":"user","content":"hi"}]}`)))
	frames := readTurn(t, conn)

	assert.Equal(t, []string{"token", "token", "error", "done"}, frameTypes(frames))
	assert.Equal(t, "model unavailable", frames[2].Error)
}
