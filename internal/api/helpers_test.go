// internal/api/helpers_test.go
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yzy0324/neon-tape-vn/internal/savegame"
	"github.com/yzy0324/neon-tape-vn/internal/services"
	"github.com/yzy0324/neon-tape-vn/internal/storage"
	"github.com/yzy0324/neon-tape-vn/internal/story"
)

type testServer struct {
	router   *gin.Engine
	sessions *services.SessionService
	hub      *WebSocketHub
}

func newTestServer(t *testing.T, requestsPerMinute int) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	graph, err := story.Default()
	require.NoError(t, err)
	files, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)

	manager := savegame.NewManager(files, graph)
	autosaver := savegame.NewAutoSaver(manager, 16)
	locks := services.NewLockManager()
	sessions := services.NewSessionService(graph, locks, autosaver, 30)
	saves := services.NewSaveService(manager, sessions)
	hub := NewWebSocketHub()
	sessions.SetPublisher(hub)
	sessions.SetNotifier(hub)

	t.Cleanup(func() {
		hub.Stop()
		autosaver.Close()
		locks.Stop()
		files.Close()
	})

	router := NewRouter(RouterDeps{
		Sessions:          sessions,
		Saves:             saves,
		Story:             services.NewStoryService(graph, saves, sessions),
		Hub:               hub,
		RequestsPerMinute: requestsPerMinute,
	})
	return &testServer{router: router, sessions: sessions, hub: hub}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Message string          `json:"message"`
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

// startRun 开局并返回运行 ID
func (ts *testServer) startRun(t *testing.T, profile string) string {
	t.Helper()
	w, env := ts.do(t, http.MethodPost, "/api/runs", map[string]string{"profile": profile})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var data struct {
		Run struct {
			ID string `json:"id"`
		} `json:"run"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Run.ID)
	return data.Run.ID
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}
