// internal/api/handlers_test.go
package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sceneView struct {
	SceneID string `json:"scene_id"`
	Type    string `json:"type"`
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, -1)
	w, _ := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRunLifecycle(t *testing.T) {
	ts := newTestServer(t, -1)
	runID := ts.startRun(t, "alice")

	w, env := ts.do(t, http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s00", decode[sceneView](t, env.Data).SceneID)

	w, env = ts.do(t, http.MethodPost, "/api/runs/"+runID+"/choices", map[string]int{"index": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "s01", decode[sceneView](t, env.Data).SceneID)

	w, env = ts.do(t, http.MethodPost, "/api/runs/"+runID+"/choices", map[string]int{"index": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code, "点单场景不接受普通选择")
	assert.Equal(t, ErrorBadRequest, env.Error.Code)

	w, env = ts.do(t, http.MethodPost, "/api/runs/"+runID+"/choices", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrorChoiceInvalid, env.Error.Code)

	w, _ = ts.do(t, http.MethodPut, "/api/runs/"+runID+"/order/draft", map[string]interface{}{"drinkId": "rain-loop"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = ts.do(t, http.MethodPost, "/api/runs/"+runID+"/order", map[string]interface{}{"drinkId": "cipher-tonic"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "s02", decode[sceneView](t, env.Data).SceneID)

	w, _ = ts.do(t, http.MethodGet, "/api/runs/"+runID+"/forecast", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = ts.do(t, http.MethodGet, "/api/runs/"+runID+"/review", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, env.Data), 3)

	w, _ = ts.do(t, http.MethodGet, "/api/runs/"+runID+"/review/0", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/api/runs/"+runID+"/review/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/runs/"+runID+"/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/api/runs/"+runID+"/history?limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/runs/"+runID+"/restart", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = ts.do(t, http.MethodDelete, "/api/runs/"+runID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, env = ts.do(t, http.MethodGet, "/api/runs/"+runID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrorNotFound, env.Error.Code)
}

func TestStartRunBadProfile(t *testing.T) {
	ts := newTestServer(t, -1)
	w, _ := ts.do(t, http.MethodPost, "/api/runs", map[string]string{"profile": "../etc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/runs", nil)
	assert.Equal(t, http.StatusCreated, w.Code, "空请求体使用默认档案")
}

func TestSaveEndpoints(t *testing.T) {
	ts := newTestServer(t, -1)
	runID := ts.startRun(t, "alice")
	base := "/api/runs/" + runID + "/saves"

	w, _ := ts.do(t, http.MethodPost, base+"/1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env := ts.do(t, http.MethodPost, base+"/auto", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrorBadRequest, env.Error.Code)

	w, env = ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, env.Data), 4)

	w, env = ts.do(t, http.MethodGet, base+"/1/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	exported := decode[map[string]string](t, env.Data)["text"]
	assert.True(t, strings.HasPrefix(exported, "NEONTAPE1."))

	w, _ = ts.do(t, http.MethodGet, base+"/1/export?format=text", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, exported, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "neon-tape-1.txt")

	w, _ = ts.do(t, http.MethodPost, base+"/2/import", map[string]string{"text": exported})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = ts.do(t, http.MethodPost, base+"/3/import", map[string]string{"text": "NEONTAPE1.???"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ErrorSaveCorrupt, env.Error.Code)

	w, env = ts.do(t, http.MethodPost, base+"/3/import", map[string]string{"text": `{"schemaVersion":99,"sceneId":"s00"}`})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, ErrorSchemaUnsupported, env.Error.Code)

	w, _ = ts.do(t, http.MethodPost, base+"/3/load", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = ts.do(t, http.MethodPost, base+"/2/load", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s00", decode[sceneView](t, env.Data).SceneID)

	w, _ = ts.do(t, http.MethodDelete, base+"/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStoryEndpoints(t *testing.T) {
	ts := newTestServer(t, -1)

	w, env := ts.do(t, http.MethodGet, "/api/story", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s00", decode[map[string]interface{}](t, env.Data)["start"])

	w, _ = ts.do(t, http.MethodGet, "/api/story/validate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = ts.do(t, http.MethodGet, "/api/endings?profile=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode[map[string]interface{}](t, env.Data)["total"])

	w, _ = ts.do(t, http.MethodGet, "/api/endings?profile=..", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodGet, "/api/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = ts.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "未配置统计服务")
	assert.Equal(t, ErrorNotFound, env.Error.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, 2)
	for i := 0; i < 2; i++ {
		w, _ := ts.do(t, http.MethodGet, "/api/story", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w, env := ts.do(t, http.MethodGet, "/api/story", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ErrorRateLimited, env.Error.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w, _ = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "健康检查不受限流")
}

func TestSanitizeErrorMessage(t *testing.T) {
	assert.Equal(t, "写入失败", sanitizeErrorMessage("写入失败: open /var/data/x.json"))
	assert.Equal(t, "An internal error occurred", sanitizeErrorMessage("bad token"))
	assert.Equal(t, "槽位为空", sanitizeErrorMessage("槽位为空"))
}
