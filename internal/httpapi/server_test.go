package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/arbor/api"
	"github.com/agentic-research/arbor/internal/observability"
	"github.com/agentic-research/arbor/internal/store"
	"github.com/agentic-research/arbor/internal/treeops"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, origins ...string) *gin.Engine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tree.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	reg := prometheus.NewRegistry()
	srv := New(treeops.New(st), observability.New(reg), reg, origins)
	return srv.Router()
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const examplePayload = `[
  {
    "name": "root",
    "children": [
      {
        "name": "child1",
        "children": [
          {"name": "child1-child1", "data": "c1-c1 Hello"},
          {"name": "child1-child2", "data": "c1-c2 JS"}
        ]
      },
      {"name": "child2", "data": "c2 World"}
    ]
  }
]`

func TestHealth(t *testing.T) {
	w := do(newTestRouter(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestReplaceAndGetTree(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/tree", examplePayload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created []api.NestedNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, created, 1)
	assert.NotZero(t, created[0].ID)

	w = do(router, http.MethodGet, "/api/tree", "")
	require.Equal(t, http.StatusOK, w.Code)

	var forest []api.NestedNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &forest))
	require.Len(t, forest, 1)
	assert.Equal(t, "root", forest[0].Name)
	require.Len(t, forest[0].Children, 2)
	assert.Equal(t, "child1", forest[0].Children[0].Name)
	assert.Equal(t, "child2", forest[0].Children[1].Name)
}

func TestReplaceAcceptsSingleObject(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/tree", `{"name": "solo", "data": "d"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var created []api.NestedNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, created, 1)
	assert.Equal(t, "solo", created[0].Name)
}

func TestReplaceRejectsBadInput(t *testing.T) {
	router := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/tree", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/api/tree", `[{"name": ""}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Nothing was stored by either attempt.
	w = do(router, http.MethodGet, "/api/tree/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestReplaceRejectsNullBody(t *testing.T) {
	router := newTestRouter(t)
	w := do(router, http.MethodPost, "/api/tree", examplePayload)
	require.Equal(t, http.StatusOK, w.Code)

	// null and empty bodies must not be treated as an empty forest.
	w = do(router, http.MethodPost, "/api/tree", `null`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(router, http.MethodPost, "/api/tree", ` `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodGet, "/api/tree/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	var nodes []api.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nodes))
	assert.Len(t, nodes, 5, "rejected bodies must not wipe the forest")
}

func TestReplaceWithEmptyArrayClears(t *testing.T) {
	router := newTestRouter(t)
	w := do(router, http.MethodPost, "/api/tree", examplePayload)
	require.Equal(t, http.StatusOK, w.Code)

	// An explicit empty array is the documented way to clear everything.
	w = do(router, http.MethodPost, "/api/tree", `[]`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))

	w = do(router, http.MethodGet, "/api/tree/all", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
}

func TestGetAllFlat(t *testing.T) {
	router := newTestRouter(t)
	do(router, http.MethodPost, "/api/tree", examplePayload)

	w := do(router, http.MethodGet, "/api/tree/all", "")
	require.Equal(t, http.StatusOK, w.Code)

	var nodes []api.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nodes))
	assert.Len(t, nodes, 5)
}

func TestUpdateData(t *testing.T) {
	router := newTestRouter(t)
	w := do(router, http.MethodPost, "/api/tree", examplePayload)
	var created []api.NestedNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	child2 := created[0].Children[1]

	w = do(router, http.MethodPut, fmt.Sprintf("/api/tree/%d/data", child2.ID), `{"data": "updated"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var node api.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &node))
	require.NotNil(t, node.Data)
	assert.Equal(t, "updated", *node.Data)

	w = do(router, http.MethodPut, "/api/tree/99999/data", `{"data": "x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPut, "/api/tree/abc/data", `{"data": "x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteSubtree(t *testing.T) {
	router := newTestRouter(t)
	w := do(router, http.MethodPost, "/api/tree", examplePayload)
	var created []api.NestedNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	child1 := created[0].Children[0]

	w = do(router, http.MethodDelete, fmt.Sprintf("/api/tree/%d", child1.ID), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted": 3}`, w.Body.String())

	w = do(router, http.MethodDelete, fmt.Sprintf("/api/tree/%d", child1.ID), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/tree", nil)
	req.Header.Set("Origin", "http://example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestCORSAllowList(t *testing.T) {
	router := newTestRouter(t, "http://allowed.example")

	req := httptest.NewRequest(http.MethodGet, "/api/tree", nil)
	req.Header.Set("Origin", "http://allowed.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "http://allowed.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/tree", nil)
	req.Header.Set("Origin", "http://denied.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	do(router, http.MethodGet, "/api/tree", "")

	w := do(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "arbor_requests_total")
}
