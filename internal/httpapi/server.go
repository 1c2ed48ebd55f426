// Package httpapi is the HTTP transport over the tree operations. Routes
// mirror the service's public API: nested read, flat read, whole-forest
// replace, payload update, subtree delete.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentic-research/arbor/api"
	"github.com/agentic-research/arbor/internal/observability"
	"github.com/agentic-research/arbor/internal/store"
	"github.com/agentic-research/arbor/internal/treeops"
)

// Server wires the tree operations to gin routes.
type Server struct {
	svc            *treeops.Service
	metrics        *observability.Metrics
	allowedOrigins []string
	gatherer       prometheus.Gatherer
}

// New builds a Server. gatherer backs the /metrics endpoint; pass
// prometheus.DefaultGatherer in production.
func New(svc *treeops.Service, metrics *observability.Metrics, gatherer prometheus.Gatherer, allowedOrigins []string) *Server {
	return &Server{
		svc:            svc,
		metrics:        metrics,
		allowedOrigins: allowedOrigins,
		gatherer:       gatherer,
	}
}

// Router builds the gin engine with CORS, routes, and /metrics.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.cors())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "arbor"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	router.GET("/api/tree", s.handleGetTree)
	router.GET("/api/tree/all", s.handleGetAllFlat)
	router.POST("/api/tree", s.handleReplaceTree)
	router.PUT("/api/tree/:id/data", s.handleUpdateData)
	router.DELETE("/api/tree/:id", s.handleDeleteSubtree)
	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to ten seconds.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	slog.Info("HTTP server listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleGetTree(c *gin.Context) {
	start := time.Now()
	forest, err := s.svc.GetTree(c.Request.Context())
	if err != nil {
		s.fail(c, "get_tree", start, err)
		return
	}
	s.metrics.Observe("get_tree", "ok", time.Since(start))
	if forest == nil {
		forest = []api.NestedNode{}
	}
	c.JSON(http.StatusOK, forest)
}

func (s *Server) handleGetAllFlat(c *gin.Context) {
	start := time.Now()
	nodes, err := s.svc.GetAllFlat(c.Request.Context())
	if err != nil {
		s.fail(c, "get_all_flat", start, err)
		return
	}
	s.metrics.Observe("get_all_flat", "ok", time.Since(start))
	if nodes == nil {
		nodes = []api.Node{}
	}
	c.JSON(http.StatusOK, nodes)
}

func (s *Server) handleReplaceTree(c *gin.Context) {
	start := time.Now()
	body, err := c.GetRawData()
	if err != nil {
		s.clientError(c, "replace_tree", start, "unreadable body", err)
		return
	}

	// A missing or null body would unmarshal to an empty forest and wipe
	// the store; only an explicit [] may do that.
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		s.metrics.Observe("replace_tree", "client_error", time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON forest"})
		return
	}

	// The documented payload is an array of nested node objects; a single
	// bare object is accepted as a one-tree forest for compatibility with
	// the original client.
	var forest []api.NodeInput
	if err := json.Unmarshal(body, &forest); err != nil {
		var single api.NodeInput
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			s.clientError(c, "replace_tree", start, "invalid JSON body", err)
			return
		}
		forest = []api.NodeInput{single}
	}

	created, err := s.svc.ReplaceTree(c.Request.Context(), forest)
	if err != nil {
		s.fail(c, "replace_tree", start, err)
		return
	}
	s.refreshNodeGauge(c.Request.Context())
	s.metrics.Observe("replace_tree", "ok", time.Since(start))
	if created == nil {
		created = []api.NestedNode{}
	}
	c.JSON(http.StatusOK, created)
}

type updateRequest struct {
	Data *string `json:"data"`
}

func (s *Server) handleUpdateData(c *gin.Context) {
	start := time.Now()
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.clientError(c, "update_node_data", start, "invalid node id", err)
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.clientError(c, "update_node_data", start, "invalid JSON body", err)
		return
	}

	node, err := s.svc.UpdateNodeData(c.Request.Context(), id, req.Data)
	if err != nil {
		s.fail(c, "update_node_data", start, err)
		return
	}
	s.metrics.Observe("update_node_data", "ok", time.Since(start))
	c.JSON(http.StatusOK, node)
}

func (s *Server) handleDeleteSubtree(c *gin.Context) {
	start := time.Now()
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.clientError(c, "delete_subtree", start, "invalid node id", err)
		return
	}

	count, err := s.svc.DeleteSubtree(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "delete_subtree", start, err)
		return
	}
	s.refreshNodeGauge(c.Request.Context())
	s.metrics.Observe("delete_subtree", "ok", time.Since(start))
	c.JSON(http.StatusOK, gin.H{"deleted": count})
}

// ---------------------------------------------------------------------------
// Error mapping and middleware
// ---------------------------------------------------------------------------

// fail maps an operation error to a status code: NotFound→404, validation
// and reference failures→400, anything else→500.
func (s *Server) fail(c *gin.Context, operation string, start time.Time, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.metrics.Observe(operation, "client_error", time.Since(start))
		c.JSON(http.StatusNotFound, gin.H{"error": "node not found"})
	case errors.Is(err, treeops.ErrValidation), errors.Is(err, store.ErrParentNotFound):
		s.metrics.Observe(operation, "client_error", time.Since(start))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		slog.Error("operation failed", "operation", operation, "error", err)
		s.metrics.Observe(operation, "error", time.Since(start))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) clientError(c *gin.Context, operation string, start time.Time, msg string, err error) {
	s.metrics.Observe(operation, "client_error", time.Since(start))
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "details": err.Error()})
}

func (s *Server) refreshNodeGauge(ctx context.Context) {
	count, err := s.svc.NodeCount(ctx)
	if err != nil {
		slog.Warn("node count refresh failed", "error", err)
		return
	}
	s.metrics.NodesStored.Set(float64(count))
}

// cors honors the configured allow-list; "*" allows any origin. Preflight
// OPTIONS requests are answered directly.
func (s *Server) cors() gin.HandlerFunc {
	allowAny := false
	allowed := make(map[string]bool, len(s.allowedOrigins))
	for _, o := range s.allowedOrigins {
		if o == "*" {
			allowAny = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origin == "":
			// Not a CORS request.
		case allowAny:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
