// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthands/recall/internal/config"
	"github.com/agenthands/recall/internal/core"
	"github.com/agenthands/recall/internal/core/cache"
	"github.com/agenthands/recall/internal/core/cluster"
	"github.com/agenthands/recall/internal/core/model"
	"github.com/agenthands/recall/internal/driver"
	"github.com/agenthands/recall/internal/graph"
	"github.com/agenthands/recall/internal/llm"
	"github.com/agenthands/recall/internal/metrics"
	"github.com/agenthands/recall/internal/progress"
)

type Server struct {
	Recall   *core.Recall
	Registry *prometheus.Registry

	log *zap.Logger
}

// NewServer wires the configured graph backend, LLM provider and metrics
// into a ready engine.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	var store graph.Store
	switch cfg.Graph.Backend {
	case "", "memory":
		store = graph.NewMemStore()
	case "memgraph":
		drv, err := driver.NewMemgraphDriver(cfg.Graph.URI, cfg.Graph.User, cfg.Graph.Password, log)
		if err != nil {
			return nil, err
		}
		if err := drv.BuildIndices(context.Background()); err != nil {
			log.Warn("index setup incomplete", zap.Error(err))
		}
		store = graph.NewMemgraphStore(drv, log)
	default:
		return nil, errors.New("server: unknown graph backend " + cfg.Graph.Backend)
	}

	var llmClient llm.LLMClient
	var embedder llm.EmbedderClient
	if cfg.LLM.Provider != "" {
		var err error
		llmClient, embedder, err = llm.NewClient(context.Background(), llm.ProviderConfig{
			Provider:       cfg.LLM.Provider,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
		})
		if err != nil {
			return nil, err
		}
	} else {
		log.Warn("no LLM provider configured, extraction and semantic search disabled")
	}

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	return &Server{
		Recall:   core.NewRecall(cfg, store, llmClient, embedder, met, log),
		Registry: reg,
		log:      log,
	}, nil
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))

	r.POST("/utterances", s.ProcessUtterance)

	r.GET("/cache/performance", s.CachePerformance)
	r.GET("/cache/items", s.AllCacheItems)
	r.GET("/cache/items/:category", s.CacheItemsByCategory)

	r.GET("/conversation/context", s.ConversationContext)
	r.GET("/focus/summary", s.FocusSummary)
	r.GET("/generation/context", s.GenerationContext)

	r.GET("/events/search", s.SearchEvents)
	r.POST("/import", s.Import)

	r.GET("/graph/integrity", s.Integrity)
	r.DELETE("/graph/orphans", s.DeleteOrphans)
	r.POST("/graph/dedupe", s.DedupeEntities)

	r.POST("/clusters/init", s.ClusterInit)
	r.POST("/clusters/organize", s.Organize)
	r.POST("/clusters/date-range", s.ClusterDateRange)
	r.POST("/clusters/outliers", s.Outliers)
	r.GET("/clusters", s.Clusters)
	r.GET("/clusters/:id/members", s.ClusterMembers)
	r.GET("/clusters/quality", s.ClusterQuality)
	r.DELETE("/clusters", s.ClearClusters)

	return r
}

type UtteranceRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) ProcessUtterance(c *gin.Context) {
	var req UtteranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	result, err := s.Recall.ProcessUtterance(c.Request.Context(), req.Text)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) CachePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.Recall.GetCachePerformance())
}

func (s *Server) AllCacheItems(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.Recall.GetAllCacheItems()})
}

func (s *Server) CacheItemsByCategory(c *gin.Context) {
	items, err := s.Recall.GetCacheItemsByCategory(model.CacheCategory(c.Param("category")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) ConversationContext(c *gin.Context) {
	c.JSON(http.StatusOK, s.Recall.GetCurrentConversationContext())
}

func (s *Server) FocusSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"focuses": s.Recall.GetCurrentPersonalFocusSummary()})
}

func (s *Server) GenerationContext(c *gin.Context) {
	bundle, err := s.Recall.GetRelevantPersonalInfoForGeneration(c.Request.Context(), c.Query("query"), intQuery(c, "k", 5))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (s *Server) SearchEvents(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	matches, err := s.Recall.SearchEventsByText(c.Request.Context(), query, intQuery(c, "k", 10))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

func (s *Server) Import(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	result, err := s.Recall.ImportSnapshot(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) Integrity(c *gin.Context) {
	report, err := s.Recall.ValidateGraphIntegrity(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "clean": report.Clean()})
}

// DeleteOrphans is destructive and demands confirm=true; integrity scans
// only report, repair is always explicit.
func (s *Server) DeleteOrphans(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pass confirm=true to delete orphaned nodes"})
		return
	}
	removed, err := s.Recall.DeleteOrphanedNodes(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (s *Server) DedupeEntities(c *gin.Context) {
	result, err := s.Recall.DedupeEntities(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ClusterInit(c *gin.Context) {
	// A full rebuild can run for minutes against a live embedder; async
	// callers get a 202 and the run continues in the background.
	if c.Query("async") == "true" {
		go func() {
			sink := progress.Func(func(ev progress.Event) {
				s.log.Info("clustering progress", zap.String("stage", ev.Stage), zap.String("message", ev.Message))
			})
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			if _, err := s.Recall.Clusters.ClusterInitAll(ctx, sink); err != nil {
				s.log.Error("background clustering failed", zap.Error(err))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"status": "started"})
		return
	}

	result, err := s.Recall.Clusters.ClusterInitAll(c.Request.Context(), nil)
	if err != nil {
		if errors.Is(err, cluster.ErrNoEvents) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type OrganizeRequest struct {
	ForceRecluster bool `json:"force_recluster"`
	UseTwoStage    bool `json:"use_two_stage"`
}

func (s *Server) Organize(c *gin.Context) {
	req := OrganizeRequest{UseTwoStage: true}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	result, err := s.Recall.Clusters.OrganizeGraph(c.Request.Context(), req.ForceRecluster, req.UseTwoStage, nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type DateRangeRequest struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s *Server) ClusterDateRange(c *gin.Context) {
	var req DateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	result, err := s.Recall.Clusters.ClusterByDateRange(c.Request.Context(), model.TimeRange{Start: req.Start, End: req.End}, nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) Outliers(c *gin.Context) {
	result, err := s.Recall.Clusters.DetectAndReassignOutliers(c.Request.Context(), nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) Clusters(c *gin.Context) {
	clusters, err := s.Recall.Clusters.GetAllClusters(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters})
}

func (s *Server) ClusterMembers(c *gin.Context) {
	members, err := s.Recall.Clusters.GetClusterMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) ClusterQuality(c *gin.Context) {
	q, err := s.Recall.Clusters.GetClusteringQualityMetrics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// ClearClusters is irreversible and demands confirm=true.
func (s *Server) ClearClusters(c *gin.Context) {
	if c.Query("confirm") != "true" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pass confirm=true to clear all clusters"})
		return
	}
	result, err := s.Recall.Clusters.ClearAllClusters(c.Request.Context(), nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cache.ErrCapacityExhausted), errors.Is(err, cache.ErrUnknownCategory):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
