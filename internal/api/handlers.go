package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ppiankov/alma/internal/merge"
	"github.com/ppiankov/alma/internal/metrics"
	"github.com/ppiankov/alma/internal/model"
	"github.com/ppiankov/alma/internal/queue"
	"github.com/ppiankov/alma/internal/store"
)

const recentHistory = 20

// Processor runs the discovery pipeline
type Processor interface {
	RunBatch(ctx context.Context, size int) (*model.BatchSummary, error)
	ProcessOne(ctx context.Context, id string) (*model.BatchSummary, error)
}

// Merger runs the merge engine
type Merger interface {
	Run(ctx context.Context, live bool) (*merge.Report, error)
}

// Handler holds the collaborators behind each route
type Handler struct {
	queue         *queue.Queue
	processor     Processor
	merger        Merger
	interventions store.InterventionStore
	metrics       *metrics.Metrics
}

// NewHandler creates a handler. A nil metrics disables /metrics.
func NewHandler(q *queue.Queue, p Processor, m Merger, s store.InterventionStore, mt *metrics.Metrics) *Handler {
	return &Handler{queue: q, processor: p, merger: m, interventions: s, metrics: mt}
}

// Register mounts every route on r
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/queue", h.ListQueue)
	r.POST("/queue", h.EnqueueLinks)
	r.PATCH("/queue", h.BulkUpdate)
	r.GET("/status", h.Status)
	r.POST("/process", h.Process)
	r.POST("/merge", h.Merge)
	r.GET("/interventions", h.ListInterventions)
	r.GET("/interventions/archived", h.ListArchived)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListQueue handles GET /queue
func (h *Handler) ListQueue(c *gin.Context) {
	filter := store.LinkFilter{PredictedType: c.Query("type")}
	if raw := c.Query("status"); raw != "" {
		status, err := model.ParseLinkStatus(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Status = status
	}
	var ok bool
	if filter.Limit, ok = intQuery(c, "limit"); !ok {
		return
	}
	if filter.Offset, ok = intQuery(c, "offset"); !ok {
		return
	}

	result, err := h.queue.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type enqueueRequest struct {
	Links []queue.NewLink `json:"links" binding:"required,min=1,dive"`
}

// EnqueueLinks handles POST /queue
func (h *Handler) EnqueueLinks(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.queue.Enqueue(c.Request.Context(), req.Links)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

type bulkRequest struct {
	IDs    []string `json:"ids" binding:"required,min=1"`
	Action string   `json:"action" binding:"required"`
}

// BulkUpdate handles PATCH /queue
func (h *Handler) BulkUpdate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action, err := model.ParseBulkAction(req.Action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.queue.BulkTransition(c.Request.Context(), req.IDs, action)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"updated":   result.Updated,
		"requested": result.Requested,
		"message":   result.Summary(),
		"failures":  result.Failures,
	})
}

// Status handles GET /status
func (h *Handler) Status(c *gin.Context) {
	report, err := h.queue.Status(c.Request.Context(), recentHistory)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

type processRequest struct {
	BatchSize int    `json:"batchSize" binding:"gte=0"`
	LinkID    string `json:"linkId"`
}

// Process handles POST /process
func (h *Handler) Process(c *gin.Context) {
	var req processRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var (
		summary *model.BatchSummary
		err     error
	)
	if req.LinkID != "" {
		summary, err = h.processor.ProcessOne(c.Request.Context(), req.LinkID)
	} else {
		summary, err = h.processor.RunBatch(c.Request.Context(), req.BatchSize)
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrNoLinkAvailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, summary)
	}
}

type mergeRequest struct {
	LiveMode bool `json:"liveMode"`
}

// Merge handles POST /merge
func (h *Handler) Merge(c *gin.Context) {
	var req mergeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	report, err := h.merger.Run(c.Request.Context(), req.LiveMode)
	if errors.Is(err, model.ErrMergeInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if report == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{
		"liveMode":        report.Live,
		"groupsProcessed": report.GroupsProcessed,
		"recordsDeleted":  report.RecordsDeleted,
		"finalCount":      report.FinalCount,
		"decisions":       report.Decisions,
		"failures":        report.Failures,
	}
	if err != nil {
		// Cancelled mid-run: the partial report is still accurate
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// ListInterventions handles GET /interventions
func (h *Handler) ListInterventions(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset")
	if !ok {
		return
	}
	limit = store.ClampLimit(limit)

	items, err := h.interventions.ListInterventions(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	total, err := h.interventions.CountInterventions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"interventions": items,
		"total":         total,
		"limit":         limit,
		"offset":        offset,
	})
}

// ListArchived handles GET /interventions/archived
func (h *Handler) ListArchived(c *gin.Context) {
	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset")
	if !ok {
		return
	}
	limit = store.ClampLimit(limit)

	items, err := h.interventions.ListArchived(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"archived": items,
		"limit":    limit,
		"offset":   offset,
	})
}

// intQuery reads a non-negative integer query parameter, writing a 400 on failure
func intQuery(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a non-negative integer"})
		return 0, false
	}
	return n, true
}
