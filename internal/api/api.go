// Package api serves fulfillment status and checkout events over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cecilphillip/shadowshop/internal/app"
	"github.com/cecilphillip/shadowshop/internal/common"
)

const (
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeSessionIDRequired  = "session_id_required"
	codeInternalError      = "internal_error"
)

// StatusService observes and cancels fulfillment workflows.
type StatusService interface {
	Report(ctx context.Context, workflowID string) (app.StatusReport, error)
	Cancel(ctx context.Context, workflowID string) error
}

// EventPublisher publishes checkout-completed events.
type EventPublisher interface {
	Publish(ctx context.Context, message any) (string, error)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type handler struct {
	status        StatusService
	events        EventPublisher
	logger        *slog.Logger
	deterministic bool
}

// Option configures the router.
type Option func(*handler)

// WithDeterministicIDs makes checkout responses carry the workflow ID the
// dispatcher will derive from the session ID.
func WithDeterministicIDs(enabled bool) Option {
	return func(h *handler) { h.deterministic = enabled }
}

// NewRouter builds the HTTP routes.
func NewRouter(status StatusService, events EventPublisher, logger *slog.Logger, opts ...Option) *gin.Engine {
	h := &handler{status: status, events: events, logger: logger}
	for _, opt := range opts {
		opt(h)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/fulfillments/:id", h.getStatus)
		v1.POST("/fulfillments/:id/cancel", h.cancel)
		v1.POST("/checkouts", h.completeCheckout)
	}
	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, codeNotFound, "route not found")
	})
	return r
}

func (h *handler) getStatus(c *gin.Context) {
	report, err := h.status.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handler) cancel(c *gin.Context) {
	id := c.Param("id")
	if err := h.status.Cancel(c.Request.Context(), id); err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"workflow_id": id, "msg": "cancellation requested"})
}

func (h *handler) completeCheckout(c *gin.Context) {
	var order common.FulfillOrder
	if err := c.ShouldBindJSON(&order); err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	if order.SessionID == "" {
		writeError(c, http.StatusBadRequest, codeSessionIDRequired, "SessionId is required")
		return
	}

	correlationID, err := h.events.Publish(c.Request.Context(), order)
	if err != nil {
		h.logger.Error("publish checkout event", slog.String("session_id", order.SessionID), slog.String("error", err.Error()))
		writeError(c, http.StatusInternalServerError, codeInternalError, "could not publish checkout event")
		return
	}
	resp := gin.H{"session_id": order.SessionID, "correlation_id": correlationID}
	if h.deterministic {
		resp["workflow_id"] = app.OrderWorkflowID(order.SessionID)
	}
	c.JSON(http.StatusAccepted, resp)
}

func (h *handler) writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, app.ErrWorkflowNotFound) {
		writeError(c, http.StatusNotFound, codeNotFound, "fulfillment not found")
		return
	}
	h.logger.Error("workflow lookup", slog.String("workflow_id", c.Param("id")), slog.String("error", err.Error()))
	writeError(c, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}
