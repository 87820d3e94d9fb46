package handlers

import (
	"context"
	"errors"
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/service"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/transport/http/middleware"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/transport/http/response"
	"github.com/gin-gonic/gin"
)

// Handler serves the watcher endpoints. watcher and outbox are nil when the
// process started without a usable configuration.
type Handler struct {
	watcher     service.WatcherService
	outbox      service.OutboxService
	store       repository.Store
	pollTimeout time.Duration
}

func NewHandler(watcher service.WatcherService, outbox service.OutboxService, store repository.Store, pollTimeout time.Duration) *Handler {
	return &Handler{
		watcher:     watcher,
		outbox:      outbox,
		store:       store,
		pollTimeout: pollTimeout,
	}
}

// pollRequest leaves BatchSize nil when the field is absent; an explicit 0
// is out of range.
type pollRequest struct {
	Tenant      string `json:"tenant" binding:"omitempty,max=63"`
	BatchSize   *int   `json:"batch_size" binding:"omitempty,min=1,max=500"`
	EmitFullRow bool   `json:"emit_full_row"`
}

func (r pollRequest) batchSize() int {
	if r.BatchSize == nil {
		return 0
	}
	return *r.BatchSize
}

func (h *Handler) poll(c *gin.Context) {
	if h.watcher == nil {
		response.RespondError(c, nethttp.StatusInternalServerError, service.ErrNotConfigured.Error())
		return
	}
	var req pollRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, nethttp.StatusBadRequest, err.Error())
			return
		}
	}

	ctx := c.Request.Context()
	if h.pollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.pollTimeout)
		defer cancel()
	}

	result, err := h.watcher.RunCycle(ctx, entity.CycleRequest{
		Tenant:      req.Tenant,
		BatchSize:   req.batchSize(),
		EmitFullRow: req.EmitFullRow,
		RequestID:   c.GetString(middleware.RequestIDKey),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTenantNotAllowed), errors.Is(err, service.ErrInvalidBatchSize):
			response.RespondError(c, nethttp.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrCycleInProgress):
			response.RespondError(c, nethttp.StatusConflict, err.Error())
		default:
			_ = c.Error(err)
			response.RespondError(c, nethttp.StatusInternalServerError, "cycle failed")
		}
		return
	}
	response.RespondOK(c, nethttp.StatusOK, result, nil)
}

func (h *Handler) watcherState(c *gin.Context) {
	if h.watcher == nil {
		response.RespondError(c, nethttp.StatusInternalServerError, service.ErrNotConfigured.Error())
		return
	}
	state, err := h.watcher.State(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTenantNotAllowed):
			response.RespondError(c, nethttp.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrNotFound):
			response.RespondError(c, nethttp.StatusNotFound, "not found")
		default:
			_ = c.Error(err)
			response.RespondError(c, nethttp.StatusInternalServerError, "state lookup failed")
		}
		return
	}
	response.RespondOK(c, nethttp.StatusOK, state, nil)
}

func (h *Handler) listOutbox(c *gin.Context) {
	if h.outbox == nil {
		response.RespondError(c, nethttp.StatusInternalServerError, service.ErrNotConfigured.Error())
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, nextCursor, err := h.outbox.List(c.Request.Context(), repository.OutboxFilter{
		Tenant: c.Query("tenant"),
		Status: entity.OutboxStatus(c.Query("status")),
		Limit:  limit,
		Cursor: c.Query("cursor"),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidCursor):
			response.RespondError(c, nethttp.StatusBadRequest, "invalid cursor")
		case errors.Is(err, repository.ErrInvalidFilter):
			response.RespondError(c, nethttp.StatusBadRequest, "invalid status")
		default:
			_ = c.Error(err)
			response.RespondError(c, nethttp.StatusInternalServerError, "list failed")
		}
		return
	}
	meta := &response.Meta{Count: len(events), NextCursor: nextCursor}
	response.RespondOK(c, nethttp.StatusOK, events, meta)
}

func (h *Handler) health(c *gin.Context) {
	if h.store == nil {
		response.RespondOK(c, nethttp.StatusServiceUnavailable, gin.H{"status": "down"}, nil)
		return
	}
	if err := h.store.Ping(c.Request.Context()); err != nil {
		response.RespondOK(c, nethttp.StatusServiceUnavailable, gin.H{"status": "down"}, nil)
		return
	}
	response.RespondOK(c, nethttp.StatusOK, gin.H{"status": "ok"}, nil)
}
