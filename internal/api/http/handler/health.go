package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/silo-provisioner/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

const (
	storeOK          = "ok"
	storeUnavailable = "unavailable"

	pingTimeout = 2 * time.Second
)

// Pinger is the part of the run store the health check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store Pinger
}

func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// Check answers 503 when the run store cannot be reached, since no run could be
// recorded or read back.
func (h *HealthHandler) Check(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), pingTimeout)
	defer cancel()

	if err := h.store.Ping(pingCtx); err != nil {
		slog.Warn("Health check failed", "error", err)
		ctx.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "degraded", Store: storeUnavailable})
		return
	}
	ctx.JSON(http.StatusOK, dto.HealthResponse{Status: "ok", Store: storeOK})
}
