package history

import (
	"context"
	"net/http"
	"strconv"

	"videohub/pkg/db"
	"videohub/pkg/logger"
	"videohub/pkg/validator"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Reader is the read side of Store.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
	Count(ctx context.Context, videoPath string) (int, error)
}

type Handler struct {
	store  Reader
	logger logger.Logger
}

func NewHandler(store Reader, log logger.Logger) *Handler {
	return &Handler{store: store, logger: log}
}

// ListHandler serves GET /history?limit=N.
func (h *Handler) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxLimit)
		}

		records, err := h.store.Recent(c.Request.Context(), limit)
		if err != nil {
			h.logger.Error(c.Request.Context(), "failed to list history", logger.Err(err))
			status := http.StatusInternalServerError
			if db.IsTimeoutError(err) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": "failed to list history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"history": records})
	}
}

// CountHandler serves GET /history/count?path=P with the number of recorded views of P.
func (h *Handler) CountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Query("path")
		if err := validator.ValidateVideoPath(path); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "path: " + err.Error()})
			return
		}

		n, err := h.store.Count(c.Request.Context(), path)
		if err != nil {
			h.logger.Error(c.Request.Context(), "failed to count history",
				logger.Field{Key: "path", Value: path},
				logger.Err(err),
			)
			status := http.StatusInternalServerError
			if db.IsTimeoutError(err) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": "failed to count history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"path": path, "views": n})
	}
}

// Register mounts the history routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/history", h.ListHandler())
	r.GET("/history/count", h.CountHandler())
}
