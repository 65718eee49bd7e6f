package recommend

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"videohub/pkg/cache"
	"videohub/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Ranker is the read side of Tally.
type Ranker interface {
	Top(ctx context.Context, n int) ([]Recommendation, error)
	LastViewed(ctx context.Context) (string, error)
}

type Handler struct {
	ranker Ranker
	logger logger.Logger
}

func NewHandler(ranker Ranker, log logger.Logger) *Handler {
	return &Handler{ranker: ranker, logger: log}
}

// TopHandler serves GET /recommendations?limit=N.
func (h *Handler) TopHandler() gin.HandlerFunc {
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

		ctx := c.Request.Context()
		top, err := h.ranker.Top(ctx, limit)
		if err != nil {
			h.logger.Error(ctx, "failed to read recommendations", logger.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read recommendations"})
			return
		}

		resp := gin.H{"recommendations": top}
		last, err := h.ranker.LastViewed(ctx)
		switch {
		case err == nil:
			resp["last_viewed"] = last
		case !errors.Is(err, cache.ErrNotFound):
			h.logger.Warn(ctx, "failed to read last viewed video", logger.Err(err))
		}

		c.JSON(http.StatusOK, resp)
	}
}

// Register mounts the recommendation routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/recommendations", h.TopHandler())
}
