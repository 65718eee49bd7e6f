package health

import (
	"context"
	"net/http"
	"time"

	"videohub/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Pinger is any dependency that can answer a readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency names a Pinger in the readiness report.
type Dependency struct {
	Name   string
	Pinger Pinger
}

type Checker struct {
	deps   []Dependency
	logger logger.Logger
}

// NewChecker builds a checker over deps. Entries with a nil Pinger are skipped,
// so roles can pass the full list and leave out what they do not run.
func NewChecker(logger logger.Logger, deps ...Dependency) *Checker {
	kept := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		if d.Pinger != nil {
			kept = append(kept, d)
		}
	}
	return &Checker{
		deps:   kept,
		logger: logger,
	}
}

type Status struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (h *Checker) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, Status{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Checker) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.deps))
	healthy := true

	for _, d := range h.deps {
		if err := d.Pinger.Ping(ctx); err != nil {
			checks[d.Name] = "unhealthy: " + err.Error()
			healthy = false
			h.logger.Warn(ctx, "readiness check failed",
				logger.Field{Key: "dependency", Value: d.Name},
				logger.Err(err),
			)
			continue
		}
		checks[d.Name] = "healthy"
	}

	if healthy {
		c.JSON(http.StatusOK, Status{
			Status:    "ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		})
	} else {
		c.JSON(http.StatusServiceUnavailable, Status{
			Status:    "not_ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		})
	}
}
