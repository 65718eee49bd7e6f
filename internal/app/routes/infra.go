package routes

import (
	"net/http"

	"videohub/internal/app/health"

	"github.com/gin-gonic/gin"
)

// SetupInfra mounts the probes and the Prometheus scrape endpoint.
func SetupInfra(r *gin.Engine, hc *health.Checker, metrics http.Handler) {
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}
	r.GET("/healthz", hc.Liveness)
	r.GET("/readyz", hc.Readiness)
}
