package system

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/chirino/student-memory-service/internal/registry/route"
)

// ReadinessCheck reports whether a dependency (usually the fact store) can serve requests.
type ReadinessCheck func(ctx context.Context) error

var (
	ready atomic.Bool
	check atomic.Pointer[ReadinessCheck]
)

// MarkReady signals that the service has finished initializing and is ready to
// serve traffic. Call this once StartServer has completed successfully.
func MarkReady() {
	ready.Store(true)
}

// SetReadinessCheck installs the dependency probe run by /ready. Nil removes it.
func SetReadinessCheck(fn ReadinessCheck) {
	if fn == nil {
		check.Store(nil)
		return
	}
	check.Store(&fn)
}

// Reset clears readiness state. Used by tests and on shutdown.
func Reset() {
	ready.Store(false)
	check.Store(nil)
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  0,
		Type:   registryroute.RouteTypeManagement,
		Loader: MountRoutes,
	})
}

// MountRoutes mounts /health, /ready and /metrics.
func MountRoutes(r *gin.Engine) error {
	// Liveness: process is up
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: initialized and the store answers
	r.GET("/ready", func(c *gin.Context) {
		if !ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		if fn := check.Load(); fn != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := (*fn)(ctx); err != nil {
				log.Warn("Readiness check failed", "err", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return nil
}
