// Package system mounts the liveness/readiness/metrics endpoints every
// listener exposes regardless of which other routes it carries.
package system

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
)

var ready atomic.Bool

// MarkReady signals that the service has finished initializing and is ready
// to serve traffic. Call this once the store has been opened successfully.
func MarkReady() {
	ready.Store(true)
}

// MountRoutes mounts /healthz, /readyz, and /metrics on r.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore) {
	// Liveness: process is up.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: service has finished initializing and can reach its store.
	r.GET("/readyz", func(c *gin.Context) {
		if !ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
