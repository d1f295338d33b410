// Package admin mounts the read-only fleet views (per-kind item counts,
// the forgettable count, attribute distributions) and the decay-cycle
// trigger.
package admin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chirino/temporal-memory-store/internal/model"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
	"github.com/chirino/temporal-memory-store/internal/service"
)

// MountRoutes mounts the admin API under /v1/admin. Unlike the memories
// routes, an organization scope here is optional: omitting
// X-Organization-ID runs the view across every tenant, for the
// operator-triggered global views.
func MountRoutes(r *gin.Engine, admin *service.AdminService, decay *service.DecayService) {
	g := r.Group("/v1/admin")

	g.GET("/counts", func(c *gin.Context) { counts(c, admin) })
	g.GET("/forgettable-count", func(c *gin.Context) { forgettableCount(c, admin) })
	g.GET("/distribution/:kind", func(c *gin.Context) { distribution(c, admin) })
	g.POST("/decay", func(c *gin.Context) { runDecay(c, decay) })
}

func orgScope(c *gin.Context) *string {
	orgID := c.GetHeader("X-Organization-ID")
	if orgID == "" {
		return nil
	}
	return &orgID
}

func counts(c *gin.Context, admin *service.AdminService) {
	result, err := admin.CountItems(c.Request.Context(), orgScope(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": result})
}

func parseKinds(raw string) []model.Kind {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	kinds := make([]model.Kind, 0, len(parts))
	for _, p := range parts {
		k := model.Kind(strings.TrimSpace(p))
		if k.Valid() {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func forgettableCount(c *gin.Context, admin *service.AdminService) {
	kinds := parseKinds(c.Query("kinds"))
	result, err := admin.ForgettableCount(c.Request.Context(), orgScope(c), kinds)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"forgettable_count": result})
}

// defaultBucketEdges supplies histogram edges per field when the caller
// doesn't pass its own ?buckets= list. Ages bucket by day/week/month/
// quarter/year; importance by even fifths of its [0,1] range; access counts
// by decade.
var defaultBucketEdges = map[model.DistributionField][]float64{
	model.DistributionAgeDays:     {1, 7, 30, 90, 365},
	model.DistributionImportance:  {0.2, 0.4, 0.6, 0.8},
	model.DistributionAccessCount: {1, 10, 100, 1000},
}

func distribution(c *gin.Context, admin *service.AdminService) {
	kind := model.Kind(c.Param("kind"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kind " + string(kind)})
		return
	}

	field := model.DistributionField(c.DefaultQuery("field", string(model.DistributionAgeDays)))
	if !field.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown distribution field " + string(field)})
		return
	}

	edges := defaultBucketEdges[field]
	if raw := c.Query("buckets"); raw != "" {
		parts := strings.Split(raw, ",")
		parsed := make([]float64, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buckets value: " + p})
				return
			}
			parsed = append(parsed, v)
		}
		edges = parsed
	}

	buckets, err := admin.Distribution(c.Request.Context(), orgScope(c), kind, field, edges)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "field": field, "bucket_edges": edges, "buckets": buckets})
}

type decayRequest struct {
	OrganizationID *string `json:"organization_id"`
	UserID         *string `json:"user_id"`
	DryRun         bool    `json:"dry_run"`
	BatchSize      int     `json:"batch_size"`
}

// runDecay triggers one decay cycle outside the background schedule.
// With dry_run the report describes what would be deleted without writing.
func runDecay(c *gin.Context, decay *service.DecayService) {
	var req decayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scope := registrystore.DecayScope{}
	if req.OrganizationID == nil {
		scope.OrganizationID = orgScope(c)
	} else {
		scope.OrganizationID = req.OrganizationID
	}
	if scope.OrganizationID != nil {
		scope.UserID = req.UserID
	}

	report, err := decay.Run(c.Request.Context(), scope, req.DryRun, req.BatchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
