// Package memories mounts the write API and retrieval endpoint:
// create/update/delete/get a memory item of any kind, and search across
// kinds by lexical text, vector, or both.
package memories

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirino/temporal-memory-store/internal/model"
	registrystore "github.com/chirino/temporal-memory-store/internal/registry/store"
	"github.com/chirino/temporal-memory-store/internal/security"
	"github.com/chirino/temporal-memory-store/internal/service"
)

// MountRoutes mounts the memory item CRUD and search endpoints under
// /v1/memories.
func MountRoutes(r *gin.Engine, write *service.WriteService, retrieval *service.RetrievalService, tenantMW gin.HandlerFunc) {
	g := r.Group("/v1/memories", tenantMW)

	g.POST("", func(c *gin.Context) { create(c, write) })
	g.GET("/:kind/:id", func(c *gin.Context) { get(c, write) })
	g.PATCH("/:kind/:id", func(c *gin.Context) { update(c, write) })
	g.DELETE("/:kind/:id", func(c *gin.Context) { remove(c, write) })
	g.POST("/search", func(c *gin.Context) { search(c, retrieval) })
}

type createRequest struct {
	Kind            model.Kind     `json:"kind"`
	UserID          *string        `json:"user_id"`
	ContentFields   map[string]any `json:"content_fields"`
	ImportanceScore *float64       `json:"importance_score"`
	Metadata        map[string]any `json:"metadata"`
}

func create(c *gin.Context, write *service.WriteService) {
	tenant := security.TenantFromContext(c)
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := req.UserID
	if userID == nil {
		userID = tenant.UserID
	}

	id, err := write.Create(c.Request.Context(), model.CreateInput{
		Kind:            req.Kind,
		OrganizationID:  tenant.OrganizationID,
		UserID:          userID,
		ContentFields:   req.ContentFields,
		ImportanceScore: req.ImportanceScore,
		Metadata:        req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func get(c *gin.Context, write *service.WriteService) {
	tenant := security.TenantFromContext(c)
	kind := model.Kind(c.Param("kind"))
	id := c.Param("id")

	item, err := write.Get(c.Request.Context(), tenant.OrganizationID, tenant.UserID, kind, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":               item.ID,
		"kind":             item.Kind,
		"content_fields":   item.ContentFields,
		"created_at":       item.CreatedAt,
		"importance_score": item.ImportanceScore,
		"access_count":     item.AccessCount,
		"last_accessed_at": item.LastAccessedAt,
		"rehearsal_count":  item.RehearsalCount,
	})
}

type updateRequest struct {
	ContentFields   map[string]any `json:"content_fields"`
	ImportanceScore *float64       `json:"importance_score"`
	Metadata        map[string]any `json:"metadata"`
}

func update(c *gin.Context, write *service.WriteService) {
	tenant := security.TenantFromContext(c)
	kind := model.Kind(c.Param("kind"))
	id := c.Param("id")

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := write.Update(c.Request.Context(), model.UpdateInput{
		ID:              id,
		Kind:            kind,
		OrganizationID:  tenant.OrganizationID,
		UserID:          tenant.UserID,
		ContentFields:   req.ContentFields,
		ImportanceScore: req.ImportanceScore,
		Metadata:        req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func remove(c *gin.Context, write *service.WriteService) {
	tenant := security.TenantFromContext(c)
	kind := model.Kind(c.Param("kind"))
	id := c.Param("id")

	if err := write.Delete(c.Request.Context(), tenant.OrganizationID, tenant.UserID, kind, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type weightOverridesRequest struct {
	RelevanceWeight *float64 `json:"relevance_weight"`
	TemporalWeight  *float64 `json:"temporal_weight"`
}

type searchRequest struct {
	Kinds           []model.Kind            `json:"kinds"`
	Text            *string                 `json:"text"`
	Vector          []float32               `json:"vector"`
	Limit           int                     `json:"limit"`
	WeightOverrides *weightOverridesRequest `json:"weight_overrides"`
}

func search(c *gin.Context, retrieval *service.RetrievalService) {
	tenant := security.TenantFromContext(c)
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var overrides *model.WeightOverrides
	if req.WeightOverrides != nil {
		overrides = &model.WeightOverrides{
			RelevanceWeight: req.WeightOverrides.RelevanceWeight,
			TemporalWeight:  req.WeightOverrides.TemporalWeight,
		}
	}

	result, err := retrieval.Retrieve(c.Request.Context(), model.Query{
		OrganizationID:  tenant.OrganizationID,
		UserID:          tenant.UserID,
		Kinds:           req.Kinds,
		Text:            req.Text,
		Vector:          req.Vector,
		Limit:           req.Limit,
		WeightOverrides: overrides,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func writeError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var unavailable *registrystore.BackendUnavailableError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &unavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
