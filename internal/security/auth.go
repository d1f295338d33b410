// Package security holds the HTTP middleware shared across route packages:
// tenant identification, access logging, and Prometheus metrics.
package security

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirino/temporal-memory-store/internal/config"
)

// Tenant is the (organization, user) scope a request operates under,
// resolved once by TenantMiddleware and read by every route handler
// downstream.
type Tenant struct {
	OrganizationID string
	UserID         *string
}

const (
	headerOrganizationID = "X-Organization-ID"
	headerUserID         = "X-User-ID"

	// ContextKeyTenant is the gin.Context key TenantMiddleware stores the
	// resolved Tenant under.
	ContextKeyTenant = "tenant"
)

// TenantMiddleware extracts the organization/user scope from trusted
// headers. It does not authenticate the caller — that is assumed to happen
// in front of this service (a gateway, sidecar, or load balancer); it only
// parses the identifiers a request claims to act as. Requests missing an
// organization id are rejected with 400, since every read and write is
// tenant-scoped.
func TenantMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := c.GetHeader(headerOrganizationID)
		if orgID == "" && cfg != nil && cfg.Mode == config.ModeTesting {
			orgID = c.Query("organization_id")
		}
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": headerOrganizationID + " header is required"})
			return
		}

		tenant := Tenant{OrganizationID: orgID}
		if userID := c.GetHeader(headerUserID); userID != "" {
			tenant.UserID = &userID
		}
		c.Set(ContextKeyTenant, tenant)
		c.Next()
	}
}

// TenantFromContext reads the Tenant TenantMiddleware resolved for this request.
func TenantFromContext(c *gin.Context) Tenant {
	v, _ := c.Get(ContextKeyTenant)
	t, _ := v.(Tenant)
	return t
}
