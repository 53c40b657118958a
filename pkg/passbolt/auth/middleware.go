package auth

import (
	"net/http"
	"strings"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	userIDKey     = "user_id"
	userEmailKey  = "user_email"
	systemRoleKey = "system_role"
	orgKey        = "organization"
)

// AuthMiddleware validates the Bearer token and stores the user identity
// in the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userEmailKey, claims.Email)
		c.Set(systemRoleKey, claims.SystemRole)
		c.Next()
	}
}

// RequireAdmin aborts requests from non-admin users. Must run after
// AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetSystemRole(c)
		if !ok || role != string(models.SystemRoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// OrgMiddleware resolves the organization serving the request from the Host
// header. Unrecognized hosts map to the global organization so single-tenant
// deployments work without domain setup.
func OrgMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		host := c.Request.Host
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}

		var org models.Organization
		var domain models.OrganizationDomain
		err := db.Where("domain = ?", strings.ToLower(host)).First(&domain).Error
		if err == nil {
			err = db.First(&org, domain.OrganizationID).Error
		}
		if err != nil {
			if err := db.Where("is_global = ?", true).First(&org).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "No organization configured"})
				c.Abort()
				return
			}
		}

		c.Set(orgKey, &org)
		c.Next()
	}
}

// GetUserID returns the authenticated user's ID from the context
func GetUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetUserEmail returns the authenticated user's email from the context
func GetUserEmail(c *gin.Context) (string, bool) {
	v, ok := c.Get(userEmailKey)
	if !ok {
		return "", false
	}
	email, ok := v.(string)
	return email, ok
}

// GetSystemRole returns the authenticated user's system role from the context
func GetSystemRole(c *gin.Context) (string, bool) {
	v, ok := c.Get(systemRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

// GetOrg returns the organization resolved for this request
func GetOrg(c *gin.Context) (*models.Organization, bool) {
	v, ok := c.Get(orgKey)
	if !ok {
		return nil, false
	}
	org, ok := v.(*models.Organization)
	return org, ok
}

// GetOrgID returns the ID of the organization resolved for this request
func GetOrgID(c *gin.Context) (uint, bool) {
	org, ok := GetOrg(c)
	if !ok {
		return 0, false
	}
	return org.ID, true
}
