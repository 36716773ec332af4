package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/pkg/response"
)

const (
	// ContextInstructorID is the key for the instructor ID in gin context.
	ContextInstructorID = "instructor_id"
	// ContextInstructorEmail is the key for the instructor email in gin context.
	ContextInstructorEmail = "instructor_email"
	// ContextClaims is the key for the full JWT claims in gin context.
	ContextClaims = "claims"
)

// JWT returns a middleware that validates the bearer token and sets the
// instructor claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextInstructorID, claims.InstructorID)
		c.Set(ContextInstructorEmail, claims.Email)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}
