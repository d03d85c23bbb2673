package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware rejects webhook calls whose path token or secret header is wrong.
// A wrong token answers 404 so the route looks absent to scanners.
func (s *Service) Middleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.ValidToken(c.Param(param)) {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		if !s.ValidSecret(c.GetHeader(s.headerName)) {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
