package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/guidely/guidely/internal/companyctx"
	"go.uber.org/zap"
)

const headerAPIKey = "X-API-Key"

func companyIDFromRequest(c *gin.Context) (snowflake.ID, bool) {
	return companyctx.CompanyIDFromContext(c.Request.Context())
}

// APIKeyRequired authenticates requests with a company API key. The
// company identity is carried on the request context; handlers never
// accept it from the client.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerAPIKey))
		if key == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		company, err := s.companySvc.GetByAPIKey(c.Request.Context(), key)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := companyctx.WithCompanyID(c.Request.Context(), company.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// PublicRateLimit throttles unauthenticated event recording. A redis
// outage fails open; the guide page keeps working.
func (s *Server) PublicRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.publicLimiter.Enabled() {
			c.Next()
			return
		}

		allowed, err := s.publicLimiter.Allow(c.Request.Context(), c.ClientIP(), c.FullPath())
		if err != nil {
			s.log.Warn("public rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), c.FullPath())
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
