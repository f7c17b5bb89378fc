package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Period presets map to a trailing window; anything else reads as
// unbounded. Handlers pass the raw value through so new presets only
// touch the aggregation layer.
func periodFromQuery(c *gin.Context) string {
	return strings.TrimSpace(c.Query("period"))
}

func (s *Server) AnalyticsOverview(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	overview, err := s.analyticsSvc.Overview(c.Request.Context(), companyID, periodFromQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (s *Server) AnalyticsTimeSeries(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	series, err := s.analyticsSvc.TimeSeries(c.Request.Context(), companyID, periodFromQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) AnalyticsTimeOfDay(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	buckets, err := s.analyticsSvc.TimeOfDay(c.Request.Context(), companyID, periodFromQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

func (s *Server) AnalyticsRatings(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	breakdown, err := s.analyticsSvc.Ratings(c.Request.Context(), companyID, periodFromQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

func (s *Server) AnalyticsTopQuestions(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	questions, err := s.analyticsSvc.TopQuestions(c.Request.Context(), companyID, periodFromQuery(c), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"questions": questions})
}
