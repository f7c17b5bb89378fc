package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	analyticsdomain "github.com/guidely/guidely/internal/analytics/domain"
)

// ResolveGuide serves the consumer-facing guide payload for a scanned
// code. Only live items resolve; anything else is not found.
func (s *Server) ResolveGuide(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	c.Set("item_code", code)

	item, err := s.itemSvc.ResolveByCode(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":               item.Code,
		"name":               item.Name,
		"category":           item.Category,
		"video_ref":          item.VideoRef,
		"video_duration_sec": item.VideoDurationSec,
		"step_count":         item.StepCount,
	})
}

func (s *Server) RecordScan(c *gin.Context) {
	var req analyticsdomain.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}
	c.Set("item_code", req.Code)

	event, err := s.analyticsSvc.RecordScan(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": event.ID, "session_id": event.SessionID})
}

func (s *Server) RecordCompletion(c *gin.Context) {
	var req analyticsdomain.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}
	c.Set("item_code", req.Code)

	if err := s.analyticsSvc.RecordCompletion(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func (s *Server) RecordQuestion(c *gin.Context) {
	var req analyticsdomain.QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}
	c.Set("item_code", req.Code)

	event, err := s.analyticsSvc.RecordQuestion(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": event.ID})
}
