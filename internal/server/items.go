package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
)

// CreateItem accepts a multipart submission and returns 202 while the
// derivation pipeline runs in the background.
func (s *Server) CreateItem(c *gin.Context) {
	code := strings.TrimSpace(c.PostForm("code"))
	if code == "" {
		AbortWithError(c, newValidationError("code", "required", "code is required"))
		return
	}
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		AbortWithError(c, newValidationError("name", "required", "name is required"))
		return
	}
	artifactType := strings.TrimSpace(c.PostForm("type"))
	if artifactType == "" {
		AbortWithError(c, newValidationError("type", "required", "artifact type is required"))
		return
	}

	fileHeader, err := c.FormFile("artifact")
	if err != nil {
		AbortWithError(c, newValidationError("artifact", "required", "artifact file is required"))
		return
	}
	if fileHeader.Size > s.cfg.MaxUploadBytes {
		AbortWithError(c, itemdomain.ErrArtifactTooBig)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	c.Set("item_code", code)

	created, err := s.itemSvc.Create(c.Request.Context(), itemdomain.CreateRequest{
		Code:         code,
		Name:         name,
		Category:     strings.TrimSpace(c.PostForm("category")),
		ArtifactType: artifactType,
		Artifact:     file,
		ArtifactSize: fileHeader.Size,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"id":     created.ID,
		"code":   created.Code,
		"name":   created.Name,
		"status": created.Status,
	})
}

func (s *Server) ListItems(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.itemSvc.List(c.Request.Context(), companyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) GetItemByID(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	itemID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, itemdomain.ErrNotFound)
		return
	}

	found, err := s.itemSvc.Get(c.Request.Context(), companyID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, found)
}

func (s *Server) GetItemStatus(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	itemID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, itemdomain.ErrNotFound)
		return
	}

	status, err := s.itemSvc.GetStatus(c.Request.Context(), companyID, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) DeleteItem(c *gin.Context) {
	companyID, ok := companyIDFromRequest(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	itemID, err := parseSnowflakeParam(c, "id")
	if err != nil {
		AbortWithError(c, itemdomain.ErrNotFound)
		return
	}

	if err := s.itemSvc.Delete(c.Request.Context(), companyID, itemID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseSnowflakeParam(c *gin.Context, name string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(c.Param(name)))
}
