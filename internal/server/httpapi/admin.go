package httpapi

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"uplink/internal/server/auth"
)

// requireAdminToken gates the admin-lite surface behind the shared token.
func (s *Server) requireAdminToken(c *gin.Context) {
	token := c.GetHeader("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

type createLinkRequest struct {
	ClientName  string     `json:"clientName" binding:"required"`
	ProjectName string     `json:"projectName" binding:"required"`
	CreatedBy   string     `json:"createdBy"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

func (s *Server) handleCreateLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link, err := s.links.Create(c.Request.Context(), req.ClientName, req.ProjectName, req.CreatedBy, req.ExpiresAt)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

func (s *Server) handleListLinks(c *gin.Context) {
	links, err := s.links.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}

func (s *Server) handleGetLink(c *gin.Context) {
	link, err := s.links.Get(c.Request.Context(), c.Param("linkId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (s *Server) handleDeactivateLink(c *gin.Context) {
	if err := s.links.Deactivate(c.Request.Context(), c.Param("linkId")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteLink(c *gin.Context) {
	if err := s.links.Delete(c.Request.Context(), c.Param("linkId")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListLinkFiles(c *gin.Context) {
	files, err := s.files.ListByLink(c.Request.Context(), c.Param("linkId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

// handleStreamToken mints a time-boxed JWT granting playback of one file,
// shareable without the admin token.
func (s *Server) handleStreamToken(c *gin.Context) {
	file, err := s.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	token, err := auth.GenerateStreamToken(file.ID, []byte(s.cfg.SecretKey), s.cfg.StreamURLValidityDuration)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int64(s.cfg.StreamURLValidityDuration.Seconds()),
	})
}

// handleStream exchanges a stream token for a presigned GET of the original.
func (s *Server) handleStream(c *gin.Context) {
	fileID, err := auth.GetFileIDFromToken(c.Param("token"), []byte(s.cfg.SecretKey))
	if err != nil {
		s.respondError(c, err)
		return
	}

	file, err := s.files.Get(c.Request.Context(), fileID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	url, err := s.stream.PresignGet(c.Request.Context(), file.StorageKey, s.cfg.StreamURLValidityDuration)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"streamUrl": url})
}
