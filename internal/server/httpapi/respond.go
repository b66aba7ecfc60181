package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"uplink/internal/common"
)

// respondError maps sentinel errors onto the HTTP taxonomy: 404 unknown
// link/file, 403 inactive/expired link, 401 bad secret/token, 400 validation,
// 409 conflicts, 202 accepted-but-not-ready, 500 for upstream and unknown
// failures.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrLinkInactive), errors.Is(err, common.ErrLinkExpired):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrorValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrorAlreadyExists), errors.Is(err, common.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, common.ErrNotReady):
		c.JSON(http.StatusAccepted, gin.H{"status": "processing", "error": err.Error()})
	default:
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
