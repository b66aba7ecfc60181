package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"uplink/internal/server/models"
	"uplink/internal/server/services"
)

func (s *Server) handleValidateLink(c *gin.Context) {
	link, err := s.links.Validate(c.Request.Context(), c.Param("linkId"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"clientName":  link.ClientName,
		"projectName": link.ProjectName,
	})
}

type presignRequest struct {
	LinkID   string `json:"linkId" binding:"required"`
	FileName string `json:"fileName" binding:"required"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	Strategy string `json:"strategy"`
}

func (s *Server) handlePresign(c *gin.Context) {
	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.upload.Presign(c.Request.Context(), req.LinkID, req.FileName, req.FileType, req.FileSize, services.UploadStrategy(req.Strategy))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type presignBatchRequest struct {
	LinkID string `json:"linkId" binding:"required"`
	Count  int    `json:"count" binding:"required"`
}

func (s *Server) handlePresignBatch(c *gin.Context) {
	var req presignBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	urls, err := s.upload.PresignBatch(c.Request.Context(), req.LinkID, req.Count)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

type multipartInitRequest struct {
	LinkID   string `json:"linkId" binding:"required"`
	FileName string `json:"fileName" binding:"required"`
	FileType string `json:"fileType"`
}

func (s *Server) handleMultipartInit(c *gin.Context) {
	var req multipartInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.upload.InitMultipart(c.Request.Context(), req.LinkID, req.FileName, req.FileType)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type multipartPartsRequest struct {
	LinkID      string  `json:"linkId" binding:"required"`
	UploadID    string  `json:"uploadId" binding:"required"`
	StorageKey  string  `json:"storageKey"`
	PartNumbers []int32 `json:"partNumbers" binding:"required"`
}

func (s *Server) handleMultipartParts(c *gin.Context) {
	var req multipartPartsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	urls, err := s.upload.PartURLs(c.Request.Context(), req.LinkID, req.UploadID, req.StorageKey, req.PartNumbers)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

type multipartCompleteRequest struct {
	LinkID     string        `json:"linkId" binding:"required"`
	UploadID   string        `json:"uploadId" binding:"required"`
	StorageKey string        `json:"storageKey"`
	Parts      []models.Part `json:"parts" binding:"required"`
}

func (s *Server) handleMultipartComplete(c *gin.Context) {
	var req multipartCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	location, err := s.upload.Complete(c.Request.Context(), req.LinkID, req.UploadID, req.StorageKey, req.Parts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": location})
}

type registerRequest struct {
	LinkID     string `json:"linkId" binding:"required"`
	FileName   string `json:"fileName" binding:"required"`
	FileType   string `json:"fileType"`
	FileSize   int64  `json:"fileSize"`
	StorageKey string `json:"storageKey" binding:"required"`
	AssetFlow  bool   `json:"assetFlow"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := s.files.Register(c.Request.Context(), services.RegisterInput{
		LinkID:     req.LinkID,
		FileName:   req.FileName,
		FileType:   req.FileType,
		FileSize:   req.FileSize,
		StorageKey: req.StorageKey,
		AssetFlow:  req.AssetFlow,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, file)
}

func (s *Server) handleGetFile(c *gin.Context) {
	file, err := s.files.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (s *Server) handleBulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results := s.files.BulkDelete(c.Request.Context(), req.IDs)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type transcodeRequest struct {
	Qualities []string `json:"qualities"`
}

func (s *Server) handleStartTranscode(c *gin.Context) {
	var req transcodeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	jobID, started, err := s.files.StartTranscode(c.Request.Context(), c.Param("id"), req.Qualities)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !started {
		c.JSON(http.StatusConflict, gin.H{"error": "a transcode is already in flight"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

func (s *Server) handlePlayback(c *gin.Context) {
	hint := services.PlaybackHint{
		Quality:        c.Query("quality"),
		ConnectionType: c.Query("connectionType"),
	}
	if v := c.Query("connectionSpeed"); v != "" {
		speed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "connectionSpeed must be a number"})
			return
		}
		hint.ConnectionSpeed = speed
	}
	if v := c.Query("clientWidth"); v != "" {
		width, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "clientWidth must be an integer"})
			return
		}
		hint.ClientWidth = width
	}

	res, err := s.playback.Resolve(c.Request.Context(), c.Param("id"), hint)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
