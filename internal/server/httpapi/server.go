// Package httpapi exposes the Uplink REST surface: the public upload
// endpoints gated by upload-link tokens, the webhook ingest endpoint gated by
// a shared secret, and the admin-lite endpoints gated by the admin token.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"uplink/internal/logging"
	sc "uplink/internal/server/config"
	"uplink/internal/server/models"
	"uplink/internal/server/services"
)

// LinkService is the slice of the link registry the handlers use.
type LinkService interface {
	Validate(ctx context.Context, linkID string) (*models.UploadLink, error)
	Create(ctx context.Context, clientName, projectName, createdBy string, expiresAt *time.Time) (*models.UploadLink, error)
	Get(ctx context.Context, linkID string) (*models.UploadLink, error)
	List(ctx context.Context) ([]*models.UploadLink, error)
	Deactivate(ctx context.Context, linkID string) error
	Delete(ctx context.Context, linkID string) error
}

// UploadService is the slice of the upload coordinator the handlers use.
type UploadService interface {
	Presign(ctx context.Context, linkID, fileName, fileType string, fileSize int64, requested services.UploadStrategy) (*services.PresignResult, error)
	PresignBatch(ctx context.Context, linkID string, count int) ([]services.PresignResult, error)
	InitMultipart(ctx context.Context, linkID, fileName, fileType string) (*services.PresignResult, error)
	PartURLs(ctx context.Context, linkID, uploadID, storageKey string, partNumbers []int32) ([]services.PartURL, error)
	Complete(ctx context.Context, linkID, uploadID, storageKey string, parts []models.Part) (string, error)
}

// FileService is the slice of the file reconciler the handlers use.
type FileService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.File, error)
	Get(ctx context.Context, id string) (*models.File, error)
	ListByLink(ctx context.Context, linkID string) ([]*models.File, error)
	BulkDelete(ctx context.Context, ids []string) []services.DeleteResult
	StartTranscode(ctx context.Context, fileID string, qualities []string) (string, bool, error)
}

// PlaybackService resolves adaptive playback requests.
type PlaybackService interface {
	Resolve(ctx context.Context, fileID string, hint services.PlaybackHint) (*services.PlaybackResult, error)
}

// WebhookService ingests downstream events.
type WebhookService interface {
	Handle(ctx context.Context, secret, eventType string, data json.RawMessage) (bool, error)
}

// HealthChecker reports reachability of one storage account.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Streamer presigns playback of originals for stream-token holders.
type Streamer interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Server wires the services into a gin router.
type Server struct {
	cfg    *sc.Config
	router *gin.Engine
	db     *sql.DB
	logger logging.Logger

	links    LinkService
	upload   UploadService
	files    FileService
	playback PlaybackService
	webhook  WebhookService

	edge    HealthChecker
	archive HealthChecker
	stream  Streamer

	httpSrv *http.Server
}

// Options carries the Server's collaborators.
type Options struct {
	Config   *sc.Config
	DB       *sql.DB
	Logger   logging.Logger
	Links    LinkService
	Upload   UploadService
	Files    FileService
	Playback PlaybackService
	Webhook  WebhookService
	Edge     HealthChecker
	Archive  HealthChecker
	Stream   Streamer
}

func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:      opts.Config,
		router:   router,
		db:       opts.DB,
		logger:   opts.Logger.With("module", "httpapi"),
		links:    opts.Links,
		upload:   opts.Upload,
		files:    opts.Files,
		playback: opts.Playback,
		webhook:  opts.Webhook,
		edge:     opts.Edge,
		archive:  opts.Archive,
		stream:   opts.Stream,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")

	api.GET("/links/:linkId/validate", s.handleValidateLink)

	upload := api.Group("/upload")
	upload.POST("/presign", s.handlePresign)
	upload.POST("/presign-batch", s.handlePresignBatch)
	upload.POST("/multipart/init", s.handleMultipartInit)
	upload.POST("/multipart/parts", s.handleMultipartParts)
	upload.POST("/multipart/complete", s.handleMultipartComplete)
	upload.POST("/register", s.handleRegister)

	api.GET("/files/:id", s.handleGetFile)
	api.DELETE("/files", s.handleBulkDelete)
	api.POST("/files/:id/transcode", s.handleStartTranscode)

	api.GET("/playback/:id", s.handlePlayback)
	api.GET("/stream/:token", s.handleStream)

	api.POST("/webhooks/transcode", s.handleWebhook)

	admin := api.Group("", s.requireAdminToken)
	admin.POST("/links", s.handleCreateLink)
	admin.GET("/links", s.handleListLinks)
	admin.GET("/links/:linkId", s.handleGetLink)
	admin.POST("/links/:linkId/deactivate", s.handleDeactivateLink)
	admin.DELETE("/links/:linkId", s.handleDeleteLink)
	admin.GET("/links/:linkId/files", s.handleListLinkFiles)
	admin.GET("/files/:id/stream-token", s.handleStreamToken)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is cancelled, then drains with a short grace
// period.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.EndpointAddrHTTP,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.logger.Info(ctx, "http server listening", "addr", s.cfg.EndpointAddrHTTP)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{"db": "ok", "edge": "ok", "archive": "ok"}
	healthy := true

	if err := s.db.PingContext(ctx); err != nil {
		checks["db"] = err.Error()
		healthy = false
	}
	if err := s.edge.Health(ctx); err != nil {
		checks["edge"] = err.Error()
		healthy = false
	}
	if err := s.archive.Health(ctx); err != nil {
		checks["archive"] = err.Error()
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, checks)
}
