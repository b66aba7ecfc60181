// Package server initializes and runs the Uplink server: it opens the
// database, runs migrations, builds the object storage clients and services,
// starts the HTTP endpoint and the multipart sweep, and handles graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"uplink/internal/logging"
	"uplink/internal/server/config"
	"uplink/internal/server/httpapi"
	"uplink/internal/server/notify"
	"uplink/internal/server/objstore"
	"uplink/internal/server/repositories/repomanager"
	"uplink/internal/server/services"
	"uplink/internal/server/transcode"
)

type App struct {
	config *config.Config
	logger logging.Logger

	db      *sql.DB
	edge    *objstore.Client
	archive *objstore.Client

	uploadService *services.UploadService
	httpServer    *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	edge, err := objstore.NewClient(ctx, cfg.EdgeS3)
	if err != nil {
		return nil, fmt.Errorf("edge storage init error: %w", err)
	}
	archive, err := objstore.NewClient(ctx, cfg.ArchiveS3)
	if err != nil {
		return nil, fmt.Errorf("archive storage init error: %w", err)
	}

	transcoder := transcode.NewClient(cfg.TranscoderURL)
	notifier := notify.NewEmailNotifier(cfg.EmailProviderURL, cfg.EmailFrom, logger)

	linkService := services.NewLinkService(db, rm)
	uploadService := services.NewUploadService(db, rm, linkService, edge, cfg, logger)
	fileService := services.NewFileService(db, rm, linkService, edge, transcoder, notifier, cfg, logger)
	playbackService := services.NewPlaybackService(db, rm, fileService, edge, cfg, logger)
	webhookService := services.NewWebhookService(fileService, cfg, logger)

	httpServer := httpapi.NewServer(httpapi.Options{
		Config:   cfg,
		DB:       db,
		Logger:   logger,
		Links:    linkService,
		Upload:   uploadService,
		Files:    fileService,
		Playback: playbackService,
		Webhook:  webhookService,
		Edge:     edge,
		Archive:  archive,
		Stream:   edge,
	})

	return &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		edge:          edge,
		archive:       archive,
		uploadService: uploadService,
		httpServer:    httpServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// startSweep aborts stale multipart sessions on a fixed interval until the
// context is cancelled.
func (app *App) startSweep(ctx context.Context) {
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := app.uploadService.SweepStale(ctx); err != nil {
				app.logger.Error(ctx, "multipart sweep failed", "error", err)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startSweep(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
