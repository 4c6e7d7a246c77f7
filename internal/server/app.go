// Package server builds the application's dependencies from configuration and runs the
// long-lived entry points.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/loan-rate-crawler/internal/api"
	"github.com/JakeFAU/loan-rate-crawler/internal/clock/system"
	"github.com/JakeFAU/loan-rate-crawler/internal/config"
	collyfetcher "github.com/JakeFAU/loan-rate-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/loan-rate-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/loan-rate-crawler/internal/fetcher/promote"
	"github.com/JakeFAU/loan-rate-crawler/internal/forwarder"
	"github.com/JakeFAU/loan-rate-crawler/internal/hash/sha256"
	"github.com/JakeFAU/loan-rate-crawler/internal/headless/detector"
	"github.com/JakeFAU/loan-rate-crawler/internal/id/uuid"
	"github.com/JakeFAU/loan-rate-crawler/internal/listener"
	"github.com/JakeFAU/loan-rate-crawler/internal/loan"
	"github.com/JakeFAU/loan-rate-crawler/internal/logging"
	memorypublisher "github.com/JakeFAU/loan-rate-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/loan-rate-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/loan-rate-crawler/internal/scraper"
	gcsstorage "github.com/JakeFAU/loan-rate-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/loan-rate-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/loan-rate-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/loan-rate-crawler/internal/storage/postgres"
	s3storage "github.com/JakeFAU/loan-rate-crawler/internal/storage/s3"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	blobs        loan.BlobStore
	gcs          *gcsstorage.BlobStore
	records      *pgstore.RecordStore
	pubsubClient *pubsub.Client
	publisher    loan.Publisher
	gcpPublisher *gcppublisher.Publisher
	headless     *headlessfetcher.Fetcher
	pipeline     *scraper.Pipeline
	forwarder    *forwarder.Forwarder
}

// Build creates the application's dependencies. Partially built apps are closed on error.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}

	logger.Info("building application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("scrape_url", cfg.Scraper.URL),
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.Bool("headless", cfg.Headless.Enabled),
		logging.Secret("webhook_url", cfg.Forwarder.WebhookURL),
	)

	steps := []func(context.Context) error{
		app.setupStorage,
		app.setupDatabase,
		app.setupPublisher,
		func(context.Context) error { return app.setupPipeline() },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			app.closeInfrastructure()
			return nil, err
		}
	}

	app.forwarder = forwarder.New(forwarder.Config{
		WebhookURL: cfg.Forwarder.WebhookURL,
		Timeout:    cfg.ForwardTimeout(),
	}, logger.Named("forwarder"))
	if cfg.Forwarder.WebhookURL == "" {
		logger.Warn("no webhook configured, storage events will be answered with an error")
	}
	return app, nil
}

// Scraper returns the configured pipeline.
func (a *App) Scraper() *scraper.Pipeline {
	return a.pipeline
}

// Forwarder returns the configured webhook forwarder.
func (a *App) Forwarder() *forwarder.Forwarder {
	return a.forwarder
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// APIServer builds the HTTP handler tree.
func (a *App) APIServer() (*api.Server, error) {
	readiness := map[string]api.ReadinessCheck{}
	if a.records != nil {
		readiness["postgres"] = a.records.Ping
	}
	srv, err := api.NewServer(api.Options{
		Scraper:   a.pipeline,
		Forwarder: a.forwarder,
		Upload: api.UploadOptions{
			Blobs:             a.blobs,
			Prefix:            a.cfg.Storage.UploadPrefix,
			FieldName:         a.cfg.Upload.FieldName,
			AllowedExtensions: normalizeExtensions(a.cfg.Upload.AllowedExtensions),
			MaxBytes:          a.cfg.Upload.MaxBytes,
			IDs:               uuid.NewRandom(),
			Hasher:            sha256.New(),
			Publisher:         a.publisher,
			Topic:             a.cfg.PubSub.TopicName,
		},
		Readiness: readiness,
	}, a.logger.Named("api"))
	if err != nil {
		return nil, fmt.Errorf("api server init failed: %w", err)
	}
	return srv, nil
}

// Serve runs the HTTP server until ctx is canceled, then drains it.
func (a *App) Serve(ctx context.Context) error {
	apiServer, err := a.APIServer()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Listen consumes the configured storage-notification subscription until ctx is canceled.
func (a *App) Listen(ctx context.Context) error {
	if a.pubsubClient == nil || a.cfg.PubSub.Subscription == "" {
		return fmt.Errorf("pubsub.project_id and pubsub.subscription are required to listen")
	}
	l, err := listener.New(
		a.pubsubClient.Subscriber(a.cfg.PubSub.Subscription),
		a.forwarder,
		a.logger.Named("listener").With(zap.String("subscription", a.cfg.PubSub.Subscription)),
	)
	if err != nil {
		return fmt.Errorf("listener init failed: %w", err)
	}
	return l.Run(ctx)
}

// Close gracefully shuts down the application.
func (a *App) Close() {
	a.closeInfrastructure()
	_ = a.logger.Sync()
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.records != nil {
		a.records.Close()
	}
}

func (a *App) setupStorage(ctx context.Context) error {
	storageCfg := a.cfg.Storage
	switch storageCfg.Provider {
	case config.StorageGCS:
		store, err := gcsstorage.New(ctx, gcsstorage.Config{Bucket: storageCfg.Bucket})
		if err != nil {
			return fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs = store
		a.blobs = store
		a.logger.Info("using GCS storage backend", zap.String("bucket", storageCfg.Bucket))
	case config.StorageS3:
		store, err := s3storage.New(ctx, s3storage.Config{
			Bucket:   storageCfg.Bucket,
			Region:   storageCfg.Region,
			Endpoint: storageCfg.Endpoint,
		})
		if err != nil {
			return fmt.Errorf("s3 blob store init failed: %w", err)
		}
		a.blobs = store
		a.logger.Info("using S3 storage backend",
			zap.String("bucket", storageCfg.Bucket),
			zap.String("region", storageCfg.Region),
			logging.Secret("aws_access_key_id", os.Getenv("AWS_ACCESS_KEY_ID")),
			logging.Secret("aws_secret_access_key", os.Getenv("AWS_SECRET_ACCESS_KEY")),
		)
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: storageCfg.BaseDir})
		if err != nil {
			return fmt.Errorf("local blob store init failed: %w", err)
		}
		a.blobs = store
		a.logger.Info("using local storage backend", zap.String("path", storageCfg.BaseDir))
	default:
		a.blobs = memorystorage.NewBlobStore()
		a.logger.Info("using in-memory storage backend")
	}
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, records will not be persisted")
		return nil
	}
	store, err := pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	}, uuid.New())
	if err != nil {
		return fmt.Errorf("record store init failed: %w", err)
	}
	a.records = store.WithLocation(a.cfg.Location())
	if a.cfg.DB.AutoMigrate {
		if err := a.records.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("record store migration failed: %w", err)
		}
	}
	a.logger.Info("record store initialized",
		zap.String("dsn", config.RedactDSN(a.cfg.DB.DSN)),
		zap.String("table", a.cfg.DB.Table),
	)
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub project configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		a.publisher = memorypublisher.New()
		return nil
	}
	a.gcpPublisher = gcppublisher.New(client, a.cfg.PubSub.TopicName)
	a.publisher = a.gcpPublisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupPipeline() error {
	fetcher, err := a.newFetcher()
	if err != nil {
		return err
	}
	sinks := scraper.Sinks{
		Blobs:          a.blobs,
		SnapshotPrefix: a.cfg.Storage.SnapshotPrefix,
		Publisher:      a.publisher,
		Topic:          a.cfg.PubSub.TopicName,
	}
	if a.records != nil {
		sinks.Records = a.records
	}
	a.pipeline, err = scraper.NewPipeline(scraper.Config{
		URL:     a.cfg.Scraper.URL,
		Source:  a.cfg.Scraper.Source,
		Timeout: a.cfg.FetchTimeout(),
	}, fetcher, system.NewInLocation(a.cfg.Location()), sinks, a.logger.Named("scraper"))
	if err != nil {
		return fmt.Errorf("scraper init failed: %w", err)
	}
	return nil
}

func (a *App) newFetcher() (loan.Fetcher, error) {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Scraper.UserAgent,
		RespectRobots: a.cfg.Scraper.RespectRobots,
		Timeout:       a.cfg.FetchTimeout(),
	})
	if !a.cfg.Headless.Enabled {
		a.logger.Info("using colly fetcher", zap.String("user_agent", a.cfg.Scraper.UserAgent))
		return probe, nil
	}

	headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       a.cfg.Headless.MaxParallel,
		UserAgent:         a.cfg.Scraper.UserAgent,
		NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	a.headless = headless

	if a.cfg.Headless.PromoteOnly {
		a.logger.Info("using colly fetcher with headless promotion",
			zap.Int("promotion_threshold", a.cfg.Headless.PromotionThresh))
		return promote.New(probe, headless, detector.NewHeuristic(a.cfg.Headless.PromotionThresh), a.logger.Named("fetcher")), nil
	}
	a.logger.Info("using headless fetcher", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	return headless, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
