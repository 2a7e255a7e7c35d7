package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/soypete/pedropost/pkg/config"
	"github.com/soypete/pedropost/pkg/content"
	"github.com/soypete/pedropost/pkg/database"
	"github.com/soypete/pedropost/pkg/ideas"
	"github.com/soypete/pedropost/pkg/llm"
	"github.com/soypete/pedropost/pkg/metrics"
	"github.com/soypete/pedropost/pkg/scheduler"
	"github.com/soypete/pedropost/pkg/social"
	"github.com/soypete/pedropost/pkg/storage"
	"github.com/soypete/pedropost/pkg/tokens"
	"github.com/soypete/pedropost/pkg/vision"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// bot holds everything a run needs so it can be torn down in one place.
type bot struct {
	pipeline *scheduler.Pipeline
	ledger   *ideas.Ledger
	llm      *llm.ServerClient
	db       *database.DB
}

func (b *bot) Close() {
	if b.llm != nil {
		b.llm.Close()
	}
	if b.db != nil {
		b.db.Close()
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	logger := newLogger(cfg.Debug.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	b, err := buildBot(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	logger.Info("Starting pedropost",
		"ideas_file", cfg.Ideas.File,
		"interval", b.pipeline.Interval().String(),
		"cron", cfg.Schedule.Cron,
		"once", once)

	// The metrics server and the ideas watcher live as long as the pipeline
	g, gctx := errgroup.WithContext(ctx)
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return serveMetrics(auxCtx, cfg.Metrics.Addr, logger)
		})
	}
	if !once {
		g.Go(func() error {
			if err := ideas.Watch(auxCtx, b.ledger, logger); err != nil {
				logger.Warn("Not watching ideas file", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stopAux()
		if once {
			_, err := b.pipeline.RunOnce(gctx)
			return err
		}
		return b.pipeline.RunForever(gctx)
	})

	err = g.Wait()

	// A signal during a cycle or a sleep is a clean shutdown
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// buildBot wires the ledger, synthesizer and publisher into a pipeline.
func buildBot(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*bot, error) {
	b := &bot{}

	ledger, err := ideas.Load(cfg.Ideas.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load ideas: %w", err)
	}
	b.ledger = ledger

	pipelineCfg := scheduler.Config{
		Interval: cfg.Interval(),
		Logger:   logger,
	}

	schedule, err := cfg.CronSchedule()
	if err != nil {
		return nil, err
	}
	if schedule != nil {
		pipelineCfg.Schedule = schedule
	}

	tokenStore, db, err := openTokenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if db != nil {
		b.db = db
		pipelineCfg.History = database.NewCycleStore(db.DB)
		logger.Debug("Recording cycle history in PostgreSQL")
	}

	client, err := llm.NewBackend(cfg, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.llm = client

	text, err := llm.NewTextBackend(cfg, client)
	if err != nil {
		b.Close()
		return nil, err
	}

	synth := content.NewSynthesizer(text, client, content.Config{
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
		ImageSize:   cfg.Provider.ImageSize,
	})

	images, err := storage.NewImageStorage(&storage.ImageStorageConfig{BasePath: cfg.Storage.BasePath})
	if err != nil {
		b.Close()
		return nil, err
	}

	if cfg.Storage.ArchiveGenerated {
		archive, err := openArchive(ctx, cfg, images)
		if err != nil {
			b.Close()
			return nil, err
		}
		if archive != nil {
			pipelineCfg.Archive = archive
		} else {
			logger.Warn("archive_generated needs storage.base_path or storage.s3.bucket, not archiving")
		}
	}

	processor := vision.NewImageProcessor(&vision.ImageProcessorConfig{
		MaxWidth:  cfg.Social.MaxImageWidth,
		MaxHeight: cfg.Social.MaxImageHeight,
		MaxBytes:  cfg.Social.MaxImageBytes,
	})

	httpClient, err := social.NewXHTTPClient(ctx, cfg.Social, cfg.SocialTimeout(), tokenStore, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	x := social.NewXClient(social.XClientConfig{
		BaseURL:    cfg.Social.BaseURL,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	publisher := social.NewPublisher(x, x, images, processor, logger)

	b.pipeline = scheduler.NewPipeline(ledger, synth, publisher, pipelineCfg)
	return b, nil
}

// openArchive prefers an S3 bucket over the local generated/ directory. It
// returns nil when neither is configured.
func openArchive(ctx context.Context, cfg *config.Config, images *storage.ImageStorage) (scheduler.ImageArchiver, error) {
	if s3cfg := cfg.Storage.S3; s3cfg.Bucket != "" {
		archive, err := storage.NewS3Archive(ctx, storage.S3ArchiveConfig{
			Bucket:   s3cfg.Bucket,
			Region:   s3cfg.Region,
			Endpoint: s3cfg.Endpoint,
			Prefix:   s3cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return archive, nil
	}
	if images.ArchiveEnabled() {
		return images, nil
	}
	return nil, nil
}

// openTokenStore keeps tokens in PostgreSQL when a database is configured
// and in the token file otherwise. The returned DB is nil without a database.
func openTokenStore(ctx context.Context, cfg *config.Config) (tokens.Store, *database.DB, error) {
	if cfg.Database.URL == "" {
		return tokens.NewFileStore(cfg.Social.TokenFile), nil, nil
	}

	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return tokens.NewPostgresStore(db.DB), db, nil
}

// serveMetrics exposes /metrics until ctx is done. A listener that cannot
// start is an error.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to stop metrics server", "error", err)
		}
		return nil
	}
}
