package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"movement-analysis/config"
	"movement-analysis/constant"
	"movement-analysis/handler"
	"movement-analysis/pkg/cv"
	"movement-analysis/pkg/rabbitmq"
	"movement-analysis/pkg/storage"
	"movement-analysis/repository"
	"movement-analysis/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 30 * time.Second

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(LoggerContext(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Env() == constant.EnvironmentProduction).Send()
	if cfg.App.Env() == constant.EnvironmentProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := storage.NewLocal(cfg.Storage.UploadDir)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Str("dir", cfg.Storage.UploadDir).Msg("NewLocal")
	}

	analyzer, err := NewAnalyzer(cfg)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Str("model", cfg.Pose.ModelPath).Msg("NewAnalyzer")
	}

	deps, closeDeps := newDependencies(ctx, cfg)
	defer closeDeps()

	svc := service.NewService(store, analyzer, deps)

	r, err := newRouter(ctx, cfg, svc)
	if err != nil {
		zerolog.Ctx(ctx).Fatal().Err(err).Msg("newRouter")
	}

	srv := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("addr", srv.Addr).Msg("start http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
			cancel()
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

// NewAnalyzer builds the OpenCV-backed analyzer described by cfg.
func NewAnalyzer(cfg *config.Config) (service.Analyzer, error) {
	backend, err := cv.NewBackend(cfg.Pose.ModelPath, cv.ModelConfig{
		InputSize:       cfg.Pose.InputSize,
		LandmarksOutput: cfg.Pose.LandmarksOutput,
		FlagOutput:      cfg.Pose.FlagOutput,
	}, cfg.Analysis.Codec)
	if err != nil {
		return nil, err
	}
	return service.NewAnalyzer(backend, service.AnalyzerConfigFrom(cfg)), nil
}

// newDependencies connects the optional sinks. A sink that cannot be reached
// is logged and left out; uploads keep working without it.
func newDependencies(ctx context.Context, cfg *config.Config) (service.Dependencies, func()) {
	var deps service.Dependencies
	closers := make([]func(), 0, 2)

	if cfg.DB != nil {
		repo, err := repository.NewRepo(cfg.DB, cfg.App.Env())
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRepo")
		} else if err := repo.Migrate(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("Migrate")
		} else {
			deps.Repo = repo
			closers = append(closers, func() {
				if err := cfg.DB.Close(); err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close database")
				}
			})
		}
	}

	if cfg.Objects != nil {
		mirror := storage.NewMinioMirror(cfg.Objects, cfg.MinIO.Bucket)
		if err := mirror.EnsureBucket(ctx); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("bucket", cfg.MinIO.Bucket).Msg("EnsureBucket")
		} else {
			deps.Mirror = mirror
		}
	}

	if cfg.Queue != nil && cfg.Queue.Enabled {
		conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		} else if publisher, err := rabbitmq.NewPublisher(ctx, conn, cfg.Queue); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("NewPublisher")
		} else {
			deps.Publisher = publisher
			closers = append(closers, func() {
				if err := publisher.Close(); err != nil && !conn.IsClosed() {
					zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close publisher")
				}
			})
		}
	}

	return deps, func() {
		for _, c := range closers {
			c()
		}
	}
}

func newRouter(ctx context.Context, cfg *config.Config, svc service.Service) (*gin.Engine, error) {
	r := gin.Default()
	r.Use(requestLogger(zerolog.Ctx(ctx)))

	corsHandler, restricted, err := corsMiddleware(cfg.CorsMarkerPath(), cfg.Cors.LocalOrigin)
	if err != nil {
		return nil, fmt.Errorf("check cors marker: %w", err)
	}
	zerolog.Ctx(ctx).Info().Bool("restricted", restricted).Str("marker", cfg.CorsMarkerPath()).Msg("cors configured")
	r.Use(corsHandler)

	addHealth(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static(cfg.Storage.PublicPrefix, cfg.Storage.UploadDir)
	r.POST("/upload", handler.Upload(svc))

	return r, nil
}

// requestLogger makes the process logger available through the request
// context, so zerolog.Ctx works in handlers and services.
func requestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logger.With().Str("method", c.Request.Method).Str("path", c.Request.URL.Path).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

// LoggerContext returns a background context carrying the process logger.
func LoggerContext(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Env() == constant.EnvironmentDevelop {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
