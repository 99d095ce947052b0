package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/br0z1/social-media-app/internal/cache"
	"github.com/br0z1/social-media-app/internal/config"
	"github.com/br0z1/social-media-app/internal/database"
	"github.com/br0z1/social-media-app/internal/feed"
	"github.com/br0z1/social-media-app/internal/handlers"
	"github.com/br0z1/social-media-app/internal/logger"
	"github.com/br0z1/social-media-app/internal/metrics"
	"github.com/br0z1/social-media-app/internal/middleware"
	"github.com/br0z1/social-media-app/internal/repository"
	"github.com/br0z1/social-media-app/internal/storage"
	"github.com/br0z1/social-media-app/internal/telemetry"
	"github.com/br0z1/social-media-app/internal/validation"
)

const serviceName = "spheres-backend"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== Spheres server starting ===",
		zap.String("environment", cfg.Environment),
		zap.String("db_driver", cfg.Database.Driver),
	)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.FatalWithFields("Server exited with error", err)
	}
	logger.Log.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config) error {
	metrics.Initialize()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		Enabled:      cfg.Tracing.Enabled,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		logger.WarnWithFields("Tracing disabled: failed to initialize OTLP exporter", err)
	}

	// Post storage
	var repo repository.PostRepository
	dbReady := false
	if cfg.Database.Driver == config.DriverMemory {
		logger.Log.Warn("Using in-memory post store; posts are lost on restart")
		repo = repository.NewMemoryPostRepository()
	} else {
		if err := database.Initialize(cfg.Database, cfg.IsDevelopment()); err != nil {
			return err
		}
		defer database.Close()
		if err := database.Migrate(); err != nil {
			return err
		}
		repo = repository.NewPostRepository(database.DB)
		dbReady = true
	}

	var posts handlers.PostStore = repo
	var redisClient *cache.RedisClient
	if cfg.Redis.Host != "" {
		redisClient, err = cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
		if err != nil {
			logger.WarnWithFields("Redis unavailable, serving posts without cache", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
			posts = cache.NewPostCache(repo, redisClient, cfg.Redis.PostTTL)
		}
	}

	// Feed sessions
	managerCfg := feed.DefaultManagerConfig()
	managerCfg.OnNoMorePosts = func(sessionID string) {
		logger.Log.Info("Feed session ran out of posts", logger.WithSessionID(sessionID))
	}
	sampler := feed.NewSampler(repo)
	sessions := feed.NewRegistry(sampler, posts, managerCfg, cfg.SessionIdleTTL)
	sessions.Start()
	defer sessions.Stop()

	h := handlers.NewHandlers(posts, sessions)
	var uploader *storage.S3Uploader
	if cfg.Storage.Bucket != "" {
		uploader, err = storage.NewS3Uploader(ctx, cfg.Storage.Region, cfg.Storage.Bucket, cfg.Storage.CDNBaseURL)
		if err != nil {
			logger.WarnWithFields("Failed to initialize S3 uploader, media uploads disabled", err)
			uploader = nil
		} else {
			if err := uploader.CheckBucketAccess(ctx); err != nil {
				logger.WarnWithFields("S3 bucket access failed, media uploads may fail", err)
			}
			h.SetMediaUploader(uploader)
		}
	}

	validator := validation.NewServiceValidator(validation.RequiredFromEnv())
	validator.Register(validation.ServiceDatabase, func(context.Context) error {
		if !dbReady {
			return errors.New("no database configured")
		}
		return database.Health()
	})
	validator.Register(validation.ServiceRedis, func(ctx context.Context) error {
		if redisClient == nil {
			return errors.New("redis not configured or unreachable")
		}
		return redisClient.Ping(ctx)
	})
	validator.Register(validation.ServiceS3, func(ctx context.Context) error {
		if uploader == nil {
			return errors.New("s3 uploader not configured")
		}
		return uploader.CheckBucketAccess(ctx)
	})
	if err := validator.ValidateServices(ctx); err != nil {
		return err
	}

	// Rate limiting
	limiterCfg := middleware.DefaultRateLimitConfig()
	limiterCfg.RPS = cfg.RateLimitRPS
	limiterCfg.Burst = cfg.RateLimitBurst
	limiter := middleware.NewRateLimiter(limiterCfg)
	limiter.StartCleanup(ctx, time.Minute)
	uploadLimiter := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())
	uploadLimiter.StartCleanup(ctx, time.Minute)

	apiLimit := limiter.Middleware()
	if redisClient != nil {
		apiLimit = middleware.RedisRateLimitMiddleware(redisClient, int(cfg.RateLimitRPS*60), time.Minute, limiter)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	if tp != nil {
		r.Use(middleware.TracingMiddleware(serviceName)...)
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", handlers.SessionIDHeader, middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{handlers.SessionIDHeader, handlers.ExhaustedHeader, middleware.RequestIDHeader}
	r.Use(cors.New(corsConfig))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
			"sessions":  sessions.Len(),
		}
		if dbReady {
			if err := database.Health(); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body["database"] = err.Error()
			}
		}
		c.JSON(status, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(apiLimit)
	h.RegisterRoutes(api, uploadLimiter.Middleware())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if tp != nil {
			if terr := telemetry.Shutdown(shutdownCtx, tp); terr != nil {
				logger.WarnWithFields("Failed to flush traces", terr)
			}
		}
		return err
	})

	return g.Wait()
}
