// Package main runs the Pitchside API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitchside/backend/config"
	"github.com/pitchside/backend/internal/apikeys"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/auth"
	"github.com/pitchside/backend/internal/grassroots"
	"github.com/pitchside/backend/internal/mappings"
	"github.com/pitchside/backend/internal/middleware"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/internal/organizations"
	"github.com/pitchside/backend/internal/realtime"
	"github.com/pitchside/backend/internal/sports"
	"github.com/pitchside/backend/pkg/database"
	"github.com/pitchside/backend/pkg/redis"
	"github.com/pitchside/backend/pkg/response"
	"github.com/pitchside/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Logo uploads are disabled when no bucket is configured.
	var logos grassroots.LogoSigner
	if cfg.AWS.LogosBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			LogosBucket:          cfg.AWS.LogosBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			logos = s3Client
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewHTTPMetrics(reg)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub, pubsub)
	defer hub.Close()

	// Auth
	authRepo := auth.NewRepository(pool, pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Organizations and partner verification
	orgRepo := organizations.NewRepository(pool, pool)
	orgHandler := organizations.NewHandler(organizations.NewService(orgRepo, logger), logger)

	// Partner API keys
	keyService := apikeys.NewService(apikeys.NewRepository(pool, pool), apikeys.Defaults{
		PerMinute: cfg.APIKeys.DefaultPerMinute,
		PerDay:    cfg.APIKeys.DefaultPerDay,
	}, logger)
	keyHandler := apikeys.NewHandler(keyService, logger)

	// Sports directory
	sportsRepo := sports.NewRepository(pool)
	sportsHandler := sports.NewHandler(sportsRepo, logger)
	dataHandler := apikeys.NewDataHandler(sportsRepo, logger)

	// Grassroots submissions
	grassrootsService := grassroots.NewService(grassroots.NewRepository(pool, pool), hub, logos,
		grassroots.NewMetrics(reg), logger)
	grassrootsHandler := grassroots.NewHandler(grassrootsService, logger)

	// Provider mappings
	mappingHandler := mappings.NewHandler(mappings.NewService(mappings.NewRepository(pool, pool), logger), logger)

	auditHandler := audit.NewHandler(audit.NewRepository(pool), logger)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	stopSweep := make(chan struct{})
	go limiter.Run(stopSweep)
	defer close(stopSweep)

	origins := cfg.Server.CORSOrigins()
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(origins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(httpMetrics))
	router.Use(middleware.ResolveAccess(jwtService, authRepo, orgRepo, logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Auth (public, rate limited per IP)
	authGroup := router.Group("/auth", middleware.RateLimit(limiter))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	sportsHandler.Register(router.Group("/sports", middleware.RateLimit(limiter)))

	me := router.Group("/me", middleware.RequireAuth())
	{
		me.GET("", authHandler.Me)
		me.POST("/plan", authHandler.ChangePlan)
	}

	// Grassroots (paid plans)
	grassrootsHandler.Register(router.Group("/grassroots", middleware.RequireAuth(), middleware.RequireGrassrootsAccess()))

	// Partner organizations
	partner := router.Group("/partner/organizations", middleware.RequireAuth())
	{
		viewer := organizations.RequireOrgAccess(orgRepo, models.OrgRoleViewer, logger)
		admin := organizations.RequireOrgAccess(orgRepo, models.OrgRoleAdmin, logger)
		owner := organizations.RequireOrgAccess(orgRepo, models.OrgRoleOwner, logger)

		partner.POST("", middleware.RequirePlan(models.PlanPartner), orgHandler.CreateOrganization)
		partner.GET("", orgHandler.ListMyOrganizations)
		partner.GET("/:orgId", viewer, orgHandler.GetOrganization)
		partner.PATCH("/:orgId", admin, orgHandler.UpdateOrganization)
		partner.DELETE("/:orgId", owner, orgHandler.DeleteOrganization)
		partner.POST("/:orgId/verification", owner, orgHandler.RequestVerification)
		partner.GET("/:orgId/members", viewer, orgHandler.ListMembers)
		partner.POST("/:orgId/members", admin, orgHandler.AddMember)
		partner.PATCH("/:orgId/members/:userId", admin, orgHandler.ChangeMemberRole)
		partner.DELETE("/:orgId/members/:userId", admin, orgHandler.RemoveMember)

		partner.POST("/:orgId/api-keys", owner, keyHandler.Create)
		partner.GET("/:orgId/api-keys", admin, keyHandler.List)
		partner.DELETE("/:orgId/api-keys/:keyId", admin, keyHandler.Revoke)
	}

	// Moderation
	adminGroup := router.Group("/admin", middleware.RequireAuth(), middleware.RequireModerator())
	{
		grassrootsHandler.RegisterModeration(adminGroup.Group("/grassroots"))
		mappingHandler.Register(adminGroup)

		adminGroup.GET("/organizations", orgHandler.ListForModeration)
		adminGroup.POST("/organizations/:orgId/verify", orgHandler.Verify)
		adminGroup.POST("/organizations/:orgId/reject", orgHandler.Reject)
		adminGroup.GET("/audit-logs", auditHandler.List)
		adminGroup.GET("/ws", realtime.ServeWs(hub, origins, logger))
	}

	// Partner data API (X-API-Key)
	dataHandler.Register(router.Group("/api/v1",
		apikeys.RequireAPIKey(keyService, apikeys.NewQuota(rdb.Client), models.ScopeRead, logger)))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
