package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/abishek-bhat/AuthentiChain-Application/internal/bootstrap"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/config"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/health"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/identity"
	"github.com/abishek-bhat/AuthentiChain-Application/internal/registry/handler"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	cfgFile := pflag.StringP("config", "c", "", "path to config file (default: configs/ledgerd.yaml)")
	pflag.Parse()

	cfg, err := config.Load(viper.GetViper(), *cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ledgerd:", err)
		os.Exit(1)
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ledgerd: build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Stores ───────────────────────────────────────────────────────────────
	app, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	// ── Integrity audits ─────────────────────────────────────────────────────
	auditor := health.New(app.Ledger, health.Config{Interval: cfg.Ledger.AuditInterval}, logger.Named("audit"))
	auditor.SetMetricsRecord(handler.RecordIntegrityCheck)
	if auditor.Check(ctx) {
		logger.Info("ledger verified",
			zap.Int("blocks", app.Ledger.Len(ctx)),
			zap.String("root", app.Ledger.Root(ctx)),
		)
	}
	handler.SetBlocksGauge(app.Ledger.Len(ctx))
	if cfg.Ledger.AuditInterval > 0 {
		go auditor.Start(ctx)
	}

	// ── Session tokens ───────────────────────────────────────────────────────
	secret := []byte(cfg.Auth.TokenSecret)
	if len(secret) == 0 {
		secret, err = identity.RandomSecret()
		if err != nil {
			return err
		}
		logger.Warn("auth.token_secret not set; sessions will not survive a restart")
	}
	tokens, err := identity.NewTokenIssuer(secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token issuer: %w", err)
	}

	// ── Router ───────────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(ctx, cfg, app, tokens, auditor, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledgerd HTTP listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down ledgerd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("ledgerd stopped")
	return nil
}

// newRouter assembles the middleware chain and mounts every route.
func newRouter(ctx context.Context, cfg *config.Config, app *bootstrap.App,
	tokens *identity.TokenIssuer, auditor *health.Auditor, logger *zap.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	// First, so that every response, rejections included, carries an
	// X-Request-ID and is logged.
	router.Use(requestLogger(logger))

	// CORS
	corsConfig := cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(cfg.Server.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit; barcode uploads are multipart images.
	maxBody := cfg.Server.MaxUploadBytes
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		c.Next()
	})

	router.Use(handler.RateLimiter(ctx, cfg.Server.RateLimitRPS, int(cfg.Server.RateLimitRPS*2)))
	router.Use(handler.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		st := auditor.Status()
		if !st.Healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "ledger": st})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ledger": st})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewAuthHandler(app.Service, tokens, logger).Register(v1)
	handler.NewProductHandler(app.Service, tokens, logger).Register(v1)
	handler.NewLedgerHandler(app.Service, logger).Register(v1)

	return router
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that tags each request with an
// X-Request-ID and logs it with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)
		c.Next()
		logger.Info("request",
			zap.String("request_id", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
