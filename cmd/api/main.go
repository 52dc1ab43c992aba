package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joselopes-lab/brokerdesk/config"
	"github.com/joselopes-lab/brokerdesk/pkg/api"
	"github.com/joselopes-lab/brokerdesk/pkg/container"
	custommiddleware "github.com/joselopes-lab/brokerdesk/pkg/middleware"
)

func main() {
	cfg := config.Load()
	log.Printf("Configuration loaded (environment: %s)", cfg.APIEnvironment)

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	}

	c, err := container.New(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer c.Close()

	if err := c.Cron.Start(cfg.StatsSnapshotSchedule); err != nil {
		log.Fatalf("Failed to start cron jobs: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()

	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	publicRateLimiter := custommiddleware.NewRateLimiter(cfg.PublicRateLimitPerMinute, cfg.PublicRateLimitBurst)

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogError:  true,
		LogValuesFunc: func(ec echo.Context, v middleware.RequestLoggerValues) error {
			c.Logger.Info("request",
				"method", ec.Request().Method,
				"uri", v.URI,
				"status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	e.Use(c.Metrics.Middleware())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORSAllowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowCredentials: true,
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
		},
	}))

	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())
	e.Use(globalRateLimiter.RateLimitMiddleware())

	// Health and metrics (public)
	e.GET("/health", func(ec echo.Context) error {
		ctx, cancel := context.WithTimeout(ec.Request().Context(), 2*time.Second)
		defer cancel()

		dbStatus := "up"
		if err := c.Store.Ping(ctx); err != nil {
			dbStatus = "down"
		}

		cacheStatus := "up"
		if _, err := c.Cache.Exists(ctx, "health_check"); err != nil {
			cacheStatus = "down"
		}

		status := http.StatusOK
		overall := "healthy"
		if dbStatus == "down" || cacheStatus == "down" {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
		}

		return ec.JSON(status, map[string]any{
			"status":   overall,
			"database": dbStatus,
			"cache":    cacheStatus,
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	// Public lead capture, rate limited harder than the rest of the API
	v1.POST("/public/leads", c.PublicHandler.CaptureLead, publicRateLimiter.RateLimitMiddleware())

	// Broker routes (require JWT)
	protected := v1.Group("")
	protected.Use(custommiddleware.BrokerAuth(cfg.JWTSecret))
	{
		protected.GET("/pipeline", c.PipelineHandler.Get)
		protected.PUT("/pipeline", c.PipelineHandler.Save)

		leadsGroup := protected.Group("/leads")
		{
			leadsGroup.GET("", c.LeadHandler.Board)
			leadsGroup.POST("", c.LeadHandler.Create)
			leadsGroup.POST("/:id/move", c.LeadHandler.Move)
			leadsGroup.GET("/:id/history", c.LeadHandler.History)
		}
	}

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	c.Logger.Info("API starting",
		"address", address,
		"rate_limit_per_minute", cfg.RateLimitRequestsPerMinute,
		"public_rate_limit_per_minute", cfg.PublicRateLimitPerMinute,
		"stats_schedule", cfg.StatsSnapshotSchedule)

	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	c.Logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	c.Logger.Info("Server stopped")
}
