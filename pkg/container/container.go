package container

import (
	"context"
	"time"

	"github.com/joselopes-lab/brokerdesk/config"
	"github.com/joselopes-lab/brokerdesk/pkg/api/handlers"
	"github.com/joselopes-lab/brokerdesk/pkg/cache"
	"github.com/joselopes-lab/brokerdesk/pkg/domain"
	"github.com/joselopes-lab/brokerdesk/pkg/jobs"
	"github.com/joselopes-lab/brokerdesk/pkg/leads"
	"github.com/joselopes-lab/brokerdesk/pkg/logger"
	"github.com/joselopes-lab/brokerdesk/pkg/metrics"
	"github.com/joselopes-lab/brokerdesk/pkg/notify"
	"github.com/joselopes-lab/brokerdesk/pkg/pipeline"
	"github.com/joselopes-lab/brokerdesk/pkg/routing"
	"github.com/joselopes-lab/brokerdesk/pkg/store"
	"github.com/joselopes-lab/brokerdesk/pkg/transition"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger logger.Logger

	// Infrastructure
	Store   *store.MongoStore
	Cache   domain.CacheRepository
	Metrics *metrics.Metrics

	// Services
	PipelineService   *pipeline.Service
	TransitionService *transition.Service
	RoutingService    *routing.Service
	LeadService       *leads.Service

	// Jobs
	Cron *jobs.CronManager

	// Handlers
	PipelineHandler *handlers.PipelineHandler
	LeadHandler     *handlers.LeadHandler
	PublicHandler   *handlers.PublicHandler
}

// New creates and initializes all application dependencies
func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: logger.New(cfg.LogLevel, cfg.LogFormat),
	}

	if err := c.initInfrastructure(); err != nil {
		return nil, err
	}

	c.initServices()
	c.initHandlers()

	c.Logger.Info("Container initialized successfully",
		"environment", cfg.APIEnvironment,
		"database", "connected",
		"cache", "connected")

	return c, nil
}

// initInfrastructure initializes database and cache connections
func (c *Container) initInfrastructure() error {
	var err error

	c.Store, err = store.NewMongoStore(c.Config.MongoURL, c.Config.MongoDBName)
	if err != nil {
		c.Logger.Error("Failed to connect to database", "error", err)
		return err
	}

	cacheClient, err := cache.NewClient(c.Config.RedisURL)
	if err != nil {
		c.Logger.Error("Failed to connect to cache", "error", err)
		return err
	}
	c.Cache = cacheClient

	c.Metrics = metrics.New()

	c.Logger.Info("Infrastructure initialized",
		"database", "connected",
		"cache", "connected")

	return nil
}

// initServices initializes all domain services
func (c *Container) initServices() {
	var notifier domain.NotificationSink
	if c.Config.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookSink(c.Config.NotifyWebhookURL)
	} else {
		notifier = notify.NewLogSink(c.Logger)
	}

	cacheTTL := time.Duration(c.Config.PipelineCacheTTLMinutes) * time.Minute

	c.PipelineService = pipeline.NewService(c.Store, c.Cache, c.Logger, cacheTTL)
	c.TransitionService = transition.NewService(c.Store, c.PipelineService, c.Logger)
	c.RoutingService = routing.NewService(c.Store, notifier, c.Logger, c.Config.DefaultPhoneRegion)
	c.LeadService = leads.NewService(c.Store, c.PipelineService, c.Logger, c.Config.DefaultPhoneRegion)

	c.Cron = jobs.NewCronManager(c.Store, c.Cache, c.Logger)

	c.Logger.Info("Services initialized",
		"pipeline_service", "ready",
		"transition_service", "ready",
		"routing_service", "ready",
		"lead_service", "ready")
}

// initHandlers initializes all HTTP handlers
func (c *Container) initHandlers() {
	c.PipelineHandler = handlers.NewPipelineHandler(c.PipelineService)
	c.LeadHandler = handlers.NewLeadHandler(c.LeadService, c.TransitionService, c.Metrics)
	c.PublicHandler = handlers.NewPublicHandler(c.RoutingService, c.Metrics)

	c.Logger.Info("Handlers initialized")
}

// Close closes all resources (database, cache connections)
func (c *Container) Close() error {
	c.Logger.Info("Shutting down container...")

	if c.Cron != nil {
		c.Cron.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.Store.Close(ctx); err != nil {
		c.Logger.Error("Failed to close database", "error", err)
		return err
	}

	if err := c.Cache.Close(); err != nil {
		c.Logger.Error("Failed to close cache", "error", err)
		return err
	}

	c.Logger.Info("Container shutdown complete")
	return nil
}
