package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ads-sync/domain/model"
	"ads-sync/domain/repository"
	"ads-sync/infrastructure/cache"
	"ads-sync/infrastructure/clients/googleads"
	"ads-sync/infrastructure/configuration"
	"ads-sync/infrastructure/logger"
	"ads-sync/infrastructure/persistence"
	"ads-sync/infrastructure/pubsub"
	"ads-sync/infrastructure/queue"
	"ads-sync/infrastructure/ratelimit"
	"ads-sync/infrastructure/realtime"
	"ads-sync/infrastructure/scheduler"
	"ads-sync/infrastructure/security"
	"ads-sync/infrastructure/servicebus"
	"ads-sync/infrastructure/worker"
	httpHandler "ads-sync/interfaces/http"
	"ads-sync/server"
	"ads-sync/usecase"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var httpServer *http.Server

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	cfg := configuration.C
	app := cfg.App

	psqlDb, err := persistence.NewPostgreSQLDB()
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Cannot connect to PostgreSQL")
		os.Exit(1)
	}
	defer psqlDb.Close()
	if err := persistence.RunMigrations(psqlDb); err != nil {
		logger.GetLogger().WithField("error", err).Error("Migration failed")
		os.Exit(1)
	}
	gormDb, err := persistence.NewGormDB(psqlDb)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Cannot initialise gorm")
		os.Exit(1)
	}

	mongoDb, err := persistence.NewMongoDb(ctx, cfg.Database.Mongo.MongoURI())
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB not available - continuing without sync run history")
		mongoDb = nil
	}
	if mongoDb != nil {
		defer func() { _ = mongoDb.Disconnect(context.Background()) }()
	}

	redisClient, err := cache.NewCache(
		ctx,
		fmt.Sprintf("%s:%s", cfg.RedisClient.Host, cfg.RedisClient.Port),
		cfg.RedisClient.Username,
		cfg.RedisClient.Password,
	)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Redis ping failed")
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.GetLogger().Info("Database and Redis connected.")

	cipher, err := security.NewCipher(cfg.Vault.Secret)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Cannot initialise credential cipher")
		os.Exit(1)
	}

	// Repositories
	connectionRepository := persistence.NewConnectionRepository(psqlDb)
	adAccountRepository := persistence.NewAdAccountRepository(gormDb)
	syncJobRepository := persistence.NewSyncJobRepository(gormDb)
	dimensionRepository := persistence.NewDimensionRepository(psqlDb)
	metricsFactRepository := persistence.NewMetricsFactRepository(psqlDb)
	syncLogRepository := persistence.NewSyncLogRepository(mongoDb, cfg.Database.Mongo.Name)
	aggregateCache := cache.NewAggregateCache(redisClient, cfg.Cache.Prefix)
	oauthStates := cache.NewOAuthStateStore(redisClient, cfg.Cache.Prefix+":oauth")

	jobQueue := queue.NewRedisQueue(redisClient, queue.Options{
		Prefix:           cfg.Queue.Prefix,
		Attempts:         cfg.Queue.Attempts,
		BackoffBase:      cfg.Queue.Backoff(),
		KeepCompleted:    cfg.Queue.KeepCompleted,
		KeepCompletedAge: time.Duration(cfg.Queue.KeepCompletedAgeHour) * time.Hour,
		KeepFailed:       cfg.Queue.KeepFailed,
		KeepFailedAge:    time.Duration(cfg.Queue.KeepFailedAgeHour) * time.Hour,
	})

	// Google Ads
	oauthProvider := googleads.NewOAuthProvider(googleads.OAuthConfig{
		ClientID:     cfg.GoogleAds.ClientID,
		ClientSecret: cfg.GoogleAds.ClientSecret,
		RedirectURL:  cfg.GoogleAds.RedirectURI,
		Scopes:       cfg.GoogleAds.Scopes,
	}, nil)
	vault := usecase.NewCredentialVault(connectionRepository, cipher, oauthProvider, 0)
	adsClient := googleads.NewClient(googleads.Config{
		BaseURL:         cfg.GoogleAds.BaseURL,
		APIVersion:      cfg.GoogleAds.APIVersion,
		DeveloperToken:  cfg.GoogleAds.DeveloperToken,
		LoginCustomerID: cfg.GoogleAds.LoginCustomerID,
		Timeout:         time.Duration(cfg.GoogleAds.TimeoutSeconds) * time.Second,
		MaxWait:         cfg.RateLimit.MaxWait(),
	}, newRateLimiter(redisClient, cfg.RateLimit), vault, nil)

	syncHub := realtime.NewSyncHub()
	publisher, closePublisher := newEventPublisher(ctx, cfg)
	defer closePublisher()

	// Usecases
	orchestrator := usecase.NewSyncOrchestrator(adAccountRepository, connectionRepository, syncJobRepository, jobQueue, syncLogRepository,
		usecase.OrchestratorOptions{
			InitialBackfillDays: cfg.Sync.InitialBackfillDays,
			ChunkDays:           cfg.Sync.ChunkDays,
			StaleAfter:          cfg.Sync.StaleAfter(),
			IntradayEnabled:     cfg.Sync.IntradayEnabled,
			EnqueueTimeout:      cfg.Queue.EnqueueTimeout(),
			Attempts:            cfg.Queue.Attempts,
			Backoff:             cfg.Queue.Backoff(),
		})
	reconciler := usecase.NewReconciler(dimensionRepository, metricsFactRepository)
	syncJobHandler := usecase.NewSyncJobHandler(adAccountRepository, syncJobRepository, adsClient, reconciler,
		aggregateCache, publisher, cfg.Sync.IncludeAdLevel)
	discoveryHandler := usecase.NewAccountDiscoveryHandler(connectionRepository, adAccountRepository, adsClient, orchestrator)
	connectionUsecase := usecase.NewConnectionUsecase(connectionRepository, adAccountRepository, syncJobRepository, oauthStates,
		oauthProvider, cipher, jobQueue, aggregateCache, usecase.ConnectionOptions{
			Provider: model.ProviderGoogleAds,
			Attempts: cfg.Queue.Attempts,
			Backoff:  cfg.Queue.Backoff(),
		})
	reportingUsecase := usecase.NewReportingUsecase(adAccountRepository, metricsFactRepository, aggregateCache, cfg.Cache.AggregateTTL())

	if cfg.Worker.Enabled {
		syncPool := worker.NewPool(poolOptions(model.QueueMetricsSync, cfg.Worker.MetricsSync, cfg),
			jobQueue, syncJobHandler.Handle, usecase.NewSyncJobTracker(syncJobRepository, syncHub, cfg.Queue.Lease()), syncLogRepository)
		discoveryPool := worker.NewPool(poolOptions(model.QueueAccountDiscovery, cfg.Worker.Discovery, cfg),
			jobQueue, discoveryHandler.Handle, nil, syncLogRepository)
		g.Go(func() error { return syncPool.Run(ctx) })
		g.Go(func() error { return discoveryPool.Run(ctx) })
		logger.GetLogger().
			WithField("metricsSync", cfg.Worker.MetricsSync.Concurrency).
			WithField("discovery", cfg.Worker.Discovery.Concurrency).
			Info("Worker pools started")
	}

	if cfg.Sync.SchedulerEnabled {
		sched, err := scheduler.New(scheduler.Options{
			DailyAt:          cfg.Sync.DailyAt,
			IntradayEnabled:  cfg.Sync.IntradayEnabled,
			IntradayInterval: cfg.Sync.IntradayInterval(),
			Queues:           []string{model.QueueMetricsSync, model.QueueAccountDiscovery},
		}, orchestrator, jobQueue)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Invalid scheduler configuration")
			os.Exit(1)
		}
		g.Go(func() error { return sched.Run(ctx) })
	}

	router := server.InitiateRouter(server.Handlers{
		Sync:       httpHandler.NewSyncHandler(orchestrator),
		Report:     httpHandler.NewReportHandler(reportingUsecase),
		Connection: httpHandler.NewConnectionHandler(connectionUsecase),
		SyncStream: syncHub.Serve,
		Health: httpHandler.NewHealthHandler(map[string]httpHandler.HealthCheck{
			"postgres": psqlDb.PingContext,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
	}, app.SecretKey)

	port := app.Port
	logger.GetLogger().WithFields(map[string]interface{}{"port": port, "tls": app.TLSEnabled}).Info("Starting application")
	g.Go(func() error {
		httpServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		if app.TLSEnabled && app.TLSCertFile != "" && app.TLSKeyFile != "" {
			logger.GetLogger().WithFields(map[string]interface{}{"cert": app.TLSCertFile, "key": app.TLSKeyFile}).Info("Serving HTTPS")
			if err := httpServer.ListenAndServeTLS(app.TLSCertFile, app.TLSKeyFile); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
		if app.TLSEnabled {
			logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
		}
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	select {
	case <-interrupt:
		logger.GetLogger().Info("Application shutdown requested")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
	logger.GetLogger().Info("Application stopped")
}

func poolOptions(queueName string, pool configuration.WorkerPool, cfg configuration.Config) worker.Options {
	return worker.Options{
		Queue:            queueName,
		Concurrency:      pool.Concurrency,
		MaxJobsPerWindow: pool.MaxJobsPerWindow,
		Window:           pool.Window(),
		PollInterval:     time.Duration(cfg.Worker.PollIntervalMs) * time.Millisecond,
		Lease:            cfg.Queue.Lease(),
	}
}

// newRateLimiter returns the Redis-backed bucket shared by every process, or a
// process-local bucket when RateLimit.Backend is "memory" or "local".
func newRateLimiter(client redis.Cmdable, cfg configuration.RateLimit) repository.IRateLimiter {
	opts := ratelimit.Options{
		Key:             cfg.Key,
		Capacity:        cfg.Capacity,
		RefillPerSecond: cfg.RefillPerSecond,
		PollInterval:    cfg.PollInterval(),
	}
	if cfg.Backend == "memory" || cfg.Backend == "local" {
		logger.GetLogger().Warn("Using process-local rate limiter; quota is not shared across workers")
		return ratelimit.NewLocalTokenBucket(opts)
	}
	return ratelimit.NewRedisTokenBucket(client, opts)
}

// newEventPublisher picks the sync-completed event sink from Events.Backend.
func newEventPublisher(ctx context.Context, cfg configuration.Config) (repository.ISyncEventPublisher, func()) {
	noop := func() {}
	switch cfg.Events.Backend {
	case "pubsub":
		client, err := pubsub.NewPubSub(ctx, cfg.Pubsub.ProjectID)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while instantiate PubSub")
			return nil, noop
		}
		publisher := pubsub.NewSyncEventPublisher(client, cfg.Events.Topic)
		return publisher, func() {
			if closer, ok := publisher.(interface{ Close() }); ok {
				closer.Close()
			}
			if client != nil {
				_ = client.Close()
			}
		}
	case "servicebus":
		client, err := servicebus.NewServiceBus(ctx, cfg.ServiceBus.Namespace)
		if err != nil {
			logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - sync events disabled")
			return nil, noop
		}
		return servicebus.NewSyncEventSender(client, cfg.Events.Topic), func() {
			if client != nil {
				_ = client.Close(context.Background())
			}
		}
	default:
		return nil, noop
	}
}
