package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/cache"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/config"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine"
	esengine "github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine/elasticsearch"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine/memory"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/event"
	handler "github.com/knaznarjes/MoveBackendDevops-sub000/internal/handler/http"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/history"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/recommend"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/service"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/source"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/database"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/health"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/httpclient"
	pkgkafka "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/kafka"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/middleware"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/tracing"
)

const serviceName = "search"

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	engine         engine.SearchEngine
	consumers      []*pkgkafka.Consumer
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	redis          *redis.Client
	pool           *pgxpool.Pool
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	if err := a.init(ctx); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	a.engine = eng
	if err := eng.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure search index: %w", err)
	}

	// Redis backs the query cache, history and event idempotency when configured.
	var idempotency pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	var searchHistory history.Store = history.NewMemoryStore(cfg.HistorySize)
	searchOpts := []service.Option{
		service.WithQueryTimeout(cfg.QueryTimeout),
		service.WithRanking(cfg.Ranking),
	}
	if cfg.RedisAddr != "" {
		redisCfg := database.DefaultRedisConfig(cfg.RedisAddr)
		redisCfg.Password = cfg.RedisPassword
		client, err := database.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr))

		idempotency = pkgkafka.NewRedisIdempotencyStore(client, "search:events:", cfg.IdempotencyTTL)
		searchHistory = history.NewRedisStore(client, cfg.HistorySize, cfg.HistoryTTL)
		if cfg.CacheTTL > 0 {
			searchOpts = append(searchOpts, service.WithCache(cache.NewRedisCache(client, ""), cfg.CacheTTL))
		}
	}
	searchOpts = append(searchOpts, service.WithHistory(searchHistory))

	if cfg.RecommenderURL != "" {
		client := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("recommender"),
			logger,
		)
		searchOpts = append(searchOpts, service.WithReranker(recommend.NewHTTPReranker(client, cfg.RecommenderURL, logger)))
		logger.Info("similar content reranking enabled", slog.String("url", cfg.RecommenderURL))
	}

	contentSource, err := a.newContentSource(ctx)
	if err != nil {
		return err
	}

	a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)

	searchService := service.NewSearchService(eng, logger, searchOpts...)
	synchronizer := service.NewSynchronizer(eng, contentSource, logger,
		service.WithBatchSize(cfg.RebuildBatchSize),
		service.WithPublisher(a.producer, cfg.RebuiltTopic),
	)

	// One consumer per content topic, all feeding the synchronizer. The
	// concurrency budget caps index writes across all topics together.
	registry := event.NewRegistry(cfg.Topics, synchronizer, logger)
	registry.Use(pkgkafka.LimitConcurrency(cfg.ConsumerConcurrency))
	registry.Use(func(next pkgkafka.Handler) pkgkafka.Handler {
		return pkgkafka.IdempotentHandler(idempotency, next, logger)
	})

	var consumerOpts []pkgkafka.ConsumerOption
	if cfg.DLQPrefix != "" {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, cfg.DLQPrefix, logger)
		consumerOpts = append(consumerOpts, pkgkafka.WithDeadLetter(a.dlq))
	}
	for _, topic := range registry.Topics() {
		h, _ := registry.Handler(topic)
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:      cfg.KafkaBrokers,
			GroupID:      cfg.KafkaGroupID,
			Topic:        topic,
			MinBytes:     1,
			MaxBytes:     10e6, // 10 MB
			Concurrency:  cfg.ConsumerConcurrency,
			MaxRetries:   cfg.ConsumerMaxRetries,
			RetryBackoff: cfg.ConsumerRetryBackoff,
		}, h, logger, consumerOpts...)
		a.consumers = append(a.consumers, c)
	}
	logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Any("topics", registry.Topics()),
		slog.Int("concurrency", cfg.ConsumerConcurrency),
	)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("search-engine", eng.Ping)
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})
	if a.redis != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	if a.pool != nil {
		healthHandler.RegisterNonCritical("content-db", a.pool.Ping)
	}

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSOrigins
	router := handler.NewRouter(searchService, synchronizer, healthHandler, handler.RouterConfig{
		CORS:       corsCfg,
		AdminCIDRs: cfg.AdminCIDRs,
		PprofCIDRs: cfg.PprofCIDRs,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func newEngine(cfg *config.Config, logger *slog.Logger) (engine.SearchEngine, error) {
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		eng, err := esengine.New(esengine.Config{
			Addresses:  cfg.ElasticsearchURLs,
			Username:   cfg.ElasticsearchUsername,
			Password:   cfg.ElasticsearchPassword,
			IndexName:  cfg.ElasticsearchIndex,
			MaxRetries: cfg.ElasticsearchMaxRetries,
			Refresh:    cfg.ElasticsearchRefresh,
		}, cfg.Ranking, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		logger.Info("elasticsearch search engine initialized",
			slog.Any("urls", cfg.ElasticsearchURLs),
			slog.String("index", cfg.ElasticsearchIndex),
		)
		return eng, nil
	default:
		logger.Info("in-memory search engine initialized")
		return memory.New(memory.WithRanking(cfg.Ranking)), nil
	}
}

func (a *App) newContentSource(ctx context.Context) (source.ContentSource, error) {
	cfg, logger := a.cfg, a.logger

	switch cfg.ContentSource {
	case config.SourcePostgres:
		pool, err := database.NewPostgresPool(ctx, database.DefaultPostgresConfig(cfg.ContentDatabaseURL), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to content database: %w", err)
		}
		a.pool = pool
		if err := prometheus.Register(database.NewPoolStatsCollector(pool, serviceName)); err != nil {
			logger.Warn("pool stats collector not registered", slog.String("error", err.Error()))
		}
		if cfg.SlowQueryThreshold > 0 {
			database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
		}
		logger.Info("content source: postgres")
		return source.NewPostgresSource(pool), nil
	default:
		client := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("content-service"),
			logger,
		)
		logger.Info("content source: http", slog.String("url", cfg.ContentServiceURL))
		return source.NewHTTPSource(client, cfg.ContentServiceURL, logger), nil
	}
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Kafka consumers (stop indexing)
// 3. Tracer, producers and stores
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes everything NewApp may have opened.
func (a *App) release() error {
	var errs []error

	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("dead letter producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
