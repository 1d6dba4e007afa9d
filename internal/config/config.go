package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/event"
	pkgconfig "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/config"
)

// Search engine and content source kinds.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"

	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"0.1.0"`

	// HTTP server
	HTTPPort    int      `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	AdminCIDRs  []string `env:"SEARCH_ADMIN_CIDRS" envDefault:"127.0.0.1/32,10.0.0.0/8" envSeparator:","`
	PprofCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Search engine selection (elasticsearch or memory)
	SearchEngine            string        `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURLs       []string      `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchIndex      string        `env:"ELASTICSEARCH_INDEX" envDefault:"travel_content"`
	ElasticsearchUsername   string        `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword   string        `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchMaxRetries int           `env:"ELASTICSEARCH_MAX_RETRIES" envDefault:"3"`
	ElasticsearchRefresh    string        `env:"ELASTICSEARCH_REFRESH" envDefault:"false"`
	QueryTimeout            time.Duration `env:"SEARCH_QUERY_TIMEOUT" envDefault:"5s"`

	// Primary store used by rebuilds (http or postgres)
	ContentSource      string        `env:"SEARCH_CONTENT_SOURCE" envDefault:"http"`
	ContentServiceURL  string        `env:"CONTENT_SERVICE_URL" envDefault:"http://localhost:8081"`
	ContentDatabaseURL string        `env:"CONTENT_DATABASE_URL"`
	SlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	RebuildBatchSize   int           `env:"SEARCH_REBUILD_BATCH_SIZE" envDefault:"200"`

	// Kafka
	KafkaBrokers         []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID         string        `env:"KAFKA_GROUP_ID" envDefault:"search-service"`
	// ConsumerConcurrency bounds concurrent event handlers across all topics.
	ConsumerConcurrency  int           `env:"SEARCH_CONSUMER_CONCURRENCY" envDefault:"3"`
	ConsumerMaxRetries   int           `env:"SEARCH_CONSUMER_MAX_RETRIES" envDefault:"3"`
	ConsumerRetryBackoff time.Duration `env:"SEARCH_CONSUMER_RETRY_BACKOFF" envDefault:"200ms"`

	// DLQPrefix names dead-letter topics; empty drops failed events after logging.
	DLQPrefix      string        `env:"SEARCH_DLQ_PREFIX" envDefault:"search.dlq"`
	RebuiltTopic   string        `env:"SEARCH_REBUILT_TOPIC" envDefault:"search.index.rebuilt"`
	IdempotencyTTL time.Duration `env:"SEARCH_IDEMPOTENCY_TTL" envDefault:"24h"`

	Topics event.Topics

	// Redis backs the query cache, search history and event idempotency.
	// Empty disables them.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CacheTTL      time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"30s"`
	HistorySize   int           `env:"SEARCH_HISTORY_SIZE" envDefault:"20"`
	HistoryTTL    time.Duration `env:"SEARCH_HISTORY_TTL" envDefault:"720h"`

	// Recommendation model used to rerank similar content; empty disables it.
	RecommenderURL string `env:"RECOMMENDER_URL"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	Ranking domain.RankingConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads configuration from vars only, ignoring the process
// environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}

	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURLs) == 0 {
			errs = append(errs, errors.New("ELASTICSEARCH_URL is required"))
		}
	case EngineMemory:
	default:
		errs = append(errs, fmt.Errorf("SEARCH_ENGINE must be %s or %s, got %q", EngineElasticsearch, EngineMemory, c.SearchEngine))
	}

	switch c.ContentSource {
	case SourceHTTP:
		if c.ContentServiceURL == "" {
			errs = append(errs, errors.New("CONTENT_SERVICE_URL is required for the http content source"))
		}
	case SourcePostgres:
		if c.ContentDatabaseURL == "" {
			errs = append(errs, errors.New("CONTENT_DATABASE_URL is required for the postgres content source"))
		}
	default:
		errs = append(errs, fmt.Errorf("SEARCH_CONTENT_SOURCE must be %s or %s, got %q", SourceHTTP, SourcePostgres, c.ContentSource))
	}

	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.ConsumerConcurrency < 1 || c.ConsumerConcurrency > 5 {
		errs = append(errs, fmt.Errorf("SEARCH_CONSUMER_CONCURRENCY must be between 1 and 5, got %d", c.ConsumerConcurrency))
	}
	if c.ConsumerMaxRetries < 1 {
		errs = append(errs, errors.New("SEARCH_CONSUMER_MAX_RETRIES must be positive"))
	}
	if c.Topics.Created == "" || c.Topics.Updated == "" || c.Topics.Deleted == "" {
		errs = append(errs, errors.New("content topic names must not be empty"))
	} else if c.Topics.Created == c.Topics.Updated || c.Topics.Created == c.Topics.Deleted || c.Topics.Updated == c.Topics.Deleted {
		errs = append(errs, errors.New("content topic names must be distinct"))
	}

	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("SEARCH_QUERY_TIMEOUT must be positive"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("SEARCH_CACHE_TTL must not be negative"))
	}
	if c.RebuildBatchSize < 1 {
		errs = append(errs, errors.New("SEARCH_REBUILD_BATCH_SIZE must be positive"))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate))
	}
	if err := c.Ranking.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ranking: %w", err))
	}

	return errors.Join(errs...)
}
