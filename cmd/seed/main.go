// Command seed publishes synthetic travel content to the content created
// topic so a development search index has something to serve.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/event"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/seed"
	pkgconfig "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/config"
	pkgkafka "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/kafka"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
)

type config struct {
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Count        int      `env:"SEED_COUNT" envDefault:"1000"`
	Users        int      `env:"SEED_USERS" envDefault:"50"`
	Seed         uint64   `env:"SEED_RANDOM_SEED" envDefault:"1"`
	LogLevel     string   `env:"LOG_LEVEL" envDefault:"info"`
	Topics       event.Topics
}

func main() {
	var cfg config
	if err := pkgconfig.Load(&cfg); err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("search-seed", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), log)
	defer producer.Close()

	start := time.Now()
	gen := seed.NewGenerator(cfg.Seed, start, cfg.Users)
	n, err := seed.Publish(ctx, producer, gen, cfg.Topics, cfg.Count, log)
	if err != nil {
		log.Error("seeding failed", slog.Int("published", n), slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("seeding complete",
		slog.Int("published", n),
		slog.String("topic", cfg.Topics.Created),
		slog.Duration("elapsed", time.Since(start)),
	)
}
