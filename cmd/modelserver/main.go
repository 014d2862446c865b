package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Aidin1998/modelserver/api"
	"github.com/Aidin1998/modelserver/internal/artifacts"
	"github.com/Aidin1998/modelserver/internal/capability"
	"github.com/Aidin1998/modelserver/internal/config"
	"github.com/Aidin1998/modelserver/internal/etl"
	"github.com/Aidin1998/modelserver/internal/observability"
	"github.com/Aidin1998/modelserver/internal/serving"
	"github.com/Aidin1998/modelserver/internal/training"
	"github.com/Aidin1998/modelserver/pkg/logger"
)

const (
	dbConnectTimeout = 5 * time.Second
	shutdownTimeout  = 15 * time.Second
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	zapLogger, level, err := logger.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	cfg, v, err := config.Load(zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}
	level.SetLevel(logger.ParseLevel(cfg.Log.Level))
	config.WatchLogLevel(v, level, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		zapLogger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	store, err := artifacts.NewStore(cfg.Models.Dir, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open artifact store", zap.Error(err))
	}

	extractor := openExtractor(ctx, cfg.Database, zapLogger)

	var journal training.Journal = training.NopJournal{}
	if cfg.Journal.Dir != "" {
		bj, err := training.NewBadgerJournal(cfg.Journal.Dir)
		if err != nil {
			zapLogger.Warn("Training journal unavailable, runs will not be recorded", zap.Error(err))
		} else {
			defer bj.Close()
			journal = bj
		}
	}

	var publisher training.Publisher = training.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = training.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		zapLogger.Info("Publishing model events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	var runtimeOpts []serving.Option
	if cfg.Redis.URL != "" {
		cache, err := serving.DialRedisCache(cfg.Redis.URL, cfg.Models.CacheTTL())
		if err != nil {
			zapLogger.Warn("Prediction cache disabled", zap.Error(err))
		} else {
			defer cache.Close()
			runtimeOpts = append(runtimeOpts, serving.WithCache(cache))
		}
	}
	if cfg.Models.TaxonomyKeywords != "" {
		table, err := capability.LoadKeywords(cfg.Models.TaxonomyKeywords)
		if err != nil {
			zapLogger.Fatal("Failed to load taxonomy keywords", zap.String("path", cfg.Models.TaxonomyKeywords), zap.Error(err))
		}
		runtimeOpts = append(runtimeOpts, serving.WithTaxonomyKeywords(table))
	}

	runtime := serving.NewRuntime(store, zapLogger, runtimeOpts...)
	orchestrator := training.NewOrchestrator(store, zapLogger,
		training.WithPipelines(training.DefaultPipelines(extractor)...),
		training.WithJournal(journal),
		training.WithPublisher(publisher),
		training.WithSwapper(runtime),
	)
	runtime.SetTrainer(orchestrator)
	runtime.Hydrate(ctx)

	if cfg.Models.Watch {
		watcher, err := artifacts.NewWatcher(store, zapLogger, artifacts.DefaultDebounce, runtime.HandleCommit)
		if err != nil {
			zapLogger.Fatal("Failed to create artifact watcher", zap.Error(err))
		}
		if err := watcher.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start artifact watcher", zap.Error(err))
		}
	}

	apiServer := api.NewServer(zapLogger, runtime, journal, api.Options{
		MaxItems:     cfg.Models.MaxItems(),
		CORSOrigins:  cfg.Server.CORSOrigins,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ServiceName:  cfg.Tracing.ServiceName,
	})

	go func() {
		if err := apiServer.Start(cfg.Server.Addr()); err != nil {
			zapLogger.Fatal("Failed to start API server", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down API server", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		zapLogger.Error("Failed to flush traces", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}

// openExtractor connects to the compliance database. Training still works
// without it, on synthetic data.
func openExtractor(ctx context.Context, cfg config.DatabaseConfig, zapLogger *zap.Logger) etl.Extractor {
	if !cfg.Enabled {
		zapLogger.Info("Database disabled, training will use synthetic data")
		return etl.NopExtractor{}
	}

	connectCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()
	db, err := etl.OpenPostgres(connectCtx, etl.DatabaseConfig{
		URL:          cfg.URL,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		zapLogger.Warn("Database unavailable, training will use synthetic data", zap.Error(err))
		return etl.NopExtractor{}
	}
	return etl.NewGormExtractor(db, zapLogger)
}
