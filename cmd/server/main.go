package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/Ramsey-B/stem/pkg/database"
	stemmiddleware "github.com/Ramsey-B/stem/pkg/middleware"
	"github.com/Ramsey-B/stem/pkg/startup"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/Ramsey-B/stem/pkg/tracing/exporters"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/repositories/deliveryleg"
	"github.com/Ramsey-B/clover/internal/repositories/slatier"
	"github.com/Ramsey-B/clover/internal/repositories/summary"
	"github.com/Ramsey-B/clover/internal/repositories/upload"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/ingest"
	cloverkafka "github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/recalc"
	"github.com/Ramsey-B/clover/pkg/rollup"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/routes/recalculations"
	"github.com/Ramsey-B/clover/pkg/routes/rollups"
	"github.com/Ramsey-B/clover/pkg/routes/uploads"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := initTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
		} else {
			defer shutdown(context.Background())
		}
	}

	sqlxDB, err := connectDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer func() { _ = sqlxDB.Close() }()

	if err := runMigrations(cfg, sqlxDB, logger); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	db := database.NewDatabaseInstance(sqlxDB, logger)

	legRepo := deliveryleg.NewRepository(db, logger)
	uploadRepo := upload.NewRepository(db, logger)
	tierRepo := slatier.NewRepository(db, logger)
	summaryRepo := summary.NewRepository(db, logger)

	producer := cloverkafka.NewProducer(cloverkafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		Topic:        cfg.KafkaOutputTopic,
		BatchSize:    cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: cfg.KafkaRequiredAcks,
		Compression:  cfg.KafkaCompression,
	}, logger)
	defer func() { _ = producer.Close() }()

	emitter := events.NewEmitter(producer, logger)

	engine := rollup.NewEngine(summaryRepo, legRepo, logger)
	worker := rollup.NewWorker(engine, cfg.RollupQueueSize, logger)
	pipeline := ingest.NewPipeline(legRepo, uploadRepo, tierRepo, worker, logger)
	recalcService := recalc.NewService(legRepo, tierRepo, logger)
	recalcService.SetPageSize(cfg.RecalcPageSize)

	if err := registerDependencies(logger, legRepo, uploadRepo, tierRepo, summaryRepo, pipeline, engine, worker, recalcService, emitter); err != nil {
		logger.WithError(err).Error("Failed to build DI container")
		os.Exit(1)
	}

	checker := health.NewChecker(sqlxDB, worker, version)
	e := newServer(cfg, logger, checker)

	graph := startup.NewStartup[any](logger, cfg.StartupMaxAttempts)
	graph.AddDependency(worker)
	if cfg.KafkaConsumerEnabled {
		consumer := cloverkafka.NewConsumer(cloverkafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaInputTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
		}, logger, consumeBatch(pipeline, logger))
		graph.AddDependency(&consumerDependency{consumer: consumer})
	}
	graph.AddDependency(&serverDependency{e: e, port: cfg.Port, logger: logger})

	if err := graph.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		os.Exit(1)
	}
	checker.SetReady(true)

	<-ctx.Done()
	logger.Info("Shutting down")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := graph.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown failed")
	}
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func initTracing(ctx context.Context, cfg config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: true,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.AppName),
			semconv.ServiceVersion(version),
		)),
	)
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	return tp.Shutdown, nil
}

func connectDatabase(cfg config.Config, logger ectologger.Logger) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName,
		cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)

	var db *sqlx.DB
	var err error
	for attempt := 0; attempt <= cfg.DatabaseReconnectRetryCount; attempt++ {
		db, err = sqlx.Connect(cfg.DatabaseDriver, dsn)
		if err == nil {
			break
		}
		logger.WithError(err).Warnf("Database connection attempt %d failed", attempt+1)
		time.Sleep(time.Second)
	}
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	return db, nil
}

func runMigrations(cfg config.Config, db *sqlx.DB, logger ectologger.Logger) error {
	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func registerDependencies(
	logger ectologger.Logger,
	legRepo *deliveryleg.Repository,
	uploadRepo *upload.Repository,
	tierRepo *slatier.Repository,
	summaryRepo *summary.Repository,
	pipeline *ingest.Pipeline,
	engine *rollup.Engine,
	worker *rollup.Worker,
	recalcService *recalc.Service,
	emitter *events.Emitter,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*deliveryleg.Repository](container, legRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*upload.Repository](container, uploadRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*slatier.Repository](container, tierRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*summary.Repository](container, summaryRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*ingest.Pipeline](container, pipeline); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*rollup.Engine](container, engine); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*rollup.Worker](container, worker); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*recalc.Service](container, recalcService); err != nil {
		return err
	}
	return ectoinject.RegisterInstance[*events.Emitter](container, emitter)
}

func newServer(cfg config.Config, logger ectologger.Logger, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(stemmiddleware.Context())
	e.Use(stemmiddleware.Logger(logger))
	e.HTTPErrorHandler = stemmiddleware.Error(logger)

	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	uploads.Register(api.Group("/uploads"))
	rollups.Register(api.Group("/rollups"))
	recalculations.Register(api.Group("/recalculations"))

	return e
}

// consumeBatch feeds Kafka-delivered ingestion batches into the same pipeline
// the HTTP surface uses. Order-level dedup makes redelivery safe.
func consumeBatch(pipeline *ingest.Pipeline, logger ectologger.Logger) cloverkafka.MessageHandler {
	return func(ctx context.Context, msg *cloverkafka.IncomingMessage) error {
		result, err := pipeline.Ingest(ctx, *msg.IngestRequest)
		if err != nil {
			return err
		}
		logger.WithContext(ctx).WithFields(map[string]any{
			"upload_id": result.UploadID,
			"inserted":  result.Inserted,
			"offset":    msg.Offset,
		}).Info("Ingested batch from Kafka")
		return nil
	}
}

// serverDependency adapts the echo server to the startup graph.
type serverDependency struct {
	e      *echo.Echo
	port   int
	logger ectologger.Logger
}

func (s *serverDependency) GetName() string     { return "http-server" }
func (s *serverDependency) DependsOn() []string { return []string{"rollup-worker"} }

func (s *serverDependency) Start(ctx context.Context) error {
	go func() {
		addr := fmt.Sprintf(":%d", s.port)
		s.logger.Infof("HTTP server listening on %s", addr)
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (s *serverDependency) Stop(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// consumerDependency adapts the Kafka consumer to the startup graph.
type consumerDependency struct {
	consumer *cloverkafka.Consumer
}

func (c *consumerDependency) GetName() string     { return "kafka-consumer" }
func (c *consumerDependency) DependsOn() []string { return []string{"rollup-worker"} }

func (c *consumerDependency) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *consumerDependency) Stop(ctx context.Context) error {
	return c.consumer.Stop()
}
