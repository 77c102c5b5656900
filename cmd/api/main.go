package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Cotizador-api/internal/application/freight"
	"github.com/jhoicas/Cotizador-api/internal/application/inventory"
	"github.com/jhoicas/Cotizador-api/internal/application/ports"
	"github.com/jhoicas/Cotizador-api/internal/domain/repository"
	infrakafka "github.com/jhoicas/Cotizador-api/internal/infrastructure/kafka"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/melhorenvio"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/memory"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/metrics"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/outbox"
	infrapdf "github.com/jhoicas/Cotizador-api/internal/infrastructure/pdf"
	"github.com/jhoicas/Cotizador-api/internal/infrastructure/postgres"
	infraredis "github.com/jhoicas/Cotizador-api/internal/infrastructure/redis"
	httpRouter "github.com/jhoicas/Cotizador-api/internal/interfaces/http"
	"github.com/jhoicas/Cotizador-api/pkg/config"
	"github.com/jhoicas/Cotizador-api/pkg/logger"
	"github.com/jhoicas/Cotizador-api/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("db", cfg.DB.Driver).
		Msg("iniciando aplicación")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar tracing")
	}

	// ── Persistencia ──────────────────────────────────────────────────────────
	var (
		txRunner    inventory.TxRunner
		repos       inventory.Repos
		companyRepo repository.CompanyRepository
	)
	switch cfg.DB.Driver {
	case config.DriverMemory:
		store := memory.NewStore()
		txRunner, repos, companyRepo = store, store.Repos(), store.Companies()
		log.Warn().Msg("persistencia en memoria: los datos se pierden al reiniciar")
	default:
		pool, err := postgres.NewPool(ctx, cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a PostgreSQL")
		}
		defer pool.Close()
		txRunner, repos, companyRepo = postgres.NewTxRunner(pool), postgres.NewRepos(pool), postgres.NewCompanyRepository(pool)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(reg)

	// ── Agregador y guarda de etiquetas ───────────────────────────────────────
	carrier := melhorenvio.NewClient(melhorenvio.Config{
		BaseURL:   cfg.Carrier.BaseURL,
		Token:     cfg.Carrier.Token,
		UserAgent: cfg.Carrier.UserAgent,
		Timeout:   cfg.Carrier.Timeout,
	})
	if cfg.Carrier.Token == "" {
		log.Warn().Msg("MELHOR_ENVIO_TOKEN vacío: toda cotización terminará en ERROR")
	}

	var labelLock ports.LabelLock = memory.NewLabelLock()
	if cfg.Redis.Addr != "" {
		rdb, err := infraredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("conexión a Redis")
		}
		defer rdb.Close()
		labelLock = infraredis.NewLabelLock(rdb, cfg.Redis.KeyPrefix)
	}

	// ── Casos de uso ──────────────────────────────────────────────────────────
	freightCfg := freightConfig(cfg)
	locks := inventory.NewProductLocks()
	reservations := inventory.NewReservationManager(txRunner, repos, locks, appMetrics, log)
	ledger := inventory.NewStockLedger(txRunner, repos, locks, log)
	orchestrator := freight.NewQuoteOrchestrator(txRunner, repos, companyRepo, reservations, carrier, appMetrics, log, freightCfg)
	labelSaga := freight.NewLabelSaga(txRunner, repos, companyRepo, carrier, labelLock, appMetrics, log, freightCfg)
	compensator := freight.NewCompensator(repos, reservations, log)
	queries := freight.NewQuoteQueries(repos, carrier, appMetrics, freightCfg)
	quotePDF := freight.NewPDFUseCase(queries, companyRepo, repos.Products, infrapdf.NewMarotoPDFGenerator())

	reaper := freight.NewStaleQuoteReaper(repos, reservations, log, freightCfg)
	go reaper.Run(ctx)

	// Outbox → Kafka
	if len(cfg.Kafka.Brokers) > 0 {
		writer := infrakafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.WriteTimeout)
		defer writer.Close()
		dispatcher := outbox.NewDispatcher(repos.Outbox, infrakafka.NewPublisher(writer, cfg.Kafka.Topic),
			cfg.Outbox.MaxRetry, cfg.Outbox.BatchSize, log)
		outbox.NewScheduler(dispatcher, cfg.Outbox.Interval, log).Start(ctx)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("outbox: publicando en Kafka")
	} else {
		log.Info().Msg("KAFKA_BROKERS vacío: los eventos quedan en outbox_messages")
	}

	// ── HTTP ──────────────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: freightCfg.LabelLockLease(),
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(httpRouter.RequestLogger(log))

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Cotizador API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Orchestrator: orchestrator,
		LabelSaga:    labelSaga,
		Compensator:  compensator,
		Queries:      queries,
		QuotePDF:     quotePDF,
		Ledger:       ledger,
		Gatherer:     reg,
		JWTSecret:    cfg.JWT.Secret,
		ServiceName:  cfg.App.Name,
		Log:          log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("cierre de tracing")
	}

	log.Info().Msg("aplicación detenida")
}

func freightConfig(cfg *config.Config) freight.Config {
	fc := freight.DefaultConfig()
	fc.CarrierTimeout = cfg.Carrier.Timeout
	fc.LabelSettle = cfg.Carrier.LabelSettle
	fc.LabelPollAttempts = cfg.Carrier.LabelPollAttempts
	fc.LabelPollInitial = cfg.Carrier.LabelPollInitial
	fc.LabelPollMax = cfg.Carrier.LabelPollMax
	fc.QuoteInsuranceValue = decimal.NewFromFloat(cfg.Freight.QuoteInsuranceValue)
	fc.DeclaredUnitValue = decimal.NewFromFloat(cfg.Freight.DeclaredUnitValue)
	fc.StaleAfter = cfg.Freight.StaleAfter
	fc.StaleReapInterval = cfg.Freight.StaleReapInterval
	fc.LabelLockTTL = cfg.Freight.LabelLockTTL
	fc.DefaultCountryID = cfg.Freight.DefaultCountryID
	fc.DefaultRecipientName = cfg.Freight.DefaultRecipientName
	return fc
}
