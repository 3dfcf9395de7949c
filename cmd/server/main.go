package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-sales-engine/internal/availability"
	"github.com/iliyamo/restaurant-sales-engine/internal/config"
	"github.com/iliyamo/restaurant-sales-engine/internal/database"
	"github.com/iliyamo/restaurant-sales-engine/internal/handler"
	"github.com/iliyamo/restaurant-sales-engine/internal/keylock"
	"github.com/iliyamo/restaurant-sales-engine/internal/middleware"
	"github.com/iliyamo/restaurant-sales-engine/internal/queue"
	"github.com/iliyamo/restaurant-sales-engine/internal/repository"
	"github.com/iliyamo/restaurant-sales-engine/internal/reservations"
	"github.com/iliyamo/restaurant-sales-engine/internal/router"
	"github.com/iliyamo/restaurant-sales-engine/internal/sales"
	"github.com/iliyamo/restaurant-sales-engine/internal/service"
	"github.com/iliyamo/restaurant-sales-engine/internal/tables"
	"github.com/iliyamo/restaurant-sales-engine/internal/tax"
)

func main() {
	_ = godotenv.Load() // .env is optional

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "restaurant-sales-engine").Logger()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		tableJournal       tables.Journal
		saleJournal        sales.Journal
		reservationJournal reservations.Journal
		taxJournal         tax.Journal
		snap               repository.Snapshot
	)
	if cfg.Storage == config.StorageMySQL {
		db, err := database.Open(ctx, cfg.DB, cfg.DB.MigrateRetries, log)
		if err != nil {
			log.Fatal().Err(err).Msg("open database")
		}
		defer db.Close()
		if err := repository.Migrate(ctx, db, cfg.DB.MigrateRetries); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		store := repository.NewStore(db)
		if snap, err = store.Load(ctx); err != nil {
			log.Fatal().Err(err).Msg("load journal")
		}
		tableJournal, saleJournal, reservationJournal, taxJournal = store, store, store, store
		log.Info().Int("tables", len(snap.Tables)).Int("sales", len(snap.Sales)).Int("reservations", len(snap.Reservations)).
			Int("tax_templates", len(snap.DefaultTaxes)).Msg("journal restored")
	}

	locks := keylock.New(cfg.Lock)
	registry := tables.NewRegistry(tableJournal, log)
	ledger := sales.NewLedger(locks, registry, saleJournal, log)
	defaults := tax.NewDefaults(taxJournal, log)
	machine := reservations.NewMachine(locks, ledger, registry, defaults, reservationJournal, log)

	// Bindings first: the ledger and machine assume their tables exist.
	registry.Restore(snap.Tables, snap.Bindings())
	ledger.Restore(snap.Sales)
	machine.Restore(snap.Reservations)
	defaults.Restore(snap.DefaultTaxes)

	query := availability.New(registry, ledger, machine)

	pub := newPublisher(cfg.Events, log)
	defer pub.Close()
	events := service.NewEvents(pub, cfg.Events.PublishTimeout, log)

	if cfg.Events.AuditConsumer && cfg.Events.Broker == config.BrokerRabbitMQ {
		out, err := queue.OpenAuditLog(cfg.Events.AuditLogDir)
		if err != nil {
			log.Fatal().Err(err).Msg("open audit log")
		}
		defer out.Close()
		consumer := queue.NewAuditConsumer(cfg.Events.RabbitURL, out, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("audit consumer stopped")
			}
		}()
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}
	cache := middleware.NewResponseCache(cfg.Cache, rdb, log)
	h := handler.New(ledger, machine, registry, query, defaults, events, cache, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("method", v.Method).Str("uri", v.URI).Int("status", v.Status).Dur("latency", v.Latency).Msg("request")
			return nil
		},
	}))
	e.Use(middleware.RateLimit(cfg.RateLimit, rdb, log))
	router.Register(e, h, cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("storage", cfg.Storage).Str("broker", cfg.Events.Broker).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("stopped")
}

func newPublisher(cfg config.EventConfig, log zerolog.Logger) service.Publisher {
	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		log.Info().Msg("publishing events to rabbitmq")
		return service.NewRabbitPublisher(cfg.RabbitURL)
	case config.BrokerKafka:
		log.Info().Strs("brokers", cfg.KafkaBrokers).Msg("publishing events to kafka")
		return service.NewKafkaPublisher(config.NewKafkaWriter(cfg))
	}
	return service.NoopPublisher{}
}
