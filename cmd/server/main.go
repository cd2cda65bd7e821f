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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cinema-ticketing/internal/booking"
	"github.com/iliyamo/cinema-ticketing/internal/config"
	"github.com/iliyamo/cinema-ticketing/internal/database"
	"github.com/iliyamo/cinema-ticketing/internal/handler"
	"github.com/iliyamo/cinema-ticketing/internal/hold"
	"github.com/iliyamo/cinema-ticketing/internal/layout"
	"github.com/iliyamo/cinema-ticketing/internal/middleware"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
	"github.com/iliyamo/cinema-ticketing/internal/queue"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
	"github.com/iliyamo/cinema-ticketing/internal/router"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}
	cfg := config.Load()
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis backs the hold store, the layout cache and the rate limiter.
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}
	checks := map[string]handler.Checker{}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var (
		sales   repository.SaleStore
		layouts layout.Provider
	)
	switch cfg.Storage {
	case "memory":
		log.Warn().Msg("STORAGE=memory: sales are lost on restart")
		sales = repository.NewMemorySaleRepo()
		layouts = layout.NewStaticProvider(demoLayouts()...)
	default:
		db, err := database.Open(database.Params{
			Driver: cfg.DBDriver,
			User:   cfg.DBUser,
			Pass:   cfg.DBPass,
			Host:   cfg.DBHost,
			Port:   cfg.DBPort,
			Name:   cfg.DBName,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if cfg.DBMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate schema")
			}
		}
		checks["db"] = db.PingContext
		sales = repository.NewSaleRepo(db)
		var sqlLayouts layout.Provider = layout.NewSQLProvider(db)
		if rdb != nil {
			sqlLayouts = layout.NewCachedProvider(sqlLayouts, rdb, cfg.Cache)
		}
		layouts = sqlLayouts
	}

	holds := hold.NewManager(newHoldStore(cfg.Hold, rdb), layouts, cfg.Hold)

	pub := newPublisher(cfg.Events)
	defer pub.Close()

	vouchers, err := pricing.ParseVoucherTable(cfg.Booking.Vouchers)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid VOUCHERS")
	}
	// The in-process ledger stands in for the loyalty service; balances
	// are seeded from LOYALTY_POINTS.
	ledger := pricing.NewMemoryLedger()
	if err := ledger.Seed(cfg.Booking.LoyaltyPoints); err != nil {
		log.Fatal().Err(err).Msg("invalid LOYALTY_POINTS")
	}
	calc := pricing.NewCalculator(pricing.Rates{
		FormatSurchargePct:   cfg.Booking.FormatSurchargePct,
		SeatTypeSurchargePct: cfg.Booking.SeatTypeSurchargePct,
		TaxBps:               cfg.Booking.TaxBps,
		ServiceFeeBps:        cfg.Booking.ServiceFeeBps,
		MaxDiscountBps:       cfg.Booking.MaxDiscountBps,
		PointValueCents:      cfg.Booking.PointValueCents,
	}, vouchers, ledger)

	engine := booking.NewEngine(holds, layouts, sales, calc, pub)
	n, err := engine.RestoreHolds(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to restore committed seats")
	}
	log.Info().Int("sales", n).Msg("committed seats restored")
	sweeper := booking.NewSweeper(engine, cfg.Booking.SweepInterval, cfg.Booking.SweepBatch)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover(), echomw.RequestID(), middleware.RequestLogger())

	limiter := middleware.NewTokenBucket(cfg.RateLimit, nil)
	if rdb != nil {
		limiter = middleware.NewTokenBucket(cfg.RateLimit, rdb)
	}
	bookings := handler.NewBookingHandler(engine)
	router.RegisterRoutes(e, &handler.HealthHandler{Checks: checks})
	router.RegisterCustomer(e, handler.NewHoldHandler(holds), bookings, cfg.JWTSecret, limiter)
	router.RegisterInternal(e, bookings, &handler.OpsHandler{Sweeper: sweeper}, cfg.JWTSecret)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})
	if cfg.Events.ConsumerEnabled {
		g.Go(func() error {
			return queue.StartBookingConsumer(gctx, queue.ConsumerConfig{
				URL:      cfg.Events.AMQPURL,
				Exchange: cfg.Events.Exchange,
				Queue:    cfg.Events.ConsumerQueue,
				Dir:      cfg.Events.LogDir,
			})
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("shut down cleanly")
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.Env == "dev" || cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newHoldStore(cfg config.HoldConfig, rdb *redis.Client) hold.Store {
	if cfg.Store == "memory" {
		log.Warn().Msg("HOLD_STORE=memory: holds are not shared between replicas")
		return hold.NewMemoryStore()
	}
	if rdb == nil {
		log.Fatal().Msg("HOLD_STORE=redis but redis is unreachable")
	}
	return hold.NewRedisStore(rdb, cfg.KeyPrefix)
}

func newPublisher(cfg config.EventsConfig) queue.Publisher {
	switch cfg.Backend {
	case "amqp", "rabbitmq":
		p, err := queue.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create amqp publisher")
		}
		return p
	case "kafka":
		p, err := queue.NewKafkaPublisher(cfg.KafkaBrokers, cfg.Exchange)
		if err != nil {
			log.Fatal().Err(err).Strs("brokers", cfg.KafkaBrokers).Msg("failed to create kafka producer")
		}
		return p
	}
	return queue.LogPublisher{}
}

// demoLayouts seeds STORAGE=memory with two showings.
func demoLayouts() []model.Layout {
	small := layout.Grid(1, 1, 8, 12, "2D", 1200)
	imax := layout.Grid(2, 1001, 10, 16, "IMAX", 1600)
	for i := range imax.Seats {
		if imax.Seats[i].RowLabel == "J" {
			imax.Seats[i].SeatType = "VIP"
		}
	}
	return []model.Layout{small, imax}
}
