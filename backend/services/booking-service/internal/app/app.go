package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libredis "chargeslot/backend/libs/redis"
	"chargeslot/backend/services/booking-service/internal/config"
	"chargeslot/backend/services/booking-service/internal/db"
	"chargeslot/backend/services/booking-service/internal/gateway"
	httpserver "chargeslot/backend/services/booking-service/internal/http"
	"chargeslot/backend/services/booking-service/internal/http/handlers"
	"chargeslot/backend/services/booking-service/internal/http/middleware"
	"chargeslot/backend/services/booking-service/internal/notify"
	redisstore "chargeslot/backend/services/booking-service/internal/redis"
	"chargeslot/backend/services/booking-service/internal/repository"
	"chargeslot/backend/services/booking-service/internal/service"
	"chargeslot/backend/services/booking-service/internal/worker"
	"chargeslot/backend/services/booking-service/internal/ws"
)

const (
	livePingInterval  = 30 * time.Second
	liveWriteTimeout  = 10 * time.Second
	rateLimitCleanup  = 5 * time.Minute
	migrationDeadline = 30 * time.Second
)

// App wires booking-service dependencies.
type App struct {
	server      *httpserver.Server
	sweeper     *worker.ExpirySweeper
	hub         *ws.Hub
	limiter     *middleware.RateLimiter
	db          *sql.DB
	redisClient *redis.Client
	rabbit      *notify.RabbitNotifier
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := db.NewPostgres(cfg.Database.DSN, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	a := &App{db: sqlDB, logger: logger}

	if cfg.Database.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), migrationDeadline)
		err := db.Migrate(ctx, sqlDB)
		cancel()
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	var (
		sessionCache service.SessionCache
		sweepLock    worker.Locker
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redisClient = redisClient
		sessionCache = redisstore.NewSessionCache(redisClient, cfg.Redis.SessionTTL)
		sweepLock = redisstore.NewSweepLock(redisClient, logger)
	} else {
		logger.Warn("redis not configured, session cache and sweep lock disabled")
	}

	var notifier service.Notifier = notify.NewLogNotifier(logger)
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := notify.NewRabbitNotifier(notify.RabbitMQConfig{URL: cfg.RabbitMQ.URL, Queue: cfg.RabbitMQ.Queue}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.rabbit = rabbit
		notifier = rabbit
	}

	gatewayClient, err := gateway.NewClient(gateway.Config{
		PayURL:    cfg.Gateway.PayURL,
		Merchant:  cfg.Gateway.Merchant,
		Secret:    cfg.Gateway.Secret,
		ReturnURL: cfg.Gateway.ReturnURL,
		TTL:       cfg.Gateway.TTL,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	reservationRepo := repository.NewReservationRepository(sqlDB)
	catalogRepo := repository.NewCatalogRepository(sqlDB)
	subscriptionRepo := repository.NewSubscriptionRepository(sqlDB)
	checkInRepo := repository.NewCheckInRepository(sqlDB)
	sessionRepo := repository.NewSessionRepository(sqlDB)
	paymentRepo := repository.NewPaymentRepository(sqlDB)
	walletRepo := repository.NewWalletRepository(sqlDB)

	a.hub = ws.NewHub(livePingInterval, logger)
	liveServer := ws.NewServer(a.hub, liveWriteTimeout, logger)

	walletService := service.NewWalletService(walletRepo, logger)
	reservationService := service.NewReservationService(reservationRepo, catalogRepo, subscriptionRepo, service.ReservationConfig{
		UnitRate:    cfg.Reservation.UnitRate,
		GracePad:    cfg.Reservation.GracePad,
		MaxAdvance:  cfg.Reservation.MaxAdvance,
		MinDuration: cfg.Reservation.MinDuration,
	}, logger)
	checkInService := service.NewCheckInService(reservationRepo, checkInRepo, cfg.CheckIn.TokenTTL, cfg.CheckIn.BaseURL, logger)
	paymentService := service.NewPaymentService(paymentRepo, walletService, reservationRepo, sessionRepo, gatewayClient, notifier, service.PaymentConfig{
		MaxAmount:  cfg.Payment.MaxAmount,
		GatewayTTL: cfg.Gateway.TTL,
		PendingTTL: cfg.Sweeper.PendingTTL,
	}, logger)
	sessionService := service.NewSessionService(sessionRepo, reservationRepo, catalogRepo, walletService, paymentService, sessionCache, a.hub, service.SessionConfig{
		MaxEnergyKWh: cfg.Session.MaxEnergyKWh,
		MaxAmount:    cfg.Payment.MaxAmount,
	}, logger)

	a.sweeper = worker.NewExpirySweeper(reservationRepo, catalogRepo, sweepLock, worker.SweeperConfig{
		Interval:    cfg.Sweeper.Interval,
		Concurrency: cfg.Sweeper.Concurrency,
		PendingTTL:  cfg.Sweeper.PendingTTL,
	}, logger)

	if cfg.RateLimit.RPS > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Reservations: handlers.NewReservationHandlers(reservationService, logger),
		CheckIn:      handlers.NewCheckInHandlers(checkInService, logger),
		Sessions:     handlers.NewSessionHandlers(sessionService, liveServer, logger),
		Payments:     handlers.NewPaymentHandlers(paymentService, walletService, logger),
		Health:       handlers.NewHealthHandler(sqlDB),
	}, middleware.AuthMiddleware(cfg.JWT.Secret), a.limiter)

	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger,
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)
	return a, nil
}

// Run starts the HTTP server, the expiry sweeper and the live feed pinger. It returns
// when ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.sweeper.Start(ctx)
		return nil
	})
	g.Go(func() error {
		a.hub.Start(ctx)
		return nil
	})
	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.StartCleanup(ctx, rateLimitCleanup)
			return nil
		})
	}
	g.Go(func() error {
		return a.server.Run(ctx)
	})

	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.rabbit != nil {
		if err := a.rabbit.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
