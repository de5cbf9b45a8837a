package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/api"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/identity"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/mysql"
	natsbus "auction-engine/internal/infrastructure/nats"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/metrics"
	"auction-engine/internal/services"
	"auction-engine/internal/store/memory"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	log = logger.NewWithLevel(cfg.Log.Level)
	if cfg.Instance.ID == "" {
		cfg.Instance.ID = utils.GenerateID("node")
	}
	log = log.With("instance_id", cfg.Instance.ID)
	log.Info("Starting auction engine", "config", cfg.GetConfigString())

	if err := run(cfg, log); err != nil {
		log.Fatal("Auction engine stopped with error", "error", err)
	}
	log.Info("Auction engine stopped")
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rdb *redisClient.Client
	if cfg.Store.Backend == config.BackendRedis || cfg.Events.Backend == config.EventsRedis || cfg.Leader.Enabled {
		rdb = redisClient.NewClient(&redisClient.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		log.Info("Connected to Redis", "address", cfg.Redis.Address)
	}

	lots, users, closeStore, err := openStores(ctx, cfg, rdb, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	clk := clock.System{}
	connManager := websocket.NewConnectionManager(log)
	listener := services.NewEventListener(connManager, log)

	// With a shared bus every instance, the publisher included, hears events
	// through its subscriber, so the local listener is not also published to.
	var (
		eventPub   domain.EventPublisher = listener
		subscriber domain.EventSubscriber
	)
	switch cfg.Events.Backend {
	case config.EventsRedis:
		eventPub = redis.NewEventPublisher(rdb, cfg.Events.Channel)
		subscriber = redis.NewRedisEventSubscriber(rdb, cfg.Events.Channel, log)
	case config.EventsNATS:
		nc, err := natsbus.Connect(cfg.NATS.URL)
		if err != nil {
			return err
		}
		defer nc.Close()
		log.Info("Connected to NATS", "url", cfg.NATS.URL)
		eventPub = natsbus.NewEventPublisher(nc, cfg.Events.Channel)
		subscriber = natsbus.NewEventSubscriber(nc, cfg.Events.Channel, log)
	}

	var leaderElection domain.LeaderElection
	if cfg.Leader.Enabled {
		leaderElection = leader.NewRedisLeaderElection(rdb, "", cfg.Leader.TTL, log)
	}

	engine := services.NewBiddingEngine(lots, clk, eventPub, m, cfg.Auction.MaxBidRetries, log)
	query := services.NewQueryService(lots, clk)
	scheduler := services.NewLifecycleScheduler(cfg.Scheduler.Interval, lots, clk, eventPub,
		leaderElection, cfg.Instance.ID, m, log)
	identitySvc := identity.NewService(users, clk, identity.Config{
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   cfg.Auth.TokenTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	}, log)

	e := newEcho(log)
	api.RegisterRoutes(e, api.Deps{
		Engine:          engine,
		Query:           query,
		Identity:        identitySvc,
		DefaultDuration: cfg.Auction.DefaultDuration,
		Log:             log,
	})

	wsHandler := websocket.NewWebSocketHandler(engine, query, identitySvc, clk, connManager, log)
	e.GET("/ws/lots/:lotID", echo.WrapHandler(wsHandler.Router()))

	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"service":   "auction-engine",
			"instance":  cfg.Instance.ID,
			"store":     cfg.Store.Backend,
			"timestamp": clk.Now().Format(time.RFC3339),
		})
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Info("Starting HTTP server", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down auction engine...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = scheduler.Stop()
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return scheduler.Start(gctx)
	})

	if leaderElection != nil {
		g.Go(func() error {
			return scheduler.RunElection(gctx, cfg.Leader.TTL/3)
		})
	}

	if subscriber != nil {
		g.Go(func() error {
			err := listener.Start(gctx, subscriber)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// openStores picks the LotStore and UserStore for cfg.Store.Backend. The returned
// func releases whatever connection the stores hold.
func openStores(ctx context.Context, cfg *config.Config, rdb *redisClient.Client,
	log logger.Logger) (domain.LotStore, domain.UserStore, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMySQL:
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		db, err := mysql.Open(openCtx, cfg.MySQL)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := mysql.EnsureSchema(openCtx, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		log.Info("Connected to MySQL")
		return mysql.NewLotStore(db), mysql.NewUserStore(db), closeDB(db, log), nil

	case config.BackendRedis:
		return redis.NewLotStore(rdb), redis.NewUserStore(rdb), func() {}, nil

	default:
		log.Info("Using in-memory store")
		return memory.NewLotStore(), memory.NewUserStore(), func() {}, nil
	}
}

func closeDB(db *sql.DB, log logger.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}
}

func newEcho(log logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		MaxAge: 86400,
	}))

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		log.Debug("Request failed", "path", c.Request().URL.Path, "error", err)
		e.DefaultHTTPErrorHandler(err, c)
	}
	return e
}
