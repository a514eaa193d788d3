package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-appointment-booking/internal/api"
	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/config"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/logger"
	"github.com/hackgods/clinic-appointment-booking/internal/metrics"
	"github.com/hackgods/clinic-appointment-booking/internal/notification"
	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api-server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	log.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("clinic_timezone", cfg.ClinicLocation.String()),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	applied, err := db.Migrate(rootCtx, pgPool)
	if err != nil {
		return err
	}
	log.Info("schema up to date", zap.Int("applied", applied))

	// Redis is optional; the partial unique index keeps bookings correct without it
	var (
		rdb    *redis.Client
		locker redisclient.Locker = redisclient.NoopLocker{}
	)
	rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Warn("redis unavailable, running without slot locks and event stream", zap.Error(err))
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, log)
		log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	m := metrics.NewCollector("clinic")
	repo := appointment.NewPgRepository(pgPool, cfg.ClinicLocation)
	noteStore := notification.NewPgStore(pgPool)

	sinks := []appointment.EventSink{
		appointment.NewEventLogSink(repo),
		notification.NewNotifier(noteStore, log.Named("notifier"), cfg.ClinicLocation),
	}
	if rdb != nil && cfg.EventStream != "-" {
		sinks = append(sinks, streamSink(redisclient.NewStreamPublisher(rdb, cfg.EventStream, log)))
	}

	dispatcher := appointment.NewDispatcher(log.Named("events"), cfg.EventBuffer, appointment.DispatcherHooks{
		OnDelivered: func(ev appointment.LifecycleEvent) { m.EventsDelivered.WithLabelValues(string(ev.Type)).Inc() },
		OnFailed: func(ev appointment.LifecycleEvent, _ error) {
			m.EventsFailed.WithLabelValues(string(ev.Type)).Inc()
		},
		OnDropped: func(appointment.LifecycleEvent) { m.EventsDropped.Inc() },
	}, sinks...)

	svc := appointment.NewService(repo, locker, dispatcher, log.Named("appointments"),
		appointment.WithLocation(cfg.ClinicLocation))

	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Notifications: notification.NewService(noteStore),
		Logger:        log,
		Metrics:       m,
		Location:      cfg.ClinicLocation,
		PgPool:        pgPool,
		Redis:         rdb,
		EventBacklog:  dispatcher.Pending,
		PoolStats:     func() db.PoolStats { return db.Stats(pgPool) },
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down api-server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// requests are drained, so nothing emits anymore
		dispatcher.Close(cfg.ShutdownTimeout)
		return err
	})

	return g.Wait()
}

// streamSink publishes lifecycle events to the Redis stream.
func streamSink(pub *redisclient.StreamPublisher) appointment.EventSink {
	return appointment.EventSinkFunc(func(ctx context.Context, ev appointment.LifecycleEvent) error {
		_, err := pub.Publish(ctx, string(ev.Type), ev)
		return err
	})
}
