package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/tenantbook/libs/config"
	"github.com/md-rashed-zaman/tenantbook/libs/httpx"
	"github.com/md-rashed-zaman/tenantbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/tenantbook/libs/otel"
	"github.com/md-rashed-zaman/tenantbook/libs/runtime"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/freebusy"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/reconcile"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv load failed", "err", err)
		os.Exit(1)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	if err := run(logger, service); err != nil {
		logger.Error("booking service failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, service string) error {
	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "Asia/Jerusalem"))
	if err != nil {
		return err
	}
	freebusyTimeout, err := config.Duration("FREEBUSY_TIMEOUT", 8*time.Second)
	if err != nil {
		return err
	}
	durationMinutes, err := config.Int("BOOKING_DURATION_MINUTES", 60)
	if err != nil {
		return err
	}
	reconcileEvery, err := config.Duration("RECONCILE_INTERVAL", time.Minute)
	if err != nil {
		return err
	}
	staleAfter, err := config.Duration("RECONCILE_STALE_AFTER", 5*time.Minute)
	if err != nil {
		return err
	}
	ratePerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return err
	}
	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return err
	}
	slotsCacheTTL, err := config.Duration("SLOTS_CACHE_TTL", 15*time.Second)
	if err != nil {
		return err
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
	}
	keyPrefix := config.String("REDIS_KEY_PREFIX", "tenantbook")

	store, checks, closeStore, err := openStore(ctx, logger, rdb, keyPrefix)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewBookingMetrics(reg)

	gateway := freebusy.NewClient(freebusy.Config{
		BaseURL:    config.String("FREEBUSY_BASE_URL", freebusy.DefaultBaseURL),
		APIVersion: config.String("FREEBUSY_API_VERSION", freebusy.DefaultAPIVersion),
		Timeout:    freebusyTimeout,
	})
	resolver := availability.NewResolver(store, gateway, availability.Config{Location: loc}, logger, m)

	var publisher events.Publisher = events.Nop{}
	if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, map[string]string{
			events.TypeAppointmentBooked: config.String("KAFKA_TOPIC_BOOKED", events.TypeAppointmentBooked),
		}, logger)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; booked events are not published")
	}
	defer func() { _ = publisher.Close() }()

	coordinator := booking.NewCoordinator(store, resolver, gateway, publisher, logger, m, booking.Config{
		Location:        loc,
		Duration:        time.Duration(durationMinutes) * time.Minute,
		UpstreamTimeout: freebusyTimeout,
	})

	reconciler := reconcile.NewPendingReconciler(store, logger, m, reconcile.Config{
		Interval:   reconcileEvery,
		StaleAfter: staleAfter,
	})
	go reconciler.Run(ctx)

	var listing handlers.SlotResolver = resolver
	if slotsCacheTTL > 0 {
		listing = availability.NewCachedResolver(resolver, slotsCacheTTL, 0)
	}
	router := handlers.NewRouter(
		handlers.NewAdminHandler(store, logger),
		handlers.NewPublicHandler(store, listing, coordinator, logger),
	)
	base := runtime.NewBaseMuxWithReady(checks...)
	router.Handle("/healthz", base)
	router.Handle("/readyz", base)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	limiter := httpx.NewRateLimiter(ratePerMinute, time.Minute).Middleware()
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, ratePerMinute, time.Minute, keyPrefix+":rl").Middleware(logger, true)
	}
	httpHandler := httpx.Chain(router,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
			ExposedHeaders: []string{"Retry-After", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		limiter,
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}
