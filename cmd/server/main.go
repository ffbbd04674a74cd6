package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linemk/bookstore/internal/app"
	"github.com/linemk/bookstore/internal/config"
	"github.com/linemk/bookstore/internal/events"
	"github.com/linemk/bookstore/internal/lib/logger"
	"github.com/linemk/bookstore/internal/service"
	"github.com/linemk/bookstore/internal/storage"
	"github.com/linemk/bookstore/internal/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

const (
	serviceName    = "bookstore"
	serviceVersion = "1.0.0"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	ctx := context.Background()

	// трейсы экспортируются только при заданном OTLP endpoint
	if cfg.Telemetry.OTLPEndpoint != "" {
		shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			panic(errors.Wrap(err, "failed to init tracer provider"))
		}
		defer shutdownTracer(context.Background())
	}

	var metricsHandler http.Handler
	if cfg.Telemetry.MetricsEnabled {
		handler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
		if err != nil {
			panic(errors.Wrap(err, "failed to init meter provider"))
		}
		defer shutdownMeter(context.Background())
		metricsHandler = handler
	}

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(ctx, log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.DB.Close()

	shopMetrics, err := telemetry.NewShopMetrics(otel.GetMeterProvider())
	if err != nil {
		panic(errors.Wrap(err, "failed to create shop metrics"))
	}

	// без брокеров события заказов не публикуются
	var publisher service.EventPublisher
	if cfg.Kafka.Enabled() {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
		log.Info("order events enabled", slog.String("topic", cfg.Kafka.Topic))
	}

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	bookRepo := storage.NewBookRepository(application.DB)
	cartRepo := storage.NewCartRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)

	services := app.Services{
		Auth:     service.NewAuthService(log, userRepo, time.Duration(cfg.JWT.TokenTTL)*time.Minute),
		Cart:     service.NewCartService(log, application.DB, cartRepo, bookRepo),
		Checkout: service.NewCheckoutService(log, application.DB, cartRepo, bookRepo, orderRepo, publisher, shopMetrics),
		Orders:   service.NewOrderService(log, application.DB, bookRepo, orderRepo, publisher, shopMetrics),
	}

	router := application.NewRouter(services, metricsHandler)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
