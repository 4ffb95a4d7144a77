package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/craftline/orderdesk/internal/config"
	"github.com/craftline/orderdesk/internal/httpx"
	"github.com/craftline/orderdesk/internal/inventory"
	kafkax "github.com/craftline/orderdesk/internal/kafka"
	"github.com/craftline/orderdesk/internal/notify"
	"github.com/craftline/orderdesk/internal/orders"
	"github.com/craftline/orderdesk/internal/postgres"
	"github.com/craftline/orderdesk/internal/redisx"
	"github.com/craftline/orderdesk/internal/users"
	"github.com/craftline/orderdesk/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db, migrations.FS); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, logger)
	prod.Start(ctx)

	// Services
	invSvc := inventory.NewService(&inventory.Repo{DB: db}, logger)
	notifStore := &notify.Repo{DB: db}
	notifSvc := notify.NewService(notifStore,
		&redisx.Publisher{R: rdb, Channel: redisx.ChannelAdmin}, logger)
	orderSvc := orders.NewService(orders.ServiceDeps{
		Store:      &orders.Repo{DB: db},
		Users:      &users.Repo{DB: db},
		Ledger:     invSvc,
		Notifier:   notifSvc,
		Sink:       prod,
		Logger:     logger,
		CodePrefix: cfg.OrderCodePrefix,
		Producer:   cfg.ServiceName,
	})

	// Session hub fed by the admin channel
	hub := notify.NewHub(notifStore, logger)
	sub := rdb.Subscribe(ctx, redisx.ChannelAdmin)
	defer sub.Close()
	go hub.Run(ctx, sub.Channel())

	// HTTP
	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Svc: orderSvc}).Register(router)
	(&httpx.InventoryHandler{Svc: invSvc}).Register(router)
	(&httpx.NotificationsHandler{Svc: notifSvc, Hub: hub}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox -> flush & close writer
	cancel()          // stop hub and producer loops
	prod.WaitClosed() // drain
}
