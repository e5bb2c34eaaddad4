package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/api"
	"github.com/offthaspin/renting/internal/config"
	"github.com/offthaspin/renting/internal/daraja"
	"github.com/offthaspin/renting/internal/engine"
	"github.com/offthaspin/renting/internal/events"
	"github.com/offthaspin/renting/internal/ledger"
	"github.com/offthaspin/renting/internal/notify"
	"github.com/offthaspin/renting/internal/repository"
	"github.com/offthaspin/renting/internal/resolve"
	"github.com/offthaspin/renting/internal/telemetry"
)

func main() {
	godotenv.Load()

	if err := telemetry.InitTelemetry("renting"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	cfg := config.Load()

	telemetry.Logger.Info("Starting reconciliation server")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	store := repository.NewPostgresStore(db)
	if err := store.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	// Realtime bus. The dashboard keeps working without it.
	var bus notify.RealtimeBus = notify.NoopBus{}
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Warn("NATS unavailable, realtime updates disabled", zap.Error(err))
		} else {
			defer nc.Close()
			bus = notify.NewNATSBus(nc)
		}
	}

	var sms notify.SMSSender = notify.NoopSMS{}
	if cfg.SMSGatewayURL != "" {
		sms = notify.NewHTTPSMSSender(cfg.SMSGatewayURL, cfg.SMSAPIKey)
	}
	dispatcher := notify.NewDispatcher(sms, bus, 10*time.Second)

	var audit events.Publisher = events.NoopPublisher{}
	if cfg.KafkaBrokers != "" {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, events.TopicPaymentRecorded)
		defer kp.Close()
		audit = kp
	}

	// Post-commit transaction verification against Daraja. Advisory only,
	// so it is switched off unless credentials are present.
	var verifier daraja.Verifier = daraja.NoopVerifier{}
	if cfg.DarajaConsumerKey != "" && cfg.DarajaConsumerSecret != "" {
		var tokens daraja.TokenCache = daraja.NewMemoryTokenCache()
		if cfg.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				telemetry.Logger.Warn("bad REDIS_URL, using in-process token cache", zap.Error(err))
			} else {
				tokens = daraja.NewRedisTokenCache(redis.NewClient(opts))
			}
		}
		verifier = daraja.NewClient(daraja.Config{
			BaseURL:            cfg.DarajaBaseURL,
			ConsumerKey:        cfg.DarajaConsumerKey,
			ConsumerSecret:     cfg.DarajaConsumerSecret,
			Initiator:          cfg.DarajaInitiator,
			SecurityCredential: cfg.DarajaSecurityCredential,
		}, tokens)
	}

	resolver := resolve.NewResolver(store, cfg.CountryCode)
	writer := ledger.NewWriter(store)
	reconciler := engine.NewReconciler(store, resolver, writer, dispatcher, audit, verifier)

	router := api.NewRouter(reconciler, cfg.WebhookTimeout, cfg.DefaultShortCode)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		telemetry.Logger.Info("Reconciliation server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let in-flight SMS and realtime notifications finish.
	reconciler.Drain()

	telemetry.Logger.Info("Server exited")
}
