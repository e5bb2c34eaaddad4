// Command rentworker runs the monthly rent accrual. On the first day of
// each month it bumps every active tenant's amount due by their monthly
// rent times the number of billing months elapsed since the last update.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/config"
	"github.com/offthaspin/renting/internal/events"
	"github.com/offthaspin/renting/internal/repository"
	"github.com/offthaspin/renting/internal/telemetry"
)

func main() {
	godotenv.Load()

	if err := telemetry.InitTelemetry("rentworker"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	store := repository.NewPostgresStore(db)
	if err := store.InitDB(); err != nil {
		telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	var audit events.Publisher = events.NoopPublisher{}
	if cfg.KafkaBrokers != "" {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, events.TopicRentAccrued)
		defer kp.Close()
		audit = kp
	}

	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		telemetry.Logger.Warn("Failed to load timezone, using UTC", zap.Error(err))
		loc = time.UTC
	}

	accrue := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		asOf := time.Now().In(loc)
		updated, err := store.AccrueMonthlyRent(ctx, asOf)
		if err != nil {
			telemetry.Logger.Error("Rent accrual failed", zap.Error(err))
			return
		}
		telemetry.Logger.Info("Rent accrual complete",
			zap.Int("tenants_updated", updated),
			zap.Time("as_of", asOf))

		audit.Publish(ctx, asOf.Format("2006-01"), events.RentAccrued{
			TenantsUpdated: updated,
			AsOf:           asOf,
		})
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc("0 2 1 * *", accrue); err != nil {
		telemetry.Logger.Fatal("Failed to schedule accrual", zap.Error(err))
	}
	c.Start()

	telemetry.Logger.Info("Rent worker started", zap.String("schedule", "0 2 1 * *"))

	if os.Getenv("RUN_ON_START") == "true" {
		accrue()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down rent worker...")
	<-c.Stop().Done()
	telemetry.Logger.Info("Rent worker exited")
}
