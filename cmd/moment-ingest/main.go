// Command moment-ingest reads live moment results from kafka and
// finalizes them into listing provenance.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stadiumcard/stadiumcard-backend/internal/app"
	"github.com/stadiumcard/stadiumcard-backend/internal/moments"
	"github.com/stadiumcard/stadiumcard-backend/pkg/kafka"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
)

const serviceKind = "moment-ingest"

func main() {
	rt, err := app.Boot(context.Background(), app.BootOptions{Kind: serviceKind, Tracing: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "ingest.boot_failed", err)
		os.Exit(1)
	}
	runErr := run(rt)
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Error(context.Background(), "ingest.close_failed", err)
	}
	if runErr != nil {
		rt.Logger.Error(context.Background(), "ingest.stopped", runErr)
		os.Exit(1)
	}
}

func run(rt *app.Runtime) error {
	params := rt.Params()
	params.Metrics = metrics.NewMarketplaceMetrics(prometheus.DefaultRegisterer)
	domain, err := app.NewDomain(params)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	// The consumer closes its reader when Start returns.
	consumer, err := kafka.NewConsumer(rt.Config.Kafka, rt.Logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}
	ingestor := moments.NewIngestor(domain.Moments, params.Metrics, rt.Logger)

	ctx, stop := rt.SignalContext(map[string]any{
		"topic": rt.Config.Kafka.LiveMomentsTopic,
		"group": rt.Config.Kafka.GroupID,
	})
	defer stop()
	rt.Logger.Info(ctx, "ingest.started")
	if err := consumer.Start(ctx, ingestor.Handler()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(ctx, "ingest.stopped_gracefully")
	return nil
}
