// Command worker consumes payment confirmations from pub/sub and applies
// them to orders.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stadiumcard/stadiumcard-backend/internal/app"
	"github.com/stadiumcard/stadiumcard-backend/internal/fulfillment"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/idempotency"
	"github.com/stadiumcard/stadiumcard-backend/pkg/pubsub"
)

const serviceKind = "worker"

func main() {
	rt, err := app.Boot(context.Background(), app.BootOptions{Kind: serviceKind, Redis: true, Tracing: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "worker.boot_failed", err)
		os.Exit(1)
	}
	runErr := run(rt)
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Error(context.Background(), "worker.close_failed", err)
	}
	if runErr != nil {
		rt.Logger.Error(context.Background(), "worker.stopped", runErr)
		os.Exit(1)
	}
}

func run(rt *app.Runtime) error {
	subs, err := pubsub.NewClient(context.Background(), rt.Config.GCP, rt.Config.PubSub, rt.Logger, pubsub.RequireSubscriptions)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	rt.OnClose("pubsub", subs.Close)

	params := rt.Params()
	params.Metrics = metrics.NewMarketplaceMetrics(prometheus.DefaultRegisterer)
	domain, err := app.NewDomain(params)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	dedupe, err := idempotency.NewManager(rt.Redis, rt.Config.Eventing.ConsumerIdempotencyTTL)
	if err != nil {
		return err
	}
	payments, err := fulfillment.NewConsumer(domain.Payments, subs.PaymentSubscription(), dedupe, rt.Logger)
	if err != nil {
		return err
	}
	service, err := NewService(ServiceParams{
		Logger:   rt.Logger,
		DB:       rt.DB,
		Redis:    rt.Redis,
		PubSub:   subs,
		Payments: payments,
	})
	if err != nil {
		return err
	}

	ctx, stop := rt.SignalContext(map[string]any{"subscription": rt.Config.PubSub.PaymentSubscription})
	defer stop()
	rt.Logger.Info(ctx, "worker.started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(ctx, "worker.stopped_gracefully")
	return nil
}
