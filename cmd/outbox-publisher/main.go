// Command outbox-publisher drains committed outbox rows onto pub/sub.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stadiumcard/stadiumcard-backend/internal/app"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox"
	"github.com/stadiumcard/stadiumcard-backend/pkg/outbox/registry"
	"github.com/stadiumcard/stadiumcard-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	rt, err := app.Boot(context.Background(), app.BootOptions{Kind: serviceKind, Tracing: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "outbox.boot_failed", err)
		os.Exit(1)
	}
	runErr := run(rt)
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Error(context.Background(), "outbox.close_failed", err)
	}
	if runErr != nil {
		rt.Logger.Error(context.Background(), "outbox.publisher_stopped", runErr)
		os.Exit(1)
	}
}

func run(rt *app.Runtime) error {
	// Routing is checked before any network call.
	routes, err := registry.NewEventRegistry(rt.Config.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	topics, err := pubsub.NewClient(context.Background(), rt.Config.GCP, rt.Config.PubSub, rt.Logger, pubsub.RequireTopics)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	rt.OnClose("pubsub", topics.Close)

	gdb := rt.DB.DB()
	service, err := NewService(ServiceParams{
		Config:        rt.Config,
		Logger:        rt.Logger,
		DB:            rt.DB,
		Topics:        topics,
		Repository:    outbox.NewRepository(gdb),
		Registry:      routes,
		DLQRepository: outbox.NewDLQRepository(gdb),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	ctx, stop := rt.SignalContext(map[string]any{"topics": routes.Topics()})
	defer stop()
	rt.Logger.Info(ctx, "outbox.publisher_started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(ctx, "outbox.publisher_stopped_gracefully")
	return nil
}
