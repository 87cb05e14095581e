// Command cron-worker runs the periodic marketplace jobs under a redis
// lease so only one replica works a cycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stadiumcard/stadiumcard-backend/internal/app"
	"github.com/stadiumcard/stadiumcard-backend/internal/cron"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
)

const serviceKind = "cron-worker"

func main() {
	rt, err := app.Boot(context.Background(), app.BootOptions{Kind: serviceKind, Redis: true, Tracing: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "cron.boot_failed", err)
		os.Exit(1)
	}
	runErr := run(rt)
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Error(context.Background(), "cron.close_failed", err)
	}
	if runErr != nil {
		rt.Logger.Error(context.Background(), "cron.stopped", runErr)
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
	jobs, err := domain.CronJobs(params)
	if err != nil {
		return fmt.Errorf("build jobs: %w", err)
	}

	lock, err := cron.NewRedisLock(rt.Redis, rt.Redis.LockKey(lockName(rt.Config.App.Env)), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	ctx, stop := rt.SignalContext(map[string]any{"jobs": len(jobs.Jobs())})
	defer stop()
	rt.Logger.Info(ctx, "cron.started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(ctx, "cron.stopped_gracefully")
	return nil
}

// lockName scopes the lease per environment.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceKind + ":" + env
}
