// Command api serves the marketplace HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stadiumcard/stadiumcard-backend/api/controllers"
	"github.com/stadiumcard/stadiumcard-backend/api/routes"
	"github.com/stadiumcard/stadiumcard-backend/internal/app"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/metrics"
)

const (
	serviceKind       = "api"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	rt, err := app.Boot(context.Background(), app.BootOptions{Kind: serviceKind, Redis: true, Tracing: true})
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "api.boot_failed", err)
		os.Exit(1)
	}
	runErr := run(rt)
	if err := rt.Close(context.Background()); err != nil {
		rt.Logger.Error(context.Background(), "api.close_failed", err)
	}
	if runErr != nil {
		rt.Logger.Error(context.Background(), "api.stopped", runErr)
		os.Exit(1)
	}
}

func run(rt *app.Runtime) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	params := rt.Params()
	params.Metrics = metrics.NewMarketplaceMetrics(registry)
	domain, err := app.NewDomain(params)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	handler := routes.NewRouter(
		rt.Config,
		rt.Logger,
		rt.Redis,
		map[string]controllers.Pinger{"database": rt.DB, "redis": rt.Redis},
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		routes.Services{
			Listings: domain.Listings,
			Detail:   domain.Detail,
			Checkout: domain.Checkout,
			Orders:   domain.Orders,
			Copies:   domain.Resolver,
			Memories: domain.Memories,
			Moments:  domain.Moments,
		},
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = rt.Config.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := rt.SignalContext(map[string]any{"addr": server.Addr})
	defer stop()
	rt.Logger.Info(ctx, "api.listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		rt.Logger.Info(ctx, "api.stopped_gracefully")
		return nil
	}
}
