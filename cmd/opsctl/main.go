// Command opsctl runs one-off marketplace operations against the configured
// database: seeding live moments, resolving buyer copies, running cron
// jobs by hand, replaying parked outbox events and minting test tokens.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stadiumcard/stadiumcard-backend/internal/app"
	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/migrate"
)

// runtime is what every subcommand needs once connected.
type runtime struct {
	params app.Params
	domain *app.Domain
	close  func() error
}

type opener func(ctx context.Context) (*runtime, error)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(openFromEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	var rt *runtime
	root := &cobra.Command{
		Use:          "opsctl",
		Short:        "Operate the marketplace from the command line",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			var err error
			rt, err = open(cmd.Context())
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if rt == nil || rt.close == nil {
				return nil
			}
			return rt.close()
		},
	}
	get := func() *runtime { return rt }
	root.AddCommand(
		newMomentsCmd(get),
		newOrdersCmd(get),
		newListingsCmd(get),
		newJobsCmd(get),
		newOutboxCmd(get),
		newTokenCmd(get),
	)
	return root
}

func openFromEnv(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = "opsctl"
	logg := logger.New(logger.Options{
		ServiceName: "opsctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}

	params := app.Params{Config: cfg, Logger: logg, DB: dbClient}
	domain, err := app.NewDomain(params)
	if err != nil {
		dbClient.Close()
		return nil, fmt.Errorf("wire services: %w", err)
	}
	return &runtime{params: params, domain: domain, close: dbClient.Close}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
