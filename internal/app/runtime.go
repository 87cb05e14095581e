package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
	"github.com/stadiumcard/stadiumcard-backend/pkg/db"
	"github.com/stadiumcard/stadiumcard-backend/pkg/instance"
	"github.com/stadiumcard/stadiumcard-backend/pkg/logger"
	"github.com/stadiumcard/stadiumcard-backend/pkg/migrate"
	"github.com/stadiumcard/stadiumcard-backend/pkg/redis"
	"github.com/stadiumcard/stadiumcard-backend/pkg/tracing"
)

// BootOptions says which shared clients a binary needs.
type BootOptions struct {
	Kind    string
	Redis   bool
	Tracing bool
}

// Runtime is the process-wide state a long-running binary opens before it
// wires its own services. Close releases it in reverse open order.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	Redis  *redis.Client

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// Boot loads .env and config, builds the leveled logger, then opens tracing,
// the database (running local migrations) and redis as requested. On error
// anything already opened is closed.
func Boot(ctx context.Context, opts BootOptions) (_ *Runtime, err error) {
	if opts.Kind == "" {
		return nil, fmt.Errorf("service kind required")
	}
	bootLog := logger.New(logger.Options{ServiceName: opts.Kind})
	if loadErr := godotenv.Load(); loadErr != nil {
		bootLog.Warn(ctx, "config.dotenv_missing")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = opts.Kind

	rt := &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: opts.Kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, rt.Close(context.Background()))
		}
	}()

	if opts.Tracing {
		shutdown, err := tracing.Setup(ctx, cfg.Tracing, "stadiumcard-"+opts.Kind, rt.Logger)
		if err != nil {
			return nil, fmt.Errorf("configure tracing: %w", err)
		}
		rt.onClose("tracing", shutdown)
	}

	rt.DB, err = db.New(ctx, cfg.DB, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt.onClose("database", func(context.Context) error { return rt.DB.Close() })

	if err := migrate.MaybeRunDev(ctx, cfg, rt.Logger, rt.DB); err != nil {
		return nil, err
	}

	if opts.Redis {
		rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		rt.onClose("redis", func(context.Context) error { return rt.Redis.Close() })
	}
	return rt, nil
}

// OnClose registers fn to run when the runtime closes, before anything
// registered earlier.
func (r *Runtime) OnClose(name string, fn func() error) {
	r.onClose(name, func(context.Context) error { return fn() })
}

func (r *Runtime) onClose(name string, fn func(context.Context) error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Close runs every registered closer even if some fail.
func (r *Runtime) Close(ctx context.Context) error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	r.closers = nil
	return errs
}

// Params hands the runtime's clients to NewDomain.
func (r *Runtime) Params() Params {
	return Params{Config: r.Config, Logger: r.Logger, DB: r.DB, Redis: r.Redis}
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the env,
// service kind and instance id plus any extra fields.
func (r *Runtime) SignalContext(extra map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fields := map[string]any{
		"env":         r.Config.App.Env,
		"serviceKind": r.Config.Service.Kind,
		"instance":    instance.GetID(),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return r.Logger.WithFields(ctx, fields), stop
}
