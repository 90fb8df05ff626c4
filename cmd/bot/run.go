package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/highest-aircraft/internal/auth"
	"github.com/sakif/highest-aircraft/internal/scheduler"
	"github.com/sakif/highest-aircraft/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the schedulers (and the admin API when ADMIN_ADDR is set)",
	Long: `Run one job per enabled category: immediately, then on its schedule.
Stops on SIGINT/SIGTERM after the running cycles have been cancelled.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateForRun(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	broker, err := newBroker(cfg, store)
	if err != nil {
		return err
	}
	runner, err := newRunner(cfg, store, broker)
	if err != nil {
		return err
	}

	for _, category := range runner.Categories() {
		ok, err := broker.HasSession(ctx, category)
		if err != nil {
			return err
		}
		if !ok {
			logger.Warn("no stored X session; the first announcement will wait for interactive authorization",
				slog.String("category", string(category)),
				slog.String("hint", "run `bot authorize "+string(category)+"` beforehand"),
			)
		}
	}

	jobs, err := schedulerJobs(cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	sched := scheduler.New(runner, jobs, logger)
	g.Go(func() error { return sched.Run(gctx) })

	if cfg.Admin.Addr != "" {
		tokens, err := auth.NewTokenService(cfg.Admin.JWTSecret)
		if err != nil {
			return err
		}
		srv := server.New(server.Config{Addr: cfg.Admin.Addr, RunTimeout: maxRunTimeout(cfg)}, runner, store, tokens, logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// cycleContext bounds a single CLI-triggered cycle and cancels it on Ctrl+C.
func cycleContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	timeout := maxRunTimeout(cfg)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
