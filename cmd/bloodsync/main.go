// Command bloodsync runs the blood bank API and its maintenance tasks.
//
//	bloodsync serve          start the HTTP API
//	bloodsync bootstrap      create the DynamoDB tables
//	bloodsync seed           load default inventory and sample donors
//	bloodsync export-ledger  write the donation ledger to the blob store
package main

import (
	"bloodsync/internal/config"
	"bloodsync/internal/infra/persistence/dynamodb"
	"bloodsync/internal/logging"
	"bloodsync/internal/server"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

const usage = `usage: bloodsync [-env FILE] <serve|bootstrap|seed|export-ledger>`

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bloodsync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", ".env", "optional .env file with BLOODSYNC_* settings")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}
	command := fs.Arg(0)
	switch command {
	case "serve", "bootstrap", "seed", "export-ledger":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s\n", command, usage)
		return 2
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	switch command {
	case "bootstrap":
		err = bootstrap(ctx, cfg, stdout)
	case "seed":
		err = withApp(ctx, cfg, logger, func(a *app) error { return seed(ctx, a, stdout) })
	case "export-ledger":
		err = withApp(ctx, cfg, logger, func(a *app) error { return exportLedger(ctx, a, stdout) })
	case "serve":
		err = withApp(ctx, cfg, logger, func(a *app) error { return serve(ctx, a) })
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", command, err)
		return 1
	}
	return 0
}

func withApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, fn func(*app) error) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("close backends", zap.Error(cerr))
		}
	}()
	return fn(a)
}

func bootstrap(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	dcfg := dynamoConfig(cfg)
	client, err := dynamodb.NewClient(ctx, dcfg)
	if err != nil {
		return err
	}
	created, err := dynamodb.EnsureTables(ctx, client, dcfg)
	if err != nil {
		return err
	}
	for _, name := range created {
		_, _ = fmt.Fprintf(stdout, "created table %s\n", name)
	}
	_, _ = fmt.Fprintf(stdout, "%d tables ready\n", len(dynamodb.Tables(dcfg.TablePrefix)))
	return nil
}

func seed(ctx context.Context, a *app, stdout io.Writer) error {
	entries, err := a.service.SeedInventory(ctx, nil)
	if err != nil {
		return err
	}
	donors, err := a.service.SeedSampleDonors(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "seeded %d inventory groups and %d donors\n", len(entries), donors)
	return err
}

func exportLedger(ctx context.Context, a *app, stdout io.Writer) error {
	export, err := a.service.ExportLedger(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "exported %d donations to %s\n", export.Entries, export.Key)
	return err
}

// serve runs the HTTP server until ctx is cancelled, then shuts it down
// within the configured timeout.
func serve(ctx context.Context, a *app) error {
	if a.cfg.Seed.Inventory {
		if _, err := a.service.SeedInventory(ctx, nil); err != nil {
			return fmt.Errorf("seed inventory: %w", err)
		}
	}
	if a.cfg.HTTP.Mode != "" {
		gin.SetMode(a.cfg.HTTP.Mode)
	}
	srv := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      server.New(a.service, server.WithLogger(a.logger), server.WithGatherer(a.registry)).Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("storage", a.cfg.Storage.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("server exited")
	return nil
}
