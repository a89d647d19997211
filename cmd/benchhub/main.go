package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/torosent/benchhub/internal/config"
	"github.com/torosent/benchhub/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, cfg, logger, os.Stdout, os.Stderr)
}

// serve runs the server until ctx ends, then reports the totals and
// evaluates thresholds.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdout, stderr io.Writer) error {
	srv, err := newServer(ctx, cfg, logger, stdout)
	if err != nil {
		return err
	}
	defer srv.close()

	if cfg.Progress {
		progress := srv.progress(stderr)
		progress.Start()
		defer func() {
			progress.Stop()
			fmt.Fprintln(stderr)
		}()
	}

	if err := srv.run(ctx); err != nil {
		return err
	}
	return srv.finish()
}
