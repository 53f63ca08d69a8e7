// Command alignerd runs the aligner workflow daemon: the replenishment
// sweep, change broadcasting between nodes, and the metrics and signed
// attachment endpoints.
package main

import (
	"alignercore/internal/config"
	"alignercore/internal/daemon"
	"alignercore/internal/platform/logger"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("alignerd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		path  string
		check bool
		once  bool
	)
	fs.StringVar(&path, "config", "", "path to YAML config (default $"+config.PathEnv+")")
	fs.BoolVar(&check, "check", false, "validate configuration and exit")
	fs.BoolVar(&once, "once", false, "run one replenishment sweep, print alerts as JSON, and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if check {
		_, _ = fmt.Fprintln(stdout, "Configuration valid.")
		return 0
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Service: "alignerd"})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log, once, stdout); err != nil {
		log.Error("alignerd exited", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger, once bool, stdout io.Writer) error {
	app, err := daemon.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn("close", "error", err)
		}
	}()
	if once {
		alerts, err := app.Sweep(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(alerts)
	}
	return app.Run(ctx)
}
