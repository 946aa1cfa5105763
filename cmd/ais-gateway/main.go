// Command ais-gateway runs the AIS-to-NMEA-0183 gateway: it subscribes to
// an upstream vessel-position stream, decodes and re-encodes each record
// as NMEA-0183 sentences, and fans them out to a TCP broadcast server and
// a UDP datagram emitter. It is grounded on the teacher's cmd/semstreams
// entrypoint, generalized from a NATS/GraphQL service manager down to
// this gateway's fixed pipeline of upstream client, broadcast server,
// datagram emitter, and service controller.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frye/ais-to-nmea0183/config"
	"github.com/frye/ais-to-nmea0183/control"
	"github.com/frye/ais-to-nmea0183/metric"
	"github.com/frye/ais-to-nmea0183/service"
)

const appName = "ais-gateway"

// Version and BuildTime are overridden at link time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "%s: fatal panic: %v\n", appName, r)
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("%s %s (built %s)\n", appName, Version, BuildTime)
		return nil
	}
	if cli.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfigFile(cli.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cli.Validate {
		logger.Info("configuration is valid", "path", cli.ConfigPath)
		return nil
	}

	return runGateway(logger, cli, cfg)
}

func runGateway(logger *slog.Logger, cli *cliConfig, cfg *config.Config) error {
	metrics := metric.NewMetrics()
	registry := metric.NewMetricsRegistry()
	safeCfg := config.NewSafeConfig(cfg)

	controller, err := service.New(appName,
		safeCfg,
		service.WithLogger(logger.With("component", "service")),
		service.WithMetrics(metrics),
		service.WithMetricsRegistry(registry),
		service.WithClientTLS(cfg.Security.TLS.Client),
	)
	if err != nil {
		return fmt.Errorf("constructing service controller: %w", err)
	}

	if err := controller.Initialize(); err != nil {
		return fmt.Errorf("initializing service controller: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("starting service controller: %w", err)
	}

	var controlServer *control.Server
	if cli.ControlAddr != "" {
		controlServer = control.New(cli.ControlAddr, controller,
			control.WithLogger(logger.With("component", "control")))
		if err := controlServer.Start(); err != nil {
			return fmt.Errorf("starting control surface: %w", err)
		}
		logger.Info("control surface listening", "addr", cli.ControlAddr)
	}

	logger.Info("ais-gateway running", "stream_url", cfg.StreamURL)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	return shutdown(logger, controller, controlServer, cli.ShutdownTimeout)
}

// shutdown tears components down within a shared deadline, stopping the
// control surface first so no new operator requests race the in-flight
// drain, then the controller itself.
func shutdown(logger *slog.Logger, controller *service.Controller, controlServer *control.Server, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	if controlServer != nil {
		if err := controlServer.Stop(remaining(deadline)); err != nil {
			logger.Error("control surface shutdown error", "error", err)
		}
	}

	if err := controller.Stop(remaining(deadline)); err != nil {
		logger.Error("service controller shutdown error", "error", err)
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

func remaining(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}
