package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"classhub/internal/app"
	"classhub/internal/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdout, os.Stderr).Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:           "classhub",
		Usage:          "real-time session hub for classroom learning tools",
		Version:        version,
		Writer:         stdout,
		ErrWriter:      stderr,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file; hub settings reload when it changes",
				Sources: cli.EnvVars("CLASSHUB_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "env-file",
				Usage:   "load environment variables from this file first",
				Sources: cli.EnvVars("CLASSHUB_ENV_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP and WebSocket server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address, overrides http.host and http.port",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return serve(ctx, cmd, stderr)
				},
			},
			{
				Name:  "check-config",
				Usage: "load and validate the configuration, then exit",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					fmt.Fprintf(stdout, "configuration ok: listen=%s reap_interval=%s inactivity_threshold=%s audit_log=%t\n",
						cfg.HTTP.Addr(), cfg.Hub.ReapInterval, cfg.Hub.InactivityThreshold, cfg.Database.Enabled)
					return nil
				},
			},
		},
	}
}

// loadConfig applies the env file, then file > env > defaults, then --addr.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if err := config.LoadEnvFile(cmd.String("env-file")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if addr := cmd.String("addr"); addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid --addr %q: %w", addr, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid --addr port %q: %w", port, err)
		}
		if host == "" {
			host = "0.0.0.0"
		}
		cfg.HTTP.Host, cfg.HTTP.Port = host, p
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// serve runs until ctx is cancelled, then shuts down within the configured
// timeout.
func serve(ctx context.Context, cmd *cli.Command, logOut io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, level, err := app.NewLogger(cfg.Log, logOut)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	application, err := app.NewApplication(cfg, app.Options{
		ConfigPath: cmd.String("config"),
		Logger:     logger,
		LogLevel:   level,
	})
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	start := time.Now()
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	logger.Info("bye", "shutdown_took", time.Since(start))
	return nil
}
