package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loykin/tuc"
)

const shutdownTimeout = 10 * time.Second

func runServeCommand(ctx context.Context, flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if flags.Daemonize {
		return daemonize(flags.PIDFile, flags.LogFile)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = removePidFile(flags.PIDFile) }()
	return serve(ctx, configPath, nil)
}

// serve runs the daemon until ctx is done. ready, when non-nil, receives the
// API server once it is listening.
func serve(ctx context.Context, configPath string, ready chan<- *http.Server) error {
	cfg, err := tuc.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	lg, closer, err := cfg.LoggerConfig().NewSlogger(nil)
	if err != nil {
		return fmt.Errorf("error configuring logger: %w", err)
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(lg)

	if cfg.Autostart.Executable == "" {
		if cmdline, err := autostartCommandLine(configPath); err == nil {
			cfg.Autostart.Executable = cmdline
		} else {
			lg.Warn("cannot resolve executable for autostart", slog.Any("error", err))
		}
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		if err := tuc.RegisterMetricsDefault(); err != nil {
			lg.Warn("failed to register metrics", slog.Any("error", err))
		}
		metricsSrv = tuc.NewMetricsServer(cfg.Metrics.Listen)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics server error", slog.Any("error", err))
			}
		}()
		lg.Info("serving metrics", slog.String("listen", cfg.Metrics.Listen))
	}

	m, err := tuc.New(cfg, tuc.Options{Logger: lg})
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	m.Boot(ctx)

	server, err := tuc.NewHTTPServer(cfg, m)
	if err != nil {
		m.Shutdown(context.Background())
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	lg.Info("tuc server started",
		slog.String("listen", server.Addr),
		slog.String("base_path", cfg.Server.BasePath),
		slog.Bool("tls", cfg.Server.TLS.Enabled),
		slog.Bool("auth", cfg.Server.Auth.Enabled))
	if ready != nil {
		ready <- server
	}

	<-ctx.Done()
	lg.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = server.Shutdown(sctx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(sctx)
	}
	// scheduler calls carry their own timeouts
	m.Shutdown(context.Background())
	return nil
}

// autostartCommandLine is the command stored in the Run key: this executable
// serving the same config file.
func autostartCommandLine(configPath string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	line := `"` + exe + `" serve`
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return "", err
		}
		line += ` --config "` + abs + `"`
	}
	return line, nil
}
