package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/version"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (optional)")
	port := flag.String("port", "", "listen port or address, overrides config and PORT")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", envOr("LOG_FORMAT", "text"), "Log format: text or json")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	if err := logging.Setup(logging.Options{
		Level:  *logLevel,
		Format: *logFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
		sanitized := cfg.Sanitize()
		cfg = &sanitized
	}

	slog.Info("starting chat relay", "version", version.String(), "port", cfg.Port)

	srv := server.New(cfg, nil)
	srv.StartHub()

	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	case s := <-sig:
		slog.Info("received signal, shutting down", "signal", s.String())
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		slog.Error("HTTP shutdown", "err", err)
	}
	if err := srv.Hub().Shutdown(cfg.ShutdownTimeout); err != nil {
		slog.Error("hub shutdown", "err", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
