package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/friedman-econ/friedman/internal/config"
	"github.com/friedman-econ/friedman/internal/logging"
	"github.com/friedman-econ/friedman/internal/server"
	"github.com/friedman-econ/friedman/internal/shell"
	"github.com/friedman-econ/friedman/internal/tlsutil"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	bind := flag.String("bind", "", "Address to bind to (overrides config)")
	showVersion := flag.Bool("version", false, "Show version")
	hashToken := flag.String("hash-token", "", "Print the token_hash for an API token and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *hashToken != "" {
		hash, err := server.HashToken(*hashToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		os.Exit(0)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Override port if specified
	if *port > 0 {
		cfg.Port = *port
	}
	// Override bind if specified
	if *bind != "" {
		cfg.Bind = *bind
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.TokenHash == "" && cfg.Bind != "127.0.0.1" && cfg.Bind != "localhost" && cfg.Bind != "::1" {
		fmt.Fprintf(os.Stderr, "Warning: bind=%q exposes unauthenticated endpoints. Set token_hash or prefer 127.0.0.1.\n", cfg.Bind)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	log := logging.New(logging.Config{
		Output:    os.Stderr,
		Level:     level,
		Component: "friedman-shell",
	})

	svc := shell.NewFromConfig(cfg, log)
	if target, err := svc.Engine(); err != nil {
		log.Warn("engine not available yet", map[string]any{"error": err.Error()})
	} else {
		log.Info("engine resolved", map[string]any{"mode": string(target.Mode), "command": target.Argv(nil)})
	}

	opts := server.Options{
		Service:   svc,
		Logger:    log.With("server"),
		Version:   version,
		Addr:      cfg.Addr(),
		TokenHash: cfg.TokenHash,
	}
	if cfg.TLS.Enabled {
		if err := tlsutil.EnsureCert(cfg.TLS.Cert, cfg.TLS.Key); err != nil {
			fmt.Fprintf(os.Stderr, "Error preparing TLS certificate: %v\n", err)
			os.Exit(1)
		}
		opts.CertFile, opts.KeyFile = cfg.TLS.Cert, cfg.TLS.Key
	}
	srv := server.New(opts)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigCh
		fmt.Fprintf(os.Stderr, "\nShutting down...\n")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown: %v\n", err)
		}
	}()

	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	<-done
}
