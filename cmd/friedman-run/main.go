package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/friedman-econ/friedman/internal/client"
	"github.com/friedman-econ/friedman/internal/config"
	"github.com/friedman-econ/friedman/internal/engine"
	"github.com/friedman-econ/friedman/internal/logging"
	"github.com/friedman-econ/friedman/internal/shell"
)

var version = "dev"

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1 // configuration or transport problems
	exitInvalid = 2 // bad usage or invalid_params
	exitEngine  = 3 // the engine could not produce a result
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, `friedman-run - run one econometrics operation and print its JSON result

Usage:
  friedman-run [flags] <operation> [key=value ...]

key=value pairs are merged over -params. Numbers, true, false and null are
passed as JSON; anything else as a string.

Flags:`)
	fs.PrintDefaults()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("friedman-run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file (in-process mode)")
	serverURL := fs.String("server", "", "URL of a running friedman-shell; empty runs the engine in-process")
	token := fs.String("token", os.Getenv("FRIEDMAN_TOKEN"), "API token for -server")
	jobID := fs.String("job", "", "Job ID; streams engine progress to stderr")
	paramsJSON := fs.String("params", "", "Parameters as a JSON object")
	dryRun := fs.Bool("dry-run", false, "Print the argument vector without running the engine")
	showVersion := fs.Bool("version", false, "Show version")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitInvalid
	}
	if *showVersion {
		fmt.Fprintln(stdout, version)
		return exitOK
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return exitInvalid
	}
	operation := rest[0]

	params, err := parseParams(*paramsJSON, rest[1:])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitInvalid
	}

	var b backend
	if *serverURL != "" {
		b = &remote{c: client.New(*serverURL, *token)}
	} else {
		cfg, err := config.LoadOrDefault(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error loading config: %v\n", err)
			return exitFailure
		}
		b = &local{svc: shell.NewFromConfig(cfg, cliLogger(cfg, stderr))}
	}

	if *dryRun {
		preview, err := b.Preview(ctx, operation, params)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitCode(err)
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(preview)
		return exitOK
	}

	onLine := func(line string) { fmt.Fprintln(stderr, line) }
	out, err := b.Invoke(ctx, operation, params, *jobID, onLine)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	stdout.Write(out)
	fmt.Fprintln(stdout)
	return exitOK
}

// cliLogger keeps structured logs off the terminal unless debugging.
func cliLogger(cfg *config.Config, stderr io.Writer) *logging.Logger {
	level, _ := logging.ParseLevel(cfg.LogLevel)
	if level != logging.LevelDebug {
		return logging.Discard()
	}
	return logging.New(logging.Config{Output: stderr, Level: level, Component: "friedman-run"})
}

func exitCode(err error) int {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case string(engine.KindInvalidParams), "not_found":
			// The remote backend only calls /operations/{name}, so
			// not_found is an unknown operation.
			return exitInvalid
		case "", "unauthorized", "internal_error":
			return exitFailure
		}
		return exitEngine
	}
	switch engine.KindOf(err) {
	case engine.KindInvalidParams:
		return exitInvalid
	case "":
		return exitFailure
	}
	return exitEngine
}
