// Package main is the entry point for the rubolt debug console.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/rubolt/internal/config"
	"github.com/dshills/rubolt/internal/debug"
	"github.com/dshills/rubolt/internal/jit"
	"github.com/dshills/rubolt/internal/trace"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}

	steps, err := loadTrace(opts.TracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	session := debug.NewSession()
	session.SetConditionEvaluator(debug.NewLuaCondition())
	if cfg.Debug.BreakpointFile != "" {
		if err := session.Registry().Load(cfg.Debug.BreakpointFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to load breakpoints: %v\n", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The manager exists even when promotion starts disabled: a config
	// reload may enable it mid-run, and disabled managers still count
	// calls without issuing requests.
	manager := jit.NewManager(cfg.ManagerConfig())
	defer manager.Shutdown()

	worker := jit.NewWorker(manager, jit.StubGenerator{}, cfg.JIT.QueueSize)
	worker.OnError = func(name string, err error) {
		fmt.Fprintf(os.Stderr, "Warning: compile %s: %v\n", name, err)
	}
	defer worker.Close()
	go worker.Run(ctx)

	replayer := trace.NewReplayer(session, manager, steps)
	replayer.OnPromotion = func(req jit.PromotionRequest) {
		worker.Enqueue(req)
	}

	// Live reload applies the JIT tunables; already-compiled functions
	// are untouched.
	watcher, err := config.NewWatcher(opts.ConfigPath, func(cfg config.Config) {
		manager.SetHotThreshold(cfg.JIT.HotThreshold)
		manager.SetEnabled(cfg.JIT.Enabled)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config reload unavailable: %v\n", err)
	} else {
		defer watcher.Close()
		go watcher.Run(ctx)
	}

	// Ctrl-C pauses the replay instead of killing the process; a second
	// signal while already paused is left to the console's quit command.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for range signals {
			session.Pause()
		}
	}()

	console := newConsole(session, manager, replayer, os.Stdin, os.Stdout)
	if err := console.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.Debug.BreakpointFile != "" {
		if err := session.Registry().Save(cfg.Debug.BreakpointFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save breakpoints: %v\n", err)
		}
	}
	return 0
}

type options struct {
	ConfigPath string
	TracePath  string
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "rubolt.toml", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "rubolt.toml", "Path to configuration file (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Rubolt - execution trace debugger\n\n")
		fmt.Fprintf(os.Stderr, "Usage: rubolt [options] <trace-file>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  rubolt run.trace            Replay a trace\n")
		fmt.Fprintf(os.Stderr, "  rubolt -c dev.toml run.trace\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Rubolt %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	opts.TracePath = flag.Arg(0)

	return opts
}

func loadTrace(path string) ([]trace.Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	steps, err := trace.Parse(f)
	if err != nil {
		return nil, err
	}
	return steps, nil
}
