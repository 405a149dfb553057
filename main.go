package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"galileo/agent"
	"galileo/client"
	"galileo/config"
	"galileo/scheduler"
	"galileo/sink"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// debugLogFile receives logs in TUI mode when --log-level=debug, since stderr is covered by the UI.
const debugLogFile = "galileo.log"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if errors.Is(err, config.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "galileo: %v\n", err)
		fmt.Fprintln(os.Stderr, "usage: galileo [OPTIONS] TOPIC (see --help)")
		return exitUsage
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           cfg.LogLevel,
		ReportTimestamp: true,
		Prefix:          "galileo",
	})

	if cfg.APIKey == "" {
		logger.Warn("no API key configured", "hint", "use --api-key, set "+config.EnvOpenAIAPIKey+" or add it to "+config.DotenvFile)
	}

	agents, err := cfg.AgentConfigs()
	if err != nil {
		logger.Error("invalid prompt template", "error", err)
		return exitError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runLogger := logger
	if cfg.TUI {
		out, closeLog := tuiLogOutput(cfg.LogLevel)
		defer closeLog()
		runLogger = log.NewWithOptions(out, log.Options{Level: cfg.LogLevel, ReportTimestamp: true, Prefix: "galileo"})
	}

	gen := client.New(client.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Logger:  runLogger.WithPrefix("client"),
	})
	defer gen.Close()

	if cfg.TUI {
		err = runTUI(ctx, cfg, agents, gen, runLogger)
	} else {
		err = runConsole(ctx, cfg, agents, gen, runLogger)
	}

	total := gen.Usage().Total()
	logger.Info("session usage",
		"tokens", total.TotalTokens,
		"cost_usd", total.Cost,
		"duration", gen.Usage().SessionDuration(),
	)

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("dialogue stopped")
		return exitOK
	default:
		var turnErr *scheduler.TurnError
		if errors.As(err, &turnErr) {
			logger.Error("dialogue halted", "agent", turnErr.Agent, "turn", turnErr.Turn, "error", turnErr.Err)
		} else {
			logger.Error("dialogue halted", "error", err)
		}
		return exitError
	}
}

// newDialogue builds both agents around a shared generator. The first config speaks first.
func newDialogue(configs [2]agent.Config, gen agent.Generator, out sink.TokenSink, turns sink.TurnSink, logger *log.Logger) (*scheduler.Scheduler, error) {
	first, err := agent.New(configs[0], gen, out, logger)
	if err != nil {
		return nil, err
	}
	second, err := agent.New(configs[1], gen, out, logger)
	if err != nil {
		return nil, err
	}
	return scheduler.New(first, second, scheduler.Options{Sink: turns, Logger: logger}), nil
}

func runConsole(ctx context.Context, cfg *config.Config, configs [2]agent.Config, gen agent.Generator, logger *log.Logger) error {
	console := sink.NewConsole(os.Stdout)
	dialogue, err := newDialogue(configs, gen, console, console, logger)
	if err != nil {
		return err
	}
	logger.Debug("starting dialogue", "topic", cfg.Topic, "first", configs[0].Role.Name, "second", configs[1].Role.Name)
	return dialogue.Run(ctx, cfg.Seed)
}

func tuiLogOutput(level log.Level) (io.Writer, func()) {
	if level > log.DebugLevel {
		return io.Discard, func() {}
	}
	f, err := os.OpenFile(debugLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return io.Discard, func() {}
	}
	return f, func() { f.Close() }
}
