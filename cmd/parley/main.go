package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/germanamz/parley/pkg/client"
	"github.com/germanamz/parley/pkg/config"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: parley [flags]\n\nA terminal chat client.\n\nFlags:\n")
		flag.PrintDefaults()
	}

	configPath := flag.String("config", "parley.yaml", "path to configuration file (ignored if missing)")
	envFile := flag.String("env", ".env", "path to .env file (ignored if missing)")
	logFile := flag.String("log-file", "", "write logs to this file (overrides log_file in config)")
	signup := flag.Bool("signup", false, "start with the account creation form")
	demo := flag.Bool("demo", false, "run against an in-process demo backend")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*configPath, *logFile, *signup, *demo); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run loads the config, restores or establishes a session and runs the TUI
// until the user quits.
func run(configPath, logFile string, signup, demo bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	if demo {
		stop, err := startDemo(ctx, &cfg, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	c, err := client.New(cfg, client.WithLogger(log))
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		log.Warn("start", "err", err)
	}

	if err := authenticate(ctx, c, signup); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return err
	}

	model := newAppModel(ctx, c, cfg.EventBuffer)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Send the program reference so the model can start the bridge.
	go func() {
		p.Send(programReadyMsg{program: p})
	}()

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// newLogger logs to cfg.LogFile, or nowhere when it is empty: the terminal
// belongs to the TUI.
func newLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	if cfg.LogFile == "" {
		return slog.New(slog.DiscardHandler), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: cfg.Level()}))

	return log, f.Close, nil
}
