// cmd/foundry/main.go
//
// Entry point for the foundry engine.
//
// Flow:
// 1. Initialize the .foundry directory in the current project
// 2. Wire the orchestrator from config
// 3. Start the HTTP API (when enabled) and the terminal dashboard
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/kingrea/foundry/internal/config"
	"github.com/kingrea/foundry/internal/logbook"
	"github.com/kingrea/foundry/internal/orchestrator"
	"github.com/kingrea/foundry/internal/server"
	"github.com/kingrea/foundry/internal/tui"
)

func main() {
	headless := flag.Bool("headless", false, "run the engine and HTTP API without the dashboard")
	flag.Parse()

	if err := run(*headless); err != nil {
		fmt.Fprintf(os.Stderr, "foundry: %v\n", err)
		os.Exit(1)
	}
}

func run(headless bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	if err := config.InitFoundryDir(cwd); err != nil {
		return err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return err
	}

	log, err := logbook.New(filepath.Join(cfg.LogsDir(), "engine.log"))
	if err != nil {
		return err
	}

	engine, err := orchestrator.New(cfg, orchestrator.WithLogbook(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Close()

	settings := server.SettingsFromConfig(cfg)
	if settings.Enabled {
		api, err := server.New(settings, engine, server.WithLogger(log.Scoped("server")))
		if err != nil {
			return err
		}
		if err := api.Start(ctx); err != nil {
			return err
		}
		defer func() {
			_ = api.Shutdown(context.Background())
		}()
		fmt.Printf("API listening on %s\n", api.BaseURL())
	}

	if headless {
		fmt.Println("Running headless. Ctrl+C to stop.")
		<-ctx.Done()
		return nil
	}

	return tui.Run(engine, tui.WithLogbook(log.Scoped("tui")))
}
