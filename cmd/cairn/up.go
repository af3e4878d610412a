// cmd/cairn/up.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cairnhq/cairn/internal/command"
	"github.com/cairnhq/cairn/internal/config"
	"github.com/cairnhq/cairn/internal/events"
	"github.com/cairnhq/cairn/internal/generator"
	"github.com/cairnhq/cairn/internal/notifications"
	"github.com/cairnhq/cairn/internal/orchestrator"
	"github.com/cairnhq/cairn/internal/server"
)

func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run the orchestrator service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp()
		},
	}
}

func runUp() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	llm := generator.NewHTTPGenerator(cfg.Generator.Endpoint, cfg.Generator.Model, cfg.Generator.APIKey)

	var publishers events.MultiPublisher

	// Optional embedded NATS bus.
	var natsServer *events.EmbeddedServer
	if cfg.Orchestrator.EnableEventBus {
		natsServer = events.NewEmbeddedServer(cfg.Orchestrator.NATSPort)
		if err := natsServer.Start(); err != nil {
			return fmt.Errorf("start event bus: %w", err)
		}
		defer natsServer.Shutdown()
		fmt.Printf("[cairn] event bus on %s\n", natsServer.URL())

		pub, err := events.Connect(natsServer.URL())
		if err != nil {
			return fmt.Errorf("connect event bus: %w", err)
		}
		publishers = append(publishers, pub)
	}

	// Optional HTTP command API with websocket event stream.
	var httpServer *server.Server
	orchOpts := orchestrator.Options{
		ProjectRoot: flagProjectRoot,
		CairnHome:   flagCairnHome,
		Config:      cfg,
		LLM:         llm,
	}

	// The server needs the orchestrator for dispatch and the
	// orchestrator needs the server's hub as an event sink; a late
	// binding breaks the cycle.
	dispatcher := &lateCommander{}
	if cfg.Orchestrator.EnableHTTPServer {
		httpServer = server.New(dispatcher)
		publishers = append(publishers, httpServer.Hub())
	}
	if len(publishers) > 0 {
		orchOpts.Publisher = publishers
	}
	if notifications.Supported() {
		orchOpts.Notifier = notifications.New("Cairn")
	}

	orch, err := orchestrator.New(orchOpts)
	if err != nil {
		return err
	}
	dispatcher.set(orch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Initialize(ctx); err != nil {
		return err
	}

	if httpServer != nil {
		addr := fmt.Sprintf(":%d", cfg.Orchestrator.HTTPPort)
		go func() {
			if err := httpServer.Start(addr); err != nil && err.Error() != "http: Server closed" {
				fmt.Fprintf(os.Stderr, "[cairn] http server: %v\n", err)
			}
		}()
		fmt.Printf("[cairn] command API on http://localhost:%d\n", cfg.Orchestrator.HTTPPort)
	}

	fmt.Println("[cairn] orchestrator running; drop signal files or use the CLI")

	// Run service loops until interrupted.
	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Run(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			fmt.Fprintf(os.Stderr, "[cairn] service error: %v\n", err)
		}
	case <-shutdown:
		fmt.Println("\n[cairn] shutting down")
	}

	cancel()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}

	return orch.Close()
}

func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		home, err := config.ResolveHome(flagCairnHome, nil)
		if err == nil {
			path = home + "/cairn.yaml"
		}
	}
	return config.Load(path)
}

// lateCommander defers command dispatch to an orchestrator wired after
// server construction.
type lateCommander struct {
	orch *orchestrator.Orchestrator
}

func (l *lateCommander) set(o *orchestrator.Orchestrator) { l.orch = o }

func (l *lateCommander) SubmitCommand(cmd *command.Command) (*command.Result, error) {
	if l.orch == nil {
		return nil, orchestrator.ErrNotInitialized
	}
	return l.orch.SubmitCommand(cmd)
}
