// Command gateway runs the tool-calling chat gateway: an HTTP API that
// mediates between callers and a chat-completion model, executing
// server-side tools the model requests.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"courier-ai/internal/adapter/bridge"
	"courier-ai/internal/adapter/gateway"
	"courier-ai/internal/adapter/llm"
	"courier-ai/internal/adapter/tool"
	"courier-ai/internal/domain"
	"courier-ai/internal/infra/config"
	"courier-ai/internal/infra/logger"
	"courier-ai/internal/infra/tracer"
	"courier-ai/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.Setup(cfg.Logger)

	shutdownTracer, err := tracer.Setup(cfg.Tracer)
	if err != nil {
		return fmt.Errorf("setup tracer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var provider domain.ChatProvider = llm.NewOpenAIProvider(cfg.LLM.Provider, log)
	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
	}

	registry := tool.NewRegistry(log)
	if err := registry.Register(tool.NewSumTool(log)); err != nil {
		return err
	}
	if cfg.Tools.RepoSearchEnabled {
		if err := registry.Register(tool.NewRepoSearchTool(cfg.Tools, log)); err != nil {
			return err
		}
	}

	var bridgeClient *bridge.Client
	if cfg.Bridge.Enabled {
		bridgeClient = bridge.NewClient(cfg.Bridge, log)
		supervisor := bridge.NewSupervisor(cfg.Bridge, bridgeClient, log)

		for _, t := range []domain.Tool{
			tool.NewContactSearchTool(bridgeClient, log),
			tool.NewSendMessageTool(bridgeClient, log),
			tool.NewBridgeControlTool(supervisor, log),
		} {
			if err := registry.Register(t); err != nil {
				return err
			}
		}
	}

	store := usecase.NewSessionManager()
	builder := usecase.NewContextBuilder(
		cfg.Session.SystemPrompt,
		cfg.Session.MaxMessages,
		cfg.Tools.GreetingPrefixes,
	)
	orch := usecase.NewOrchestrator(provider, registry, store, builder, cfg.Session.MaxMessages, log)

	// Stale sessions are reaped on a fixed schedule.
	reaper := cron.New()
	if _, err := reaper.AddFunc(fmt.Sprintf("@every %s", cfg.Session.ReapInterval), func() {
		if n := store.ReapStale(cfg.Session.MaxAge); n > 0 {
			log.Info("reaped stale sessions", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule session reaper: %w", err)
	}
	reaper.Start()
	defer reaper.Stop()

	// Inbound bridge messages run through the same turn loop with the
	// sender as session key; the reply goes back out through the bridge.
	if cfg.Bridge.Enabled && cfg.Bridge.Listen {
		listener := bridge.NewListener(cfg.Bridge.APIURL, cfg.Bridge.PollInterval,
			func(ctx context.Context, msg domain.InboundMessage) {
				result, err := orch.HandleTurn(ctx, msg.Sender, msg.Body)
				if err != nil {
					log.Error("inbound turn failed", "sender", msg.Sender, "error", err)
					return
				}
				if _, err := bridgeClient.Send(ctx, msg.Sender, result.Reply); err != nil {
					log.Error("inbound reply failed", "sender", msg.Sender, "error", err)
				}
			}, log)
		go listener.Run(ctx)
	}

	handler := gateway.NewHandler(orch, registry, bridgeClient, log)
	server := gateway.NewServer(ctx, cfg.Server, handler, log)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown", "error", err)
	}
	return nil
}
