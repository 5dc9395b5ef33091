// Command promptline serves chat completions, agent sessions and text
// embeddings over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KamdynS/promptline/agent"
	"github.com/KamdynS/promptline/config"
	"github.com/KamdynS/promptline/embeddings"
	"github.com/KamdynS/promptline/llm"
	"github.com/KamdynS/promptline/llm/anthropic"
	"github.com/KamdynS/promptline/llm/openai"
	"github.com/KamdynS/promptline/logging"
	"github.com/KamdynS/promptline/observability"
	"github.com/KamdynS/promptline/server"
	"github.com/KamdynS/promptline/state"
	"github.com/KamdynS/promptline/tools"
	"github.com/rs/zerolog"
)

func main() {
	configFile := flag.String("config", "config.yml", "path to the YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(config.WithConfigFile(*configFile), config.WithEnvFile(*envFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "promptline: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Logging, "promptline")
	if err != nil {
		fmt.Fprintf(os.Stderr, "promptline: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("promptline stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	llm.SetMessageLogger(log)
	hooks := observability.ZerologHooks(log.With().Str("component", "llm").Logger())

	oaCfg := cfg.OpenAI
	oaCfg.Hooks, oaCfg.Logger = hooks, &log
	oa, err := openai.NewClient(oaCfg)
	if err != nil {
		return fmt.Errorf("openai client: %w", err)
	}
	anCfg := cfg.Anthropic
	anCfg.Hooks, anCfg.Logger = hooks, &log
	an, err := anthropic.NewClient(anCfg)
	if err != nil {
		return fmt.Errorf("anthropic client: %w", err)
	}

	policy := llm.StaticPolicy{
		Default: oa,
		ByModel: map[string]llm.Services{"openai": oa, "anthropic": an},
	}
	if cfg.Provider == "anthropic" {
		policy.Default = an
	}
	services := llm.NewRouter(policy).WithConfig(llm.RouterConfig{Timeout: cfg.Server.RequestTimeout})

	var store state.Store = state.NewInMemoryStore()
	var emb embeddings.Provider = oa.Embeddings()
	if cfg.Store == "redis" {
		rs, err := state.NewRedisStore(ctx, cfg.Redis, log)
		if err != nil {
			return err
		}
		store = rs
		if cfg.Embeddings.Cache {
			emb = embeddings.NewRedisCache(rs.Client(), emb,
				embeddings.WithNamespace(cfg.Embeddings.Namespace),
				embeddings.WithTTL(cfg.Embeddings.TTL),
				embeddings.WithCacheLogger(log))
		}
	}
	emb = embeddings.Batching(emb, cfg.Embeddings.BatchSize)

	reg := tools.NewRegistry(&tools.CalculatorTool{}, tools.NewHTTPRequestTool(15*time.Second)).WithLogger(log)
	ag := agent.NewChatAgent(services, cfg.Agent, reg, store).WithLogger(log)
	ag.UseProcessors(agent.LastN(cfg.Agent.HistoryLimit))

	srv, err := server.New(cfg.Server, server.Deps{Services: services, Agent: ag, Store: store, Embeddings: emb}, log)
	if err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
