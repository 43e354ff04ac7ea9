package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/stake-plus/agora/src/agent"
	"github.com/stake-plus/agora/src/ai/core"
	_ "github.com/stake-plus/agora/src/ai/providers"
	"github.com/stake-plus/agora/src/api"
	"github.com/stake-plus/agora/src/config"
	"github.com/stake-plus/agora/src/council"
	"github.com/stake-plus/agora/src/data"
	"github.com/stake-plus/agora/src/discordbot"
	"github.com/stake-plus/agora/src/executor"
	"github.com/stake-plus/agora/src/pool"
	"github.com/stake-plus/agora/src/rounds"
	"github.com/stake-plus/agora/src/runtime"
	"github.com/stake-plus/agora/src/store"
	"github.com/stake-plus/agora/src/transcript"
)

func main() {
	dsn, err := data.GetMySQLDSN()
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	db, err := data.ConnectMySQL(dsn)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := data.LoadSettings(db); err != nil {
		log.Printf("settings: %v (env only)", err)
	}
	cfg := config.Load()

	st, err := store.NewMySQL(db)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	rdb, err := data.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	tlog := transcript.New(rdb, "")

	client, err := core.NewClient(core.FactoryConfig{
		Provider:     cfg.AI.Provider,
		Model:        cfg.AI.Model,
		Temperature:  cfg.AI.Temperature,
		SystemPrompt: cfg.AI.SystemPrompt,
		OpenAIKey:    cfg.AI.OpenAIKey,
		ClaudeKey:    cfg.AI.ClaudeKey,
	})
	if err != nil {
		log.Fatalf("ai: %v", err)
	}
	llm := agent.NewLLM(client, core.Options{
		Model:        cfg.AI.Model,
		Temperature:  cfg.AI.Temperature,
		SystemPrompt: cfg.AI.SystemPrompt,
	})

	engine := &rounds.Engine{
		Agent: llm,
		Policy: executor.Policy{
			MaxAttempts:  cfg.AgentAttempts,
			InitialDelay: cfg.AgentBackoff,
		},
		Log: tlog,
	}

	ccfg := council.DefaultConfig()
	ccfg.CouncilSize = cfg.CouncilSize
	ccfg.Supermajority = cfg.Supermajority

	orch := council.NewOrchestrator(st, llm, engine, tlog, ccfg)
	pl := pool.New(st, llm, engine, tlog)
	cl := council.New(st, llm, orch, pl, ccfg, cfg.TargetPoolSize)

	announcer, err := discordbot.New(cfg.DiscordToken, cfg.DiscordChannel)
	if err != nil {
		log.Fatalf("discord: %v", err)
	}

	router := api.New(cl, pl, announcer, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := runtime.NewManager()
	_ = mgr.Add(cl)
	if announcer != nil {
		_ = mgr.Add(announcer)
	}
	_ = mgr.Add(runtime.NewHTTPServer(":"+cfg.Port, router))

	if err := mgr.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	mgr.Stop(ctx)
}
