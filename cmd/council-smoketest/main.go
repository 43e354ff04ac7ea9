// Command council-smoketest runs a full council lifecycle offline: seed a
// roster, deliberate a few queries, run practice rounds, and print the state
// transitions. No database, Redis or model provider is needed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/agora/src/agent"
	"github.com/stake-plus/agora/src/council"
	"github.com/stake-plus/agora/src/executor"
	"github.com/stake-plus/agora/src/pool"
	"github.com/stake-plus/agora/src/rounds"
	"github.com/stake-plus/agora/src/store"
)

var (
	roundsFlag  = flag.Int("rounds", 3, "Number of council deliberations to run")
	membersFlag = flag.Int("members", 8, "Council size")
	timeoutFlag = flag.Duration("timeout", time.Minute, "Overall run timeout")
)

func main() {
	log.SetFlags(0)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	st := store.NewMemory()
	ag := &agent.Canned{}
	engine := &rounds.Engine{
		Agent:  ag,
		Policy: executor.Policy{MaxAttempts: 2, InitialDelay: 10 * time.Millisecond},
	}

	cfg := council.DefaultConfig()
	cfg.CouncilSize = *membersFlag

	orch := council.NewOrchestrator(st, ag, engine, nil, cfg)
	pl := pool.New(st, ag, engine, nil)
	cl := council.New(st, ag, orch, pl, cfg, 5)

	if err := cl.Restore(ctx); err != nil {
		log.Fatalf("restore: %v", err)
	}
	if _, err := pl.Replenish(ctx); err != nil {
		log.Fatalf("replenish: %v", err)
	}
	printState(ctx, st, "after bootstrap")

	queries := []string{
		"Should the council publish its deliberation transcripts?",
		"What is the single most important quality in a new member?",
		"How should ties between equally supported proposals be handled?",
	}
	for i := 0; i < *roundsFlag; i++ {
		q := queries[i%len(queries)]
		result, err := cl.Vote(ctx, q)
		if err != nil {
			log.Fatalf("vote %d: %v", i+1, err)
		}
		fmt.Printf("round %d: winner=%s proposals=%d failures=%d\n", i+1, result.WinnerID, len(result.Proposals), len(result.Failures))
		if result.TieBreak != nil {
			fmt.Printf("  tie of %d settled: %s\n", len(result.TieBreak.TiedProposals), result.TieBreak.Reasoning)
		}

		if _, err := pl.RunPracticeRound(ctx); err != nil {
			log.Fatalf("practice %d: %v", i+1, err)
		}
		printState(ctx, st, fmt.Sprintf("after round %d", i+1))
	}
}

func printState(ctx context.Context, st store.Store, label string) {
	state, err := st.RosterState(ctx)
	if err != nil {
		log.Fatalf("state: %v", err)
	}
	fmt.Printf("%s: members=%d pool=%d/%d quiet=%d version=%d\n",
		label, len(state.MemberIDs), len(state.CandidateIDs), state.TargetPoolSize,
		state.RoundsSinceEviction, state.Version)
}
