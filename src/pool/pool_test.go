package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stake-plus/agora/src/agent"
	"github.com/stake-plus/agora/src/executor"
	"github.com/stake-plus/agora/src/rounds"
	"github.com/stake-plus/agora/src/store"
	"github.com/stake-plus/agora/src/types"
)

// scriptedAgent drives practice rounds deterministically; unset fields fall
// back to benign defaults.
type scriptedAgent struct {
	serial   atomic.Int64
	castVote func(pc agent.PersonaContext, ballot agent.Ballot) (agent.VoteReply, error)
	nominate func(pc agent.PersonaContext, nom agent.NominationContext) (agent.NominationReply, error)
	generate func() (types.Persona, error)
	refine   func(pc agent.PersonaContext) (types.Persona, error)
}

func (s *scriptedAgent) Propose(ctx context.Context, pc agent.PersonaContext, prompt string, attempt int) (agent.ProposalReply, error) {
	return agent.ProposalReply{Content: "proposal by " + pc.Persona.Name}, nil
}

func (s *scriptedAgent) CastVote(ctx context.Context, pc agent.PersonaContext, ballot agent.Ballot, attempt int) (agent.VoteReply, error) {
	if s.castVote != nil {
		return s.castVote(pc, ballot)
	}
	return agent.VoteReply{}, nil
}

func (s *scriptedAgent) Nominate(ctx context.Context, pc agent.PersonaContext, nom agent.NominationContext, attempt int) (agent.NominationReply, error) {
	if s.nominate != nil {
		return s.nominate(pc, nom)
	}
	return agent.NominationReply{}, nil
}

func (s *scriptedAgent) Arbitrate(ctx context.Context, options []string, attempt int) (agent.ArbitrationReply, error) {
	return agent.ArbitrationReply{Selection: 1}, nil
}

func (s *scriptedAgent) GeneratePersona(ctx context.Context, existing []types.Persona, lastRemovalCause string) (types.Persona, error) {
	if s.generate != nil {
		return s.generate()
	}
	return types.Persona{Name: fmt.Sprintf("Fresh %d", s.serial.Add(1))}, nil
}

func (s *scriptedAgent) RefinePersona(ctx context.Context, pc agent.PersonaContext) (types.Persona, error) {
	if s.refine != nil {
		return s.refine(pc)
	}
	return pc.Persona, nil
}

func (s *scriptedAgent) Summarize(ctx context.Context, text string) (string, error) {
	return "summary", nil
}

func testPool(t *testing.T, ag agent.Agent) (*Pool, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	engine := &rounds.Engine{
		Agent:  ag,
		Policy: executor.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
	p := New(st, ag, engine, nil)
	p.RefineProbability = 0 // tests opt in explicitly
	return p, st
}

func seedCandidates(t *testing.T, st *store.Memory, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%d", i+1)
		c := &types.Candidate{
			ID:        id,
			Persona:   types.Persona{Name: fmt.Sprintf("Cand %d", i+1)},
			CreatedAt: time.Now().UTC(),
		}
		if err := st.PutCandidate(context.Background(), c); err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}
	return ids
}

// voteForAuthor scripts every candidate's ballot by the proposal content of a
// chosen author, resolved against the voter's own filtered option list.
func voteForAuthor(targets map[string]string) func(agent.PersonaContext, agent.Ballot) (agent.VoteReply, error) {
	return func(pc agent.PersonaContext, ballot agent.Ballot) (agent.VoteReply, error) {
		want, ok := targets[pc.Persona.Name]
		if !ok {
			return agent.VoteReply{}, nil
		}
		for i, opt := range ballot.Options {
			if opt == "proposal by "+want {
				c := i + 1
				return agent.VoteReply{Choice: &c, Reasoning: "scripted"}, nil
			}
		}
		return agent.VoteReply{}, nil
	}
}

func nominateByName(nominators map[string]string) func(agent.PersonaContext, agent.NominationContext) (agent.NominationReply, error) {
	return func(pc agent.PersonaContext, nom agent.NominationContext) (agent.NominationReply, error) {
		want, ok := nominators[pc.Persona.Name]
		if !ok {
			return agent.NominationReply{Reasoning: "declined"}, nil
		}
		for i, opt := range nom.Options {
			if opt == want {
				n := i + 1
				return agent.NominationReply{Nominee: &n, Reasoning: "drags the pool down"}, nil
			}
		}
		return agent.NominationReply{}, fmt.Errorf("%s not on the nomination list", want)
	}
}

func TestPracticeRoundSkipsUnderTwoCandidates(t *testing.T) {
	p, st := testPool(t, &scriptedAgent{})
	seedCandidates(t, st, 1)

	result, err := p.RunPracticeRound(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Error("round with one candidate must be skipped")
	}

	state, err := st.RosterState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(state.CandidateIDs) != state.TargetPoolSize {
		t.Errorf("pool = %d candidates after skip, want target %d", len(state.CandidateIDs), state.TargetPoolSize)
	}
	if len(result.NewCandidateIDs) != state.TargetPoolSize-1 {
		t.Errorf("new ids = %d, want %d", len(result.NewCandidateIDs), state.TargetPoolSize-1)
	}
}

func TestPracticeRoundRejectsConcurrentRun(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	ag := &scriptedAgent{
		generate: func() (types.Persona, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return types.Persona{Name: "Blocked"}, nil
		},
	}
	p, _ := testPool(t, ag)

	done := make(chan error, 1)
	go func() {
		_, err := p.RunPracticeRound(context.Background())
		done <- err
	}()

	<-entered
	if _, err := p.RunPracticeRound(context.Background()); !errors.Is(err, ErrRoundInFlight) {
		t.Errorf("concurrent run error = %v, want ErrRoundInFlight", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

// silentProposer fails every proposal call so no deliberation can start.
type silentProposer struct{ scriptedAgent }

func (s *silentProposer) Propose(ctx context.Context, pc agent.PersonaContext, prompt string, attempt int) (agent.ProposalReply, error) {
	return agent.ProposalReply{}, errors.New("model unavailable")
}

func TestPracticeRoundWithoutProposalsIsSkipped(t *testing.T) {
	p, st := testPool(t, &silentProposer{})
	ids := seedCandidates(t, st, 3)

	result, err := p.RunPracticeRound(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Error("round without any proposal must be skipped")
	}
	if len(result.Failures) != len(ids) {
		t.Errorf("failures = %d, want one per candidate (%d)", len(result.Failures), len(ids))
	}
	if len(result.Evictions) != 0 {
		t.Errorf("evictions = %+v, want none without a deliberation", result.Evictions)
	}

	state, err := st.RosterState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		if !state.CandidateIDs.Contains(id) {
			t.Errorf("candidate %s lost during a skipped round", id)
		}
	}
	if len(state.CandidateIDs) < state.TargetPoolSize {
		t.Errorf("pool = %d after skip, want at least target %d", len(state.CandidateIDs), state.TargetPoolSize)
	}
}

func TestPracticeRoundEvictsBySimpleMajority(t *testing.T) {
	ag := &scriptedAgent{
		castVote: voteForAuthor(map[string]string{
			"Cand 1": "Cand 2",
			"Cand 2": "Cand 1",
			"Cand 3": "Cand 1",
			"Cand 4": "Cand 2",
		}),
		// 2 of 4 nominate Cand 4; simple majority of 4 is 2.
		nominate: nominateByName(map[string]string{
			"Cand 1": "Cand 4",
			"Cand 2": "Cand 4",
		}),
	}
	p, st := testPool(t, ag)
	seedCandidates(t, st, 4)

	result, err := p.RunPracticeRound(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var evicted *types.EvictionOutcome
	for i := range result.Evictions {
		if result.Evictions[i].Evicted {
			evicted = &result.Evictions[i]
		}
	}
	if evicted == nil || evicted.NomineeID != "c4" {
		t.Fatalf("evictions = %+v, want c4 evicted", result.Evictions)
	}

	// The record survives in the evicted namespace with its reason.
	gone, err := st.Candidate(context.Background(), "c4")
	if err != nil {
		t.Fatal(err)
	}
	if !gone.Evicted || gone.EvictionReason == "" {
		t.Errorf("evicted candidate = %+v, want Evicted with a reason", gone)
	}

	// Fitness tracks raw votes received this round: c1 and c2 got 2 each.
	for _, id := range []string{"c1", "c2"} {
		c, err := st.Candidate(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if c.Fitness != 2 {
			t.Errorf("%s fitness = %d, want 2", id, c.Fitness)
		}
	}

	state, _ := st.RosterState(context.Background())
	if state.CandidateIDs.Contains("c4") {
		t.Error("evicted candidate still in the active pool")
	}
	if len(state.CandidateIDs) < state.TargetPoolSize {
		t.Errorf("pool = %d after replenish, want at least target %d", len(state.CandidateIDs), state.TargetPoolSize)
	}
}

func TestPracticeRoundShieldBlocksEviction(t *testing.T) {
	ag := &scriptedAgent{
		// Cand 1 takes 3 of 4 votes, 75% of the round, earning the shield.
		castVote: voteForAuthor(map[string]string{
			"Cand 1": "Cand 2",
			"Cand 2": "Cand 1",
			"Cand 3": "Cand 1",
			"Cand 4": "Cand 1",
		}),
		nominate: nominateByName(map[string]string{
			"Cand 1": "Cand 1",
			"Cand 2": "Cand 1",
			"Cand 3": "Cand 1",
			"Cand 4": "Cand 1",
		}),
	}
	p, st := testPool(t, ag)
	seedCandidates(t, st, 4)

	result, err := p.RunPracticeRound(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Evictions) == 0 {
		t.Fatal("expected an eviction outcome for the unanimous nominee")
	}
	out := result.Evictions[0]
	if out.NomineeID != "c1" || out.Count != 4 {
		t.Fatalf("outcome = %+v, want c1 with 4 nominations", out)
	}
	if !out.Shielded || out.Evicted {
		t.Errorf("outcome = %+v, want shielded and not evicted", out)
	}

	c, err := st.Candidate(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Evicted {
		t.Error("shielded candidate was evicted")
	}
}

func TestPracticeRoundRefinesSurvivors(t *testing.T) {
	refined := 0
	ag := &scriptedAgent{
		refine: func(pc agent.PersonaContext) (types.Persona, error) {
			refined++
			p := pc.Persona
			p.DecisionStyle = "sharpened"
			return p, nil
		},
	}
	p, st := testPool(t, ag)
	p.RefineProbability = 1.0
	ids := seedCandidates(t, st, 3)

	result, err := p.RunPracticeRound(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if refined != len(ids) {
		t.Errorf("refined %d personas, want all %d survivors", refined, len(ids))
	}
	if len(result.RefinedIDs) != len(ids) {
		t.Errorf("RefinedIDs = %v, want all of %v", result.RefinedIDs, ids)
	}
	for _, id := range ids {
		c, err := st.Candidate(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if c.Persona.DecisionStyle != "sharpened" {
			t.Errorf("%s persona not persisted after refinement", id)
		}
	}
}

func TestReplenishIsIdempotentAtTarget(t *testing.T) {
	p, st := testPool(t, &scriptedAgent{})

	first, err := p.Replenish(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	state, _ := st.RosterState(context.Background())
	if len(first) != state.TargetPoolSize {
		t.Fatalf("first replenish added %d, want %d", len(first), state.TargetPoolSize)
	}

	second, err := p.Replenish(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Errorf("replenish at target added %d candidates, want none", len(second))
	}
}

func TestReplenishSeedsRemovalContext(t *testing.T) {
	p, st := testPool(t, &scriptedAgent{})
	if _, err := st.UpdateRosterState(context.Background(), func(s *types.RosterState) error {
		s.PushRemovalCause("Quinn: derailed every vote")
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	ids, err := p.Replenish(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) == 0 {
		t.Fatal("expected new candidates")
	}
	c, err := st.Candidate(context.Background(), ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(c.ChatHistory) == 0 {
		t.Fatal("newcomer has no intro message")
	}
	intro := c.ChatHistory[0].Content
	if want := "derailed every vote"; !strings.Contains(intro, want) {
		t.Errorf("intro %q does not mention removal cause %q", intro, want)
	}
}
