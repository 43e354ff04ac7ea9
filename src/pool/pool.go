// Package pool manages the candidate bench: practice rounds that exercise and
// rank candidates, peer evictions with the nullification shield, and
// replenishment of the pool back up to its target size.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/stake-plus/agora/src/agent"
	"github.com/stake-plus/agora/src/rounds"
	"github.com/stake-plus/agora/src/store"
	"github.com/stake-plus/agora/src/transcript"
	"github.com/stake-plus/agora/src/types"

	"github.com/google/uuid"
)

// ErrRoundInFlight is returned when a practice round is requested while one
// is still running. Practice rounds never queue.
var ErrRoundInFlight = errors.New("pool: practice round already in flight")

const practicePrompt = "Practice deliberation: propose the single most valuable improvement this council could make to how it reaches decisions."

// defaultRefineProbability is the per-survivor chance of a persona refinement
// pass after a practice round.
const defaultRefineProbability = 0.15

// Pool runs the candidate-pool side of the system.
type Pool struct {
	store  store.Store
	agent  agent.Agent
	engine *rounds.Engine
	log    *transcript.Log

	// RefineProbability may be overridden before first use; it is read
	// without locking afterwards.
	RefineProbability float64

	mu sync.Mutex
}

// New wires a candidate pool over the shared store and round engine.
func New(st store.Store, ag agent.Agent, engine *rounds.Engine, tlog *transcript.Log) *Pool {
	return &Pool{store: st, agent: ag, engine: engine, log: tlog, RefineProbability: defaultRefineProbability}
}

// RunPracticeRound runs one full practice cycle: propose, vote, evict by
// simple majority, refine a few survivors, and replenish to the target size.
// A second call while one is running fails fast with ErrRoundInFlight.
func (p *Pool) RunPracticeRound(ctx context.Context) (*types.PracticeResult, error) {
	if !p.mu.TryLock() {
		return nil, ErrRoundInFlight
	}
	defer p.mu.Unlock()
	return p.run(ctx)
}

// Replenish tops the pool up to its target size and returns the new ids. It
// waits for any in-flight practice round rather than failing.
func (p *Pool) Replenish(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replenishLocked(ctx)
}

func (p *Pool) run(ctx context.Context) (*types.PracticeResult, error) {
	st, err := p.store.RosterState(ctx)
	if err != nil {
		return nil, err
	}
	candidates, err := p.store.Candidates(ctx, st.CandidateIDs)
	if err != nil {
		return nil, err
	}

	result := &types.PracticeResult{}

	// A deliberation needs at least two voices. Replenish anyway so the next
	// round has a pool to work with.
	if len(candidates) < 2 {
		result.Skipped = true
		result.NewCandidateIDs, err = p.replenishLocked(ctx)
		return result, err
	}

	participants := make([]*rounds.Participant, len(candidates))
	byID := make(map[string]*types.Candidate, len(candidates))
	for i, c := range candidates {
		participants[i] = &rounds.Participant{ID: c.ID, Persona: c.Persona, History: &c.ChatHistory}
		byID[c.ID] = c
	}

	proposals, failures := p.engine.CollectProposals(ctx, participants, practicePrompt)
	result.Failures = append(result.Failures, failures...)
	result.Proposals = proposals

	// No proposals means no deliberation took place: unlike a council vote
	// this is not fatal, the round is recorded as skipped and the pool still
	// replenishes.
	if len(proposals) == 0 {
		result.Skipped = true
		result.NewCandidateIDs, err = p.replenishLocked(ctx)
		return result, err
	}

	votes, failures := p.engine.CollectVotes(ctx, participants, practicePrompt, rounds.ProposalOptions(proposals))
	result.Failures = append(result.Failures, failures...)
	result.Votes = votes

	winnerID, tieBreak, failures := p.engine.ResolveSelection(ctx, proposals, votes)
	result.Failures = append(result.Failures, failures...)
	result.WinnerID = winnerID
	result.TieBreak = tieBreak

	// Fitness accrues from raw votes received, this round only.
	tally := rounds.TallyVotes(votes)
	for id, n := range tally.Counts {
		if c, ok := byID[id]; ok {
			c.Fitness += n
		}
	}

	summary := practiceSummary(byID, winnerID)
	noms, failures := p.engine.CollectNominations(ctx, participants, summary)
	result.Failures = append(result.Failures, failures...)

	quorum := rounds.SimpleMajority(len(participants))
	outcomes := rounds.TallyNominations(noms, quorum, rounds.NullificationShield(tally))
	for _, out := range outcomes {
		if !out.Evicted {
			continue
		}
		reason := evictionReason(out.Nominations)
		if err := p.store.EvictCandidate(ctx, out.NomineeID, reason); err != nil {
			return nil, err
		}
		delete(byID, out.NomineeID)
	}
	result.Evictions = outcomes

	// Survivors are persisted in one batch, a few with a refreshed persona.
	survivors := make([]*types.Candidate, 0, len(byID))
	for _, c := range candidates {
		s, ok := byID[c.ID]
		if !ok {
			continue
		}
		if rand.Float64() < p.RefineProbability {
			refined, err := p.agent.RefinePersona(ctx, agent.PersonaContext{ID: s.ID, Persona: s.Persona, History: s.ChatHistory})
			if err != nil {
				result.Failures = append(result.Failures, fmt.Sprintf("refine %s: %v", s.Persona.Name, err))
			} else {
				s.Persona = refined
				result.RefinedIDs = append(result.RefinedIDs, s.ID)
			}
		}
		survivors = append(survivors, s)
	}
	if err := p.store.PutCandidates(ctx, survivors); err != nil {
		return nil, err
	}

	result.NewCandidateIDs, err = p.replenishLocked(ctx)
	if err != nil {
		return nil, err
	}

	p.log.Record(ctx, transcript.Entry{
		ParticipantID: "pool",
		Round:         "practice",
		Prompt:        practicePrompt,
		Response:      fmt.Sprintf("%d proposals, winner %s, %d evicted, %d joined", len(result.Proposals), result.WinnerID, countEvicted(result.Evictions), len(result.NewCandidateIDs)),
	})

	return result, nil
}

// replenishLocked generates fresh personas until the pool reaches its target
// size. Each newcomer is seeded with the removal history so new personas
// steer away from recently punished behavior. Caller holds p.mu.
func (p *Pool) replenishLocked(ctx context.Context) ([]string, error) {
	st, err := p.store.RosterState(ctx)
	if err != nil {
		return nil, err
	}
	target := st.TargetPoolSize
	if target < types.MinPoolSize {
		target = types.MinPoolSize
	}
	if len(st.CandidateIDs) >= target {
		return nil, nil
	}

	existing, err := p.rosterPersonas(ctx, st)
	if err != nil {
		return nil, err
	}

	removalContext := st.RemovalHistorySummary
	if removalContext == "" {
		removalContext = strings.Join(st.LastRemovalCauses, "\n")
	}

	var newIDs []string
	now := time.Now().UTC()
	for n := target - len(st.CandidateIDs); n > 0; n-- {
		persona, err := p.agent.GeneratePersona(ctx, existing, removalContext)
		if err != nil {
			return newIDs, fmt.Errorf("pool: generating persona: %w", err)
		}
		existing = append(existing, persona)

		intro := "You have joined the candidate pool. Participate in practice rounds to earn a council seat."
		if removalContext != "" {
			intro += " Recent removals from this body: " + removalContext
		}
		cand := &types.Candidate{
			ID:        uuid.NewString(),
			Persona:   persona,
			CreatedAt: now,
			ChatHistory: types.ChatHistory{{
				Role:    "system",
				Content: intro,
				At:      now,
			}},
		}
		if err := p.store.PutCandidate(ctx, cand); err != nil {
			return newIDs, err
		}
		newIDs = append(newIDs, cand.ID)
	}
	return newIDs, nil
}

// rosterPersonas collects every live persona, members and candidates alike,
// so generated newcomers do not duplicate anyone.
func (p *Pool) rosterPersonas(ctx context.Context, st *types.RosterState) ([]types.Persona, error) {
	members, err := p.store.Members(ctx, st.MemberIDs)
	if err != nil {
		return nil, err
	}
	candidates, err := p.store.Candidates(ctx, st.CandidateIDs)
	if err != nil {
		return nil, err
	}
	personas := make([]types.Persona, 0, len(members)+len(candidates))
	for _, m := range members {
		personas = append(personas, m.Persona)
	}
	for _, c := range candidates {
		personas = append(personas, c.Persona)
	}
	return personas, nil
}

func practiceSummary(byID map[string]*types.Candidate, winnerID string) string {
	winner := "no one"
	if c, ok := byID[winnerID]; ok {
		winner = c.Persona.Name
	}
	return fmt.Sprintf("The pool practiced a deliberation and selected %s's proposal. Consider whether any candidate consistently weakens the pool.", winner)
}

func evictionReason(noms []types.Nomination) string {
	var parts []string
	for _, n := range noms {
		if strings.TrimSpace(n.Reasoning) != "" {
			parts = append(parts, n.Reasoning)
		}
	}
	if len(parts) == 0 {
		return "no reasoning was given"
	}
	return strings.Join(parts, "; ")
}

func countEvicted(outcomes []types.EvictionOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Evicted {
			n++
		}
	}
	return n
}
