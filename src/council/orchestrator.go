// Package council drives the council itself: the vote state machine
// (propose, select, evict, context update, pool-size adjust), the promotion
// sub-vote, and the lifecycle that restores the roster and fills vacancies.
package council

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stake-plus/agora/src/agent"
	"github.com/stake-plus/agora/src/rounds"
	"github.com/stake-plus/agora/src/store"
	"github.com/stake-plus/agora/src/transcript"
	"github.com/stake-plus/agora/src/types"
)

// Config bounds the council and its deliberation memory.
type Config struct {
	CouncilSize   int // roster size, vacancies below this are refilled
	Supermajority int // absolute nomination count required to evict a member
	HistoryLimit  int // trim a participant's history beyond this many entries
	HistoryKeep   int // raw entries kept behind the summary after a trim
}

// DefaultConfig matches the 8-member, 6-vote supermajority council.
func DefaultConfig() Config {
	return Config{CouncilSize: 8, Supermajority: 6, HistoryLimit: 30, HistoryKeep: 10}
}

// Orchestrator runs council votes. One Vote call is a single logical flow:
// rounds run strictly in sequence, participants within a round in parallel.
type Orchestrator struct {
	store  store.Store
	agent  agent.Agent
	engine *rounds.Engine
	log    *transcript.Log
	cfg    Config
}

// NewOrchestrator wires the vote state machine.
func NewOrchestrator(st store.Store, ag agent.Agent, engine *rounds.Engine, tlog *transcript.Log, cfg Config) *Orchestrator {
	return &Orchestrator{store: st, agent: ag, engine: engine, log: tlog, cfg: cfg}
}

// Vote runs the full council deliberation over a query. It either returns a
// complete result, possibly carrying non-fatal failure messages, or a single
// aggregated error when no proposal at all could be collected.
func (o *Orchestrator) Vote(ctx context.Context, prompt string) (*types.VoteResult, error) {
	st, err := o.store.RosterState(ctx)
	if err != nil {
		return nil, err
	}
	members, err := o.store.Members(ctx, st.MemberIDs)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("council: no members in roster")
	}

	participants := make([]*rounds.Participant, len(members))
	byID := make(map[string]*types.Member, len(members))
	for i, m := range members {
		participants[i] = &rounds.Participant{ID: m.ID, Persona: m.Persona, History: &m.ChatHistory}
		byID[m.ID] = m
	}

	result := &types.VoteResult{Prompt: prompt}

	// Proposing.
	proposals, failures := o.engine.CollectProposals(ctx, participants, prompt)
	result.Failures = append(result.Failures, failures...)
	if len(proposals) == 0 {
		return nil, fmt.Errorf("council: no proposals succeeded: %s", strings.Join(failures, "; "))
	}
	result.Proposals = proposals

	// Selecting.
	votes, failures := o.engine.CollectVotes(ctx, participants, prompt, rounds.ProposalOptions(proposals))
	result.Failures = append(result.Failures, failures...)
	result.Votes = votes

	winnerID, tieBreak, failures := o.engine.ResolveSelection(ctx, proposals, votes)
	result.Failures = append(result.Failures, failures...)
	result.WinnerID = winnerID
	result.TieBreak = tieBreak
	for _, p := range proposals {
		if p.AuthorID == winnerID {
			result.Response = p.Content
		}
	}

	// Evicting.
	nomSummary := o.nominationSummary(participants, winnerID)
	noms, failures := o.engine.CollectNominations(ctx, participants, nomSummary)
	result.Failures = append(result.Failures, failures...)

	outcomes := rounds.TallyNominations(noms, o.cfg.Supermajority, nil)
	evicted := false
	remaining := participants
	for i := range outcomes {
		out := &outcomes[i]
		if !out.Evicted {
			continue
		}
		evicted = true
		member, ok := byID[out.NomineeID]
		if !ok {
			continue
		}
		remaining = withoutParticipant(remaining, out.NomineeID)
		delete(byID, out.NomineeID)
		replacementID, failures, err := o.demoteAndBackfill(ctx, member, out, remaining)
		result.Failures = append(result.Failures, failures...)
		if err != nil {
			return nil, err
		}
		out.ReplacementID = replacementID
	}
	result.Evictions = outcomes

	// ContextUpdate: every surviving member learns how the round went, with
	// ids replaced by ordinals so personas cannot identify each other.
	o.appendRoundContext(ctx, participants, remaining, result)
	for _, p := range remaining {
		if err := o.store.PutMember(ctx, byID[p.ID]); err != nil {
			return nil, err
		}
	}

	// PoolSizeAdjust.
	if _, err := o.store.UpdateRosterState(ctx, func(st *types.RosterState) error {
		adjustPoolSize(st, evicted)
		return nil
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// demoteAndBackfill converts an evicted member into a pool candidate and
// immediately runs a promotion sub-vote among the remaining members and the
// pool (the freshly demoted member included, now voting as a candidate) to
// fill the vacancy before the next eviction is processed.
func (o *Orchestrator) demoteAndBackfill(ctx context.Context, member *types.Member, out *types.EvictionOutcome, voters []*rounds.Participant) (string, []string, error) {
	reasons := nominationReasons(out.Nominations)
	notice := fmt.Sprintf("You were removed from the council by a vote of your peers. Their reasoning: %s", reasons)
	history := append(member.ChatHistory, types.ChatMessage{Role: "system", Content: notice, At: time.Now().UTC()})

	cand := &types.Candidate{
		ID:          member.ID,
		Persona:     member.Persona,
		CreatedAt:   member.CreatedAt,
		Fitness:     0,
		ChatHistory: history,
	}
	cause := fmt.Sprintf("%s: %s", member.Persona.Name, reasons)
	if err := o.store.DemoteMember(ctx, cand, cause); err != nil {
		return "", nil, err
	}

	// The cause ring is already updated; the rolling textual summary is
	// refreshed off the vote's critical path.
	go o.refreshRemovalSummary(context.WithoutCancel(ctx))

	return o.RunPromotion(ctx, voters)
}

func (o *Orchestrator) refreshRemovalSummary(ctx context.Context) {
	st, err := o.store.RosterState(ctx)
	if err != nil || len(st.LastRemovalCauses) == 0 {
		return
	}
	summary, err := o.agent.Summarize(ctx, strings.Join(st.LastRemovalCauses, "\n"))
	if err != nil {
		log.Printf("council: removal summary refresh failed: %v", err)
		return
	}
	if _, err := o.store.UpdateRosterState(ctx, func(st *types.RosterState) error {
		st.RemovalHistorySummary = summary
		return nil
	}); err != nil {
		log.Printf("council: removal summary persist failed: %v", err)
	}
}

func (o *Orchestrator) nominationSummary(participants []*rounds.Participant, winnerID string) string {
	winner := "no one"
	for _, p := range participants {
		if p.ID == winnerID {
			winner = p.Persona.Name
		}
	}
	return fmt.Sprintf("The council debated and selected %s's proposal. Consider whether any participant consistently weakens the council.", winner)
}

// appendRoundContext writes the anonymized round summary into every
// surviving member's history and trims oversized histories down to a summary
// plus the most recent raw entries.
func (o *Orchestrator) appendRoundContext(ctx context.Context, all, remaining []*rounds.Participant, result *types.VoteResult) {
	summary := anonymizedSummary(all, result)
	now := time.Now().UTC()
	for _, p := range remaining {
		*p.History = append(*p.History, types.ChatMessage{Role: "system", Content: summary, At: now})
		trimmed, err := trimHistory(ctx, o.agent, *p.History, o.cfg.HistoryLimit, o.cfg.HistoryKeep)
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("history trim for %s: %v", p.Persona.Name, err))
			continue
		}
		*p.History = trimmed
	}
}

// anonymizedSummary renders the round with ordinal labels (Member_1..N,
// assigned by roster position at the start of the round) instead of ids.
func anonymizedSummary(participants []*rounds.Participant, result *types.VoteResult) string {
	ordinals := make(map[string]string, len(participants))
	for i, p := range participants {
		ordinals[p.ID] = fmt.Sprintf("Member_%d", i+1)
	}
	label := func(id string) string {
		if l, ok := ordinals[id]; ok {
			return l
		}
		return "an outside participant"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Round recap for query %q: %d proposals were made.", result.Prompt, len(result.Proposals))
	if result.WinnerID != "" {
		fmt.Fprintf(&b, " %s's proposal was selected.", label(result.WinnerID))
	}
	if result.TieBreak != nil {
		fmt.Fprintf(&b, " The selection was tied %d ways and settled by arbitration.", len(result.TieBreak.TiedProposals))
	}
	abstained := 0
	for _, v := range result.Votes {
		if v.Abstained {
			abstained++
		}
	}
	if abstained > 0 {
		fmt.Fprintf(&b, " %d members abstained.", abstained)
	}
	for _, e := range result.Evictions {
		if e.Evicted {
			fmt.Fprintf(&b, " %s was removed from the council by supermajority.", label(e.NomineeID))
		}
	}
	return b.String()
}

func nominationReasons(noms []types.Nomination) string {
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

func withoutParticipant(ps []*rounds.Participant, id string) []*rounds.Participant {
	out := make([]*rounds.Participant, 0, len(ps))
	for _, p := range ps {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

// adjustPoolSize applies the pool-size drift rule: an eviction grows the
// target (cap 20) and resets the quiet-round counter; ten quiet rounds in a
// row shrink it (floor 3).
func adjustPoolSize(st *types.RosterState, evicted bool) {
	if evicted {
		if st.TargetPoolSize < types.MaxPoolSize {
			st.TargetPoolSize++
		}
		st.RoundsSinceEviction = 0
		return
	}
	st.RoundsSinceEviction++
	if st.RoundsSinceEviction >= 10 {
		if st.TargetPoolSize > types.MinPoolSize {
			st.TargetPoolSize--
		}
		st.RoundsSinceEviction = 0
	}
}
