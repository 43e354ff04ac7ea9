package council

import (
	"context"
	"fmt"
	"time"

	"github.com/stake-plus/agora/src/rounds"
	"github.com/stake-plus/agora/src/transcript"
	"github.com/stake-plus/agora/src/types"
)

const promotionPrompt = "A council seat is vacant. Vote for the pool candidate most deserving of promotion."

// RunPromotion holds the weighted promotion sub-vote: member ballots weigh 2,
// candidate ballots weigh 1, and every voter's ballot excludes their own
// candidacy. Ties are broken by cumulative fitness, then by lowest id so the
// outcome never depends on iteration order. Returns the promoted id, or ""
// when the pool is empty.
func (o *Orchestrator) RunPromotion(ctx context.Context, memberVoters []*rounds.Participant) (string, []string, error) {
	st, err := o.store.RosterState(ctx)
	if err != nil {
		return "", nil, err
	}
	candidates, err := o.store.Candidates(ctx, st.CandidateIDs)
	if err != nil {
		return "", nil, err
	}
	if len(candidates) == 0 {
		return "", nil, nil
	}

	options := make([]rounds.Option, len(candidates))
	byID := make(map[string]*types.Candidate, len(candidates))
	for i, c := range candidates {
		options[i] = rounds.Option{ID: c.ID, Text: fmt.Sprintf("%s - %s", c.Persona.Name, c.Persona.DecisionStyle)}
		byID[c.ID] = c
	}

	memberSet := make(map[string]bool, len(memberVoters))
	voters := make([]*rounds.Participant, 0, len(memberVoters)+len(candidates))
	for _, m := range memberVoters {
		memberSet[m.ID] = true
		voters = append(voters, m)
	}
	for _, c := range candidates {
		voters = append(voters, &rounds.Participant{ID: c.ID, Persona: c.Persona, History: &c.ChatHistory})
	}

	votes, failures := o.engine.CollectVotes(ctx, voters, promotionPrompt, options)

	weighted := make(map[string]int)
	for _, v := range votes {
		if v.Abstained || v.TargetID == "" {
			continue
		}
		weight := 1
		if memberSet[v.VoterID] {
			weight = 2
		}
		weighted[v.TargetID] += weight
		// Fitness counts ballots received, not ballot weight.
		if c, ok := byID[v.TargetID]; ok {
			c.Fitness++
		}
	}

	winner := pickPromotion(candidates, weighted)

	now := time.Now().UTC()
	notice := "You have been promoted to the council by a weighted vote of members and pool peers."
	member := &types.Member{
		ID:          winner.ID,
		Persona:     winner.Persona,
		CreatedAt:   winner.CreatedAt,
		PromotedAt:  now,
		ChatHistory: append(winner.ChatHistory, types.ChatMessage{Role: "system", Content: notice, At: now}),
	}
	if err := o.store.PromoteCandidate(ctx, member); err != nil {
		return "", failures, err
	}

	rest := make([]*types.Candidate, 0, len(candidates)-1)
	for _, c := range candidates {
		if c.ID != winner.ID {
			rest = append(rest, c)
		}
	}
	if err := o.store.PutCandidates(ctx, rest); err != nil {
		return "", failures, err
	}

	o.log.Record(ctx, transcript.Entry{
		ParticipantID: winner.ID,
		Round:         "promotion",
		Prompt:        promotionPrompt,
		Response:      fmt.Sprintf("%s promoted with weighted score %d", winner.Persona.Name, weighted[winner.ID]),
	})

	return winner.ID, failures, nil
}

// pickPromotion orders candidates by weighted score, then persisted fitness,
// then lowest id. With zero valid votes it degrades to a pure
// fitness-then-id pick, so a vacancy is always fillable.
func pickPromotion(candidates []*types.Candidate, weighted map[string]int) *types.Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case weighted[c.ID] > weighted[best.ID]:
			best = c
		case weighted[c.ID] < weighted[best.ID]:
		case c.Fitness > best.Fitness:
			best = c
		case c.Fitness < best.Fitness:
		case c.ID < best.ID:
			best = c
		}
	}
	return best
}
