// Package rounds holds the round primitives shared by the council vote and
// the candidate-pool practice flow: proposal collection, ballot views, vote
// and nomination tallies, tie arbitration and the nullification shield.
package rounds

import (
	"context"
	"fmt"
	"time"

	"github.com/stake-plus/agora/src/agent"
	"github.com/stake-plus/agora/src/executor"
	"github.com/stake-plus/agora/src/transcript"
	"github.com/stake-plus/agora/src/types"
)

// Participant is one deliberating persona, member or candidate alike. The
// engine appends every exchange to History; the caller persists it.
type Participant struct {
	ID      string
	Persona types.Persona
	History *types.ChatHistory
}

func (p *Participant) personaContext() agent.PersonaContext {
	var h types.ChatHistory
	if p.History != nil {
		h = *p.History
	}
	return agent.PersonaContext{ID: p.ID, Persona: p.Persona, History: h}
}

func (p *Participant) remember(role, content string) {
	if p.History == nil {
		return
	}
	*p.History = append(*p.History, types.ChatMessage{Role: role, Content: content, At: time.Now().UTC()})
}

// Engine runs rounds against the agent capability, fanning every
// participant's call out through the executor. Rounds are strictly
// sequential: a collect call returns only once every participant's attempt
// has settled, success or failure.
type Engine struct {
	Agent  agent.Agent
	Policy executor.Policy
	Log    *transcript.Log
}

// CollectProposals asks every participant for a proposal. Failures are
// returned as messages, never as an error: the caller decides whether the
// surviving count is sufficient.
func (e *Engine) CollectProposals(ctx context.Context, participants []*Participant, prompt string) ([]types.Proposal, []string) {
	tasks := make([]executor.Task[types.Proposal], len(participants))
	for i, p := range participants {
		p := p
		tasks[i] = executor.Task[types.Proposal]{
			Label: "proposal/" + p.Persona.Name,
			Op: func(ctx context.Context, attempt int) (types.Proposal, error) {
				reply, err := e.Agent.Propose(ctx, p.personaContext(), prompt, attempt)
				if err != nil {
					return types.Proposal{}, err
				}
				p.remember("user", "Council query: "+prompt)
				p.remember("assistant", "My proposal: "+reply.Content)
				e.Log.Record(ctx, transcript.Entry{
					ParticipantID: p.ID,
					Round:         "proposal",
					Prompt:        prompt,
					Response:      reply.Content,
				})
				return types.Proposal{AuthorID: p.ID, Content: reply.Content, Reasoning: reply.Reasoning}, nil
			},
		}
	}

	out := executor.Run(ctx, tasks, e.Policy)
	proposals := make([]types.Proposal, 0, len(out.Successes))
	for _, s := range out.Successes {
		proposals = append(proposals, s.Value)
	}
	return proposals, out.FailureMessages()
}

// CollectVotes runs one selection ballot. Every participant votes on the
// option set minus their own entry; invalid or self choices are abstentions.
func (e *Engine) CollectVotes(ctx context.Context, participants []*Participant, prompt string, options []Option) ([]types.Vote, []string) {
	tasks := make([]executor.Task[types.Vote], len(participants))
	for i, p := range participants {
		p := p
		view := NewBallotView(p.ID, options)
		tasks[i] = executor.Task[types.Vote]{
			Label: "vote/" + p.Persona.Name,
			Op: func(ctx context.Context, attempt int) (types.Vote, error) {
				reply, err := e.Agent.CastVote(ctx, p.personaContext(), agent.Ballot{Prompt: prompt, Options: view.Texts()}, attempt)
				if err != nil {
					return types.Vote{}, err
				}
				target, voted := view.Decode(reply.Choice)
				vote := types.Vote{VoterID: p.ID, TargetID: target, Abstained: !voted, Reasoning: reply.Reasoning}
				if voted {
					p.remember("assistant", "I voted for a peer proposal: "+reply.Reasoning)
				} else {
					p.remember("assistant", "I abstained: "+reply.Reasoning)
				}
				e.Log.Record(ctx, transcript.Entry{
					ParticipantID: p.ID,
					Round:         "vote",
					Prompt:        prompt,
					Response:      reply.Reasoning,
				})
				return vote, nil
			},
		}
	}

	out := executor.Run(ctx, tasks, e.Policy)
	votes := make([]types.Vote, 0, len(out.Successes))
	for _, s := range out.Successes {
		votes = append(votes, s.Value)
	}
	return votes, out.FailureMessages()
}

// ResolveSelection picks the round winner from the tally. A single maximal
// target wins outright; anything else (a tie at the max, or a round with no
// valid votes at all) goes to one arbitration call over the tie set. An
// unusable arbitration answer defaults to the first proposal of the tie set,
// never an error.
func (e *Engine) ResolveSelection(ctx context.Context, proposals []types.Proposal, votes []types.Vote) (string, *types.TieBreak, []string) {
	if len(proposals) == 0 {
		return "", nil, nil
	}

	tally := TallyVotes(votes)
	winners := tally.Winners()
	if len(winners) == 1 {
		return winners[0], nil, nil
	}

	var tieSet []types.Proposal
	if len(winners) == 0 {
		// Nobody got a valid vote; every proposal is still in play.
		tieSet = proposals
	} else {
		winnerSet := make(map[string]bool, len(winners))
		for _, id := range winners {
			winnerSet[id] = true
		}
		for _, p := range proposals {
			if winnerSet[p.AuthorID] {
				tieSet = append(tieSet, p)
			}
		}
	}

	texts := make([]string, len(tieSet))
	for i, p := range tieSet {
		texts[i] = p.Content
	}

	selected := tieSet[0]
	reasoning := "arbitration unavailable; defaulted to the first tied proposal"

	out := executor.Run(ctx, []executor.Task[agent.ArbitrationReply]{{
		Label: "arbitration",
		Op: func(ctx context.Context, attempt int) (agent.ArbitrationReply, error) {
			return e.Agent.Arbitrate(ctx, texts, attempt)
		},
	}}, e.Policy)

	var failures []string
	if len(out.Successes) == 1 {
		reply := out.Successes[0].Value
		if reply.Selection >= 1 && reply.Selection <= len(tieSet) {
			selected = tieSet[reply.Selection-1]
			reasoning = reply.Reasoning
		} else {
			reasoning = fmt.Sprintf("arbitration picked %d of %d options; defaulted to the first", reply.Selection, len(tieSet))
		}
		e.Log.Record(ctx, transcript.Entry{
			ParticipantID: "orchestrator",
			Round:         "arbitration",
			Prompt:        fmt.Sprintf("tie of %d proposals", len(tieSet)),
			Response:      reply.Reasoning,
		})
	} else {
		failures = out.FailureMessages()
	}

	return selected.AuthorID, &types.TieBreak{TiedProposals: tieSet, SelectedID: selected.AuthorID, Reasoning: reasoning}, failures
}

// CollectNominations runs one removal round. The target index space covers
// all current participants, the nominator included; a self-nomination is
// allowed but needs peers to reach any quorum.
func (e *Engine) CollectNominations(ctx context.Context, participants []*Participant, roundSummary string) ([]types.Nomination, []string) {
	options := make([]Option, len(participants))
	for i, p := range participants {
		options[i] = Option{ID: p.ID, Text: p.Persona.Name}
	}
	texts := make([]string, len(options))
	for i, opt := range options {
		texts[i] = opt.Text
	}

	tasks := make([]executor.Task[types.Nomination], len(participants))
	for i, p := range participants {
		p := p
		tasks[i] = executor.Task[types.Nomination]{
			Label: "nomination/" + p.Persona.Name,
			Op: func(ctx context.Context, attempt int) (types.Nomination, error) {
				reply, err := e.Agent.Nominate(ctx, p.personaContext(), agent.NominationContext{RoundSummary: roundSummary, Options: texts}, attempt)
				if err != nil {
					return types.Nomination{}, err
				}
				nom := types.Nomination{NominatorID: p.ID, Reasoning: reply.Reasoning}
				if reply.Nominee != nil && *reply.Nominee >= 1 && *reply.Nominee <= len(options) {
					nom.NomineeID = options[*reply.Nominee-1].ID
				}
				e.Log.Record(ctx, transcript.Entry{
					ParticipantID: p.ID,
					Round:         "nomination",
					Prompt:        roundSummary,
					Response:      reply.Reasoning,
				})
				return nom, nil
			},
		}
	}

	out := executor.Run(ctx, tasks, e.Policy)
	noms := make([]types.Nomination, 0, len(out.Successes))
	for _, s := range out.Successes {
		noms = append(noms, s.Value)
	}
	return noms, out.FailureMessages()
}
