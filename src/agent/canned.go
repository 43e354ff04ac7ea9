package agent

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/stake-plus/agora/src/types"
)

var cannedNames = []string{
	"Prudence", "Vesper", "Corvin", "Amara", "Tycho", "Isolde", "Bram", "Nadia",
	"Oswin", "Petra", "Quill", "Rowan", "Selene", "Tamsin", "Ulric", "Vera",
}

// Canned is a deterministic offline Agent used by the smoke binary: it always
// proposes, always votes for the first option and never nominates anyone.
type Canned struct {
	serial atomic.Int64
}

func (c *Canned) Propose(ctx context.Context, pc PersonaContext, prompt string, attempt int) (ProposalReply, error) {
	return ProposalReply{
		Content:   fmt.Sprintf("%s suggests addressing %q directly.", pc.Persona.Name, prompt),
		Reasoning: "canned deliberation",
	}, nil
}

func (c *Canned) CastVote(ctx context.Context, pc PersonaContext, ballot Ballot, attempt int) (VoteReply, error) {
	if len(ballot.Options) == 0 {
		return VoteReply{Reasoning: "nothing to vote on"}, nil
	}
	one := 1
	return VoteReply{Choice: &one, Reasoning: "first option looks fine"}, nil
}

func (c *Canned) Nominate(ctx context.Context, pc PersonaContext, nom NominationContext, attempt int) (NominationReply, error) {
	return NominationReply{Reasoning: "no grievances"}, nil
}

func (c *Canned) Arbitrate(ctx context.Context, options []string, attempt int) (ArbitrationReply, error) {
	return ArbitrationReply{Selection: 1, Reasoning: "deterministic pick"}, nil
}

func (c *Canned) GeneratePersona(ctx context.Context, existing []types.Persona, lastRemovalCause string) (types.Persona, error) {
	n := c.serial.Add(1)
	name := cannedNames[int(n-1)%len(cannedNames)]
	if n > int64(len(cannedNames)) {
		name = fmt.Sprintf("%s-%d", name, n)
	}
	return types.Persona{
		Name:          name,
		Values:        []string{"pragmatism"},
		Traits:        []string{"steady"},
		Background:    "synthesized for a dry run",
		DecisionStyle: "methodical",
	}, nil
}

func (c *Canned) RefinePersona(ctx context.Context, pc PersonaContext) (types.Persona, error) {
	return pc.Persona, nil
}

func (c *Canned) Summarize(ctx context.Context, text string) (string, error) {
	const max = 200
	if len(text) > max {
		text = text[:max] + "..."
	}
	return text, nil
}
