// Package agent defines the capability boundary to the language model: every
// persona-voiced operation the deliberation engine needs, plus persona
// generation and summarization. All operations are fallible and are meant to
// be driven through the executor when batched.
package agent

import (
	"context"

	"github.com/stake-plus/agora/src/types"
)

// PersonaContext identifies the participant a call speaks as.
type PersonaContext struct {
	ID      string
	Persona types.Persona
	History types.ChatHistory
}

// Ballot is the voter-specific view of a selection round: the ordered option
// texts already exclude the voter's own entry, so a choice is a 1-based index
// into exactly this list.
type Ballot struct {
	Prompt  string
	Options []string
}

// NominationContext frames a removal round. Options covers all current
// participants, the nominator included.
type NominationContext struct {
	RoundSummary string
	Options      []string
}

// ProposalReply is the decoded response to a proposal request.
type ProposalReply struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

// VoteReply is the decoded response to a ballot. A nil Choice is an
// abstention.
type VoteReply struct {
	Choice    *int   `json:"choice"`
	Reasoning string `json:"reasoning"`
}

// NominationReply is the decoded response to a nomination request. A nil
// Nominee declines to nominate.
type NominationReply struct {
	Nominee   *int   `json:"nominee"`
	Reasoning string `json:"reasoning"`
}

// ArbitrationReply picks one of a set of tied options by 1-based index.
type ArbitrationReply struct {
	Selection int    `json:"selection"`
	Reasoning string `json:"reasoning"`
}

// Agent is the language-model capability consumed by the round engine,
// orchestrator and candidate pool.
type Agent interface {
	Propose(ctx context.Context, pc PersonaContext, prompt string, attempt int) (ProposalReply, error)
	CastVote(ctx context.Context, pc PersonaContext, ballot Ballot, attempt int) (VoteReply, error)
	Nominate(ctx context.Context, pc PersonaContext, nom NominationContext, attempt int) (NominationReply, error)
	Arbitrate(ctx context.Context, options []string, attempt int) (ArbitrationReply, error)
	GeneratePersona(ctx context.Context, existing []types.Persona, lastRemovalCause string) (types.Persona, error)
	RefinePersona(ctx context.Context, pc PersonaContext) (types.Persona, error)
	Summarize(ctx context.Context, text string) (string, error)
}
