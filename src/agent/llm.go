package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stake-plus/agora/src/ai/core"
	"github.com/stake-plus/agora/src/types"
)

// LLM is the model-backed Agent. Each call renders the persona's system
// prompt, asks the provider for a strict-JSON reply and decodes it. An
// unparsable reply is an ordinary call failure: the executor retries it and
// the retry prompt carries a valid-JSON-only reminder.
type LLM struct {
	client core.Client
	opts   core.Options
}

// NewLLM wraps a provider client.
func NewLLM(client core.Client, opts core.Options) *LLM {
	return &LLM{client: client, opts: opts}
}

func (a *LLM) Propose(ctx context.Context, pc PersonaContext, prompt string, attempt int) (ProposalReply, error) {
	var reply ProposalReply
	if err := a.ask(ctx, personaSystemPrompt(pc), proposalPrompt(prompt), attempt, &reply); err != nil {
		return ProposalReply{}, err
	}
	if strings.TrimSpace(reply.Content) == "" {
		return ProposalReply{}, fmt.Errorf("agent: empty proposal content")
	}
	return reply, nil
}

func (a *LLM) CastVote(ctx context.Context, pc PersonaContext, ballot Ballot, attempt int) (VoteReply, error) {
	var reply VoteReply
	if err := a.ask(ctx, personaSystemPrompt(pc), ballotPrompt(ballot), attempt, &reply); err != nil {
		return VoteReply{}, err
	}
	return reply, nil
}

func (a *LLM) Nominate(ctx context.Context, pc PersonaContext, nom NominationContext, attempt int) (NominationReply, error) {
	var reply NominationReply
	if err := a.ask(ctx, personaSystemPrompt(pc), nominationPrompt(nom), attempt, &reply); err != nil {
		return NominationReply{}, err
	}
	return reply, nil
}

func (a *LLM) Arbitrate(ctx context.Context, options []string, attempt int) (ArbitrationReply, error) {
	system := "You are the neutral orchestrator of a deliberative council. Answer only with the JSON object requested."
	var reply ArbitrationReply
	if err := a.ask(ctx, system, arbitrationPrompt(options), attempt, &reply); err != nil {
		return ArbitrationReply{}, err
	}
	return reply, nil
}

func (a *LLM) GeneratePersona(ctx context.Context, existing []types.Persona, lastRemovalCause string) (types.Persona, error) {
	system := "You design distinctive personas for a deliberative council. Answer only with the JSON object requested."
	var p types.Persona
	if err := a.ask(ctx, system, generatePersonaPrompt(existing, lastRemovalCause), 1, &p); err != nil {
		return types.Persona{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return types.Persona{}, fmt.Errorf("agent: generated persona has no name")
	}
	return p, nil
}

func (a *LLM) RefinePersona(ctx context.Context, pc PersonaContext) (types.Persona, error) {
	var p types.Persona
	if err := a.ask(ctx, personaSystemPrompt(pc), refinePersonaPrompt(pc), 1, &p); err != nil {
		return types.Persona{}, err
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = pc.Persona.Name
	}
	p.Model = pc.Persona.Model
	return p, nil
}

func (a *LLM) Summarize(ctx context.Context, text string) (string, error) {
	opts := a.opts
	opts.SystemPrompt = "You write terse, factual summaries."
	out, err := a.client.Respond(ctx, summarizePrompt(text), opts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (a *LLM) ask(ctx context.Context, system, prompt string, attempt int, dst interface{}) error {
	if attempt > 1 {
		prompt += jsonReminder
	}
	opts := a.opts
	opts.SystemPrompt = system

	raw, err := a.client.Respond(ctx, prompt, opts)
	if err != nil {
		return err
	}
	if err := decodeJSON(raw, dst); err != nil {
		return fmt.Errorf("agent: unparsable reply: %w", err)
	}
	return nil
}

// decodeJSON accepts either a bare JSON object or one embedded in prose or a
// code fence, as models often produce.
func decodeJSON(raw string, dst interface{}) error {
	raw = strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(raw), dst); err == nil {
		return nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return json.Unmarshal([]byte(raw[start:end+1]), dst)
	}
	return fmt.Errorf("no JSON object found")
}
