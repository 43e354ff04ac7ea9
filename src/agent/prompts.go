package agent

import (
	"fmt"
	"strings"

	"github.com/stake-plus/agora/src/types"
)

// historyTail bounds how much running context is replayed into a prompt.
const historyTail = 12

func personaSystemPrompt(pc PersonaContext) string {
	var b strings.Builder
	p := pc.Persona
	fmt.Fprintf(&b, "You are %s, a member of a deliberative council.\n", p.Name)
	if p.Background != "" {
		fmt.Fprintf(&b, "Background: %s\n", p.Background)
	}
	if len(p.Values) > 0 {
		fmt.Fprintf(&b, "Values: %s\n", strings.Join(p.Values, ", "))
	}
	if len(p.Traits) > 0 {
		fmt.Fprintf(&b, "Traits: %s\n", strings.Join(p.Traits, ", "))
	}
	if p.DecisionStyle != "" {
		fmt.Fprintf(&b, "Decision style: %s\n", p.DecisionStyle)
	}
	b.WriteString("Stay in character. Answer only with the JSON object requested, no prose around it.\n")

	if tail := historyText(pc.History); tail != "" {
		b.WriteString("\nRecent context:\n")
		b.WriteString(tail)
	}
	return b.String()
}

func historyText(h types.ChatHistory) string {
	if len(h) == 0 {
		return ""
	}
	start := 0
	if len(h) > historyTail {
		start = len(h) - historyTail
	}
	var b strings.Builder
	for _, msg := range h[start:] {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	return b.String()
}

func proposalPrompt(prompt string) string {
	return fmt.Sprintf(`The council has been asked:

%s

Draft your own proposal answering the query.

Respond with JSON: {"content": "<your proposal>", "reasoning": "<why>"}`, prompt)
}

func ballotPrompt(ballot Ballot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The council was asked:\n\n%s\n\nYour peers proposed (your own proposal is not listed):\n\n", ballot.Prompt)
	writeOptions(&b, ballot.Options)
	b.WriteString("\nVote for the strongest proposal by its number, or abstain.\n\n")
	b.WriteString(`Respond with JSON: {"choice": <number or null>, "reasoning": "<why>"}`)
	return b.String()
}

func nominationPrompt(nom NominationContext) string {
	var b strings.Builder
	if nom.RoundSummary != "" {
		fmt.Fprintf(&b, "Round summary:\n%s\n\n", nom.RoundSummary)
	}
	b.WriteString("Current participants:\n\n")
	writeOptions(&b, nom.Options)
	b.WriteString("\nIf any participant should be removed from the council, nominate them by number; otherwise decline.\n\n")
	b.WriteString(`Respond with JSON: {"nominee": <number or null>, "reasoning": "<why>"}`)
	return b.String()
}

func arbitrationPrompt(options []string) string {
	var b strings.Builder
	b.WriteString("These proposals are tied. As the neutral orchestrator, pick the single strongest one.\n\n")
	writeOptions(&b, options)
	b.WriteString("\n")
	b.WriteString(`Respond with JSON: {"selection": <number>, "reasoning": "<why>"}`)
	return b.String()
}

func generatePersonaPrompt(existing []types.Persona, lastRemovalCause string) string {
	var b strings.Builder
	b.WriteString("Invent a new council persona distinct from the existing ones.\n\nExisting personas:\n")
	for _, p := range existing {
		fmt.Fprintf(&b, "- %s (%s)\n", p.Name, p.DecisionStyle)
	}
	if lastRemovalCause != "" {
		fmt.Fprintf(&b, "\nThe most recent council removal happened because: %s\nDesign the persona to avoid repeating this failure.\n", lastRemovalCause)
	}
	b.WriteString("\n")
	b.WriteString(`Respond with JSON: {"name": "...", "values": ["..."], "traits": ["..."], "background": "...", "decisionStyle": "..."}`)
	return b.String()
}

func refinePersonaPrompt(pc PersonaContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reflect on your recent rounds and refine your persona. Keep the name %q.\n", pc.Persona.Name)
	if tail := historyText(pc.History); tail != "" {
		b.WriteString("\nRecent rounds:\n")
		b.WriteString(tail)
	}
	b.WriteString("\n")
	b.WriteString(`Respond with JSON: {"name": "...", "values": ["..."], "traits": ["..."], "background": "...", "decisionStyle": "..."}`)
	return b.String()
}

func summarizePrompt(text string) string {
	return fmt.Sprintf("Summarize the following in a short paragraph, preserving decisions and their stated reasons:\n\n%s", text)
}

func writeOptions(b *strings.Builder, options []string) {
	for i, opt := range options {
		fmt.Fprintf(b, "%d. %s\n", i+1, opt)
	}
}

// jsonReminder is appended on retry attempts after an unparsable reply.
const jsonReminder = "\n\nYour previous reply was not valid JSON. Reply with ONLY the requested JSON object."
