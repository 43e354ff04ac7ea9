package types

// Proposal is one participant's answer to the round prompt. Ephemeral: it
// survives only in the round result and the author's chat history.
type Proposal struct {
	AuthorID  string `json:"authorId"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

// Vote is one participant's ballot. An empty TargetID means abstain;
// self-votes are invalid and coerced to abstain at decode time.
type Vote struct {
	VoterID   string `json:"voterId"`
	TargetID  string `json:"targetId,omitempty"`
	Abstained bool   `json:"abstained"`
	Reasoning string `json:"reasoning"`
}

// Nomination names a participant for removal. An empty NomineeID means the
// nominator declined to nominate anyone.
type Nomination struct {
	NominatorID string `json:"nominatorId"`
	NomineeID   string `json:"nomineeId,omitempty"`
	Reasoning   string `json:"reasoning"`
}

// EvictionOutcome aggregates the nominations cast against one participant.
type EvictionOutcome struct {
	NomineeID     string       `json:"nomineeId"`
	Nominations   []Nomination `json:"nominations"`
	Count         int          `json:"count"`
	Evicted       bool         `json:"evicted"`
	Shielded      bool         `json:"shielded,omitempty"`
	ReplacementID string       `json:"replacementId,omitempty"`
}

// TieBreak records an arbitration over tied proposals.
type TieBreak struct {
	TiedProposals []Proposal `json:"tiedProposals"`
	SelectedID    string     `json:"selectedId"`
	Reasoning     string     `json:"reasoning"`
}

// VoteResult is the full outcome of one council vote.
type VoteResult struct {
	Prompt    string            `json:"prompt"`
	Response  string            `json:"response"`
	WinnerID  string            `json:"winnerId"`
	Proposals []Proposal        `json:"proposals"`
	Votes     []Vote            `json:"votes"`
	TieBreak  *TieBreak         `json:"tieBreak,omitempty"`
	Evictions []EvictionOutcome `json:"evictions"`
	Failures  []string          `json:"failures"`
}

// PracticeResult is the outcome of one candidate-pool practice round.
type PracticeResult struct {
	Skipped         bool              `json:"skipped"`
	WinnerID        string            `json:"winnerId,omitempty"`
	Proposals       []Proposal        `json:"proposals"`
	Votes           []Vote            `json:"votes"`
	TieBreak        *TieBreak         `json:"tieBreak,omitempty"`
	Evictions       []EvictionOutcome `json:"evictions"`
	NewCandidateIDs []string          `json:"newCandidateIds"`
	RefinedIDs      []string          `json:"refinedIds"`
	Failures        []string          `json:"failures"`
}
