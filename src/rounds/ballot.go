package rounds

import "github.com/stake-plus/agora/src/types"

// Option is one eligible target on a ballot.
type Option struct {
	ID   string
	Text string
}

// BallotView is the voter-specific view of a round: the ordered eligible
// targets with the voter's own entry removed. Because the exclusion shifts
// indices, a choice is only meaningful against the exact view it was made on;
// this type is the single place that mapping lives.
type BallotView struct {
	VoterID string
	Options []Option
}

// NewBallotView builds the filtered view for one voter.
func NewBallotView(voterID string, options []Option) BallotView {
	filtered := make([]Option, 0, len(options))
	for _, opt := range options {
		if opt.ID == voterID {
			continue
		}
		filtered = append(filtered, opt)
	}
	return BallotView{VoterID: voterID, Options: filtered}
}

// Texts returns the option texts in ballot order.
func (v BallotView) Texts() []string {
	out := make([]string, len(v.Options))
	for i, opt := range v.Options {
		out[i] = opt.Text
	}
	return out
}

// Decode maps a 1-based choice into a target id. Nil, out-of-range and
// self-referencing choices all decode to an abstention, never an error.
func (v BallotView) Decode(choice *int) (targetID string, ok bool) {
	if choice == nil {
		return "", false
	}
	idx := *choice
	if idx < 1 || idx > len(v.Options) {
		return "", false
	}
	target := v.Options[idx-1].ID
	if target == v.VoterID {
		return "", false
	}
	return target, true
}

// ProposalOptions renders proposals as ballot options keyed by author.
func ProposalOptions(proposals []types.Proposal) []Option {
	out := make([]Option, len(proposals))
	for i, p := range proposals {
		out[i] = Option{ID: p.AuthorID, Text: p.Content}
	}
	return out
}
