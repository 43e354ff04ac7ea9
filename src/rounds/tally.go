package rounds

import (
	"sort"

	"github.com/stake-plus/agora/src/types"
)

// VoteTally aggregates one round of ballots.
type VoteTally struct {
	Counts    map[string]int
	TotalCast int // non-abstaining votes
}

// TallyVotes counts valid votes per target.
func TallyVotes(votes []types.Vote) VoteTally {
	t := VoteTally{Counts: make(map[string]int)}
	for _, v := range votes {
		if v.Abstained || v.TargetID == "" {
			continue
		}
		t.Counts[v.TargetID]++
		t.TotalCast++
	}
	return t
}

// Winners returns the ids holding the maximum vote count. The maximum is
// computed over nonzero tallies only, so an all-abstain round has no winner.
func (t VoteTally) Winners() []string {
	max := 0
	for _, c := range t.Counts {
		if c > max {
			max = c
		}
	}
	if max == 0 {
		return nil
	}
	var winners []string
	for id, c := range t.Counts {
		if c == max {
			winners = append(winners, id)
		}
	}
	sort.Strings(winners)
	return winners
}

// SimpleMajority is the candidate-pool eviction quorum: ceil(n/2).
func SimpleMajority(population int) int {
	return (population + 1) / 2
}

// NullificationShield returns the candidates protected from eviction this
// round: anyone who received at least 75% of the votes cast in the same
// round. Computed from the round tally, never from cumulative fitness.
func NullificationShield(t VoteTally) map[string]bool {
	shielded := make(map[string]bool)
	if t.TotalCast == 0 {
		return shielded
	}
	for id, c := range t.Counts {
		if 4*c >= 3*t.TotalCast {
			shielded[id] = true
		}
	}
	return shielded
}

// TallyNominations groups nominations per nominee and applies the quorum.
// Shielded nominees are never marked evicted regardless of count. Outcomes
// are ordered by count descending, then id, so results are deterministic.
func TallyNominations(noms []types.Nomination, quorum int, shielded map[string]bool) []types.EvictionOutcome {
	byNominee := make(map[string][]types.Nomination)
	for _, n := range noms {
		if n.NomineeID == "" {
			continue
		}
		byNominee[n.NomineeID] = append(byNominee[n.NomineeID], n)
	}

	out := make([]types.EvictionOutcome, 0, len(byNominee))
	for id, ns := range byNominee {
		out = append(out, types.EvictionOutcome{
			NomineeID:   id,
			Nominations: ns,
			Count:       len(ns),
			Shielded:    shielded[id],
			Evicted:     len(ns) >= quorum && !shielded[id],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].NomineeID < out[j].NomineeID
	})
	return out
}
