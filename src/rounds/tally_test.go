package rounds

import (
	"fmt"
	"testing"

	"github.com/stake-plus/agora/src/types"
)

func votesFor(targets ...string) []types.Vote {
	votes := make([]types.Vote, len(targets))
	for i, target := range targets {
		if target == "" {
			votes[i] = types.Vote{VoterID: fmt.Sprintf("v%d", i), Abstained: true}
		} else {
			votes[i] = types.Vote{VoterID: fmt.Sprintf("v%d", i), TargetID: target}
		}
	}
	return votes
}

func TestWinnersIgnoreAbstentions(t *testing.T) {
	tally := TallyVotes(votesFor("a", "a", "b", "", ""))
	if tally.TotalCast != 3 {
		t.Errorf("TotalCast = %d, want 3", tally.TotalCast)
	}
	winners := tally.Winners()
	if len(winners) != 1 || winners[0] != "a" {
		t.Errorf("winners = %v, want [a]", winners)
	}
}

func TestWinnersAllAbstainedIsEmpty(t *testing.T) {
	tally := TallyVotes(votesFor("", "", ""))
	if got := tally.Winners(); len(got) != 0 {
		t.Errorf("winners = %v, want none", got)
	}
}

func TestWinnersTie(t *testing.T) {
	tally := TallyVotes(votesFor("a", "a", "b", "b", "c"))
	winners := tally.Winners()
	if len(winners) != 2 || winners[0] != "a" || winners[1] != "b" {
		t.Errorf("winners = %v, want [a b]", winners)
	}
}

func TestSimpleMajority(t *testing.T) {
	tests := []struct {
		population int
		want       int
	}{
		{population: 2, want: 1},
		{population: 3, want: 2},
		{population: 4, want: 2},
		{population: 5, want: 3},
		{population: 8, want: 4},
	}
	for _, tt := range tests {
		if got := SimpleMajority(tt.population); got != tt.want {
			t.Errorf("SimpleMajority(%d) = %d, want %d", tt.population, got, tt.want)
		}
	}
}

func TestNullificationShieldAt75Percent(t *testing.T) {
	tests := []struct {
		name     string
		votes    []types.Vote
		shielded []string
	}{
		{
			name:     "exactly three quarters",
			votes:    votesFor("a", "a", "a", "b"),
			shielded: []string{"a"},
		},
		{
			name:     "just under",
			votes:    votesFor("a", "a", "b", "c"),
			shielded: nil,
		},
		{
			name:     "unanimous",
			votes:    votesFor("a", "a", "a"),
			shielded: []string{"a"},
		},
		{
			name:     "no votes cast",
			votes:    votesFor("", "", ""),
			shielded: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shield := NullificationShield(TallyVotes(tt.votes))
			if len(shield) != len(tt.shielded) {
				t.Fatalf("shield = %v, want %v", shield, tt.shielded)
			}
			for _, id := range tt.shielded {
				if !shield[id] {
					t.Errorf("%s not shielded", id)
				}
			}
		})
	}
}

func nominationsAgainst(nominee string, count int) []types.Nomination {
	noms := make([]types.Nomination, count)
	for i := range noms {
		noms[i] = types.Nomination{NominatorID: fmt.Sprintf("n%d", i), NomineeID: nominee}
	}
	return noms
}

func TestSupermajorityBoundary(t *testing.T) {
	const supermajority = 6 // of an 8 member council

	five := TallyNominations(nominationsAgainst("m8", 5), supermajority, nil)
	if len(five) != 1 || five[0].Evicted {
		t.Errorf("5 of 8 nominations must never evict a member: %+v", five)
	}

	six := TallyNominations(nominationsAgainst("m8", 6), supermajority, nil)
	if len(six) != 1 || !six[0].Evicted {
		t.Errorf("6 of 8 nominations must always evict a member: %+v", six)
	}
}

func TestSimpleMajorityEvictsCandidate(t *testing.T) {
	// 4 candidates: ceil(4/2) = 2 nominations evict.
	out := TallyNominations(nominationsAgainst("c1", 2), SimpleMajority(4), nil)
	if len(out) != 1 || !out[0].Evicted {
		t.Errorf("2 of 4 nominations must evict a candidate: %+v", out)
	}
}

func TestShieldedNomineeSurvivesUnanimousNominations(t *testing.T) {
	shield := map[string]bool{"c1": true}
	out := TallyNominations(nominationsAgainst("c1", 4), SimpleMajority(4), shield)
	if len(out) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(out))
	}
	if out[0].Evicted {
		t.Error("shielded candidate was evicted")
	}
	if !out[0].Shielded {
		t.Error("outcome does not mark the shield")
	}
}

func TestTallyNominationsOrdering(t *testing.T) {
	noms := append(nominationsAgainst("b", 2), nominationsAgainst("a", 2)...)
	noms = append(noms, nominationsAgainst("c", 3)...)
	noms = append(noms, types.Nomination{NominatorID: "x"}) // declined, no nominee

	out := TallyNominations(noms, 10, nil)
	if len(out) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(out))
	}
	order := []string{out[0].NomineeID, out[1].NomineeID, out[2].NomineeID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
