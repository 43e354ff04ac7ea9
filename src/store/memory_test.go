package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stake-plus/agora/src/types"
)

func testCandidate(id string) *types.Candidate {
	return &types.Candidate{
		ID:        id,
		Persona:   types.Persona{Name: "persona-" + id},
		CreatedAt: time.Now().UTC(),
	}
}

func testMember(id string) *types.Member {
	return &types.Member{
		ID:         id,
		Persona:    types.Persona{Name: "persona-" + id},
		CreatedAt:  time.Now().UTC(),
		PromotedAt: time.Now().UTC(),
	}
}

func TestConcurrentSavesLoseNothing(t *testing.T) {
	for _, n := range []int{1, 10, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := NewMemory()
			ctx := context.Background()

			var wg sync.WaitGroup
			errs := make([]error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs[i] = s.PutCandidate(ctx, testCandidate(fmt.Sprintf("cand-%03d", i)))
				}(i)
			}
			wg.Wait()

			for i, err := range errs {
				if err != nil {
					t.Fatalf("save %d: %v", i, err)
				}
			}

			st, err := s.RosterState(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(st.CandidateIDs) != n {
				t.Fatalf("candidate ids = %d, want %d", len(st.CandidateIDs), n)
			}
			seen := map[string]bool{}
			for _, id := range st.CandidateIDs {
				if seen[id] {
					t.Fatalf("duplicate id %s in roster state", id)
				}
				seen[id] = true
			}
		})
	}
}

func TestPutMemberIsIdempotentOnRoster(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	m := testMember("m1")
	for i := 0; i < 3; i++ {
		if err := s.PutMember(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	st, _ := s.RosterState(ctx)
	if len(st.MemberIDs) != 1 {
		t.Fatalf("member ids = %v, want exactly one entry", st.MemberIDs)
	}
}

func TestEvictionIsNonDestructive(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.PutCandidate(ctx, testCandidate("c1")); err != nil {
		t.Fatal(err)
	}
	if err := s.EvictCandidate(ctx, "c1", "voted out"); err != nil {
		t.Fatal(err)
	}

	st, _ := s.RosterState(ctx)
	if st.CandidateIDs.Contains("c1") {
		t.Error("evicted candidate still in CandidateIDs")
	}

	c, err := s.Candidate(ctx, "c1")
	if err != nil {
		t.Fatalf("evicted candidate record was destroyed: %v", err)
	}
	if !c.Evicted || c.EvictedAt == nil || c.EvictionReason != "voted out" {
		t.Errorf("eviction fields not set: %+v", c)
	}

	if err := s.RestoreCandidate(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	c, _ = s.Candidate(ctx, "c1")
	if c.Evicted || c.EvictedAt != nil || c.EvictionReason != "" {
		t.Errorf("restore did not clear eviction fields: %+v", c)
	}
	st, _ = s.RosterState(ctx)
	if !st.CandidateIDs.Contains("c1") {
		t.Error("restored candidate missing from CandidateIDs")
	}
}

func TestDemotePreservesIDAndRecordsCause(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	m := testMember("x9")
	m.ChatHistory = types.ChatHistory{{Role: "system", Content: "hello", At: time.Now()}}
	if err := s.PutMember(ctx, m); err != nil {
		t.Fatal(err)
	}

	cand := &types.Candidate{
		ID:          m.ID,
		Persona:     m.Persona,
		CreatedAt:   m.CreatedAt,
		Fitness:     0,
		ChatHistory: m.ChatHistory,
	}
	if err := s.DemoteMember(ctx, cand, "lost council confidence"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Member(ctx, "x9"); err != ErrNotFound {
		t.Errorf("member record should be gone, got err=%v", err)
	}
	c, err := s.Candidate(ctx, "x9")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.ChatHistory) != 1 {
		t.Error("chat history not carried across demotion")
	}

	st, _ := s.RosterState(ctx)
	if st.MemberIDs.Contains("x9") || !st.CandidateIDs.Contains("x9") {
		t.Errorf("roster lists wrong after demotion: members=%v candidates=%v", st.MemberIDs, st.CandidateIDs)
	}
	if len(st.LastRemovalCauses) != 1 || st.LastRemovalCauses[0] != "lost council confidence" {
		t.Errorf("removal causes = %v", st.LastRemovalCauses)
	}
}

func TestRemovalCauseRingIsBoundedNewestFirst(t *testing.T) {
	st := &types.RosterState{}
	for i := 0; i < 15; i++ {
		st.PushRemovalCause(fmt.Sprintf("cause-%d", i))
	}
	if len(st.LastRemovalCauses) != types.RemovalCauseLimit {
		t.Fatalf("ring length = %d, want %d", len(st.LastRemovalCauses), types.RemovalCauseLimit)
	}
	if st.LastRemovalCauses[0] != "cause-14" {
		t.Errorf("newest cause = %q, want cause-14", st.LastRemovalCauses[0])
	}
	if st.LastRemovalCauses[9] != "cause-5" {
		t.Errorf("oldest retained cause = %q, want cause-5", st.LastRemovalCauses[9])
	}
}

func TestPromoteMovesAcrossLists(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	c := testCandidate("p1")
	c.Fitness = 7
	if err := s.PutCandidate(ctx, c); err != nil {
		t.Fatal(err)
	}

	m := &types.Member{ID: c.ID, Persona: c.Persona, CreatedAt: c.CreatedAt, PromotedAt: time.Now().UTC(), ChatHistory: c.ChatHistory}
	if err := s.PromoteCandidate(ctx, m); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Candidate(ctx, "p1"); err != ErrNotFound {
		t.Errorf("candidate record should be gone, got err=%v", err)
	}
	if _, err := s.Member(ctx, "p1"); err != nil {
		t.Errorf("member record missing: %v", err)
	}
	st, _ := s.RosterState(ctx)
	if st.CandidateIDs.Contains("p1") || !st.MemberIDs.Contains("p1") {
		t.Errorf("roster lists wrong after promotion: members=%v candidates=%v", st.MemberIDs, st.CandidateIDs)
	}
}

func TestListEvictedPaginates(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("e%d", i)
		if err := s.PutCandidate(ctx, testCandidate(id)); err != nil {
			t.Fatal(err)
		}
		if err := s.EvictCandidate(ctx, id, "test"); err != nil {
			t.Fatal(err)
		}
	}

	page1, cursor, err := s.ListEvicted(ctx, ListOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 2 || cursor == "" {
		t.Fatalf("page1 len=%d cursor=%q", len(page1), cursor)
	}

	page2, cursor2, err := s.ListEvicted(ctx, ListOptions{Limit: 2, Cursor: cursor})
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 2 {
		t.Fatalf("page2 len=%d", len(page2))
	}
	if page1[1].ID >= page2[0].ID {
		t.Errorf("pages overlap: %s vs %s", page1[1].ID, page2[0].ID)
	}

	page3, _, err := s.ListEvicted(ctx, ListOptions{Limit: 2, Cursor: cursor2})
	if err != nil {
		t.Fatal(err)
	}
	if len(page3) != 1 {
		t.Errorf("page3 len=%d, want 1", len(page3))
	}

	rev, _, err := s.ListEvicted(ctx, ListOptions{Limit: 5, Reverse: true})
	if err != nil {
		t.Fatal(err)
	}
	if rev[0].ID != "e4" {
		t.Errorf("reverse first id = %s, want e4", rev[0].ID)
	}
}

func TestListEvictedClampsOversizedLimit(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i := 0; i < batchSize+20; i++ {
		id := fmt.Sprintf("e%03d", i)
		if err := s.PutCandidate(ctx, testCandidate(id)); err != nil {
			t.Fatal(err)
		}
		if err := s.EvictCandidate(ctx, id, "test"); err != nil {
			t.Fatal(err)
		}
	}

	page, cursor, err := s.ListEvicted(ctx, ListOptions{Limit: batchSize + 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != batchSize {
		t.Fatalf("page len = %d, want clamp to %d", len(page), batchSize)
	}
	if cursor == "" {
		t.Fatal("expected a cursor for the remaining records")
	}

	rest, _, err := s.ListEvicted(ctx, ListOptions{Limit: batchSize, Cursor: cursor})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 20 {
		t.Errorf("remainder len = %d, want 20", len(rest))
	}
}

func TestUpdateRosterStateBumpsVersion(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	before, _ := s.RosterState(ctx)
	after, err := s.UpdateRosterState(ctx, func(st *types.RosterState) error {
		st.TargetPoolSize = 7
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if after.Version != before.Version+1 {
		t.Errorf("version = %d, want %d", after.Version, before.Version+1)
	}
	if after.TargetPoolSize != 7 {
		t.Errorf("target pool size = %d, want 7", after.TargetPoolSize)
	}
}
