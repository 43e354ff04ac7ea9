package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stake-plus/agora/src/types"
)

// Memory is an in-memory store honoring the same optimistic-concurrency
// contract as the MySQL implementation: mutations work on a snapshot and
// commit only if the roster version is unchanged, retrying with backoff
// otherwise. Used by tests and the smoke binary.
type Memory struct {
	mu         sync.Mutex
	members    map[string]types.Member
	candidates map[string]types.Candidate
	state      types.RosterState
}

// NewMemory returns an empty in-memory store with a seeded roster singleton.
func NewMemory() *Memory {
	return &Memory{
		members:    make(map[string]types.Member),
		candidates: make(map[string]types.Candidate),
		state:      types.RosterState{ID: rosterID, TargetPoolSize: types.MinPoolSize},
	}
}

type memTx struct {
	members    map[string]types.Member
	candidates map[string]types.Candidate
}

func (s *Memory) Member(ctx context.Context, id string) (*types.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneMember(m)
	return &out, nil
}

func (s *Memory) Members(ctx context.Context, ids []string) ([]*types.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.members[id]; ok {
			c := cloneMember(m)
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Memory) Candidate(ctx context.Context, id string) (*types.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneCandidate(c)
	return &out, nil
}

func (s *Memory) Candidates(ctx context.Context, ids []string) ([]*types.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Candidate, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.candidates[id]; ok {
			cc := cloneCandidate(c)
			out = append(out, &cc)
		}
	}
	return out, nil
}

func (s *Memory) ListEvicted(ctx context.Context, opts ListOptions) ([]*types.Candidate, string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > batchSize {
		limit = batchSize
	}

	s.mu.Lock()
	var ids []string
	for id, c := range s.candidates {
		if c.Evicted {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(ids)
	if opts.Reverse {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	var page []string
	for _, id := range ids {
		if opts.Cursor != "" {
			if !opts.Reverse && id <= opts.Cursor {
				continue
			}
			if opts.Reverse && id >= opts.Cursor {
				continue
			}
		}
		page = append(page, id)
		if len(page) == limit {
			break
		}
	}

	out, err := s.Candidates(ctx, page)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(page) == limit {
		next = page[len(page)-1]
	}
	return out, next, nil
}

func (s *Memory) PutMember(ctx context.Context, m *types.Member) error {
	_, err := s.commit(ctx, func(st *types.RosterState, tx *memTx) error {
		tx.members[m.ID] = cloneMember(*m)
		if !st.MemberIDs.Contains(m.ID) {
			st.MemberIDs = append(st.MemberIDs, m.ID)
		}
		return nil
	})
	return err
}

func (s *Memory) DeleteMember(ctx context.Context, id string) error {
	_, err := s.commit(ctx, func(st *types.RosterState, tx *memTx) error {
		delete(tx.members, id)
		st.MemberIDs = st.MemberIDs.Without(id)
		return nil
	})
	return err
}

func (s *Memory) PutCandidate(ctx context.Context, c *types.Candidate) error {
	return s.PutCandidates(ctx, []*types.Candidate{c})
}

func (s *Memory) PutCandidates(ctx context.Context, cs []*types.Candidate) error {
	if len(cs) == 0 {
		return nil
	}
	_, err := s.commit(ctx, func(st *types.RosterState, tx *memTx) error {
		for _, c := range cs {
			tx.candidates[c.ID] = cloneCandidate(*c)
			if c.Evicted {
				st.CandidateIDs = st.CandidateIDs.Without(c.ID)
			} else if !st.CandidateIDs.Contains(c.ID) {
				st.CandidateIDs = append(st.CandidateIDs, c.ID)
			}
		}
		return nil
	})
	return err
}

func (s *Memory) DeleteCandidate(ctx context.Context, id string) error {
	_, err := s.commit(ctx, func(st *types.RosterState, tx *memTx) error {
		delete(tx.candidates, id)
		st.CandidateIDs = st.CandidateIDs.Without(id)
		return nil
	})
	return err
}

func (s *Memory) DemoteMember(ctx context.Context, c *types.Candidate, removalCause string) error {
	_, err := s.commit(ctx, func(st *types.RosterState, tx *memTx) error {
		delete(tx.members, c.ID)
		tx.candidates[c.ID] = cloneCandidate(*c)
		st.MemberIDs = st.MemberIDs.Without(c.ID)
		if !st.CandidateIDs.Contains(c.ID) {
			st.CandidateIDs = append(st.CandidateIDs, c.ID)
		}
		st.PushRemovalCause(removalCause)
		return nil
	})
	return err
}

func (s *Memory) PromoteCandidate(ctx context.Context, m *types.Member) error {
	_, err := s.commit(ctx, func(st *types.RosterState, tx *memTx) error {
		delete(tx.candidates, m.ID)
		tx.members[m.ID] = cloneMember(*m)
		st.CandidateIDs = st.CandidateIDs.Without(m.ID)
		if !st.MemberIDs.Contains(m.ID) {
			st.MemberIDs = append(st.MemberIDs, m.ID)
		}
		return nil
	})
	return err
}

func (s *Memory) EvictCandidate(ctx context.Context, id, reason string) error {
	_, err := s.commit(ctx, func(st *types.RosterState, tx *memTx) error {
		c, ok := tx.candidates[id]
		if !ok {
			return ErrNotFound
		}
		now := time.Now().UTC()
		c.Evicted = true
		c.EvictedAt = &now
		c.EvictionReason = reason
		tx.candidates[id] = c
		st.CandidateIDs = st.CandidateIDs.Without(id)
		return nil
	})
	return err
}

func (s *Memory) RestoreCandidate(ctx context.Context, id string) error {
	_, err := s.commit(ctx, func(st *types.RosterState, tx *memTx) error {
		c, ok := tx.candidates[id]
		if !ok {
			return ErrNotFound
		}
		c.Evicted = false
		c.EvictedAt = nil
		c.EvictionReason = ""
		tx.candidates[id] = c
		if !st.CandidateIDs.Contains(id) {
			st.CandidateIDs = append(st.CandidateIDs, id)
		}
		return nil
	})
	return err
}

func (s *Memory) RosterState(ctx context.Context) (*types.RosterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := cloneState(s.state)
	return &st, nil
}

func (s *Memory) UpdateRosterState(ctx context.Context, mutate func(*types.RosterState) error) (*types.RosterState, error) {
	return s.commit(ctx, func(st *types.RosterState, _ *memTx) error {
		return mutate(st)
	})
}

// commit is the in-memory analogue of the version-guarded UPDATE: snapshot
// under the lock, mutate outside it, then swap in the result only if no other
// writer has bumped the version in between.
func (s *Memory) commit(ctx context.Context, mutate func(*types.RosterState, *memTx) error) (*types.RosterState, error) {
	for attempt := 0; attempt < commitAttempts; attempt++ {
		s.mu.Lock()
		st := cloneState(s.state)
		tx := &memTx{
			members:    cloneMemberMap(s.members),
			candidates: cloneCandidateMap(s.candidates),
		}
		s.mu.Unlock()
		prev := st.Version

		if err := mutate(&st, tx); err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.state.Version == prev {
			st.Version = prev + 1
			s.state = st
			s.members = tx.members
			s.candidates = tx.candidates
			out := cloneState(st)
			s.mu.Unlock()
			return &out, nil
		}
		s.mu.Unlock()

		if err := sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, ErrConcurrencyExhausted
}

func cloneState(st types.RosterState) types.RosterState {
	out := st
	out.MemberIDs = append(types.StringList(nil), st.MemberIDs...)
	out.CandidateIDs = append(types.StringList(nil), st.CandidateIDs...)
	out.LastRemovalCauses = append(types.StringList(nil), st.LastRemovalCauses...)
	return out
}

func cloneMember(m types.Member) types.Member {
	out := m
	out.ChatHistory = append(types.ChatHistory(nil), m.ChatHistory...)
	return out
}

func cloneCandidate(c types.Candidate) types.Candidate {
	out := c
	out.ChatHistory = append(types.ChatHistory(nil), c.ChatHistory...)
	if c.EvictedAt != nil {
		at := *c.EvictedAt
		out.EvictedAt = &at
	}
	return out
}

func cloneMemberMap(in map[string]types.Member) map[string]types.Member {
	out := make(map[string]types.Member, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneCandidateMap(in map[string]types.Candidate) map[string]types.Candidate {
	out := make(map[string]types.Candidate, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
