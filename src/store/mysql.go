package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/stake-plus/agora/src/types"
)

const rosterID = 1

var errVersionConflict = errors.New("store: roster version conflict")

// MySQL is the gorm-backed store. The roster row carries a version column;
// every membership-changing write commits through a version-guarded UPDATE
// inside one transaction, so at most one writer wins per contention window.
type MySQL struct {
	db *gorm.DB
}

// NewMySQL migrates the schema, seeds the roster singleton and returns the store.
func NewMySQL(db *gorm.DB) (*MySQL, error) {
	if err := db.AutoMigrate(&types.Member{}, &types.Candidate{}, &types.RosterState{}); err != nil {
		return nil, err
	}
	seed := types.RosterState{ID: rosterID, TargetPoolSize: types.MinPoolSize}
	if err := db.FirstOrCreate(&seed, types.RosterState{ID: rosterID}).Error; err != nil {
		return nil, err
	}
	return &MySQL{db: db}, nil
}

func (s *MySQL) Member(ctx context.Context, id string) (*types.Member, error) {
	var m types.Member
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MySQL) Members(ctx context.Context, ids []string) ([]*types.Member, error) {
	byID := make(map[string]*types.Member, len(ids))
	for _, chunk := range chunkIDs(ids) {
		var rows []types.Member
		if err := s.db.WithContext(ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			byID[rows[i].ID] = &rows[i]
		}
	}
	out := make([]*types.Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MySQL) Candidate(ctx context.Context, id string) (*types.Candidate, error) {
	var c types.Candidate
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MySQL) Candidates(ctx context.Context, ids []string) ([]*types.Candidate, error) {
	byID := make(map[string]*types.Candidate, len(ids))
	for _, chunk := range chunkIDs(ids) {
		var rows []types.Candidate
		if err := s.db.WithContext(ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			byID[rows[i].ID] = &rows[i]
		}
	}
	out := make([]*types.Candidate, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MySQL) ListEvicted(ctx context.Context, opts ListOptions) ([]*types.Candidate, string, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > batchSize {
		limit = batchSize
	}

	q := s.db.WithContext(ctx).Where("evicted = ?", true)
	if opts.Reverse {
		if opts.Cursor != "" {
			q = q.Where("id < ?", opts.Cursor)
		}
		q = q.Order("id DESC")
	} else {
		if opts.Cursor != "" {
			q = q.Where("id > ?", opts.Cursor)
		}
		q = q.Order("id ASC")
	}

	var rows []types.Candidate
	if err := q.Limit(limit).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	out := make([]*types.Candidate, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	next := ""
	if len(rows) == limit {
		next = rows[len(rows)-1].ID
	}
	return out, next, nil
}

func (s *MySQL) PutMember(ctx context.Context, m *types.Member) error {
	_, err := s.commit(ctx, func(tx *gorm.DB, st *types.RosterState) error {
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		if !st.MemberIDs.Contains(m.ID) {
			st.MemberIDs = append(st.MemberIDs, m.ID)
		}
		return nil
	})
	return err
}

func (s *MySQL) DeleteMember(ctx context.Context, id string) error {
	_, err := s.commit(ctx, func(tx *gorm.DB, st *types.RosterState) error {
		if err := tx.Delete(&types.Member{}, "id = ?", id).Error; err != nil {
			return err
		}
		st.MemberIDs = st.MemberIDs.Without(id)
		return nil
	})
	return err
}

func (s *MySQL) PutCandidate(ctx context.Context, c *types.Candidate) error {
	return s.PutCandidates(ctx, []*types.Candidate{c})
}

func (s *MySQL) PutCandidates(ctx context.Context, cs []*types.Candidate) error {
	if len(cs) == 0 {
		return nil
	}
	_, err := s.commit(ctx, func(tx *gorm.DB, st *types.RosterState) error {
		for _, c := range cs {
			if err := tx.Save(c).Error; err != nil {
				return err
			}
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

func (s *MySQL) DeleteCandidate(ctx context.Context, id string) error {
	_, err := s.commit(ctx, func(tx *gorm.DB, st *types.RosterState) error {
		if err := tx.Delete(&types.Candidate{}, "id = ?", id).Error; err != nil {
			return err
		}
		st.CandidateIDs = st.CandidateIDs.Without(id)
		return nil
	})
	return err
}

func (s *MySQL) DemoteMember(ctx context.Context, c *types.Candidate, removalCause string) error {
	_, err := s.commit(ctx, func(tx *gorm.DB, st *types.RosterState) error {
		if err := tx.Delete(&types.Member{}, "id = ?", c.ID).Error; err != nil {
			return err
		}
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		st.MemberIDs = st.MemberIDs.Without(c.ID)
		if !st.CandidateIDs.Contains(c.ID) {
			st.CandidateIDs = append(st.CandidateIDs, c.ID)
		}
		st.PushRemovalCause(removalCause)
		return nil
	})
	return err
}

func (s *MySQL) PromoteCandidate(ctx context.Context, m *types.Member) error {
	_, err := s.commit(ctx, func(tx *gorm.DB, st *types.RosterState) error {
		if err := tx.Delete(&types.Candidate{}, "id = ?", m.ID).Error; err != nil {
			return err
		}
		if err := tx.Save(m).Error; err != nil {
			return err
		}
		st.CandidateIDs = st.CandidateIDs.Without(m.ID)
		if !st.MemberIDs.Contains(m.ID) {
			st.MemberIDs = append(st.MemberIDs, m.ID)
		}
		return nil
	})
	return err
}

func (s *MySQL) EvictCandidate(ctx context.Context, id, reason string) error {
	_, err := s.commit(ctx, func(tx *gorm.DB, st *types.RosterState) error {
		var c types.Candidate
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		now := time.Now().UTC()
		c.Evicted = true
		c.EvictedAt = &now
		c.EvictionReason = reason
		if err := tx.Save(&c).Error; err != nil {
			return err
		}
		st.CandidateIDs = st.CandidateIDs.Without(id)
		return nil
	})
	return err
}

func (s *MySQL) RestoreCandidate(ctx context.Context, id string) error {
	_, err := s.commit(ctx, func(tx *gorm.DB, st *types.RosterState) error {
		var c types.Candidate
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		c.Evicted = false
		c.EvictedAt = nil
		c.EvictionReason = ""
		if err := tx.Save(&c).Error; err != nil {
			return err
		}
		if !st.CandidateIDs.Contains(id) {
			st.CandidateIDs = append(st.CandidateIDs, id)
		}
		return nil
	})
	return err
}

func (s *MySQL) RosterState(ctx context.Context) (*types.RosterState, error) {
	var st types.RosterState
	if err := s.db.WithContext(ctx).First(&st, "id = ?", rosterID).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *MySQL) UpdateRosterState(ctx context.Context, mutate func(*types.RosterState) error) (*types.RosterState, error) {
	return s.commit(ctx, func(_ *gorm.DB, st *types.RosterState) error {
		return mutate(st)
	})
}

// commit runs one optimistic-concurrency attempt loop: load the roster state,
// apply the mutation and entity writes in a transaction, and guard the state
// update on the loaded version. A lost race re-reads and retries with capped
// jittered backoff; exhaustion is fatal for the call.
func (s *MySQL) commit(ctx context.Context, mutate func(tx *gorm.DB, st *types.RosterState) error) (*types.RosterState, error) {
	for attempt := 0; attempt < commitAttempts; attempt++ {
		var st types.RosterState
		if err := s.db.WithContext(ctx).First(&st, "id = ?", rosterID).Error; err != nil {
			return nil, err
		}
		prev := st.Version

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mutate(tx, &st); err != nil {
				return err
			}
			res := tx.Model(&types.RosterState{}).
				Where("id = ? AND version = ?", rosterID, prev).
				Updates(map[string]interface{}{
					"member_ids":              st.MemberIDs,
					"candidate_ids":           st.CandidateIDs,
					"target_pool_size":        st.TargetPoolSize,
					"rounds_since_eviction":   st.RoundsSinceEviction,
					"last_removal_causes":     st.LastRemovalCauses,
					"removal_history_summary": st.RemovalHistorySummary,
					"version":                 prev + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errVersionConflict
			}
			return nil
		})
		if err == nil {
			st.Version = prev + 1
			return &st, nil
		}
		if !errors.Is(err, errVersionConflict) {
			return nil, err
		}
		if err := sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, ErrConcurrencyExhausted
}
