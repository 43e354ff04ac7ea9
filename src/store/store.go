// Package store persists members, candidates and the singleton roster state.
//
// The roster state is the single source of truth for who is a member and who
// is a candidate. Every entity write that changes membership also updates the
// roster state in the same optimistic-concurrency commit: read state and
// version, mutate, then commit conditionally on the version still matching.
// Contention is resolved by compare-and-retry at the storage layer, so no
// in-process locks are needed by callers.
package store

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/stake-plus/agora/src/types"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConcurrencyExhausted indicates an optimistic commit lost every one
	// of its retry attempts to concurrent writers.
	ErrConcurrencyExhausted = errors.New("store: concurrency retries exhausted")
)

const (
	// batchSize caps the number of keys per getMany query.
	batchSize = 100
	// commitAttempts bounds the optimistic-concurrency retry loop.
	commitAttempts = 10

	commitBaseDelay = 25 * time.Millisecond
	commitMaxDelay  = time.Second
)

// ListOptions controls paginated reads. Cursor is the opaque value returned
// by the previous page; empty starts from the beginning.
type ListOptions struct {
	Limit   int
	Cursor  string
	Reverse bool
}

// Store is the persistence contract shared by the MySQL and in-memory
// implementations.
type Store interface {
	Member(ctx context.Context, id string) (*types.Member, error)
	Members(ctx context.Context, ids []string) ([]*types.Member, error)
	Candidate(ctx context.Context, id string) (*types.Candidate, error)
	Candidates(ctx context.Context, ids []string) ([]*types.Candidate, error)
	ListEvicted(ctx context.Context, opts ListOptions) ([]*types.Candidate, string, error)

	PutMember(ctx context.Context, m *types.Member) error
	DeleteMember(ctx context.Context, id string) error
	PutCandidate(ctx context.Context, c *types.Candidate) error
	PutCandidates(ctx context.Context, cs []*types.Candidate) error
	DeleteCandidate(ctx context.Context, id string) error

	// DemoteMember atomically converts a member into a pool candidate with
	// the same id, recording the removal cause on the roster ring.
	DemoteMember(ctx context.Context, c *types.Candidate, removalCause string) error
	// PromoteCandidate atomically converts a candidate into a member with
	// the same id.
	PromoteCandidate(ctx context.Context, m *types.Member) error
	// EvictCandidate moves a candidate out of the active pool into the
	// evicted namespace. The record is kept, never deleted.
	EvictCandidate(ctx context.Context, id, reason string) error
	// RestoreCandidate moves an evicted candidate back into the pool and
	// clears its eviction fields.
	RestoreCandidate(ctx context.Context, id string) error

	RosterState(ctx context.Context) (*types.RosterState, error)
	UpdateRosterState(ctx context.Context, mutate func(*types.RosterState) error) (*types.RosterState, error)
}

// commitBackoff returns the jittered delay before retry attempt n (0-based).
func commitBackoff(n int) time.Duration {
	delay := commitBaseDelay << uint(n)
	if delay > commitMaxDelay {
		delay = commitMaxDelay
	}
	// Full jitter keeps contending writers from retrying in lockstep.
	return time.Duration(rand.Int63n(int64(delay)) + int64(delay)/2)
}

func sleepBackoff(ctx context.Context, n int) error {
	timer := time.NewTimer(commitBackoff(n))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func chunkIDs(ids []string) [][]string {
	var chunks [][]string
	for len(ids) > batchSize {
		chunks = append(chunks, ids[:batchSize])
		ids = ids[batchSize:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
