package council

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stake-plus/agora/src/agent"
	"github.com/stake-plus/agora/src/rounds"
	"github.com/stake-plus/agora/src/store"
	"github.com/stake-plus/agora/src/types"

	"github.com/google/uuid"
)

// Replenisher refills the candidate pool up to its target size. Implemented
// by the pool package; the council only needs it while filling vacancies
// from an empty pool.
type Replenisher interface {
	Replenish(ctx context.Context) ([]string, error)
}

const recoveryInterval = 5 * time.Minute

// Council owns the roster lifecycle: restore on boot, seed an initial roster
// when the store is empty, refill vacancies through promotion sub-votes, and
// keep checking in the background.
type Council struct {
	store       store.Store
	agent       agent.Agent
	orch        *Orchestrator
	replenisher Replenisher
	cfg         Config

	initialPoolTarget int

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// New wires the council lifecycle. initialPoolTarget seeds TargetPoolSize on
// first boot and is clamped to the pool bounds.
func New(st store.Store, ag agent.Agent, orch *Orchestrator, rep Replenisher, cfg Config, initialPoolTarget int) *Council {
	if initialPoolTarget < types.MinPoolSize {
		initialPoolTarget = types.MinPoolSize
	}
	if initialPoolTarget > types.MaxPoolSize {
		initialPoolTarget = types.MaxPoolSize
	}
	return &Council{store: st, agent: ag, orch: orch, replenisher: rep, cfg: cfg, initialPoolTarget: initialPoolTarget}
}

// Vote runs one council deliberation.
func (c *Council) Vote(ctx context.Context, prompt string) (*types.VoteResult, error) {
	return c.orch.Vote(ctx, prompt)
}

// Name implements the service module convention.
func (c *Council) Name() string { return "council" }

// Start restores the roster and begins periodic vacancy recovery.
func (c *Council) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("council: already started")
	}
	if err := c.Restore(ctx); err != nil {
		return err
	}

	c.stop = make(chan struct{})
	c.wg.Add(1)
	go c.recoveryLoop()
	c.started = true
	return nil
}

// Stop halts the recovery loop.
func (c *Council) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	close(c.stop)
	c.wg.Wait()
	c.started = false
}

func (c *Council) recoveryLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), recoveryInterval)
			if err := c.FillVacancies(ctx); err != nil {
				log.Printf("council: recovery: %v", err)
			}
			cancel()
		}
	}
}

// Restore rebuilds the council from the store: a completely empty roster is
// seeded with fresh personas, then any vacancy is filled by promotion.
func (c *Council) Restore(ctx context.Context) error {
	st, err := c.store.RosterState(ctx)
	if err != nil {
		return err
	}
	if len(st.MemberIDs) == 0 && len(st.CandidateIDs) == 0 {
		if err := c.seed(ctx); err != nil {
			return err
		}
	}
	return c.FillVacancies(ctx)
}

// seed creates the founding roster: CouncilSize generated personas promoted
// directly, and the pool target set for the first practice round to fill.
func (c *Council) seed(ctx context.Context) error {
	var existing []types.Persona
	now := time.Now().UTC()
	for i := 0; i < c.cfg.CouncilSize; i++ {
		persona, err := c.agent.GeneratePersona(ctx, existing, "")
		if err != nil {
			return fmt.Errorf("council: seeding persona %d: %w", i+1, err)
		}
		existing = append(existing, persona)

		member := &types.Member{
			ID:         uuid.NewString(),
			Persona:    persona,
			CreatedAt:  now,
			PromotedAt: now,
			ChatHistory: types.ChatHistory{{
				Role:    "system",
				Content: "You are a founding member of the council.",
				At:      now,
			}},
		}
		if err := c.store.PutMember(ctx, member); err != nil {
			return err
		}
	}

	_, err := c.store.UpdateRosterState(ctx, func(st *types.RosterState) error {
		st.TargetPoolSize = c.initialPoolTarget
		return nil
	})
	return err
}

// FillVacancies promotes candidates until the council is back at size,
// replenishing the pool first when it is empty.
func (c *Council) FillVacancies(ctx context.Context) error {
	for i := 0; i < c.cfg.CouncilSize; i++ {
		st, err := c.store.RosterState(ctx)
		if err != nil {
			return err
		}
		if len(st.MemberIDs) >= c.cfg.CouncilSize {
			return nil
		}
		if len(st.CandidateIDs) == 0 {
			if c.replenisher == nil {
				return fmt.Errorf("council: %d vacancies and the pool is empty", c.cfg.CouncilSize-len(st.MemberIDs))
			}
			if _, err := c.replenisher.Replenish(ctx); err != nil {
				return fmt.Errorf("council: replenishing for vacancy fill: %w", err)
			}
		}

		members, err := c.store.Members(ctx, st.MemberIDs)
		if err != nil {
			return err
		}
		voters := make([]*rounds.Participant, len(members))
		for j, m := range members {
			voters[j] = &rounds.Participant{ID: m.ID, Persona: m.Persona, History: &m.ChatHistory}
		}

		promoted, _, err := c.orch.RunPromotion(ctx, voters)
		if err != nil {
			return err
		}
		if promoted == "" {
			return fmt.Errorf("council: promotion produced no candidate")
		}
		for _, m := range members {
			if err := c.store.PutMember(ctx, m); err != nil {
				return err
			}
		}
	}
	return nil
}
