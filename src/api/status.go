package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stake-plus/agora/src/store"
)

// Status reports the roster and pool without touching any model.
type Status struct {
	store store.Store
}

func NewStatus(st store.Store) *Status {
	return &Status{store: st}
}

func (s *Status) Get(c *gin.Context) {
	ctx := c.Request.Context()

	state, err := s.store.RosterState(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	members, err := s.store.Members(ctx, state.MemberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	candidates, err := s.store.Candidates(ctx, state.CandidateIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	memberViews := make([]gin.H, len(members))
	for i, m := range members {
		memberViews[i] = gin.H{
			"id":            m.ID,
			"name":          m.Persona.Name,
			"decisionStyle": m.Persona.DecisionStyle,
			"promotedAt":    m.PromotedAt,
		}
	}
	candidateViews := make([]gin.H, len(candidates))
	for i, cd := range candidates {
		candidateViews[i] = gin.H{
			"id":      cd.ID,
			"name":    cd.Persona.Name,
			"fitness": cd.Fitness,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"members":    memberViews,
		"candidates": candidateViews,
		"pool": gin.H{
			"targetSize":            state.TargetPoolSize,
			"roundsSinceEviction":   state.RoundsSinceEviction,
			"removalHistorySummary": state.RemovalHistorySummary,
			"lastRemovalCauses":     state.LastRemovalCauses,
		},
	})
}

// Evicted pages through the evicted-candidate archive.
func (s *Status) Evicted(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	opts := store.ListOptions{
		Limit:   limit,
		Cursor:  c.Query("cursor"),
		Reverse: c.Query("order") == "desc",
	}

	evicted, next, err := s.store.ListEvicted(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	views := make([]gin.H, len(evicted))
	for i, e := range evicted {
		views[i] = gin.H{
			"id":        e.ID,
			"name":      e.Persona.Name,
			"fitness":   e.Fitness,
			"evictedAt": e.EvictedAt,
			"reason":    e.EvictionReason,
		}
	}
	c.JSON(http.StatusOK, gin.H{"evicted": views, "nextCursor": next})
}
