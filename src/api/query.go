package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/stake-plus/agora/src/council"
	"github.com/stake-plus/agora/src/discordbot"
	"github.com/stake-plus/agora/src/pool"
)

// Query runs council deliberations. One at a time: a second request while a
// vote is running is refused, never queued.
type Query struct {
	council   *council.Council
	pool      *pool.Pool
	announcer *discordbot.Announcer
	sanitizer *bluemonday.Policy

	mu sync.Mutex
}

func NewQuery(c *council.Council, p *pool.Pool, an *discordbot.Announcer) *Query {
	return &Query{council: c, pool: p, announcer: an, sanitizer: bluemonday.StrictPolicy()}
}

func (q *Query) Create(c *gin.Context) {
	var req struct {
		Prompt string `json:"prompt" binding:"required,min=1,max=10000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}
	if !utf8.ValidString(req.Prompt) {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid characters in prompt"})
		return
	}

	if !q.mu.TryLock() {
		c.JSON(http.StatusConflict, gin.H{"err": "a deliberation is already in progress"})
		return
	}
	defer q.mu.Unlock()

	result, err := q.council.Vote(c.Request.Context(), req.Prompt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	// Model output is untrusted; strip any markup before it leaves the API.
	result.Response = q.sanitizer.Sanitize(result.Response)
	for i := range result.Proposals {
		result.Proposals[i].Content = q.sanitizer.Sanitize(result.Proposals[i].Content)
	}

	q.announcer.AnnounceVote(result)

	// The pool practices on its own time, after every council round. The
	// request context dies with the response, so the round runs detached.
	if q.pool != nil {
		go func() {
			if _, err := q.pool.RunPracticeRound(context.Background()); err != nil && !errors.Is(err, pool.ErrRoundInFlight) {
				log.Printf("api: practice round: %v", err)
			}
		}()
	}

	c.JSON(http.StatusOK, result)
}
