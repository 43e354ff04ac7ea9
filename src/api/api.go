// Package api exposes the council over HTTP: queries go through a full
// deliberation, status reports the roster and pool.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stake-plus/agora/src/council"
	"github.com/stake-plus/agora/src/discordbot"
	"github.com/stake-plus/agora/src/pool"
	"github.com/stake-plus/agora/src/store"
)

// New builds the HTTP surface over a running council.
func New(c *council.Council, p *pool.Pool, an *discordbot.Announcer, st store.Store) *gin.Engine {
	g := gin.New()
	g.Use(gin.Logger(), gin.Recovery())
	g.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	q := NewQuery(c, p, an)
	s := NewStatus(st)

	v1 := g.Group("/v1")
	v1.POST("/query", q.Create)
	v1.GET("/status", s.Get)
	v1.GET("/evicted", s.Evicted)

	return g
}
