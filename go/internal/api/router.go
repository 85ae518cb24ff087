package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

// NewRouter builds the public results API.
func NewRouter(races Races, stats Stats, clock clockwork.Clock) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	{
		api.GET("/races/:id/results", Results(races, clock))
		api.GET("/races/:id/placements", Placements(races))
		api.GET("/races/:id/stats", RaceStats(stats))
	}
	return r
}
