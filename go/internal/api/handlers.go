// Package api serves read-only race results over HTTP for public clients.
package api

import (
	"context"
	"net/http"
	"strconv"

	"connectrpc.com/connect"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/agegroup"
	"github.com/mcdev12/raceday/go/internal/placement"
	"github.com/mcdev12/raceday/go/internal/results"
	"github.com/mcdev12/raceday/go/internal/timing"
)

// Races loads race data. *results.Cache satisfies it.
type Races interface {
	Load(ctx context.Context, raceID uuid.UUID) (results.RaceData, error)
}

// Stats is satisfied by both *timing.App and *timing.Client.
type Stats interface {
	GetRaceStats(ctx context.Context, raceID uuid.UUID) (*timing.RaceStats, error)
}

// GET /api/races/:id/results?scheme=&brackets=&tie=&page_size=
func Results(races Races, clock clockwork.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		raceID, ok := raceParam(c)
		if !ok {
			return
		}
		view, err := viewFromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, ok := loadRace(c, races, raceID)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, results.Build(data, view, clock.Now()))
	}
}

// GET /api/races/:id/placements?tie=
func Placements(races Races) gin.HandlerFunc {
	return func(c *gin.Context) {
		raceID, ok := raceParam(c)
		if !ok {
			return
		}
		data, ok := loadRace(c, races, raceID)
		if !ok {
			return
		}
		if !data.Race.Started() {
			c.JSON(http.StatusConflict, gin.H{"error": "race not started"})
			return
		}
		placements := placement.Compute(data.Entries, *data.Race.StartTime, data.Race.RaceDate,
			placement.WithTiePolicy(placement.ParseTiePolicy(c.Query("tie"))))
		c.JSON(http.StatusOK, gin.H{"race_id": raceID, "placements": placements})
	}
}

// GET /api/races/:id/stats
func RaceStats(stats Stats) gin.HandlerFunc {
	return func(c *gin.Context) {
		raceID, ok := raceParam(c)
		if !ok {
			return
		}
		s, err := stats.GetRaceStats(c.Request.Context(), raceID)
		if err != nil {
			writeLoadError(c, raceID, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

func raceParam(c *gin.Context) (uuid.UUID, bool) {
	raceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid race id"})
		return uuid.Nil, false
	}
	return raceID, true
}

func loadRace(c *gin.Context, races Races, raceID uuid.UUID) (results.RaceData, bool) {
	data, err := races.Load(c.Request.Context(), raceID)
	if err != nil {
		writeLoadError(c, raceID, err)
		return results.RaceData{}, false
	}
	return data, true
}

func writeLoadError(c *gin.Context, raceID uuid.UUID, err error) {
	if connect.CodeOf(err) == connect.CodeNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "race not found"})
		return
	}
	log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to load race")
	c.JSON(http.StatusBadGateway, gin.H{"error": "results unavailable"})
}

func viewFromQuery(c *gin.Context) (results.View, error) {
	view := results.DefaultView()

	scheme, err := results.ParseScheme(c.Query("scheme"))
	if err != nil {
		return view, err
	}
	view.Scheme = scheme

	if name := c.Query("brackets"); name != "" {
		brackets, ok := agegroup.SchemeByName(name)
		if !ok {
			return view, errUnknownBrackets(name)
		}
		view.Brackets = brackets
	}
	view.Tie = placement.ParseTiePolicy(c.Query("tie"))

	if raw := c.Query("page_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return view, errBadPageSize(raw)
		}
		view.PageSize = n
	}
	return view, nil
}
