// Stats HTTP handlers.
//
// This file exposes the read-only usage statistics as JSON:
//   - GET /stats               (aggregate row counts)
//   - GET /stats/top           (leaderboard)
//   - GET /stats/recent        (most recent usage events)
//   - GET /users/{id}          (per-user summary)
//   - GET /guilds/{id}         (per-guild summary)
//
// It mirrors the developer text commands of the bot so operators can read the
// same numbers without Discord.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/services"
	"github.com/tbourn/go-gif-bot/internal/utils"
)

// Query bounds for list endpoints.
const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// StatsService is the read side of the usage store consumed by the handlers.
//
// Implementations must be safe for concurrent use and honor ctx.
type StatsService interface {
	GetAggregateCounts(ctx context.Context) (*domain.AggregateCounts, error)
	GetTopUsers(ctx context.Context, limit int) ([]domain.TopUser, error)
	GetRecentUsage(ctx context.Context, limit int) ([]domain.RecentUsage, error)
	// GetUserStats returns services.ErrUserNotFound for unknown ids.
	GetUserStats(ctx context.Context, userID int64) (*domain.UserStats, error)
	// GetGuildStats returns services.ErrGuildNotFound for unknown ids.
	GetGuildStats(ctx context.Context, guildID int64) (*domain.GuildStats, error)
}

// Handlers groups the stats endpoints.
type Handlers struct {
	stats StatsService
}

// New constructs Handlers bound to the given service.
func New(stats StatsService) *Handlers {
	return &Handlers{stats: stats}
}

// TopUsersResponse wraps the leaderboard.
type TopUsersResponse struct {
	Users []domain.TopUser `json:"users"`
}

// RecentUsageResponse wraps the most recent usage events, newest first.
type RecentUsageResponse struct {
	Events []domain.RecentUsage `json:"events"`
}

// listLimit reads ?limit= and bounds it to [1, maxListLimit].
func listLimit(c *gin.Context) int {
	return utils.Clamp(utils.AtoiDefault(c.Query("limit"), defaultListLimit), 1, maxListLimit)
}

// GetAggregate godoc
// @ID          getAggregateStats
// @Summary     Aggregate counts
// @Description Returns the number of known guilds, users and usage events.
// @Tags        Stats
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200  {object}  domain.AggregateCounts
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid API key"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats [get]
func (h *Handlers) GetAggregate(c *gin.Context) {
	counts, err := h.stats.GetAggregateCounts(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load stats")
		return
	}
	ok(c, http.StatusOK, counts)
}

// GetTopUsers godoc
// @ID          getTopUsers
// @Summary     Leaderboard
// @Description Returns users ordered by total conversions, highest first.
// @Tags        Stats
// @Produce     json
// @Security    ApiKeyAuth
// @Param       limit  query  int  false  "Rows to return"  minimum(1) maximum(100) default(10)
// @Success     200  {object}  handlers.TopUsersResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats/top [get]
func (h *Handlers) GetTopUsers(c *gin.Context) {
	top, err := h.stats.GetTopUsers(c.Request.Context(), listLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load leaderboard")
		return
	}
	if top == nil {
		top = []domain.TopUser{}
	}
	ok(c, http.StatusOK, TopUsersResponse{Users: top})
}

// GetRecentUsage godoc
// @ID          getRecentUsage
// @Summary     Recent activity
// @Description Returns the most recent usage events with user and guild names, newest first.
// @Tags        Stats
// @Produce     json
// @Security    ApiKeyAuth
// @Param       limit  query  int  false  "Rows to return"  minimum(1) maximum(100) default(10)
// @Success     200  {object}  handlers.RecentUsageResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats/recent [get]
func (h *Handlers) GetRecentUsage(c *gin.Context) {
	recent, err := h.stats.GetRecentUsage(c.Request.Context(), listLimit(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load recent activity")
		return
	}
	if recent == nil {
		recent = []domain.RecentUsage{}
	}
	ok(c, http.StatusOK, RecentUsageResponse{Events: recent})
}

// GetUser godoc
// @ID          getUserStats
// @Summary     User summary
// @Tags        Stats
// @Produce     json
// @Security    ApiKeyAuth
// @Param       id  path  int  true  "Discord user id"
// @Success     200  {object}  domain.UserStats
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown user"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id, valid := utils.ParseSnowflake(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	st, err := h.stats.GetUserStats(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load user stats")
	default:
		ok(c, http.StatusOK, st)
	}
}

// GetGuild godoc
// @ID          getGuildStats
// @Summary     Guild summary
// @Tags        Stats
// @Produce     json
// @Security    ApiKeyAuth
// @Param       id  path  int  true  "Discord guild id"
// @Success     200  {object}  domain.GuildStats
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid id"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown guild"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /guilds/{id} [get]
func (h *Handlers) GetGuild(c *gin.Context) {
	id, valid := utils.ParseSnowflake(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return
	}
	st, err := h.stats.GetGuildStats(c.Request.Context(), id)
	switch {
	case errors.Is(err, services.ErrGuildNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "guild not found")
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not load guild stats")
	default:
		ok(c, http.StatusOK, st)
	}
}
