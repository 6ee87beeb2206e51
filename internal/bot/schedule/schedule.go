// Package schedule runs the periodic stats display job: it renames two
// channels to the current user and conversion counts and refreshes a pinned
// statistics message.
//
// There is a single job driven by a ticker. A tick that arrives while the
// previous run is still in flight is skipped. Failures are logged and
// counted, never fatal.
package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-gif-bot/internal/bot"
	"github.com/tbourn/go-gif-bot/internal/domain"
	"github.com/tbourn/go-gif-bot/internal/metrics"
)

// Rows shown on the refreshed statistics message.
const (
	topLimit    = 5
	recentLimit = 5
)

// Store is what a run reads.
type Store interface {
	GetAggregateCounts(ctx context.Context) (*domain.AggregateCounts, error)
	GetTopUsers(ctx context.Context, limit int) ([]domain.TopUser, error)
	GetRecentUsage(ctx context.Context, limit int) ([]domain.RecentUsage, error)
}

// Discord is what a run writes.
type Discord interface {
	ChannelEdit(channelID string, data *discordgo.ChannelEdit, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Targets names the surfaces to refresh. Empty ids are skipped.
type Targets struct {
	UsersChannelID   string
	UsageChannelID   string
	MessageChannelID string
	MessageID        string
}

func (t Targets) empty() bool {
	return t.UsersChannelID == "" && t.UsageChannelID == "" && (t.MessageChannelID == "" || t.MessageID == "")
}

// Job is the periodic stats display updater.
type Job struct {
	Store    Store
	Discord  Discord
	Targets  Targets
	Interval time.Duration
	Timeout  time.Duration

	busy atomic.Bool
	now  func() time.Time
}

// New returns a Job. A zero timeout defaults to the interval.
func New(store Store, dc Discord, targets Targets, interval time.Duration) *Job {
	return &Job{Store: store, Discord: dc, Targets: targets, Interval: interval, Timeout: interval, now: time.Now}
}

// Run executes the job once immediately and then on every tick until ctx is
// done. It returns at once when no targets are configured.
func (j *Job) Run(ctx context.Context) {
	if j.Targets.empty() || j.Interval <= 0 {
		log.Info().Msg("stats display job disabled: no targets configured")
		return
	}
	log.Info().Dur("interval", j.Interval).Msg("stats display job started")
	defer log.Info().Msg("stats display job stopped")

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	go j.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go j.Tick(ctx)
		}
	}
}

// Tick runs the job unless a previous run is still in flight. It reports
// whether the run happened.
func (j *Job) Tick(ctx context.Context) bool {
	if !j.busy.CompareAndSwap(false, true) {
		metrics.StatsJobRuns.WithLabelValues("skipped").Inc()
		log.Debug().Msg("stats display run skipped: previous run in flight")
		return false
	}
	defer j.busy.Store(false)

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = j.Interval
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := j.runOnce(ctx); err != nil {
		metrics.StatsJobRuns.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("stats display run failed")
		return true
	}
	metrics.StatsJobRuns.WithLabelValues("ok").Inc()
	return true
}

// runOnce refreshes every configured target and joins their errors.
func (j *Job) runOnce(ctx context.Context) error {
	counts, err := j.Store.GetAggregateCounts(ctx)
	if err != nil {
		return err
	}

	var errs []error
	if id := j.Targets.UsersChannelID; id != "" {
		if _, err := j.Discord.ChannelEdit(id, &discordgo.ChannelEdit{Name: "Users: " + bot.FormatCount(counts.Users)}); err != nil {
			errs = append(errs, err)
		}
	}
	if id := j.Targets.UsageChannelID; id != "" {
		if _, err := j.Discord.ChannelEdit(id, &discordgo.ChannelEdit{Name: "Conversions: " + bot.FormatCount(counts.Events)}); err != nil {
			errs = append(errs, err)
		}
	}
	if j.Targets.MessageChannelID != "" && j.Targets.MessageID != "" {
		if err := j.editMessage(ctx, counts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *Job) editMessage(ctx context.Context, counts *domain.AggregateCounts) error {
	top, err := j.Store.GetTopUsers(ctx, topLimit)
	if err != nil {
		return err
	}
	recent, err := j.Store.GetRecentUsage(ctx, recentLimit)
	if err != nil {
		return err
	}
	now := j.clock()
	embeds := []*discordgo.MessageEmbed{
		bot.DBStatsEmbed(counts, now),
		bot.GlobalStatsEmbed(top, recent, now),
	}
	edit := discordgo.NewMessageEdit(j.Targets.MessageChannelID, j.Targets.MessageID)
	edit.Embeds = &embeds
	_, err = j.Discord.ChannelMessageEditComplex(edit)
	return err
}

func (j *Job) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now()
}

