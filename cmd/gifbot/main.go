// Command gifbot runs the image-to-GIF Discord bot: it connects to the
// gateway, serves the "Convert to GIF" message command and the developer text
// commands, keeps usage statistics in SQLite, refreshes the optional stats
// display and serves the optional ops HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-gif-bot/internal/bot"
	"github.com/tbourn/go-gif-bot/internal/bot/schedule"
	"github.com/tbourn/go-gif-bot/internal/config"
	"github.com/tbourn/go-gif-bot/internal/fetch"
	httpapi "github.com/tbourn/go-gif-bot/internal/http"
	"github.com/tbourn/go-gif-bot/internal/observability"
	"github.com/tbourn/go-gif-bot/internal/ratelimit"
	"github.com/tbourn/go-gif-bot/internal/repo"
	"github.com/tbourn/go-gif-bot/internal/services"
	"github.com/tbourn/go-gif-bot/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	// A missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gifbot: configuration error: %v\n", err)
		os.Exit(1)
	}
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("gifbot stopped with error")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	// Storage
	if err := repo.EnsureDir(cfg.DBPath); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	store := services.NewUsageService(db, cfg.DBPath)
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}()

	// Conversion pipeline
	fetcher := fetch.New(fetch.Options{
		ProbeTimeout:    cfg.Convert.ProbeTimeout,
		DownloadTimeout: cfg.Convert.DownloadTimeout,
		MaxBytes:        cfg.Convert.DownloadMaxBytes,
	})
	converter := services.NewConversionService(fetcher, cfg.Convert.Quality, cfg.Convert.MaxFrames)

	// Discord
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := bot.New(dg, dg.State, bot.Config{
		DevIDs:             cfg.DevIDs,
		Prefix:             cfg.CommandPrefix,
		AttachmentMaxBytes: cfg.Convert.AttachmentMaxBytes,
		Version:            version,
	}, bot.Deps{
		Store:     store,
		Converter: converter,
		Prober:    fetcher,
		Limiter:   ratelimit.New(cfg.Convert.RateRPS, cfg.Convert.RateBurst),
	})
	b.Register(dg)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer func() {
		b.Close()
		if err := dg.Close(); err != nil {
			log.Warn().Err(err).Msg("close gateway")
		}
	}()
	log.Info().Str("version", version).Int("dev_ids", len(cfg.DevIDs)).Msg("gateway connected")

	// Periodic stats display, once the session is ready.
	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		select {
		case <-ctx.Done():
			return
		case <-b.Ready():
		}
		job := schedule.New(store, dg, schedule.Targets{
			UsersChannelID:   cfg.Stats.UsersChannelID,
			UsageChannelID:   cfg.Stats.UsageChannelID,
			MessageChannelID: cfg.Stats.MessageChannelID,
			MessageID:        cfg.Stats.MessageID,
		}, cfg.Stats.Interval)
		job.Run(ctx)
	}()

	// Ops HTTP server
	var srv *http.Server
	srvErr := make(chan error, 1)
	if cfg.Ops.Addr != "" {
		gin.SetMode(cfg.Ops.GinMode)
		r := gin.New()
		httpapi.RegisterRoutes(r, store, cfg)
		srv = httpapi.NewServer(cfg.Ops.Addr, r)
		go func() {
			log.Info().Str("addr", cfg.Ops.Addr).Msg("ops server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-srvErr:
		log.Error().Err(err).Msg("ops server failed")
		stop()
	}

	<-jobDone
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("ops server shutdown")
		}
	}
	return nil
}
